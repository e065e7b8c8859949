package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists opaque bytes and returns a URL referencing them
type Store interface {
	Put(ctx context.Context, mimeType string, data []byte) (string, error)
}

// DiskStore stores blobs as content-addressed files under a directory
// and returns file:// URLs
type DiskStore struct {
	dir string
}

// NewDiskStore creates the backing directory if needed
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Put(ctx context.Context, mimeType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + extensionFor(mimeType)
	path := filepath.Join(d.dir, name)

	// Content addressing makes duplicate puts idempotent
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("failed to store blob: %w", err)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve blob path: %w", err)
	}
	return "file://" + abs, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
