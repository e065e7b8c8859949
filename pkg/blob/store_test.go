package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/killallgit/strand/pkg/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePut(t *testing.T) {
	store, err := blob.NewDiskStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "image/png", []byte("fake png bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "file://"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake png bytes"), data)
}

func TestDiskStorePutIdempotent(t *testing.T) {
	store, err := blob.NewDiskStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	url1, err := store.Put(context.Background(), "image/jpeg", []byte("same"))
	require.NoError(t, err)
	url2, err := store.Put(context.Background(), "image/jpeg", []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, url1, url2)
}

func TestDiskStoreUnknownMime(t *testing.T) {
	store, err := blob.NewDiskStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "application/octet-stream", []byte{0x01})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".bin"))
}

func TestDiskStoreCancelledContext(t *testing.T) {
	store, err := blob.NewDiskStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, "image/png", []byte("x"))
	assert.Error(t, err)
}
