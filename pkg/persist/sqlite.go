package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/frame"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	thinking        TEXT NOT NULL DEFAULT '',
	sources         TEXT NOT NULL DEFAULT '[]',
	suggestions     TEXT NOT NULL DEFAULT '[]',
	artifacts       TEXT NOT NULL DEFAULT '[]',
	routed_model    TEXT NOT NULL DEFAULT '',
	done            INTEGER NOT NULL DEFAULT 0,
	errored         INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	seq             INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
`

// SQLiteStore is the durable ConversationStore backed by a local
// sqlite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and runs
// the schema migration
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg chat.Message) error {
	sources, suggestions, artifacts, err := marshalLists(msg)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, role, content, thinking, sources, suggestions, artifacts, routed_model, done, errored, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages))`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Thinking,
		sources, suggestions, artifacts, msg.RoutedModel,
		boolInt(msg.Done), boolInt(msg.Errored), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PatchMessage(ctx context.Context, msg chat.Message) error {
	sources, suggestions, artifacts, err := marshalLists(msg)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET content = ?, thinking = ?, sources = ?, suggestions = ?, artifacts = ?,
			routed_model = ?, done = ?, errored = ?
		WHERE id = ? AND conversation_id = ?`,
		msg.Content, msg.Thinking, sources, suggestions, artifacts,
		msg.RoutedModel, boolInt(msg.Done), boolInt(msg.Errored),
		msg.ID, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to patch message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check patch result: %w", err)
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, thinking, sources, suggestions, artifacts, routed_model, done, errored, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			msg                             chat.Message
			sources, suggestions, artifacts string
			done, errored                   int
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Thinking,
			&sources, &suggestions, &artifacts, &msg.RoutedModel, &done, &errored, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if err := json.Unmarshal([]byte(sources), &msg.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources for %s: %w", msg.ID, err)
		}
		if err := json.Unmarshal([]byte(suggestions), &msg.Suggestions); err != nil {
			return nil, fmt.Errorf("failed to decode suggestions for %s: %w", msg.ID, err)
		}
		if err := json.Unmarshal([]byte(artifacts), &msg.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to decode artifacts for %s: %w", msg.ID, err)
		}
		msg.Done = done != 0
		msg.Errored = errored != 0
		out = append(out, msg)
	}
	return out, rows.Err()
}

func marshalLists(msg chat.Message) (sources, suggestions, artifacts string, err error) {
	if msg.Sources == nil {
		msg.Sources = []frame.Source{}
	}
	if msg.Suggestions == nil {
		msg.Suggestions = []string{}
	}
	if msg.Artifacts == nil {
		msg.Artifacts = []chat.Artifact{}
	}

	s, err := json.Marshal(msg.Sources)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode sources: %w", err)
	}
	g, err := json.Marshal(msg.Suggestions)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode suggestions: %w", err)
	}
	a, err := json.Marshal(msg.Artifacts)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode artifacts: %w", err)
	}
	return string(s), string(g), string(a), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
