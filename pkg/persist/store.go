package persist

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/killallgit/strand/pkg/chat"
)

// ErrMessageNotFound reports a patch against a message id the store
// has never seen
var ErrMessageNotFound = errors.New("message not found")

// ConversationStore is the durable record of conversations. Every
// write carries a full message snapshot, keyed by conversation id and
// message id; a later write supersedes an earlier one entirely.
type ConversationStore interface {
	AppendMessage(ctx context.Context, msg chat.Message) error
	PatchMessage(ctx context.Context, msg chat.Message) error
	Messages(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// MemoryStore is an in-memory ConversationStore for tests and
// ephemeral sessions
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]chat.Message // message id -> snapshot
	order    map[string]int
	next     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]chat.Message),
		order:    make(map[string]int),
	}
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messages[msg.ID]; !exists {
		m.order[msg.ID] = m.next
		m.next++
	}
	m.messages[msg.ID] = msg
	return nil
}

func (m *MemoryStore) PatchMessage(_ context.Context, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messages[msg.ID]; !exists {
		return ErrMessageNotFound
	}
	m.messages[msg.ID] = msg
	return nil
}

func (m *MemoryStore) Messages(_ context.Context, conversationID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []chat.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.order[out[i].ID] < m.order[out[j].ID]
	})
	return out, nil
}
