package reconcile

import (
	"sync"

	"github.com/killallgit/strand/pkg/chat"
)

// EffectiveMessages merges the durable message list with an in-flight
// transient message: substituted in place when the durable list already
// holds its id, appended otherwise. A nil transient returns the durable
// list unchanged.
func EffectiveMessages(durable []chat.Message, transient *chat.Message) []chat.Message {
	if transient == nil {
		return durable
	}

	out := make([]chat.Message, 0, len(durable)+1)
	substituted := false
	for _, msg := range durable {
		if msg.ID == transient.ID {
			out = append(out, *transient)
			substituted = true
			continue
		}
		out = append(out, msg)
	}
	if !substituted {
		out = append(out, *transient)
	}
	return out
}

// Tracker holds the single transient message for one in-flight request
// and hands out the effective view of the conversation. The transient
// entry is cleared only after the final durable write has been issued,
// so the consumer never sees a gap where neither copy is present.
type Tracker struct {
	mu        sync.RWMutex
	transient *chat.Message
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// SetTransient installs or replaces the in-flight message
func (t *Tracker) SetTransient(msg chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transient = &msg
}

// Clear retires the transient message; call only after the final
// durable write has been issued
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transient = nil
}

// Transient returns the current in-flight message, if any
func (t *Tracker) Transient() (chat.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.transient == nil {
		return chat.Message{}, false
	}
	return *t.transient, true
}

// Effective merges the durable list with the tracked transient message
func (t *Tracker) Effective(durable []chat.Message) []chat.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return EffectiveMessages(durable, t.transient)
}
