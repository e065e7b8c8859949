package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/logger"
)

// Debouncer bounds the rate of durable writes during a stream. Each
// mutating frame calls Touch, which re-arms a quiet-interval timer;
// only when arrival pauses does a snapshot get written. Flush performs
// the one mandatory final write on termination.
//
// Snapshot writes carry the full accumulated state, never deltas, so a
// later write superseding an earlier one needs no coordination.
type Debouncer struct {
	store    ConversationStore
	state    *chat.StreamingState
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	flushed bool
}

// NewDebouncer creates a debouncer over the given store and state
func NewDebouncer(store ConversationStore, state *chat.StreamingState, interval time.Duration) *Debouncer {
	return &Debouncer{
		store:    store,
		state:    state,
		interval: interval,
	}
}

// Begin creates the durable row for the in-flight message so later
// snapshots can patch it
func (d *Debouncer) Begin(ctx context.Context) error {
	if err := d.store.AppendMessage(ctx, d.state.Snapshot()); err != nil {
		return fmt.Errorf("failed to create in-flight message record: %w", err)
	}
	return nil
}

// Touch cancels any pending snapshot and schedules a new one after the
// quiet interval
func (d *Debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.writeSnapshot)
}

// writeSnapshot is the best-effort mid-stream write. Failures are
// logged only; the next cycle or the final flush supersedes them.
func (d *Debouncer) writeSnapshot() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushed {
		return
	}

	msg := d.state.Snapshot()
	if err := d.store.PatchMessage(context.Background(), msg); err != nil {
		logger.Warn("debounced snapshot write failed for message %s: %v", msg.ID, err)
	}
}

// Flush cancels any pending snapshot and performs the mandatory final
// write of the complete state. Unlike mid-stream snapshots a failure
// here propagates: the tail of the response would otherwise be lost.
// Subsequent calls are no-ops.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushed {
		return nil
	}
	d.flushed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	msg := d.state.Snapshot()
	if err := d.store.PatchMessage(ctx, msg); err != nil {
		return fmt.Errorf("final write for message %s failed: %w", msg.ID, err)
	}
	return nil
}

// Cancel discards any pending snapshot without writing. Used when the
// request is abandoned and a final write is handled elsewhere or not
// wanted.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
