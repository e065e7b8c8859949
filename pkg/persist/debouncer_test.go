package persist_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/frame"
	"github.com/killallgit/strand/pkg/persist"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPersist(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Persist Suite")
}

// countingStore wraps MemoryStore and records every patch write
type countingStore struct {
	*persist.MemoryStore

	mu          sync.Mutex
	patches     []chat.Message
	failPatches bool
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: persist.NewMemoryStore()}
}

func (c *countingStore) PatchMessage(ctx context.Context, msg chat.Message) error {
	c.mu.Lock()
	fail := c.failPatches
	if !fail {
		c.patches = append(c.patches, msg)
	}
	c.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return c.MemoryStore.PatchMessage(ctx, msg)
}

func (c *countingStore) patchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.patches)
}

func (c *countingStore) lastPatch() chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patches[len(c.patches)-1]
}

var _ = Describe("Debouncer", func() {
	var (
		store *countingStore
		state *chat.StreamingState
		ctx   context.Context
	)

	BeforeEach(func() {
		store = newCountingStore()
		state = chat.NewStreamingState("conv-1")
		ctx = context.Background()
	})

	It("writes once for a rapid burst, not once per frame", func() {
		deb := persist.NewDebouncer(store, state, 50*time.Millisecond)
		Expect(deb.Begin(ctx)).To(Succeed())

		for i := 0; i < 100; i++ {
			state.AppendText(fmt.Sprintf("chunk-%d ", i))
			deb.Touch()
		}
		state.Complete()
		Expect(deb.Flush(ctx)).To(Succeed())

		Expect(store.patchCount()).To(Equal(1), "only the mandatory final write")
		Expect(store.lastPatch().Done).To(BeTrue())
	})

	It("writes a snapshot after a quiet interval", func() {
		deb := persist.NewDebouncer(store, state, 10*time.Millisecond)
		Expect(deb.Begin(ctx)).To(Succeed())

		state.AppendText("partial")
		deb.Touch()

		Eventually(store.patchCount, time.Second, time.Millisecond).Should(Equal(1))
		Expect(store.lastPatch().Content).To(Equal("partial"))
		Expect(store.lastPatch().Done).To(BeFalse())
	})

	It("final write contains the exact concatenation of all deltas", func() {
		deb := persist.NewDebouncer(store, state, 5*time.Millisecond)
		Expect(deb.Begin(ctx)).To(Succeed())

		var want string
		for i := 0; i < 20; i++ {
			delta := fmt.Sprintf("piece%d|", i)
			want += delta
			state.AppendText(delta)
			deb.Touch()
			if i%7 == 0 {
				time.Sleep(8 * time.Millisecond) // let some snapshots land
			}
		}
		state.Complete()
		Expect(deb.Flush(ctx)).To(Succeed())

		msgs, err := store.Messages(ctx, "conv-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Content).To(Equal(want))
		Expect(msgs[0].Done).To(BeTrue())
	})

	It("includes a late source list in the final record", func() {
		deb := persist.NewDebouncer(store, state, time.Hour)
		Expect(deb.Begin(ctx)).To(Succeed())

		state.AppendText("cited answer")
		deb.Touch()
		state.SetSources([]frame.Source{{Title: "paper", URL: "https://paper"}})
		deb.Touch()
		state.Complete()
		Expect(deb.Flush(ctx)).To(Succeed())

		Expect(store.lastPatch().Sources).To(HaveLen(1))
		Expect(store.lastPatch().Sources[0].Title).To(Equal("paper"))
	})

	It("flags the record errored while preserving earlier text", func() {
		deb := persist.NewDebouncer(store, state, time.Hour)
		Expect(deb.Begin(ctx)).To(Succeed())

		state.AppendText("partial answer")
		deb.Touch()
		state.Fail("quota exceeded")
		Expect(deb.Flush(ctx)).To(Succeed())

		final := store.lastPatch()
		Expect(final.Errored).To(BeTrue())
		Expect(final.Done).To(BeTrue())
		Expect(final.Content).To(Equal("partial answer"))
	})

	It("propagates a final write failure", func() {
		deb := persist.NewDebouncer(store, state, time.Hour)
		Expect(deb.Begin(ctx)).To(Succeed())

		store.failPatches = true
		state.Complete()
		Expect(deb.Flush(ctx)).To(HaveOccurred())
	})

	It("absorbs mid-stream snapshot failures", func() {
		deb := persist.NewDebouncer(store, state, time.Millisecond)
		Expect(deb.Begin(ctx)).To(Succeed())

		store.failPatches = true
		state.AppendText("x")
		deb.Touch()
		time.Sleep(10 * time.Millisecond)

		store.mu.Lock()
		store.failPatches = false
		store.mu.Unlock()
		state.Complete()
		Expect(deb.Flush(ctx)).To(Succeed())
	})

	It("never writes a snapshot after Flush", func() {
		deb := persist.NewDebouncer(store, state, 5*time.Millisecond)
		Expect(deb.Begin(ctx)).To(Succeed())

		state.AppendText("tail")
		deb.Touch()
		state.Complete()
		Expect(deb.Flush(ctx)).To(Succeed())
		count := store.patchCount()

		deb.Touch()
		time.Sleep(20 * time.Millisecond)
		Expect(store.patchCount()).To(Equal(count))
	})

	It("Cancel discards the pending snapshot without writing", func() {
		deb := persist.NewDebouncer(store, state, 5*time.Millisecond)
		Expect(deb.Begin(ctx)).To(Succeed())

		state.AppendText("abandoned")
		deb.Touch()
		deb.Cancel()
		time.Sleep(20 * time.Millisecond)
		Expect(store.patchCount()).To(BeZero())
	})
})
