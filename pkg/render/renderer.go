package render

import (
	"sync/atomic"
	"time"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/frame"
)

// View is what the consumer draws: the displayed slice of the arrived
// text plus the rest of the current stream state
type View struct {
	Text            string
	Thinking        string
	Sources         []frame.Source
	Suggestions     []string
	Artifacts       []chat.Artifact
	GeneratingImage bool
	Done            bool
}

// catchUpDivisor controls the smoothing curve: each tick closes 1/8 of
// the remaining gap, minimum one rune, so bursty arrival catches up
// fast while the tail trickles at a legible rate
const catchUpDivisor = 8

// Advance returns how many runes to reveal for a given gap between
// arrived and displayed text
func Advance(gap int) int {
	if gap <= 0 {
		return 0
	}
	step := (gap + catchUpDivisor - 1) / catchUpDivisor
	if step < 1 {
		step = 1
	}
	if step > gap {
		step = gap
	}
	return step
}

// signature captures the identity of everything the consumer can see;
// re-render happens only when it changes
type signature struct {
	displayed   int
	thinkingLen int
	rev         uint64
	done        bool
}

// Renderer advances a displayed view of the arriving text at its own
// cadence. It only ever reads the streaming state; the displayed
// position is its own.
type Renderer struct {
	state    *chat.StreamingState
	render   func(View)
	interval time.Duration
	instant  bool

	displayed int // rune count of the revealed prefix
	last      signature
	rendered  bool

	stopped atomic.Bool
	done    chan struct{}
}

// Option configures a Renderer
type Option func(*Renderer)

// WithInterval sets the tick cadence
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithInstantCatchUp disables smoothing: each tick mirrors the arrived
// text directly
func WithInstantCatchUp() Option {
	return func(r *Renderer) {
		r.instant = true
	}
}

// New creates a renderer over the given state. The render callback runs
// on the renderer goroutine.
func New(state *chat.StreamingState, render func(View), opts ...Option) *Renderer {
	r := &Renderer{
		state:    state,
		render:   render,
		interval: 33 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the tick loop
func (r *Renderer) Start() {
	go r.loop()
}

// Stop halts the loop. Idempotent; a tick already scheduled when Stop
// lands is a no-op.
func (r *Renderer) Stop() {
	r.stopped.Store(true)
}

// Wait blocks until the loop has exited
func (r *Renderer) Wait() {
	<-r.done
}

func (r *Renderer) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		// The stop flag is checked before every reschedule
		if r.stopped.Load() || r.state.Terminated() {
			r.snap()
			return
		}

		<-ticker.C

		if r.stopped.Load() {
			r.snap()
			return
		}
		r.Step()
	}
}

// Step performs one advance-and-render tick. Exposed so a caller that
// owns its own scheduler (or a test) can drive the renderer
// deterministically instead of calling Start.
func (r *Renderer) Step() {
	arrived := []rune(r.state.Text())

	gap := len(arrived) - r.displayed
	if gap > 0 {
		if r.instant {
			r.displayed = len(arrived)
		} else {
			r.displayed += Advance(gap)
		}
	}
	if r.displayed > len(arrived) {
		r.displayed = len(arrived)
	}

	r.emit(arrived)
}

// snap closes any remaining gap in one step so the consumer never sees
// the displayed view stuck behind the arrived text after termination
func (r *Renderer) snap() {
	arrived := []rune(r.state.Text())
	r.displayed = len(arrived)
	r.emit(arrived)
}

func (r *Renderer) emit(arrived []rune) {
	thinking := r.state.Thinking()
	sig := signature{
		displayed:   r.displayed,
		thinkingLen: len(thinking),
		rev:         r.state.Rev(),
		done:        r.state.Terminated(),
	}
	if r.rendered && sig == r.last {
		return
	}
	r.last = sig
	r.rendered = true

	if r.render == nil {
		return
	}
	r.render(View{
		Text:            string(arrived[:r.displayed]),
		Thinking:        thinking,
		Sources:         r.state.Sources(),
		Suggestions:     r.state.Suggestions(),
		Artifacts:       r.state.Artifacts(),
		GeneratingImage: r.state.GeneratingImage(),
		Done:            sig.done,
	})
}
