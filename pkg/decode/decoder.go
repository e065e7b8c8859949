package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/strand/pkg/frame"
	"github.com/killallgit/strand/pkg/logger"
)

// ErrStreamInterrupted reports a transport that ended before a terminal
// frame was seen.
var ErrStreamInterrupted = errors.New("stream interrupted before completion")

// UpstreamError is the terminal error carried by an Error frame
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// Handler receives decoded frame payloads. Terminal frames are not
// dispatched; they surface through the decoder itself.
type Handler interface {
	OnText(delta string)
	OnThinking(delta string)
	OnSources(sources []frame.Source)
	OnImage(img frame.Image)
	OnSuggestions(suggestions []string)
	OnRoutedModel(model string)
	OnGeneratingImage()
}

// Callbacks adapts plain functions to the Handler interface; nil
// functions are skipped
type Callbacks struct {
	Text            func(delta string)
	Thinking        func(delta string)
	Sources         func(sources []frame.Source)
	Image           func(img frame.Image)
	Suggestions     func(suggestions []string)
	RoutedModel     func(model string)
	GeneratingImage func()
}

func (c Callbacks) OnText(delta string) {
	if c.Text != nil {
		c.Text(delta)
	}
}

func (c Callbacks) OnThinking(delta string) {
	if c.Thinking != nil {
		c.Thinking(delta)
	}
}

func (c Callbacks) OnSources(sources []frame.Source) {
	if c.Sources != nil {
		c.Sources(sources)
	}
}

func (c Callbacks) OnImage(img frame.Image) {
	if c.Image != nil {
		c.Image(img)
	}
}

func (c Callbacks) OnSuggestions(suggestions []string) {
	if c.Suggestions != nil {
		c.Suggestions(suggestions)
	}
}

func (c Callbacks) OnRoutedModel(model string) {
	if c.RoutedModel != nil {
		c.RoutedModel(model)
	}
}

func (c Callbacks) OnGeneratingImage() {
	if c.GeneratingImage != nil {
		c.GeneratingImage()
	}
}

var _ Handler = Callbacks{}

// Decoder reconstitutes frames from a raw chunk stream. Chunks may
// split anywhere, including mid-line; the pending fragment is carried
// across Feed calls and never discarded.
type Decoder struct {
	handler    Handler
	pending    []byte
	text       strings.Builder
	terminated bool
	err        error
}

// New creates a decoder dispatching to the given handler
func New(handler Handler) *Decoder {
	if handler == nil {
		handler = Callbacks{}
	}
	return &Decoder{handler: handler}
}

// Feed appends one raw chunk and processes every complete line in the
// buffer. Calls after termination are no-ops.
func (d *Decoder) Feed(chunk []byte) {
	if d.terminated {
		return
	}

	d.pending = append(d.pending, chunk...)

	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			return
		}
		line := d.pending[:idx]
		d.pending = d.pending[idx+1:]

		d.processLine(line)
		if d.terminated {
			d.pending = nil
			return
		}
	}
}

func (d *Decoder) processLine(line []byte) {
	f, ok, err := frame.DecodeLine(line)
	if err != nil {
		// One malformed line is noise, not a dead stream
		logger.Warn("skipping malformed frame line: %v", err)
		return
	}
	if !ok {
		return
	}

	switch f.Kind() {
	case frame.KindText:
		d.text.WriteString(*f.Text)
		d.handler.OnText(*f.Text)
	case frame.KindThinking:
		d.handler.OnThinking(*f.Thinking)
	case frame.KindSources:
		d.handler.OnSources(f.Sources)
	case frame.KindImage:
		d.handler.OnImage(*f.Image)
	case frame.KindSuggestions:
		d.handler.OnSuggestions(f.Suggestions)
	case frame.KindRoutedModel:
		d.handler.OnRoutedModel(*f.RoutedModel)
	case frame.KindGeneratingImage:
		d.handler.OnGeneratingImage()
	case frame.KindError:
		d.err = &UpstreamError{Message: *f.Error}
		d.terminated = true
	case frame.KindDone:
		d.terminated = true
	default:
		logger.Debug("ignoring frame with no recognized payload")
	}
}

// Terminated reports whether a terminal frame has been decoded
func (d *Decoder) Terminated() bool {
	return d.terminated
}

// Err returns the upstream error carried by a terminal Error frame
func (d *Decoder) Err() error {
	return d.err
}

// FinalText returns the concatenation of all text deltas decoded so far
func (d *Decoder) FinalText() string {
	return d.text.String()
}

// Run reads the stream to termination and returns the accumulated
// final text. A reader that ends before a terminal frame yields
// ErrStreamInterrupted; an Error frame yields an UpstreamError.
func (d *Decoder) Run(ctx context.Context, r io.Reader) (string, error) {
	buf := make([]byte, 4096)

	for !d.terminated {
		select {
		case <-ctx.Done():
			return d.FinalText(), ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err != nil {
			if d.terminated {
				break
			}
			if errors.Is(err, io.EOF) {
				return d.FinalText(), ErrStreamInterrupted
			}
			return d.FinalText(), fmt.Errorf("stream read failed: %w", err)
		}
	}

	return d.FinalText(), d.err
}
