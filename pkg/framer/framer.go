package framer

import (
	"context"
	"errors"
	"strings"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/frame"
	"github.com/killallgit/strand/pkg/logger"
)

// Capability identifiers for the downstream services a request can be
// routed to
const (
	CapabilityChat  = "chat"
	CapabilityImage = "image"
)

// Attachment is user-supplied binary input accompanying the prompt
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Settings are free-form generation knobs forwarded to the upstream
type Settings struct {
	Style        string   `json:"style,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// Request is one logical "generate a response" call
type Request struct {
	History     []chat.Message `json:"history,omitempty"`
	Input       string         `json:"input"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Capability  string         `json:"capability,omitempty"`
	RoutedModel string         `json:"-"`
	Settings    Settings       `json:"settings,omitempty"`
}

// Delta is one increment from the upstream token stream
type Delta struct {
	Text     string
	Thinking string
	Sources  []frame.Source
}

// ChatResult is the aggregated final result of a token-streaming call.
// Sources and Suggestions are checked here as well as on increments
// because some upstreams only attach them to the aggregate.
type ChatResult struct {
	Text        string
	Sources     []frame.Source
	Suggestions []string
}

// ChatStreamer drives a token-producing capability
type ChatStreamer interface {
	StreamChat(ctx context.Context, req Request, fn func(Delta) error) (*ChatResult, error)
}

// ImageResult is the output of an artifact-producing capability
type ImageResult struct {
	Images []frame.Image
	Text   string
}

// ImageGenerator drives a capability that produces a final artifact
// with no incremental tokens
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req Request) (*ImageResult, error)
}

var errNoImageCapability = errors.New("image generation is not configured")

// Framer turns one upstream generation call into an ordered sequence
// of frames on a single outbound channel
type Framer struct {
	chat  ChatStreamer
	image ImageGenerator
}

// New creates a framer; image may be nil when no artifact capability
// is configured
func New(chatStreamer ChatStreamer, image ImageGenerator) *Framer {
	return &Framer{chat: chatStreamer, image: image}
}

// Run drives the request and returns the frame channel. The channel is
// closed exactly once on every path, always after a terminal frame
// unless the consumer abandoned the context.
func (f *Framer) Run(ctx context.Context, req Request) <-chan frame.Frame {
	frames := make(chan frame.Frame, 64)
	go func() {
		defer close(frames)
		f.run(ctx, req, frames)
	}()
	return frames
}

func (f *Framer) run(ctx context.Context, req Request, frames chan<- frame.Frame) {
	if req.RoutedModel != "" {
		if !emit(ctx, frames, frame.RoutedModelInfo(req.RoutedModel)) {
			return
		}
	}

	var err error
	switch req.Capability {
	case CapabilityImage:
		err = f.runImage(ctx, req, frames)
	default:
		err = f.runChat(ctx, req, frames)
	}

	if err != nil {
		logger.Error("generation failed: %v", err)
		emit(ctx, frames, frame.ErrorFrame(FriendlyError(err)))
		return
	}
	emit(ctx, frames, frame.DoneFrame())
}

var errConsumerGone = errors.New("frame consumer abandoned the stream")

func (f *Framer) runChat(ctx context.Context, req Request, frames chan<- frame.Frame) error {
	if f.chat == nil {
		return errors.New("chat capability is not configured")
	}

	sourcesSent := false
	result, err := f.chat.StreamChat(ctx, req, func(d Delta) error {
		if d.Thinking != "" && !emit(ctx, frames, frame.ThinkingDelta(d.Thinking)) {
			return errConsumerGone
		}
		if d.Text != "" && !emit(ctx, frames, frame.TextDelta(d.Text)) {
			return errConsumerGone
		}
		if len(d.Sources) > 0 && !sourcesSent {
			if !emit(ctx, frames, frame.SourceList(d.Sources)) {
				return errConsumerGone
			}
			sourcesSent = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	// A citation list only present on the aggregate must not be lost
	if !sourcesSent && len(result.Sources) > 0 {
		if !emit(ctx, frames, frame.SourceList(result.Sources)) {
			return errConsumerGone
		}
	}
	if len(result.Suggestions) > 0 {
		if !emit(ctx, frames, frame.SuggestionList(result.Suggestions)) {
			return errConsumerGone
		}
	}
	return nil
}

func (f *Framer) runImage(ctx context.Context, req Request, frames chan<- frame.Frame) error {
	if f.image == nil {
		return errNoImageCapability
	}

	if !emit(ctx, frames, frame.GeneratingImageMarker()) {
		return errConsumerGone
	}

	result, err := f.image.GenerateImage(ctx, req)
	if err != nil {
		return err
	}

	for _, img := range result.Images {
		if !emit(ctx, frames, frame.ImageArtifact(img)) {
			return errConsumerGone
		}
	}
	if result.Text != "" && !emit(ctx, frames, frame.TextDelta(result.Text)) {
		return errConsumerGone
	}
	return nil
}

// emit writes one frame, giving up when the context dies so an
// abandoned consumer cannot wedge the upstream goroutine
func emit(ctx context.Context, frames chan<- frame.Frame, f frame.Frame) bool {
	select {
	case frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// quota and rate signals worth translating for the user
var quotaMarkers = []string{"quota", "rate limit", "too many requests", "429", "resource exhausted"}

// IsQuotaError reports whether the upstream failure is a quota or rate
// signal
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// FriendlyError converts an upstream failure into the human-readable
// message carried by the terminal Error frame
func FriendlyError(err error) string {
	if IsQuotaError(err) {
		return "The assistant is over capacity right now. Please try again in a moment."
	}
	if errors.Is(err, errNoImageCapability) {
		return "Image generation is not available on this server."
	}
	return "Something went wrong while generating a response: " + err.Error()
}
