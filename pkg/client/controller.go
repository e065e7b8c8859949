package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/killallgit/strand/pkg/blob"
	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/decode"
	"github.com/killallgit/strand/pkg/frame"
	"github.com/killallgit/strand/pkg/framer"
	"github.com/killallgit/strand/pkg/logger"
	"github.com/killallgit/strand/pkg/persist"
	"github.com/killallgit/strand/pkg/reconcile"
	"github.com/killallgit/strand/pkg/relay"
	"github.com/killallgit/strand/pkg/render"
)

const (
	transportErrorText    = "The connection was interrupted before the response finished."
	cancellationErrorText = "The request was cancelled."
)

// Controller drives one conversation against a relay: it sends
// requests, applies the decoded frame stream to a streaming state,
// paces the display, debounces durable snapshots, uploads artifacts,
// and reconciles the transient message into the durable list.
type Controller struct {
	baseURL    string
	httpClient *http.Client
	store      persist.ConversationStore
	blobs      blob.Store
	tracker    *reconcile.Tracker

	debounce   time.Duration
	renderOpts []render.Option
}

// Option configures a Controller
type Option func(*Controller)

// WithHTTPClient overrides the transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Controller) { c.httpClient = hc }
}

// WithDebounce sets the persistence quiet interval
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithRenderOptions forwards options to the per-request renderer
func WithRenderOptions(opts ...render.Option) Option {
	return func(c *Controller) { c.renderOpts = opts }
}

// New creates a controller talking to the relay at baseURL
func New(baseURL string, store persist.ConversationStore, blobs blob.Store, opts ...Option) *Controller {
	c := &Controller{
		baseURL: baseURL,
		// The relay bounds the upstream call in minutes; no extra
		// client-side deadline beyond transport defaults
		httpClient: &http.Client{},
		store:      store,
		blobs:      blobs,
		tracker:    reconcile.NewTracker(),
		debounce:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendOptions tune one request
type SendOptions struct {
	Attachments []framer.Attachment
	Capability  string
	Settings    framer.Settings
	OnRender    func(render.View)
}

// Messages returns the effective message list: the durable record with
// the in-flight transient message merged in
func (c *Controller) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	durable, err := c.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return c.tracker.Effective(durable), nil
}

// Conversation assembles the effective message list into a
// Conversation aggregate for display
func (c *Controller) Conversation(ctx context.Context, conversationID, model string) (chat.Conversation, error) {
	msgs, err := c.Messages(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}

	conv := chat.NewConversation(model)
	conv.ID = conversationID
	for _, msg := range msgs {
		conv = chat.AddMessage(conv, msg)
	}
	return conv, nil
}

// Send issues one generation request and blocks until the response is
// durably recorded. Upstream and transport failures are not returned
// as errors; they come back as the final message flagged errored. Only
// persistence failures, whose loss the caller must know about, return
// an error.
func (c *Controller) Send(ctx context.Context, conversationID, input string, opts SendOptions) (chat.Message, error) {
	history, err := c.store.Messages(ctx, conversationID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to load history: %w", err)
	}

	user := chat.NewUserMessage(conversationID, input)
	if err := c.store.AppendMessage(ctx, user); err != nil {
		return chat.Message{}, fmt.Errorf("failed to record user message: %w", err)
	}

	state := chat.NewStreamingState(conversationID)
	c.tracker.SetTransient(state.Snapshot())

	deb := persist.NewDebouncer(c.store, state, c.debounce)
	if err := deb.Begin(ctx); err != nil {
		c.tracker.Clear()
		return chat.Message{}, err
	}

	renderer := render.New(state, opts.OnRender, c.renderOpts...)
	renderer.Start()

	var uploads sync.WaitGroup
	c.streamResponse(ctx, state, deb, &uploads, relay.GenerateRequest{
		ConversationID: conversationID,
		History:        history,
		Input:          input,
		Attachments:    opts.Attachments,
		Capability:     opts.Capability,
		Settings:       opts.Settings,
	})

	// Cancellation and termination both stop the render loop; a tick
	// scheduled after this point is a no-op
	renderer.Stop()
	renderer.Wait()

	// Placeholders must be resolved or removed before the final write
	uploads.Wait()

	// The mandatory final write runs even when the request context is
	// gone; losing the tail of a completed response is worse than one
	// more store call
	flushCtx := ctx
	if ctx.Err() != nil {
		flushCtx = context.Background()
	}
	flushErr := deb.Flush(flushCtx)

	final := state.Snapshot()
	if flushErr == nil {
		// Cleared only after the final write so the consumer never
		// sees a gap with neither copy present
		c.tracker.Clear()
	} else {
		c.tracker.SetTransient(final)
	}
	state.Finalize()

	if flushErr != nil {
		return final, flushErr
	}
	return final, nil
}

// streamResponse performs the POST and applies the decoded frames to
// the state until a terminal frame, transport failure, or cancellation
func (c *Controller) streamResponse(ctx context.Context, state *chat.StreamingState, deb *persist.Debouncer, uploads *sync.WaitGroup, req relay.GenerateRequest) {
	touch := func() {
		c.tracker.SetTransient(state.Snapshot())
		deb.Touch()
	}

	handler := decode.Callbacks{
		Text: func(delta string) {
			state.AppendText(delta)
			touch()
		},
		Thinking: func(delta string) {
			state.AppendThinking(delta)
			touch()
		},
		Sources: func(sources []frame.Source) {
			state.SetSources(sources)
			touch()
		},
		Suggestions: func(suggestions []string) {
			state.SetSuggestions(suggestions)
			touch()
		},
		RoutedModel: func(model string) {
			state.SetRoutedModel(model)
			touch()
		},
		GeneratingImage: func() {
			// Display state only; nothing worth a durable snapshot
			state.SetGeneratingImage(true)
		},
		Image: func(img frame.Image) {
			c.uploadArtifact(ctx, state, deb, uploads, img)
		},
	}

	body, err := c.post(ctx, req)
	if err != nil {
		logger.Error("generate request failed: %v", err)
		state.Fail(transportErrorText)
		return
	}
	defer body.Close()

	_, err = decode.New(handler).Run(ctx, body)
	switch {
	case err == nil:
		state.Complete()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		state.Fail(cancellationErrorText)
	case errors.Is(err, decode.ErrStreamInterrupted):
		state.Fail(transportErrorText)
	default:
		var upstream *decode.UpstreamError
		if errors.As(err, &upstream) {
			state.Fail(upstream.Message)
		} else {
			logger.Error("stream read failed: %v", err)
			state.Fail(transportErrorText)
		}
	}
}

// uploadArtifact stores artifact bytes outside the debounce path: the
// bytes are not re-derivable from a text snapshot, so they go to the
// object store immediately. A placeholder holds the artifact's place
// until the upload resolves; on failure it is removed, not left
// dangling.
func (c *Controller) uploadArtifact(ctx context.Context, state *chat.StreamingState, deb *persist.Debouncer, uploads *sync.WaitGroup, img frame.Image) {
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		logger.Warn("discarding artifact with undecodable payload: %v", err)
		return
	}

	id := state.AddPendingArtifact(img.MimeType, img.AspectRatio)
	if id == "" {
		return
	}
	state.SetGeneratingImage(false)

	uploads.Add(1)
	go func() {
		defer uploads.Done()

		url, err := c.blobs.Put(ctx, img.MimeType, data)
		if err != nil {
			logger.Warn("artifact upload failed, dropping placeholder: %v", err)
			state.RemoveArtifact(id)
			return
		}
		if state.ResolveArtifact(id, url) {
			c.tracker.SetTransient(state.Snapshot())
			deb.Touch()
		}
	}()
}

func (c *Controller) post(ctx context.Context, req relay.GenerateRequest) (io.ReadCloser, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
