package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/framer"
	"github.com/killallgit/strand/pkg/logger"
	"github.com/killallgit/strand/pkg/router"
)

// GenerateRequest is the relay entry point payload
type GenerateRequest struct {
	ConversationID string              `json:"conversation_id,omitempty"`
	History        []chat.Message      `json:"history,omitempty"`
	Input          string              `json:"input"`
	Attachments    []framer.Attachment `json:"attachments,omitempty"`
	Capability     string              `json:"capability,omitempty"`
	Settings       framer.Settings     `json:"settings,omitempty"`
}

// Server exposes one generation endpoint that answers with the frame
// stream
type Server struct {
	framer  *framer.Framer
	router  router.Router
	timeout time.Duration
}

// NewServer creates a relay over the given framer. The router is
// consulted when a request does not pin a capability; it may be nil.
// The timeout is the generous upper bound on one upstream call.
func NewServer(f *framer.Framer, r router.Router, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Server{framer: f, router: r, timeout: timeout}
}

// Handler returns the HTTP handler for the relay
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", s.handleGenerate)
	return mux
}

// ListenAndServe runs the relay on the given address
func (s *Server) ListenAndServe(addr string) error {
	logger.Info("relay listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		http.Error(w, "input is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	capability := req.Capability
	routedModel := ""
	if capability == "" && s.router != nil {
		decision, err := s.router.Route(ctx, req.Input, len(req.Attachments) > 0)
		if err != nil {
			logger.Warn("capability routing failed, defaulting to chat: %v", err)
			decision = router.Decision{Capability: framer.CapabilityChat, Rationale: "routing failed"}
		}
		capability = decision.Capability
		routedModel = decision.Capability
		logger.Debug("routed request to %s: %s", decision.Capability, decision.Rationale)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	frames := s.framer.Run(ctx, framer.Request{
		History:     req.History,
		Input:       req.Input,
		Attachments: req.Attachments,
		Capability:  capability,
		RoutedModel: routedModel,
		Settings:    req.Settings,
	})

	for f := range frames {
		raw, err := f.MarshalSSE()
		if err != nil {
			logger.Error("failed to encode frame: %v", err)
			continue
		}
		if _, err := w.Write(raw); err != nil {
			// Client went away; drain so the framer can close up
			logger.Debug("client disconnected mid-stream: %v", err)
			cancel()
			for range frames {
			}
			return
		}
		flusher.Flush()
	}
}
