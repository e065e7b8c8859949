package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/strand/pkg/frame"
)

// StreamingState is the transient accumulator for one in-flight
// response. The network read loop is the sole writer of the arrived
// fields; the renderer and persistence debouncer only ever read. The
// internal lock exists so those readers observe consistent values, not
// to arbitrate writers.
//
// Lifecycle: created when the request starts, mutated by frame
// application, terminated by a Done or Error frame, finalized after the
// mandatory final durable write. A finalized state discards all further
// mutation so frames from an abandoned transport cannot resurrect it.
type StreamingState struct {
	mu sync.RWMutex

	messageID      string
	conversationID string
	started        time.Time

	text            strings.Builder
	thinking        strings.Builder
	sources         []frame.Source
	suggestions     []string
	artifacts       []Artifact
	routedModel     string
	generatingImage bool

	terminated bool
	failure    string
	finalized  bool

	// rev increments on every change to the list-valued fields so the
	// renderer can cheaply detect identity changes
	rev uint64
}

// NewStreamingState creates the accumulator for a new in-flight response
func NewStreamingState(conversationID string) *StreamingState {
	return &StreamingState{
		messageID:      uuid.NewString(),
		conversationID: conversationID,
		started:        time.Now(),
	}
}

func (s *StreamingState) MessageID() string {
	return s.messageID
}

func (s *StreamingState) ConversationID() string {
	return s.conversationID
}

// mutable reports whether arrived-side mutation is still allowed
func (s *StreamingState) mutable() bool {
	return !s.terminated && !s.finalized
}

// AppendText appends one answer text delta
func (s *StreamingState) AppendText(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable() {
		return
	}
	s.text.WriteString(delta)
}

// AppendThinking appends one reasoning trace delta
func (s *StreamingState) AppendThinking(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable() {
		return
	}
	s.thinking.WriteString(delta)
}

// SetSources replaces the source list; a repeated emission wins
func (s *StreamingState) SetSources(sources []frame.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable() {
		return
	}
	s.sources = append([]frame.Source(nil), sources...)
	s.rev++
}

// SetSuggestions replaces the follow-up suggestion list
func (s *StreamingState) SetSuggestions(suggestions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable() {
		return
	}
	s.suggestions = append([]string(nil), suggestions...)
	s.rev++
}

// SetRoutedModel records which capability served the request
func (s *StreamingState) SetRoutedModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable() {
		return
	}
	s.routedModel = model
}

// SetGeneratingImage flips the artifact-in-progress display marker
func (s *StreamingState) SetGeneratingImage(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable() {
		return
	}
	s.generatingImage = on
	s.rev++
}

// AddPendingArtifact inserts a placeholder for an artifact whose upload
// is in flight and returns its id
func (s *StreamingState) AddPendingArtifact(mimeType string, aspectRatio float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ""
	}
	art := Artifact{
		ID:          uuid.NewString(),
		MimeType:    mimeType,
		AspectRatio: aspectRatio,
		Pending:     true,
	}
	s.artifacts = append(s.artifacts, art)
	s.rev++
	return art.ID
}

// ResolveArtifact replaces a placeholder in place with its stored URL.
// Resolution is allowed after termination because uploads race the tail
// of the stream, but never after finalization.
func (s *StreamingState) ResolveArtifact(id, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	for i := range s.artifacts {
		if s.artifacts[i].ID == id {
			s.artifacts[i].URL = url
			s.artifacts[i].Pending = false
			s.rev++
			return true
		}
	}
	return false
}

// RemoveArtifact drops a placeholder whose upload failed
func (s *StreamingState) RemoveArtifact(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	for i := range s.artifacts {
		if s.artifacts[i].ID == id {
			s.artifacts = append(s.artifacts[:i], s.artifacts[i+1:]...)
			s.rev++
			return true
		}
	}
	return false
}

// Complete marks the stream terminated successfully
func (s *StreamingState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.generatingImage = false
	s.rev++
}

// Fail marks the stream terminated with a failure description
func (s *StreamingState) Fail(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.failure = description
	s.generatingImage = false
	s.rev++
}

// Finalize retires the state after the final durable write. All further
// mutation, including artifact resolution, is discarded.
func (s *StreamingState) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
	s.finalized = true
}

// Read side

func (s *StreamingState) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text.String()
}

func (s *StreamingState) Thinking() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thinking.String()
}

func (s *StreamingState) Sources() []frame.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]frame.Source(nil), s.sources...)
}

func (s *StreamingState) Suggestions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.suggestions...)
}

func (s *StreamingState) Artifacts() []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Artifact(nil), s.artifacts...)
}

func (s *StreamingState) RoutedModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routedModel
}

func (s *StreamingState) GeneratingImage() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generatingImage
}

func (s *StreamingState) Terminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminated
}

// Failure returns the failure description and whether the stream failed
func (s *StreamingState) Failure() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure, s.failure != ""
}

// Rev returns the list-field revision counter
func (s *StreamingState) Rev() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Snapshot builds a full message from the current accumulated state.
// Each snapshot is self-contained; a later snapshot supersedes an
// earlier one entirely.
func (s *StreamingState) Snapshot() Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Pending placeholders are transient display state and never
	// belong in a durable record
	var artifacts []Artifact
	for _, a := range s.artifacts {
		if !a.Pending {
			artifacts = append(artifacts, a)
		}
	}

	// Text that arrived before a mid-stream failure is preserved; the
	// failure description becomes the content only when nothing arrived
	content := s.text.String()
	if s.failure != "" && content == "" {
		content = s.failure
	}

	return Message{
		ID:             s.messageID,
		ConversationID: s.conversationID,
		Role:           RoleAssistant,
		Content:        content,
		Thinking:       s.thinking.String(),
		Sources:        append([]frame.Source(nil), s.sources...),
		Suggestions:    append([]string(nil), s.suggestions...),
		Artifacts:      artifacts,
		RoutedModel:    s.routedModel,
		Done:           s.terminated,
		Errored:        s.failure != "",
		Timestamp:      s.started,
	}
}
