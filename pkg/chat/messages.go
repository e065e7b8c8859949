package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/strand/pkg/frame"
)

type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Thinking       string         `json:"thinking,omitempty"`
	Sources        []frame.Source `json:"sources,omitempty"`
	Suggestions    []string       `json:"suggestions,omitempty"`
	Artifacts      []Artifact     `json:"artifacts,omitempty"`
	RoutedModel    string         `json:"routed_model,omitempty"`
	Done           bool           `json:"done"`
	Errored        bool           `json:"errored"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Artifact is a stored reference to a binary artifact produced during
// a response. While Pending is true the artifact is a placeholder whose
// upload has not resolved yet and URL is empty.
type Artifact struct {
	ID          string  `json:"id"`
	MimeType    string  `json:"mime_type"`
	URL         string  `json:"url,omitempty"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
	Pending     bool    `json:"-"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

func NewUserMessage(conversationID, content string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        strings.TrimSpace(content),
		Done:           true,
		Timestamp:      time.Now(),
	}
}

func NewAssistantMessage(conversationID, content string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        content,
		Done:           true,
		Timestamp:      time.Now(),
	}
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}
