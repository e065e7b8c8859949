package chat

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

func NewConversation(model string) Conversation {
	return Conversation{
		ID:        uuid.NewString(),
		Model:     model,
		Messages:  []Message{},
		CreatedAt: time.Now(),
	}
}

// AddMessage returns a new conversation with the message appended
func AddMessage(conv Conversation, msg Message) Conversation {
	messages := make([]Message, len(conv.Messages), len(conv.Messages)+1)
	copy(messages, conv.Messages)
	conv.Messages = append(messages, msg)
	return conv
}

// LastMessage returns the most recent message, if any
func LastMessage(conv Conversation) (Message, bool) {
	if len(conv.Messages) == 0 {
		return Message{}, false
	}
	return conv.Messages[len(conv.Messages)-1], true
}
