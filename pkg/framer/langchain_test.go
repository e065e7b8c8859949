package framer_test

import (
	"context"
	"testing"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/framer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// scriptedModel replays chunks through the streaming callback and
// returns a fixed aggregate, capturing the messages it was given
type scriptedModel struct {
	chunks   []string
	content  string
	info     map[string]any
	messages []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.StreamingFunc != nil {
		for _, chunk := range m.chunks {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.content, GenerationInfo: m.info}},
	}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.content, nil
}

func TestLangChainStreamerRoutesThinking(t *testing.T) {
	model := &scriptedModel{
		chunks:  []string{"<think>weigh", " options</think>", "Hello"},
		content: "<think>weigh options</think>Hello",
	}
	streamer := framer.NewLangChainStreamer(model, "")

	var thinking, text string
	result, err := streamer.StreamChat(context.Background(), framer.Request{Input: "hi"}, func(d framer.Delta) error {
		thinking += d.Thinking
		text += d.Text
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "weigh options", thinking)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "Hello", result.Text, "aggregate text excludes the thinking block")
}

func TestLangChainStreamerBuildsSystemPrompt(t *testing.T) {
	model := &scriptedModel{content: "ok"}
	streamer := framer.NewLangChainStreamer(model, "base prompt")

	temp := 0.2
	_, err := streamer.StreamChat(context.Background(), framer.Request{
		Input: "hi",
		History: []chat.Message{
			{Role: chat.RoleUser, Content: "earlier question"},
			{Role: chat.RoleAssistant, Content: "earlier answer"},
		},
		Settings: framer.Settings{Style: "terse", Temperature: &temp, Instructions: "answer in French"},
	}, func(framer.Delta) error { return nil })
	require.NoError(t, err)

	// system + two history turns + the new input
	require.Len(t, model.messages, 4)
	assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[3].Role)
}

func TestLangChainStreamerAttachments(t *testing.T) {
	model := &scriptedModel{content: "ok"}
	streamer := framer.NewLangChainStreamer(model, "")

	_, err := streamer.StreamChat(context.Background(), framer.Request{
		Input:       "what is in this image?",
		Attachments: []framer.Attachment{{MimeType: "image/png", Data: []byte{0x89, 0x50}}},
	}, func(framer.Delta) error { return nil })
	require.NoError(t, err)

	last := model.messages[len(model.messages)-1]
	require.Len(t, last.Parts, 2)
	_, isBinary := last.Parts[1].(llms.BinaryContent)
	assert.True(t, isBinary)
}

func TestLangChainStreamerAggregateSources(t *testing.T) {
	model := &scriptedModel{
		content: "cited",
		info: map[string]any{
			"citations": []any{
				map[string]any{"title": "paper", "url": "https://paper"},
			},
			"suggestions": []any{"read more"},
		},
	}
	streamer := framer.NewLangChainStreamer(model, "")

	result, err := streamer.StreamChat(context.Background(), framer.Request{Input: "hi"}, func(framer.Delta) error { return nil })
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "paper", result.Sources[0].Title)
	assert.Equal(t, []string{"read more"}, result.Suggestions)
}
