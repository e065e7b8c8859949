package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/killallgit/strand/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestKeywordRouter(t *testing.T) {
	r := router.KeywordRouter{}
	ctx := context.Background()

	tests := []struct {
		input string
		want  string
	}{
		{"draw me a lighthouse at dusk", "image"},
		{"please generate an image of a fox", "image"},
		{"what is the capital of France?", "chat"},
		{"explain debouncing", "chat"},
	}

	for _, tt := range tests {
		decision, err := r.Route(ctx, tt.input, false)
		require.NoError(t, err)
		assert.Equal(t, tt.want, decision.Capability, "input %q", tt.input)
		assert.NotEmpty(t, decision.Rationale)
	}
}

// answeringModel returns a fixed classification answer
type answeringModel struct {
	answer string
	err    error
}

func (m *answeringModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *answeringModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func TestLLMRouterUsesModelAnswer(t *testing.T) {
	r := router.NewLLMRouter(&answeringModel{answer: "image: the user wants a picture"})

	decision, err := r.Route(context.Background(), "a fox in watercolor", false)
	require.NoError(t, err)
	assert.Equal(t, "image", decision.Capability)
	assert.Contains(t, decision.Rationale, "picture")
}

func TestLLMRouterFallsBackOnError(t *testing.T) {
	r := router.NewLLMRouter(&answeringModel{err: errors.New("model offline")})

	decision, err := r.Route(context.Background(), "draw a boat", false)
	require.NoError(t, err)
	assert.Equal(t, "image", decision.Capability)
}

func TestLLMRouterFallsBackOnNonsense(t *testing.T) {
	r := router.NewLLMRouter(&answeringModel{answer: "blue"})

	decision, err := r.Route(context.Background(), "hello there", false)
	require.NoError(t, err)
	assert.Equal(t, "chat", decision.Capability)
}
