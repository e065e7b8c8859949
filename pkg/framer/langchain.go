package framer

import (
	"context"
	"fmt"
	"strings"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/frame"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// LangChainStreamer adapts a LangChain llms.Model to the ChatStreamer
// interface. Thinking traces are recognized by <think> tags in the
// token stream and routed to the thinking channel.
type LangChainStreamer struct {
	llm          llms.Model
	systemPrompt string
}

// NewLangChainStreamer wraps an existing model
func NewLangChainStreamer(llm llms.Model, systemPrompt string) *LangChainStreamer {
	return &LangChainStreamer{llm: llm, systemPrompt: systemPrompt}
}

// NewOllamaStreamer builds a streamer over the Ollama provider
func NewOllamaStreamer(baseURL, model, systemPrompt string) (*LangChainStreamer, error) {
	var opts []ollama.Option
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	if model != "" {
		opts = append(opts, ollama.WithModel(model))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}
	return NewLangChainStreamer(llm, systemPrompt), nil
}

// StreamChat implements ChatStreamer
func (l *LangChainStreamer) StreamChat(ctx context.Context, req Request, fn func(Delta) error) (*ChatResult, error) {
	messages := l.buildMessages(req)

	splitter := &thinkSplitter{}
	callOpts := []llms.CallOption{
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			thinking, text := splitter.feed(string(chunk))
			if thinking == "" && text == "" {
				return nil
			}
			return fn(Delta{Thinking: thinking, Text: text})
		}),
	}
	if req.Settings.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*req.Settings.Temperature))
	}

	response, err := l.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("upstream generation failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("upstream returned no choices")
	}

	// Drain anything the splitter held back at end of stream
	if thinking, text := splitter.flush(); thinking != "" || text != "" {
		if err := fn(Delta{Thinking: thinking, Text: text}); err != nil {
			return nil, err
		}
	}

	choice := response.Choices[0]
	parsed := splitFinalThinking(choice.Content)
	return &ChatResult{
		Text:        parsed,
		Sources:     sourcesFromInfo(choice.GenerationInfo),
		Suggestions: suggestionsFromInfo(choice.GenerationInfo),
	}, nil
}

func (l *LangChainStreamer) buildMessages(req Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)

	system := l.systemPrompt
	if req.Settings.Style != "" {
		system = strings.TrimSpace(system + "\nRespond in this style: " + req.Settings.Style)
	}
	if req.Settings.Instructions != "" {
		system = strings.TrimSpace(system + "\n" + req.Settings.Instructions)
	}
	if system != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}

	for _, msg := range req.History {
		role := schema.ChatMessageTypeHuman
		switch msg.Role {
		case chat.RoleAssistant:
			role = schema.ChatMessageTypeAI
		case chat.RoleSystem:
			role = schema.ChatMessageTypeSystem
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	parts := []llms.ContentPart{llms.TextPart(req.Input)}
	for _, att := range req.Attachments {
		parts = append(parts, llms.BinaryPart(att.MimeType, att.Data))
	}
	messages = append(messages, llms.MessageContent{
		Role:  schema.ChatMessageTypeHuman,
		Parts: parts,
	})

	return messages
}

// splitFinalThinking strips <think> blocks from the aggregated final
// text so ChatResult.Text matches what was emitted as answer deltas
func splitFinalThinking(content string) string {
	splitter := &thinkSplitter{}
	_, text := splitter.feed(content)
	_, tail := splitter.flush()
	return text + tail
}

// sourcesFromInfo extracts citation metadata some providers attach to
// the aggregated result
func sourcesFromInfo(info map[string]any) []frame.Source {
	if info == nil {
		return nil
	}

	for _, key := range []string{"sources", "citations", "grounding"} {
		raw, ok := info[key].([]any)
		if !ok {
			continue
		}
		var out []frame.Source
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			src := frame.Source{}
			if title, ok := m["title"].(string); ok {
				src.Title = title
			}
			if url, ok := m["url"].(string); ok {
				src.URL = url
			}
			if src.Title != "" || src.URL != "" {
				out = append(out, src)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// suggestionsFromInfo extracts follow-up suggestions when the provider
// supplies them
func suggestionsFromInfo(info map[string]any) []string {
	if info == nil {
		return nil
	}

	raw, ok := info["suggestions"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range raw {
		if s, ok := entry.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
