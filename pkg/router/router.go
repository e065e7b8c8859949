package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/killallgit/strand/pkg/logger"
	"github.com/tmc/langchaingo/llms"
)

// Decision names which downstream capability serves a request, plus a
// free-text rationale for logging
type Decision struct {
	Capability string
	Rationale  string
}

// Router classifies a request onto a capability. Consumers treat it as
// opaque; how it decides is its own business.
type Router interface {
	Route(ctx context.Context, input string, hasAttachments bool) (Decision, error)
}

const (
	capabilityChat  = "chat"
	capabilityImage = "image"
)

// KeywordRouter is a cheap heuristic classifier used standalone or as
// the fallback when the model-backed router fails
type KeywordRouter struct{}

var imageMarkers = []string{
	"draw", "sketch", "paint", "illustrate", "generate an image",
	"generate a picture", "make an image", "make a picture", "create an image",
}

func (KeywordRouter) Route(_ context.Context, input string, _ bool) (Decision, error) {
	lower := strings.ToLower(input)
	for _, marker := range imageMarkers {
		if strings.Contains(lower, marker) {
			return Decision{
				Capability: capabilityImage,
				Rationale:  fmt.Sprintf("input mentions %q", marker),
			}, nil
		}
	}
	return Decision{Capability: capabilityChat, Rationale: "default text capability"}, nil
}

const classifyPrompt = `Classify the user request below onto exactly one capability.
Answer with one word, "chat" or "image", followed by a short reason.

Request: %s`

// LLMRouter asks the upstream model to classify the request and falls
// back to keywords when the call fails or answers nonsense
type LLMRouter struct {
	llm      llms.Model
	fallback KeywordRouter
}

func NewLLMRouter(llm llms.Model) *LLMRouter {
	return &LLMRouter{llm: llm}
}

func (r *LLMRouter) Route(ctx context.Context, input string, hasAttachments bool) (Decision, error) {
	answer, err := llms.GenerateFromSinglePrompt(ctx, r.llm, fmt.Sprintf(classifyPrompt, input))
	if err != nil {
		logger.Warn("capability classification failed, using keyword fallback: %v", err)
		return r.fallback.Route(ctx, input, hasAttachments)
	}

	fields := strings.Fields(strings.ToLower(answer))
	if len(fields) == 0 {
		return r.fallback.Route(ctx, input, hasAttachments)
	}

	capability := strings.Trim(fields[0], ".,:;\"'")
	if capability != capabilityChat && capability != capabilityImage {
		logger.Debug("unrecognized capability %q from classifier", capability)
		return r.fallback.Route(ctx, input, hasAttachments)
	}

	return Decision{Capability: capability, Rationale: strings.TrimSpace(answer)}, nil
}
