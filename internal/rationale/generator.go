package rationale

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/resilience"
	"github.com/sells-group/analytics-studio/pkg/anthropic"
	"github.com/sells-group/analytics-studio/pkg/openai"
)

// Generator produces free text from a system prompt and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Name identifies the provider and model for cache keys and logs.
	Name() string
}

// AnthropicGenerator calls the Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator creates a generator for model.
func NewAnthropicGenerator(client anthropic.Client, model string, maxTokens int) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &AnthropicGenerator{client: client, model: model, maxTokens: int64(maxTokens)}
}

func (g *AnthropicGenerator) Name() string { return "anthropic/" + g.model }

func (g *AnthropicGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Complete(ctx, anthropic.CompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    system,
		Prompt:    prompt,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
			return "", resilience.NewTransientError(err, code)
		}
		return "", err
	}
	return resp.Text, nil
}

// ChatGenerator calls an OpenAI-compatible chat completions endpoint.
type ChatGenerator struct {
	provider  string
	client    openai.Client
	model     string
	maxTokens int
}

// NewChatGenerator creates a generator. provider only labels the generator.
func NewChatGenerator(provider string, client openai.Client, model string, maxTokens int) *ChatGenerator {
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &ChatGenerator{provider: provider, client: client, model: model, maxTokens: maxTokens}
}

func (g *ChatGenerator) Name() string { return g.provider + "/" + g.model }

func (g *ChatGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Complete(ctx, openai.CompletionRequest{
		Model:       g.model,
		System:      system,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		var se *openai.StatusError
		if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode) {
			return "", resilience.NewTransientError(err, se.StatusCode)
		}
		return "", eris.Wrap(err, "rationale: chat completion")
	}
	return resp.Text, nil
}
