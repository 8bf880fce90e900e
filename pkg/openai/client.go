// Package openai talks to OpenAI-compatible chat completion endpoints. One
// client serves OpenAI, Ollama and Gemini by pointing it at their compatible
// base URLs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	// OllamaBaseURL is the OpenAI-compatible root of a local Ollama server.
	OllamaBaseURL = "http://localhost:11434/v1"
	// GeminiBaseURL is the OpenAI-compatible root of the Gemini API.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	defaultModel = "gpt-4o-mini"

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 4 << 10
)

// Client completes a single system + user prompt.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompletionRequest is one single-turn prompt. Zero Temperature and
// MaxTokens defer to the provider's defaults.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is the first choice of a chat completion.
type Completion struct {
	ID           string
	Model        string
	Text         string
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL points the client at another compatible API root.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *httpClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient returns a Client. An empty apiKey sends no Authorization
// header, which is what a local Ollama expects.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   defaultModel,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "openai: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "openai: decode response")
	}
	comp := &Completion{ID: out.ID, Model: out.Model, Usage: out.Usage}
	if len(out.Choices) > 0 {
		comp.Text = out.Choices[0].Message.Content
		comp.FinishReason = out.Choices[0].FinishReason
	}
	zap.L().Debug("openai: completion",
		zap.String("model", comp.Model),
		zap.Int("prompt_tokens", comp.Usage.PromptTokens),
		zap.Int("completion_tokens", comp.Usage.CompletionTokens),
	)
	return comp, nil
}

func (c *httpClient) newRequest(ctx context.Context, req CompletionRequest) (*http.Request, error) {
	body := chatRequest{Model: req.Model}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.System != "" {
		body.Messages = append(body.Messages, message{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, message{Role: "user", Content: req.Prompt})
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "openai: encode request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "openai: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

// statusError extracts the provider's error message. OpenAI nests it under
// error.message; Ollama and some proxies send a bare string.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	var flat struct {
		Error string `json:"error"`
	}
	switch {
	case json.Unmarshal(raw, &nested) == nil && nested.Error.Message != "":
		se.Message = nested.Error.Message
	case json.Unmarshal(raw, &flat) == nil && flat.Error != "":
		se.Message = flat.Error
	case len(bytes.TrimSpace(raw)) > 0:
		se.Message = string(bytes.TrimSpace(raw))
	}
	return se
}
