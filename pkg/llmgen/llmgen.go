// Package llmgen adapts an OpenAI-compatible chat completion service into
// the generator interfaces the performance subsystem caches behind: response
// generation and extraction parameter derivation.
//
// Works with any OpenAI-compatible API:
//   - OpenAI (cloud)
//   - LocalAI / Ollama (self-hosted)
//   - vLLM and other compatible inference servers
package llmgen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/c360/perfkit/errors"
)

// Generator calls a chat completion endpoint to produce responses and
// extraction parameters. It is stateless; callers put caching in front of
// it via the perf package.
type Generator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// Config configures the generator.
type Config struct {
	// BaseURL of the completion service. Examples:
	//   - "https://api.openai.com/v1" (OpenAI cloud)
	//   - "http://localhost:11434/v1" (Ollama)
	BaseURL string

	// Model is the chat model to use, e.g. "gpt-4o-mini".
	Model string

	// APIKey for authentication (optional for local services).
	APIKey string

	// Timeout for HTTP requests (default: 60s).
	Timeout time.Duration

	// Logger for error logging (optional, defaults to slog.Default()).
	Logger *slog.Logger
}

// New creates a generator against an OpenAI-compatible endpoint.
func New(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "llmgen", "New", "model is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "dummy-key" // Local services don't need real key
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: timeout,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Generator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Generate produces a completion for prompt and returns it as a JSON
// document of the shape {"content": "..."}.
func (g *Generator) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	content, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, errors.WrapTransient(err, "llmgen", "Generate", "call completion API")
	}

	doc, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, errors.Wrap(err, "llmgen", "Generate", "encode response")
	}
	return doc, nil
}

// GenerateParameters derives extraction parameters for a requirement and
// its context. The model is asked for a JSON object; a non-JSON reply is
// an error so bad output never lands in a cache.
func (g *Generator) GenerateParameters(ctx context.Context, requirement string, reqContext map[string]any) (json.RawMessage, error) {
	contextDoc, err := json.Marshal(reqContext)
	if err != nil {
		return nil, errors.WrapInvalid(err, "llmgen", "GenerateParameters", "encode context")
	}

	prompt := fmt.Sprintf(
		"Derive extraction parameters as a JSON object for the requirement below.\n\nRequirement: %s\nContext: %s\n\nRespond with only the JSON object.",
		requirement, contextDoc)

	content, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, errors.WrapTransient(err, "llmgen", "GenerateParameters", "call completion API")
	}

	if !json.Valid([]byte(content)) {
		return nil, errors.Wrap(errors.ErrInvalidData, "llmgen", "GenerateParameters", "parse model output")
	}
	return json.RawMessage(content), nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
