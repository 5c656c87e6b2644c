// Package llm wraps Genkit text generation for semantic analysis and
// extracts structured JSON from free-form model output.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// Generator produces text for a prompt. The orchestrator depends on
// this interface so tests can substitute canned responses.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is the Genkit-backed Generator.
type Client struct {
	g         *genkit.Genkit
	modelName string
	timeout   time.Duration
	logger    *slog.Logger
}

// Init initializes Genkit with the Google AI plugin. The GEMINI_API_KEY
// environment variable supplies credentials.
func Init(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initialize genkit")
	}
	return g, nil
}

// Embedder returns the Google AI embedder for the configured model.
func Embedder(g *genkit.Genkit, model string) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, model)
}

// New creates a Client. A zero timeout disables the per-call deadline.
func New(g *genkit.Genkit, modelName string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{g: g, modelName: modelName, timeout: timeout, logger: logger}
}

// Generate sends the prompt to the configured model and returns the
// raw response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	response, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", c.modelName, err)
	}

	text := response.Text()
	c.logger.Debug("llm response",
		"model", c.modelName,
		"prompt_length", len(prompt),
		"response_length", len(text),
		"elapsed", time.Since(start))
	return text, nil
}

var _ Generator = (*Client)(nil)
