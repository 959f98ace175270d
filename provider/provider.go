package provider

import (
	"context"
	"fmt"

	"github.com/fairdoc-ai/fairdoc/config"
	"github.com/fairdoc-ai/fairdoc/provider/openai"
)

// LLMProvider is the contract the pipeline holds against a language model.
// The core treats the model as an opaque, potentially unreliable text
// generator; responses are always defensively parsed by the caller.
type LLMProvider interface {
	// Generate generates a text completion for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateWithTokens generates text and returns input/output token usage.
	GenerateWithTokens(ctx context.Context, prompt string) (string, int64, int64, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, input []string) ([][]float32, error)

	// CalculateCost calculates the cost for a given number of tokens.
	CalculateCost(inputTokens, outputTokens int64) float64
}

// New creates an LLM provider based on configuration.
func New(cfg config.LLMConfig) (LLMProvider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai.NewClient(openai.Options{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			EmbeddingModel:  cfg.EmbeddingModel,
			Temperature:     cfg.Temperature,
			MaxTokens:       cfg.MaxTokens,
			Timeout:         cfg.Timeout,
			CostPer1KInput:  cfg.CostPer1K,
			CostPer1KOutput: cfg.CostPer1KOut,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Provider)
	}
}
