package provider

import (
	"context"
	"time"

	"github.com/fairdoc-ai/fairdoc/internal/agent/telemetry"
)

// Instrumented wraps a provider and reports token usage and cost for
// every generation call.
type Instrumented struct {
	inner LLMProvider
	model string
	telem *telemetry.Telemetry
}

// Instrument wraps the given provider. A nil telemetry passes calls
// through unrecorded.
func Instrument(inner LLMProvider, model string, telem *telemetry.Telemetry) *Instrumented {
	return &Instrumented{inner: inner, model: model, telem: telem}
}

func (p *Instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	started := time.Now()
	text, in, out, err := p.inner.GenerateWithTokens(ctx, prompt)
	if err != nil {
		return "", err
	}
	p.telem.RecordLLMEvent(ctx, telemetry.LLMEvent{
		Model:        p.model,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         p.inner.CalculateCost(in, out),
		Duration:     time.Since(started),
	})
	return text, nil
}

func (p *Instrumented) GenerateWithTokens(ctx context.Context, prompt string) (string, int64, int64, error) {
	started := time.Now()
	text, in, out, err := p.inner.GenerateWithTokens(ctx, prompt)
	if err != nil {
		return "", 0, 0, err
	}
	p.telem.RecordLLMEvent(ctx, telemetry.LLMEvent{
		Model:        p.model,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         p.inner.CalculateCost(in, out),
		Duration:     time.Since(started),
	})
	return text, in, out, nil
}

func (p *Instrumented) Embed(ctx context.Context, input []string) ([][]float32, error) {
	return p.inner.Embed(ctx, input)
}

func (p *Instrumented) CalculateCost(inputTokens, outputTokens int64) float64 {
	return p.inner.CalculateCost(inputTokens, outputTokens)
}
