// Package llm provides text generation via an OpenAI-compatible chat API.
package llm

import (
	"context"
	"errors"
)

// ErrGenerationUnavailable indicates no generation credential is configured.
var ErrGenerationUnavailable = errors.New("text generation unavailable: no API key configured")

// TextGenerator produces a completion for a system/user prompt pair.
// Failures are reported as errors; an error is never returned as content.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
