// Package embedding provides text embedding via an OpenAI-compatible API.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingUnavailable indicates no embedding credential is configured.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable: no API key configured")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
