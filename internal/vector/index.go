// Package vector provides a flat inner-product vector index over corpus chunks.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/keeperhq/keeper/internal/embedding"
	"github.com/keeperhq/keeper/internal/models"
)

var (
	// ErrDimensionMismatch indicates a vector whose dimension differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCorruptIndex indicates persisted artifacts in an unrecognized shape.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrIndexNotFound indicates one or both persisted artifacts are missing.
	ErrIndexNotFound = errors.New("index not found")
)

// FlatIndex stores chunk embeddings alongside the chunk text and metadata in
// parallel arrays; the array position is the only key linking them. Search is
// brute-force inner product, which for normalized embeddings equals cosine
// similarity. The first Add fixes the index dimension.
type FlatIndex struct {
	embedder embedding.Embedder
	dir      string

	mu         sync.RWMutex
	dimensions int
	vectors    [][]float32
	documents  []string
	metadata   []models.ChunkMeta
}

// NewFlatIndex creates an empty index persisting its artifacts under dir.
func NewFlatIndex(embedder embedding.Embedder, dir string) *FlatIndex {
	return &FlatIndex{embedder: embedder, dir: dir}
}

// Add embeds texts and appends them to the index. texts and metas must be the
// same length. Embeddings whose dimension differs from the one fixed by the
// first Add fail with ErrDimensionMismatch and leave the index unchanged.
func (x *FlatIndex) Add(ctx context.Context, texts []string, metas []models.ChunkMeta) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("texts and metadata length mismatch: %d != %d", len(texts), len(metas))
	}
	if len(texts) == 0 {
		return nil
	}
	embeddings, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dimensions == 0 {
		x.dimensions = len(embeddings[0])
	}
	for i, emb := range embeddings {
		if len(emb) != x.dimensions {
			return fmt.Errorf("%w: vector %d has %d dimensions, index expects %d",
				ErrDimensionMismatch, i, len(emb), x.dimensions)
		}
	}
	for i, emb := range embeddings {
		vec := make([]float32, x.dimensions)
		copy(vec, emb)
		x.vectors = append(x.vectors, vec)
		x.documents = append(x.documents, texts[i])
		x.metadata = append(x.metadata, metas[i])
	}
	return nil
}

// Search embeds the query and returns up to k results in descending
// inner-product order. An empty index yields an empty result, not an error.
func (x *FlatIndex) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	x.mu.RLock()
	size := len(x.vectors)
	x.mu.RUnlock()
	if k <= 0 || size == 0 {
		return nil, nil
	}

	queryVec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(queryVec) != x.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(queryVec), x.dimensions)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(x.vectors))
	for i, vec := range x.vectors {
		scores[i] = scored{idx: i, score: InnerProduct(queryVec, vec)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	results := make([]models.SearchResult, k)
	for i := 0; i < k; i++ {
		results[i] = models.SearchResult{
			Document: x.documents[scores[i].idx],
			Metadata: x.metadata[scores[i].idx],
			Score:    scores[i].score,
		}
	}
	return results, nil
}

// Size returns the number of indexed chunks.
func (x *FlatIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Dimensions returns the vector dimension fixed by the first Add, or 0.
func (x *FlatIndex) Dimensions() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimensions
}

// InnerProduct returns the inner product of two vectors. For unit-length
// vectors this equals cosine similarity.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}
