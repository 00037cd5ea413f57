// Package vector provides dense similarity search over chunk embeddings (C3).
//
// Two backends are available, chosen by NewAuto when the index is
// constructed: a brute-force scan used for small datasets, and an
// HNSW-backed approximate index used once the expected chunk count
// reaches DefaultCrossover. Both satisfy the Index
// interface so callers (the hybrid searcher) don't need to know which is
// active.
package vector

import (
	"context"
	"fmt"
	"math"
)

// DefaultCrossover is the chunk count at or above which NewAuto selects the
// HNSW backend over brute-force.
const DefaultCrossover = 2000

// Entry is one chunk's embedding to index.
type Entry struct {
	ChunkID  int64
	BufferID int64
	Vector   []float32
}

// Result is a single vector search hit.
type Result struct {
	ChunkID    int64
	Similarity float32 // cosine similarity in [-1, 1], highest first
}

// SearchOptions narrows a Search call.
type SearchOptions struct {
	// Threshold is a minimum similarity; results below it are dropped.
	Threshold float32
	// BufferID, if non-nil, restricts results to one buffer.
	BufferID *int64
}

// Index provides semantic search over chunk embeddings.
type Index interface {
	Add(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int, opts SearchOptions) ([]Result, error)
	Delete(ctx context.Context, chunkIDs []int64) error
	Count() int
	Close() error
}

// ErrDimensionMismatch indicates a vector's dimension does not match the
// index's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Config configures either backend.
type Config struct {
	Dimensions     int
	M              int // HNSW max connections per layer
	EfConstruction int
	EfSearch       int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		M:              16,
		EfConstruction: 128,
		EfSearch:       20,
	}
}

// NewAuto picks brute-force for small expected datasets and HNSW once the
// expected chunk count crosses DefaultCrossover, per §4.3's backend-selection
// requirement.
func NewAuto(cfg Config, expectedChunks int) Index {
	if expectedChunks > 0 && expectedChunks < DefaultCrossover {
		return NewBruteForce(cfg)
	}
	return NewHNSW(cfg)
}

func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSq float32
	for _, x := range out {
		sumSq += x * x
	}
	if sumSq == 0 {
		return out
	}
	norm := float32(math.Sqrt(float64(sumSq)))
	for i := range out {
		out[i] /= norm
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot // a, b are pre-normalized, so dot product == cosine similarity
}
