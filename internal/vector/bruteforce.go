package vector

import (
	"context"
	"sort"
	"sync"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// BruteForceIndex computes cosine similarity over all stored embeddings.
// Used when the candidate set is small enough that exact search costs less
// than maintaining an approximate graph (§4.3).
type BruteForceIndex struct {
	mu     sync.RWMutex
	cfg    Config
	closed bool

	vectors map[int64][]float32 // pre-normalized
	buffer  map[int64]int64
}

var _ Index = (*BruteForceIndex)(nil)

// NewBruteForce constructs an exact-search index.
func NewBruteForce(cfg Config) *BruteForceIndex {
	return &BruteForceIndex{
		cfg:     cfg,
		vectors: make(map[int64][]float32),
		buffer:  make(map[int64]int64),
	}
}

// Add inserts or replaces vectors by chunk id.
func (b *BruteForceIndex) Add(ctx context.Context, entries []Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return engerrors.StoreError("vector index is closed", nil)
	}

	for _, e := range entries {
		if len(e.Vector) != b.cfg.Dimensions {
			return ErrDimensionMismatch{Expected: b.cfg.Dimensions, Got: len(e.Vector)}
		}
	}
	for _, e := range entries {
		b.vectors[e.ChunkID] = normalize(e.Vector)
		b.buffer[e.ChunkID] = e.BufferID
	}
	return nil
}

// Search scans every stored vector and returns the k most similar, highest first.
func (b *BruteForceIndex) Search(ctx context.Context, query []float32, k int, opts SearchOptions) ([]Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, engerrors.StoreError("vector index is closed", nil)
	}
	if len(query) != b.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: b.cfg.Dimensions, Got: len(query)}
	}

	normalizedQuery := normalize(query)

	results := make([]Result, 0, len(b.vectors))
	for chunkID, vec := range b.vectors {
		if opts.BufferID != nil && b.buffer[chunkID] != *opts.BufferID {
			continue
		}
		sim := cosineSimilarity(normalizedQuery, vec)
		if sim < opts.Threshold {
			continue
		}
		results = append(results, Result{ChunkID: chunkID, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes chunk ids from the index.
func (b *BruteForceIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range chunkIDs {
		delete(b.vectors, id)
		delete(b.buffer, id)
	}
	return nil
}

// Count returns the number of stored vectors.
func (b *BruteForceIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.vectors)
}

// Close marks the index closed.
func (b *BruteForceIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
