package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// HNSWIndex implements Index using coder/hnsw, a pure Go HNSW graph. Deletes
// are lazy (mappings removed, node left orphaned in the graph) because
// coder/hnsw does not support safely deleting the last remaining node.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	cfg    Config
	closed bool

	idMap    map[int64]uint64
	keyMap   map[uint64]int64
	bufferOf map[int64]int64
	nextKey  uint64
}

var _ Index = (*HNSWIndex)(nil)

// NewHNSW constructs an HNSW-backed index using cosine distance.
func NewHNSW(cfg Config) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:    graph,
		cfg:      cfg,
		idMap:    make(map[int64]uint64),
		keyMap:   make(map[uint64]int64),
		bufferOf: make(map[int64]int64),
	}
}

// Add inserts or replaces vectors by chunk id.
func (s *HNSWIndex) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return engerrors.StoreError("vector index is closed", nil)
	}

	for _, e := range entries {
		if len(e.Vector) != s.cfg.Dimensions {
			return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(e.Vector)}
		}
	}

	for _, e := range entries {
		if existingKey, exists := s.idMap[e.ChunkID]; exists {
			delete(s.keyMap, existingKey) // lazy delete: orphan the old graph node
			delete(s.idMap, e.ChunkID)
		}

		key := s.nextKey
		s.nextKey++

		vec := normalize(e.Vector)
		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[e.ChunkID] = key
		s.keyMap[key] = e.ChunkID
		s.bufferOf[e.ChunkID] = e.BufferID
	}

	return nil
}

// Search returns the k nearest neighbors to query, optionally filtered by
// similarity threshold and buffer scope.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int, opts SearchOptions) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, engerrors.StoreError("vector index is closed", nil)
	}
	if len(query) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	normalizedQuery := normalize(query)

	// Over-fetch to compensate for lazy-deleted orphans and buffer-scope
	// filtering, which both happen after the graph search.
	fetchK := k * 4
	if fetchK < k+16 {
		fetchK = k + 16
	}
	nodes := s.graph.Search(normalizedQuery, fetchK)

	out := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		chunkID, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		if opts.BufferID != nil && s.bufferOf[chunkID] != *opts.BufferID {
			continue
		}

		distance := s.graph.Distance(normalizedQuery, node.Value)
		similarity := 1 - distance // coder/hnsw CosineDistance = 1 - cosine similarity
		if similarity < opts.Threshold {
			continue
		}

		out = append(out, Result{ChunkID: chunkID, Similarity: similarity})
		if len(out) >= k {
			break
		}
	}

	return out, nil
}

// Delete lazily removes chunk ids from the index.
func (s *HNSWIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range chunkIDs {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.bufferOf, id)
		}
	}
	return nil
}

// Count returns the number of live (non-orphaned) vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Close marks the index closed; subsequent Add and Search calls fail,
// while Delete and Count keep working on the in-memory maps.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type hnswMetadata struct {
	IDMap    map[int64]uint64
	BufferOf map[int64]int64
	NextKey  uint64
	Config   Config
}

// Save persists the graph and id mappings to disk (graph + path+".meta").
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return engerrors.StoreError("failed to create vector index directory", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return engerrors.StoreError("failed to create vector index file", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return engerrors.StoreError("failed to export vector graph", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return engerrors.StoreError("failed to close vector index file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return engerrors.StoreError("failed to finalize vector index file", err)
	}

	metaPath := path + ".meta"
	metaTmp := metaPath + ".tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return engerrors.StoreError("failed to create vector index metadata file", err)
	}
	meta := hnswMetadata{IDMap: s.idMap, BufferOf: s.bufferOf, NextKey: s.nextKey, Config: s.cfg}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(metaTmp)
		return engerrors.StoreError("failed to encode vector index metadata", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(metaTmp)
		return engerrors.StoreError("failed to close vector index metadata file", err)
	}
	return os.Rename(metaTmp, metaPath)
}

// Load reads the graph and id mappings from disk.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return engerrors.StoreError("failed to open vector index metadata", err)
	}
	defer metaFile.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return engerrors.StoreError("failed to decode vector index metadata", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return engerrors.StoreError("failed to open vector index file", err)
	}
	defer f.Close()

	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return engerrors.StoreError("failed to import vector graph", err)
	}

	s.idMap = meta.IDMap
	s.bufferOf = meta.BufferOf
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]int64, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	s.cfg = meta.Config
	return nil
}
