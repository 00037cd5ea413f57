// Package hybrid combines the lexical and vector indexes with Reciprocal
// Rank Fusion (C4).
package hybrid

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/lexical"
	"github.com/Aman-CERP/docquery/internal/vector"
	"github.com/Aman-CERP/docquery/pkg/rankfusion"
)

// Mode selects which index (or both) a query is run against.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeLexical  Mode = "lexical"
)

// DefaultRRFConstant is the RRF smoothing constant k from §4.4.
const DefaultRRFConstant = 60

// Embedder produces a query vector for semantic search. Implemented by
// internal/embed.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Query describes one hybrid search request.
type Query struct {
	Text        string
	Mode        Mode
	TopK        int
	Threshold   float32
	BufferScope *int64
}

// Result is one fused hit, highest fused score first.
type Result struct {
	ChunkID       int64
	FusedScore    float64
	LexicalScore  *float64
	SemanticScore *float32
}

// Searcher runs hybrid, semantic-only, or lexical-only search (C4).
type Searcher struct {
	lex         lexical.Index
	vec         vector.Index
	embedder    Embedder
	rrfConstant int

	mu sync.RWMutex
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithRRFConstant overrides the default RRF smoothing constant.
func WithRRFConstant(k int) Option {
	return func(s *Searcher) { s.rrfConstant = k }
}

// New builds a Searcher over the given lexical index, vector index, and embedder.
func New(lex lexical.Index, vec vector.Index, embedder Embedder, opts ...Option) *Searcher {
	s := &Searcher{lex: lex, vec: vec, embedder: embedder, rrfConstant: DefaultRRFConstant}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs q against the configured indexes and returns up to q.TopK
// fused results, ordered highest first.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch q.Mode {
	case ModeSemantic:
		return s.semanticOnly(ctx, q)
	case ModeLexical:
		return s.lexicalOnly(ctx, q)
	case ModeHybrid, "":
		return s.hybridSearch(ctx, q)
	default:
		return nil, engerrors.ValidationError("unknown search mode: "+string(q.Mode), nil)
	}
}

func (s *Searcher) semanticOnly(ctx context.Context, q Query) ([]Result, error) {
	sem, err := s.runSemantic(ctx, q, q.TopK)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(sem))
	for i, r := range sem {
		sim := r.Similarity
		out[i] = Result{ChunkID: r.ChunkID, FusedScore: float64(sim), SemanticScore: &sim}
	}
	return out, nil
}

func (s *Searcher) lexicalOnly(ctx context.Context, q Query) ([]Result, error) {
	lex, err := s.runLexical(ctx, q, q.TopK)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(lex))
	for i, r := range lex {
		score := r.Score
		out[i] = Result{ChunkID: r.ChunkID, FusedScore: score, LexicalScore: &score}
	}
	return out, nil
}

// hybridSearch fans out to both indexes in parallel (bounded to two
// goroutines) and fuses the results with RRF. A single-source failure
// degrades to the surviving list instead of failing the query.
func (s *Searcher) hybridSearch(ctx context.Context, q Query) ([]Result, error) {
	fetchLimit := q.TopK * 2
	if fetchLimit < 20 {
		fetchLimit = 20
	}

	var lexResults []lexical.Result
	var semResults []vector.Result
	var lexErr, semErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexResults, lexErr = s.runLexical(gctx, q, fetchLimit)
		return nil
	})
	g.Go(func() error {
		semResults, semErr = s.runSemantic(gctx, q, fetchLimit)
		return nil
	})
	_ = g.Wait()

	if lexErr != nil && semErr != nil {
		return nil, engerrors.ProviderTransientError("both lexical and semantic search failed", lexErr)
	}
	if lexErr != nil {
		return truncate(semanticToResults(semResults), q.TopK), nil
	}
	if semErr != nil {
		return truncate(lexicalToResults(lexResults), q.TopK), nil
	}

	fused := s.fuse(lexResults, semResults)
	return truncate(fused, q.TopK), nil
}

func (s *Searcher) runLexical(ctx context.Context, q Query, limit int) ([]lexical.Result, error) {
	if s.lex == nil {
		return nil, engerrors.InternalError("no lexical index configured", nil)
	}
	return s.lex.Search(ctx, q.Text, limit)
}

func (s *Searcher) runSemantic(ctx context.Context, q Query, limit int) ([]vector.Result, error) {
	if s.vec == nil || s.embedder == nil {
		return nil, engerrors.InternalError("no vector index or embedder configured", nil)
	}
	qvec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, engerrors.ProviderTransientError("failed to embed query", err)
	}
	return s.vec.Search(ctx, qvec, limit, vector.SearchOptions{Threshold: q.Threshold, BufferID: q.BufferScope})
}

// fuse implements Reciprocal Rank Fusion: fused(d) = Σ_i 1/(k + rank_i(d)),
// via pkg/rankfusion's generic two-list fuse, then reattaches the
// per-source scores the Hybrid Searcher's Result carries alongside the
// fused score.
func (s *Searcher) fuse(lex []lexical.Result, sem []vector.Result) []Result {
	lexIDs := make(rankfusion.RankedList, len(lex))
	lexScores := make(map[int64]float64, len(lex))
	for i, r := range lex {
		lexIDs[i] = r.ChunkID
		lexScores[r.ChunkID] = r.Score
	}

	semIDs := make(rankfusion.RankedList, len(sem))
	semScores := make(map[int64]float32, len(sem))
	for i, r := range sem {
		semIDs[i] = r.ChunkID
		semScores[r.ChunkID] = r.Similarity
	}

	fused := rankfusion.Fuse(s.rrfConstant, []rankfusion.RankedList{lexIDs, semIDs}, nil)
	ordered := rankfusion.Sorted(fused)

	out := make([]Result, len(ordered))
	for i, chunkID := range ordered {
		r := Result{ChunkID: chunkID, FusedScore: fused[chunkID]}
		if v, ok := lexScores[chunkID]; ok {
			r.LexicalScore = &v
		}
		if v, ok := semScores[chunkID]; ok {
			r.SemanticScore = &v
		}
		out[i] = r
	}
	return out
}

func lexicalToResults(lex []lexical.Result) []Result {
	out := make([]Result, len(lex))
	for i, r := range lex {
		score := r.Score
		out[i] = Result{ChunkID: r.ChunkID, FusedScore: score, LexicalScore: &score}
	}
	return out
}

func semanticToResults(sem []vector.Result) []Result {
	out := make([]Result, len(sem))
	for i, r := range sem {
		sim := r.Similarity
		out[i] = Result{ChunkID: r.ChunkID, FusedScore: float64(sim), SemanticScore: &sim}
	}
	return out
}

func truncate(results []Result, limit int) []Result {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
