package hybrid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docquery/internal/lexical"
	"github.com/Aman-CERP/docquery/internal/vector"
)

type fakeLexical struct {
	searchFn func(ctx context.Context, query string, limit int) ([]lexical.Result, error)
}

func (f *fakeLexical) Put(ctx context.Context, entries []lexical.Entry) error { return nil }
func (f *fakeLexical) Search(ctx context.Context, query string, limit int) ([]lexical.Result, error) {
	return f.searchFn(ctx, query, limit)
}
func (f *fakeLexical) Delete(ctx context.Context, chunkIDs []int64) error { return nil }
func (f *fakeLexical) Close() error                                      { return nil }

type fakeVector struct {
	searchFn func(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error)
}

func (f *fakeVector) Add(ctx context.Context, entries []vector.Entry) error { return nil }
func (f *fakeVector) Search(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
	return f.searchFn(ctx, query, k, opts)
}
func (f *fakeVector) Delete(ctx context.Context, chunkIDs []int64) error { return nil }
func (f *fakeVector) Count() int                                        { return 0 }
func (f *fakeVector) Close() error                                      { return nil }

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func TestSearcher_HybridMode_FusesBothSources(t *testing.T) {
	// Given: lexical ranks chunk 2 first, semantic ranks chunk 1 first
	lex := &fakeLexical{searchFn: func(ctx context.Context, query string, limit int) ([]lexical.Result, error) {
		return []lexical.Result{{ChunkID: 2, Score: 5}, {ChunkID: 1, Score: 3}}, nil
	}}
	vec := &fakeVector{searchFn: func(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
		return []vector.Result{{ChunkID: 1, Similarity: 0.9}, {ChunkID: 3, Similarity: 0.5}}, nil
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}

	s := New(lex, vec, emb)

	// When: searching in hybrid mode
	results, err := s.Search(context.Background(), Query{Text: "test", Mode: ModeHybrid, TopK: 10})

	// Then: chunk 1 (top in both lists) fuses to the highest score
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(1), results[0].ChunkID)

	ids := make(map[int64]bool)
	for _, r := range results {
		ids[r.ChunkID] = true
	}
	assert.True(t, ids[2])
	assert.True(t, ids[3])
}

func TestSearcher_HybridMode_DegradesToLexicalWhenSemanticFails(t *testing.T) {
	// Given: semantic search fails
	lex := &fakeLexical{searchFn: func(ctx context.Context, query string, limit int) ([]lexical.Result, error) {
		return []lexical.Result{{ChunkID: 1, Score: 5}}, nil
	}}
	vec := &fakeVector{searchFn: func(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
		return nil, errors.New("index unavailable")
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}

	s := New(lex, vec, emb)

	// When: searching in hybrid mode
	results, err := s.Search(context.Background(), Query{Text: "test", Mode: ModeHybrid, TopK: 10})

	// Then: lexical results are still returned
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ChunkID)
}

func TestSearcher_HybridMode_ErrorsWhenBothSourcesFail(t *testing.T) {
	lex := &fakeLexical{searchFn: func(ctx context.Context, query string, limit int) ([]lexical.Result, error) {
		return nil, errors.New("lexical down")
	}}
	vec := &fakeVector{searchFn: func(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
		return nil, errors.New("vector down")
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}

	s := New(lex, vec, emb)

	_, err := s.Search(context.Background(), Query{Text: "test", Mode: ModeHybrid, TopK: 10})
	require.Error(t, err)
}

func TestSearcher_SemanticMode_OnlyCallsVector(t *testing.T) {
	lexCalled := false
	lex := &fakeLexical{searchFn: func(ctx context.Context, query string, limit int) ([]lexical.Result, error) {
		lexCalled = true
		return nil, nil
	}}
	vec := &fakeVector{searchFn: func(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
		return []vector.Result{{ChunkID: 9, Similarity: 0.7}}, nil
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}

	s := New(lex, vec, emb)
	results, err := s.Search(context.Background(), Query{Text: "test", Mode: ModeSemantic, TopK: 5})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(9), results[0].ChunkID)
	assert.False(t, lexCalled)
}

func TestSearcher_LexicalMode_OnlyCallsLexical(t *testing.T) {
	vecCalled := false
	lex := &fakeLexical{searchFn: func(ctx context.Context, query string, limit int) ([]lexical.Result, error) {
		return []lexical.Result{{ChunkID: 4, Score: 2}}, nil
	}}
	vec := &fakeVector{searchFn: func(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
		vecCalled = true
		return nil, nil
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}

	s := New(lex, vec, emb)
	results, err := s.Search(context.Background(), Query{Text: "test", Mode: ModeLexical, TopK: 5})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(4), results[0].ChunkID)
	assert.False(t, vecCalled)
}

func TestSearcher_Search_RejectsUnknownMode(t *testing.T) {
	s := New(&fakeLexical{}, &fakeVector{}, &fakeEmbedder{})
	_, err := s.Search(context.Background(), Query{Text: "test", Mode: "bogus", TopK: 5})
	require.Error(t, err)
}

func TestSearcher_HybridMode_RespectsTopK(t *testing.T) {
	lex := &fakeLexical{searchFn: func(ctx context.Context, query string, limit int) ([]lexical.Result, error) {
		return []lexical.Result{{ChunkID: 1, Score: 5}, {ChunkID: 2, Score: 4}, {ChunkID: 3, Score: 3}}, nil
	}}
	vec := &fakeVector{searchFn: func(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
		return nil, errors.New("unused")
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}

	s := New(lex, vec, emb)
	results, err := s.Search(context.Background(), Query{Text: "test", Mode: ModeHybrid, TopK: 2})

	require.NoError(t, err)
	assert.Len(t, results, 2)
}
