package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docquery/internal/domain"
	"github.com/Aman-CERP/docquery/internal/extractor"
	"github.com/Aman-CERP/docquery/internal/hybrid"
	"github.com/Aman-CERP/docquery/internal/lexical"
	"github.com/Aman-CERP/docquery/internal/planner"
	"github.com/Aman-CERP/docquery/internal/provider"
	"github.com/Aman-CERP/docquery/internal/store"
	"github.com/Aman-CERP/docquery/internal/synthesizer"
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

type noopVector struct{}

func (noopVector) Add(ctx context.Context, entries []vector.Entry) error { return nil }
func (noopVector) Search(ctx context.Context, query []float32, k int, opts vector.SearchOptions) ([]vector.Result, error) {
	return nil, nil
}
func (noopVector) Delete(ctx context.Context, chunkIDs []int64) error { return nil }
func (noopVector) Count() int                                        { return 0 }
func (noopVector) Close() error                                      { return nil }

// fakeProvider returns a fixed assistant text on every call, regardless
// of which agent (planner/extractor/synthesizer) invoked it.
type fakeProvider struct {
	text string
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	return &provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Text: f.text}, TokensUsed: 1}, nil
}

// routingProvider dispatches based on the system prompt's leading word,
// so planner/extractor/synthesizer each get plausible scripted output
// in one end-to-end test.
type routingProvider struct {
	extractorText    string
	synthesizerText  string
}

func (f *routingProvider) Name() string { return "fake" }
func (f *routingProvider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	sys := req.Messages[0].Text
	switch {
	case contains(sys, "planning stage"):
		return &provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Text: `{"search_mode":"hybrid"}`}}, nil
	case contains(sys, "extraction stage"):
		return &provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Text: f.extractorText}}, nil
	default:
		return &provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Text: f.synthesizerText}, TokensUsed: 5}, nil
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T) *store.SQLiteChunkStore {
	t.Helper()
	s, err := store.NewSQLiteChunkStore("")
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedBuffer(t *testing.T, s *store.SQLiteChunkStore, name, content string) (int64, []*store.Chunk) {
	t.Helper()
	ctx := context.Background()
	id, err := s.PutBuffer(ctx, &store.Buffer{Name: name, Content: content, ByteSize: int64(len(content))})
	require.NoError(t, err)

	chunks := []*store.Chunk{
		{BufferID: id, Index: 0, Start: 0, End: len(content) / 2, Text: content[:len(content)/2]},
		{BufferID: id, Index: 1, Start: len(content) / 2, End: len(content), Text: content[len(content)/2:]},
	}
	require.NoError(t, s.PutChunks(ctx, id, chunks))

	stored, err := s.ListChunks(ctx, id)
	require.NoError(t, err)
	return id, stored
}

func TestQuery_NoChunksWhenSearchReturnsNothing(t *testing.T) {
	s := newTestStore(t)
	_, _ = seedBuffer(t, s, "doc", "some content here about pricing")

	lex := &fakeLexical{searchFn: func(ctx context.Context, q string, limit int) ([]lexical.Result, error) {
		return nil, nil
	}}
	searcher := hybrid.New(lex, noopVector{}, nil)

	cfg := Config{
		Store:    s,
		Searcher: searcher,
		LLM:      &fakeProvider{text: "ignored"},
	}

	_, err := Query(context.Background(), cfg, "what is the price?", nil, Overrides{SkipPlan: true})
	require.Error(t, err)
}

func TestQuery_EndToEnd_ProducesReportFromFindings(t *testing.T) {
	s := newTestStore(t)
	_, chunks := seedBuffer(t, s, "doc", "Pricing is ten dollars per month for the basic plan.")

	lex := &fakeLexical{searchFn: func(ctx context.Context, q string, limit int) ([]lexical.Result, error) {
		out := make([]lexical.Result, len(chunks))
		for i, c := range chunks {
			out[i] = lexical.Result{ChunkID: c.ID, Score: float64(len(chunks) - i)}
		}
		return out, nil
	}}
	searcher := hybrid.New(lex, noopVector{}, nil)

	extractorJSON := `[{"chunk_id":` + int64Str(chunks[0].ID) + `,"relevance":"high","evidence":["mentions pricing"]},
		{"chunk_id":` + int64Str(chunks[1].ID) + `,"relevance":"none"}]`

	llm := &routingProvider{extractorText: extractorJSON, synthesizerText: "Pricing is $10/month."}

	cfg := Config{
		Store:             s,
		Searcher:          searcher,
		LLM:               llm,
		PlannerConfig:      planner.Config{Model: "m"},
		ExtractorConfig:    extractor.Config{Model: "m"},
		SynthesizerConfig:  synthesizer.Config{Model: "m"},
		Defaults:           Defaults{BatchSize: 10},
	}

	// Two chunks resolve to the tiny tier (batch size 1), which outranks
	// Defaults; override so both chunks share the one scripted batch reply.
	batchSize := 10
	result, err := Query(context.Background(), cfg, "what does it cost?", nil, Overrides{BatchSize: &batchSize})
	require.NoError(t, err)
	assert.Equal(t, "Pricing is $10/month.", result.Report)
	assert.Equal(t, 1, result.FindingsCount)
	assert.Equal(t, 1, result.FindingsFiltered)
	assert.Equal(t, 0, result.BatchesFailed)
}

func TestQuery_ReturnsCannedMessageWhenAllFindingsAreNone(t *testing.T) {
	s := newTestStore(t)
	_, chunks := seedBuffer(t, s, "doc", "irrelevant content irrelevant content")

	lex := &fakeLexical{searchFn: func(ctx context.Context, q string, limit int) ([]lexical.Result, error) {
		return []lexical.Result{{ChunkID: chunks[0].ID, Score: 1}, {ChunkID: chunks[1].ID, Score: 0.5}}, nil
	}}
	searcher := hybrid.New(lex, noopVector{}, nil)

	extractorJSON := `[{"chunk_id":` + int64Str(chunks[0].ID) + `,"relevance":"none"},
		{"chunk_id":` + int64Str(chunks[1].ID) + `,"relevance":"none"}]`
	llm := &routingProvider{extractorText: extractorJSON, synthesizerText: "should not be called"}

	cfg := Config{
		Store:   s,
		Searcher: searcher,
		LLM:     llm,
		Defaults: Defaults{BatchSize: 10},
	}

	result, err := Query(context.Background(), cfg, "q", nil, Overrides{SkipPlan: true})
	require.NoError(t, err)
	assert.Equal(t, "No relevant information was found for this question.", result.Report)
	assert.Equal(t, 0, result.FindingsCount)
	assert.Equal(t, 2, result.FindingsFiltered)
}

func TestQuery_ReportsBatchErrorsWithoutAborting(t *testing.T) {
	s := newTestStore(t)
	_, chunks := seedBuffer(t, s, "doc", "some content worth reading here today")

	lex := &fakeLexical{searchFn: func(ctx context.Context, q string, limit int) ([]lexical.Result, error) {
		return []lexical.Result{{ChunkID: chunks[0].ID, Score: 1}, {ChunkID: chunks[1].ID, Score: 0.9}}, nil
	}}
	searcher := hybrid.New(lex, noopVector{}, nil)

	llm := &routingProvider{extractorText: "not json", synthesizerText: "report"}

	cfg := Config{
		Store:   s,
		Searcher: searcher,
		LLM:     llm,
		Defaults: Defaults{BatchSize: 1},
	}

	result, err := Query(context.Background(), cfg, "q", nil, Overrides{SkipPlan: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.BatchesFailed)
	assert.Len(t, result.BatchErrors, 2)
	assert.Equal(t, "No relevant information was found for this question.", result.Report)
}

func TestResolveIntWithScaling_OverrideWins(t *testing.T) {
	override := 42
	got := resolveIntWithScaling(&override, 7, 100, 5, 1)
	assert.Equal(t, 42, got)
}

func TestResolveIntWithScaling_FallsThroughToHardcoded(t *testing.T) {
	got := resolveIntWithScaling(nil, 0, 0, 0, 9)
	assert.Equal(t, 9, got)
}

func TestCollect_DropsNoneAndSortsDeterministically(t *testing.T) {
	findings := []domain.Finding{
		{ChunkID: 1, Relevance: domain.RelevanceLow, BufferID: 2, ChunkIndex: 0},
		{ChunkID: 2, Relevance: domain.RelevanceNone, BufferID: 1, ChunkIndex: 0},
		{ChunkID: 3, Relevance: domain.RelevanceHigh, BufferID: 1, ChunkIndex: 5},
	}
	surviving, filtered := collect(findings, domain.RelevanceNone)
	require.Len(t, surviving, 2)
	assert.Equal(t, 1, filtered)
	assert.Equal(t, int64(3), surviving[0].ChunkID) // high first
	assert.Equal(t, int64(1), surviving[1].ChunkID) // then low
}

func int64Str(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
