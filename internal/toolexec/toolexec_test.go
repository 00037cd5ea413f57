package toolexec

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docquery/internal/hybrid"
	"github.com/Aman-CERP/docquery/internal/store"
)

func newTestChunkStore(t *testing.T) store.ChunkStore {
	t.Helper()
	s, err := store.NewSQLiteChunkStore("")
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedBuffer(t *testing.T, s store.ChunkStore, name, content string) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	id, err := s.PutBuffer(ctx, &store.Buffer{Name: name, Content: content, ByteSize: int64(len(content))})
	require.NoError(t, err)

	chunks := []*store.Chunk{{BufferID: id, Index: 0, Start: 0, End: len(content), Text: content}}
	require.NoError(t, s.PutChunks(ctx, id, chunks))

	all, err := s.ListChunks(ctx, id)
	require.NoError(t, err)
	ids := make([]int64, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	return id, ids
}

func TestRegistry_Execute_UnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	require.Error(t, err)
}

func TestRegistry_Execute_EnforcesChunkIDsCap(t *testing.T) {
	r := NewRegistry()
	RegisterStandardTools(r, newTestChunkStore(t), nil)

	ids := make([]any, MaxChunkIDs+1)
	for i := range ids {
		ids[i] = i
	}
	_, err := r.Execute(context.Background(), "get_chunks", map[string]any{"chunk_ids": ids})
	require.Error(t, err)
}

func TestRegistry_Execute_EnforcesTopKCap(t *testing.T) {
	r := NewRegistry()
	RegisterStandardTools(r, newTestChunkStore(t), nil)

	_, err := r.Execute(context.Background(), "search", map[string]any{"query": "x", "top_k": MaxTopK + 1})
	require.Error(t, err)
}

func TestGetChunksHandler_ReturnsAlignedResults(t *testing.T) {
	cs := newTestChunkStore(t)
	_, chunkIDs := seedBuffer(t, cs, "doc1", "hello world")

	r := NewRegistry()
	RegisterStandardTools(r, cs, nil)

	result, err := r.Execute(context.Background(), "get_chunks", map[string]any{
		"chunk_ids": []any{chunkIDs[0], int64(999999)},
	})
	require.NoError(t, err)

	out, ok := result.([]*ChunkResult)
	require.True(t, ok)
	require.Len(t, out, 2)
	assert.Equal(t, "hello world", out[0].Text)
	assert.Nil(t, out[1])
}

func TestGrepChunksHandler_RejectsInvalidRegex(t *testing.T) {
	cs := newTestChunkStore(t)
	seedBuffer(t, cs, "doc1", "hello world")

	r := NewRegistry()
	RegisterStandardTools(r, cs, nil)

	result, err := r.Execute(context.Background(), "grep_chunks", map[string]any{
		"pattern":   "(unclosed",
		"buffer_id": int64(1),
	})
	require.NoError(t, err) // invalid regex is a structured tool error, not an abort
	engErr, ok := result.(error)
	require.True(t, ok)
	assert.Contains(t, engErr.Error(), "invalid regex")
}

func TestGrepChunksHandler_FindsMatchesWithContext(t *testing.T) {
	cs := newTestChunkStore(t)
	bufID, _ := seedBuffer(t, cs, "doc1", "line one\nline two needle\nline three")

	r := NewRegistry()
	RegisterStandardTools(r, cs, nil)

	result, err := r.Execute(context.Background(), "grep_chunks", map[string]any{
		"pattern":   "needle",
		"buffer_id": bufID,
	})
	require.NoError(t, err)

	matches, ok := result.([]GrepMatch)
	require.True(t, ok)
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Line)
	assert.True(t, strings.Contains(matches[0].Context, "needle"))
}

func TestListBuffersHandler_OmitsContent(t *testing.T) {
	cs := newTestChunkStore(t)
	seedBuffer(t, cs, "doc1", "some content here")

	r := NewRegistry()
	RegisterStandardTools(r, cs, nil)

	result, err := r.Execute(context.Background(), "list_buffers", nil)
	require.NoError(t, err)

	summaries, ok := result.([]BufferSummary)
	require.True(t, ok)
	require.Len(t, summaries, 1)
	assert.Equal(t, "doc1", summaries[0].Name)
}

func TestStorageStatsHandler_ReturnsCounts(t *testing.T) {
	cs := newTestChunkStore(t)
	seedBuffer(t, cs, "doc1", "content")

	r := NewRegistry()
	RegisterStandardTools(r, cs, nil)

	result, err := r.Execute(context.Background(), "storage_stats", nil)
	require.NoError(t, err)

	stats, ok := result.(*store.Stats)
	require.True(t, ok)
	assert.Equal(t, 1, stats.Buffers)
}

func TestSearchHandler_RejectsEmptyQuery(t *testing.T) {
	r := NewRegistry()
	RegisterStandardTools(r, newTestChunkStore(t), &hybrid.Searcher{})

	_, err := r.Execute(context.Background(), "search", map[string]any{"query": ""})
	require.Error(t, err)
}
