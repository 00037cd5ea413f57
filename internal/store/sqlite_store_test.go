package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteChunkStore {
	t.Helper()
	s, err := NewSQLiteChunkStore("")
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChunkStore_PutBuffer_NameConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "hello"})
	require.NoError(t, err)

	_, err = s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "world"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeNameConflict, errCode(err))
}

func TestChunkStore_GetBuffer_ByIDAndName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "hello world"})
	require.NoError(t, err)

	byName, err := s.GetBuffer(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
	assert.Equal(t, int64(len("hello world")), byName.ByteSize)
	assert.NotEmpty(t, byName.ContentHash)

	byID, err := s.GetBuffer(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "docs", byID.Name)
}

func TestChunkStore_GetBuffer_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBuffer(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, ErrCodeBufferNotFound, errCode(err))
}

func TestChunkStore_DeleteBuffer_CascadesToChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "hello world"})
	require.NoError(t, err)

	chunks := []*Chunk{
		{Index: 0, Start: 0, End: 5, Text: "hello", Strategy: "fixed"},
		{Index: 1, Start: 6, End: 11, Text: "world", Strategy: "fixed"},
	}
	require.NoError(t, s.PutChunks(ctx, id, chunks))
	require.NotZero(t, chunks[0].ID)

	require.NoError(t, s.DeleteBuffer(ctx, id))

	_, err = s.GetChunk(ctx, chunks[0].ID)
	require.Error(t, err)
	assert.Equal(t, ErrCodeChunkNotFound, errCode(err))
}

func TestChunkStore_GetChunksByIDs_PreservesOrderAndNils(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "abcdef"})
	require.NoError(t, err)

	chunks := []*Chunk{
		{Index: 0, Start: 0, End: 3, Text: "abc", Strategy: "fixed"},
		{Index: 1, Start: 3, End: 6, Text: "def", Strategy: "fixed"},
	}
	require.NoError(t, s.PutChunks(ctx, id, chunks))

	got, err := s.GetChunksByIDs(ctx, []int64{chunks[1].ID, 9999, chunks[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "def", got[0].Text)
	assert.Nil(t, got[1])
	assert.Equal(t, "abc", got[2].Text)
}

func TestChunkStore_GetChunkMetadataBatch_PreservesOrderAndOmitsText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "abcdef"})
	require.NoError(t, err)

	chunks := []*Chunk{
		{Index: 0, Start: 0, End: 3, Text: "abc", Strategy: "fixed"},
		{Index: 1, Start: 3, End: 6, Text: "def", Strategy: "fixed"},
	}
	require.NoError(t, s.PutChunks(ctx, id, chunks))

	got, err := s.GetChunkMetadataBatch(ctx, []int64{chunks[1].ID, 9999, chunks[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 3, got[0].Start)
	assert.Nil(t, got[1])
	assert.Equal(t, 0, got[2].Index)
}

func TestChunkStore_UpdateBuffer_ReplacesChunkSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "v1"})
	require.NoError(t, err)
	require.NoError(t, s.PutChunks(ctx, id, []*Chunk{{Index: 0, Start: 0, End: 2, Text: "v1", Strategy: "fixed"}}))

	newChunks := []*Chunk{{Index: 0, Start: 0, End: 2, Text: "v2", Strategy: "fixed"}}
	require.NoError(t, s.UpdateBuffer(ctx, id, "v2", newChunks))

	list, err := s.ListChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v2", list[0].Text)

	buf, err := s.GetBuffer(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "v2", buf.Content)
	assert.Equal(t, 1, buf.ChunkCount)
}

func TestChunkStore_EmbeddingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "hello"})
	require.NoError(t, err)
	chunks := []*Chunk{{Index: 0, Start: 0, End: 5, Text: "hello", Strategy: "fixed"}}
	require.NoError(t, s.PutChunks(ctx, id, chunks))

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, s.PutEmbedding(ctx, chunks[0].ID, "test-model", vec))

	got, err := s.GetEmbedding(ctx, chunks[0].ID, "test-model")
	require.NoError(t, err)
	assert.Equal(t, vec, got.Vector)

	missing, err := s.MissingEmbeddings(ctx, id, "other-model")
	require.NoError(t, err)
	assert.Equal(t, []int64{chunks[0].ID}, missing)

	missing, err = s.MissingEmbeddings(ctx, id, "test-model")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestChunkStore_StateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "nomic-embed-text"))
	v, err = s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", v)

	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "bge-small"))
	v, err = s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "bge-small", v)
}

func TestChunkStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutBuffer(ctx, &Buffer{Name: "docs", Content: "hello world"})
	require.NoError(t, err)
	chunks := []*Chunk{
		{Index: 0, Start: 0, End: 5, Text: "hello", Strategy: "fixed"},
		{Index: 1, Start: 6, End: 11, Text: "world", Strategy: "fixed"},
	}
	require.NoError(t, s.PutChunks(ctx, id, chunks))
	require.NoError(t, s.PutEmbedding(ctx, chunks[0].ID, "m", []float32{1, 2}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Buffers)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, stats.EmbeddedChunks)
}

// errCode extracts the EngineError code from err.
func errCode(err error) string {
	return engerrors.GetCode(err)
}
