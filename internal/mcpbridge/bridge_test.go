package mcpbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/orchestrator"
	"github.com/Aman-CERP/docquery/internal/store"
	"github.com/Aman-CERP/docquery/internal/toolexec"
)

func newTestBridge(t *testing.T) (*Bridge, *store.SQLiteChunkStore) {
	t.Helper()
	s, err := store.NewSQLiteChunkStore("")
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	tools := toolexec.NewRegistry()
	toolexec.RegisterStandardTools(tools, s, nil)

	b := New(tools, s, orchestrator.Config{Store: s}, nil)
	return b, s
}

func seedBuffer(t *testing.T, s *store.SQLiteChunkStore, name, content string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := s.PutBuffer(ctx, &store.Buffer{Name: name, Content: content, ByteSize: int64(len(content))})
	require.NoError(t, err)
	require.NoError(t, s.PutChunks(ctx, id, []*store.Chunk{
		{BufferID: id, Index: 0, Start: 0, End: len(content), Text: content},
	}))
	return id
}

func TestHandleListBuffers_ReturnsSeededBuffers(t *testing.T) {
	b, s := newTestBridge(t)
	seedBuffer(t, s, "doc", "hello world")

	_, out, err := b.handleListBuffers(context.Background(), nil, ListBuffersInput{})
	require.NoError(t, err)
	require.Len(t, out.Buffers, 1)
	assert.Equal(t, "doc", out.Buffers[0].Name)
}

func TestHandleGetChunks_ReturnsTextByID(t *testing.T) {
	b, s := newTestBridge(t)
	seedBuffer(t, s, "doc", "hello world")

	chunks, err := s.ListChunks(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	_, out, err := b.handleGetChunks(context.Background(), nil, GetChunksInput{ChunkIDs: []int64{chunks[0].ID}})
	require.NoError(t, err)
	require.Len(t, out.Chunks, 1)
	assert.Equal(t, "hello world", out.Chunks[0].Text)
}

func TestHandleGetBuffer_RequiresNameOrID(t *testing.T) {
	b, _ := newTestBridge(t)
	_, _, err := b.handleGetBuffer(context.Background(), nil, GetBufferInput{})
	require.Error(t, err)
	rpcErr, ok := err.(*RPCError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
}

func TestHandleQuery_RejectsEmptyQuery(t *testing.T) {
	b, _ := newTestBridge(t)
	_, _, err := b.handleQuery(context.Background(), nil, QueryToolInput{})
	require.Error(t, err)
}

func TestHandleStorageStats_ReturnsCounts(t *testing.T) {
	b, s := newTestBridge(t)
	seedBuffer(t, s, "doc", "hello world")

	_, out, err := b.handleStorageStats(context.Background(), nil, StorageStatsInput{})
	require.NoError(t, err)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 1, out.Stats.Buffers)
}

func TestRegisterResources_LoadsEveryBufferWithoutError(t *testing.T) {
	b, s := newTestBridge(t)
	seedBuffer(t, s, "doc", "hello world")
	seedBuffer(t, s, "doc2", "more content")

	require.NoError(t, b.RegisterResources(context.Background()))
}

func TestMakeBufferHandler_ReadsContentByName(t *testing.T) {
	b, s := newTestBridge(t)
	seedBuffer(t, s, "doc", "hello world")

	handler := b.makeBufferHandler("doc")
	result, err := handler(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "hello world", result.Contents[0].Text)
	assert.Equal(t, "engine://doc", result.Contents[0].URI)
}

func TestMakeChunkHandler_ReturnsNotFoundForMissingIndex(t *testing.T) {
	b, s := newTestBridge(t)
	seedBuffer(t, s, "doc", "hello world")

	handler := b.makeChunkHandler("doc", 99)
	_, err := handler(context.Background(), nil)
	require.Error(t, err)
}

func TestMapError_ClassifiesNoChunksAndInvalidArgument(t *testing.T) {
	assert.Equal(t, ErrCodeNoChunks, MapError(engerrors.New(engerrors.ErrCodeNoChunks, "no chunks", nil)).Code)
	assert.Equal(t, ErrCodeInvalidParams, MapError(engerrors.New(engerrors.ErrCodeInvalidInput, "bad argument", nil)).Code)
	assert.Equal(t, ErrCodeInternalError, MapError(assertionErr{}).Code)
}

type assertionErr struct{}

func (assertionErr) Error() string { return "boom" }
