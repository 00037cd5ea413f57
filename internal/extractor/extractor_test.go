package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/provider"
)

type fakeProvider struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Text: f.text}}, nil
}

func TestRunBatch_ParsesFindingsInOrder(t *testing.T) {
	llm := &fakeProvider{text: `[
		{"chunk_id":1,"relevance":"high","evidence":["mentions pricing"]},
		{"chunk_id":2,"relevance":"none"}
	]`}

	findings, batchErr := RunBatch(context.Background(), llm, Config{Model: "m"}, "q",
		[]ChunkInput{{ChunkID: 1, Text: "..."}, {ChunkID: 2, Text: "..."}})
	require.Nil(t, batchErr)
	require.Len(t, findings, 2)
	assert.Equal(t, int64(1), findings[0].ChunkID)
	assert.Equal(t, int64(2), findings[1].ChunkID)
}

func TestRunBatch_ReturnsBatchErrorOnLengthMismatch(t *testing.T) {
	llm := &fakeProvider{text: `[{"chunk_id":1,"relevance":"low"}]`}

	findings, batchErr := RunBatch(context.Background(), llm, Config{Model: "m"}, "q",
		[]ChunkInput{{ChunkID: 1, Text: "a"}, {ChunkID: 2, Text: "b"}})
	assert.Nil(t, findings)
	require.NotNil(t, batchErr)
	assert.Equal(t, []int64{1, 2}, batchErr.ChunkIDs)
}

func TestRunBatch_ReturnsBatchErrorOnProviderError(t *testing.T) {
	llm := &fakeProvider{err: engerrors.ProviderPermanentError("rejected", nil)}

	findings, batchErr := RunBatch(context.Background(), llm, Config{Model: "m"}, "q",
		[]ChunkInput{{ChunkID: 1, Text: "a"}})
	assert.Nil(t, findings)
	require.NotNil(t, batchErr)
}

func TestRunBatch_ReturnsBatchErrorOnOversizedBatch(t *testing.T) {
	chunks := make([]ChunkInput, MaxFindingsPerBatch+1)
	for i := range chunks {
		chunks[i] = ChunkInput{ChunkID: int64(i), Text: "x"}
	}
	llm := &fakeProvider{text: "[]"}

	findings, batchErr := RunBatch(context.Background(), llm, Config{Model: "m"}, "q", chunks)
	assert.Nil(t, findings)
	require.NotNil(t, batchErr)
	assert.Contains(t, batchErr.Reason, "exceeds max")
}

func TestRunBatch_RejectsFindingOutsideBatch(t *testing.T) {
	llm := &fakeProvider{text: `[{"chunk_id":99,"relevance":"low"}]`}

	findings, batchErr := RunBatch(context.Background(), llm, Config{Model: "m"}, "q",
		[]ChunkInput{{ChunkID: 1, Text: "a"}})
	assert.Nil(t, findings)
	require.NotNil(t, batchErr)
}

func TestBuildUserMessage_TruncatesOversizedChunkText(t *testing.T) {
	long := strings.Repeat("a", MaxFindingTextBytes+100)
	msg := buildUserMessage("q", []ChunkInput{{ChunkID: 1, Text: long}})
	assert.LessOrEqual(t, len(msg), MaxFindingTextBytes+200)
}
