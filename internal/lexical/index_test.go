package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveIndex_Search_RanksByRelevance(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, []Entry{
		{ChunkID: 1, Text: "the quick brown fox jumps over the lazy dog"},
		{ChunkID: 2, Text: "completely unrelated content about databases"},
		{ChunkID: 3, Text: "fox fox fox repeated for higher term frequency"},
	}))

	results, err := idx.Search(ctx, "fox", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
	assert.Equal(t, int64(3), results[0].ChunkID, "higher term frequency should rank first")
}

func TestBleveIndex_Search_EscapesSpecialCharacters(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, []Entry{
		{ChunkID: 1, Text: "a query with AND OR NOT tokens inside"},
	}))

	// Special matcher tokens must be treated as literal text, never parsed
	// as boolean operators.
	results, err := idx.Search(ctx, "field:value OR (broken", 10)
	require.NoError(t, err)
	assert.NotNil(t, results) // must not error on unbalanced/special syntax
}

func TestBleveIndex_Delete_RemovesEntries(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, []Entry{{ChunkID: 1, Text: "searchable text"}}))

	results, err := idx.Search(ctx, "searchable", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, idx.Delete(ctx, []int64{1}))

	results, err = idx.Search(ctx, "searchable", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTokenize_SplitsCamelCaseAndSnakeCase(t *testing.T) {
	tokens := Tokenize("getUserByID parse_http_request")
	assert.Contains(t, tokens, "get")
	assert.Contains(t, tokens, "user")
	assert.Contains(t, tokens, "by")
	assert.Contains(t, tokens, "parse")
	assert.Contains(t, tokens, "http")
	assert.Contains(t, tokens, "request")
}

func TestTokenize_FiltersShortTokens(t *testing.T) {
	tokens := Tokenize("a an the x y z longer")
	for _, tok := range tokens {
		assert.GreaterOrEqual(t, len(tok), 2)
	}
}
