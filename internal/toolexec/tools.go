package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/hybrid"
	"github.com/Aman-CERP/docquery/internal/store"
)

// getChunksArgs through storageStatsArgs are the typed argument shapes
// each tool's schema is generated from via jsonschema.For, instead of
// hand-written JSON-schema literals. Mirrors the struct-per-tool shape
// the MCP bridge already uses for its own request types.
type getChunksArgs struct {
	ChunkIDs []int64 `json:"chunk_ids" jsonschema:"chunk ids to fetch, aligned to the input order"`
}

type getChunkMetadataArgs struct {
	ChunkIDs []int64 `json:"chunk_ids" jsonschema:"chunk ids to fetch metadata for, aligned to the input order"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"the search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10"`
	Mode  string `json:"mode,omitempty" jsonschema:"hybrid, semantic, or lexical"`
}

type grepChunksArgs struct {
	Pattern      string  `json:"pattern" jsonschema:"regular expression to search for"`
	ChunkIDs     []int64 `json:"chunk_ids,omitempty" jsonschema:"restrict the search to these chunk ids"`
	BufferID     int64   `json:"buffer_id,omitempty" jsonschema:"restrict the search to this buffer's chunks"`
	ContextLines int     `json:"context_lines,omitempty" jsonschema:"lines of context around each match, default 2"`
}

type getBufferArgs struct {
	Name string `json:"name,omitempty" jsonschema:"buffer name"`
	ID   int64  `json:"id,omitempty" jsonschema:"buffer id"`
}

type listBuffersArgs struct{}

type storageStatsArgs struct{}

// schemaFor generates a tool's Parameters map from its typed argument
// struct. Panics on a malformed struct tag, which would be a programmer
// error caught at init time, not a runtime condition.
func schemaFor[T any]() map[string]any {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("toolexec: generate schema: %v", err))
	}
	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("toolexec: marshal schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("toolexec: unmarshal schema: %v", err))
	}
	return out
}

// ChunkResult is the get_chunks/search-shared chunk payload.
type ChunkResult struct {
	ChunkID int64  `json:"chunk_id"`
	Text    string `json:"text,omitempty"`
}

// SearchResult mirrors the Hybrid Searcher's output shape.
type SearchResult struct {
	ChunkID       int64    `json:"chunk_id"`
	FusedScore    float64  `json:"fused_score"`
	LexicalScore  *float64 `json:"lexical_score,omitempty"`
	SemanticScore *float32 `json:"semantic_score,omitempty"`
}

// ChunkMetadataResult is the get_chunk_metadata payload: a chunk's
// position and provenance without its text, for bulk-safe lookups that
// don't need content.
type ChunkMetadataResult struct {
	ChunkID     int64  `json:"chunk_id"`
	BufferID    int64  `json:"buffer_id,omitempty"`
	Index       int    `json:"index,omitempty"`
	Start       int    `json:"start,omitempty"`
	End         int    `json:"end,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
	TokenCount  int    `json:"token_count,omitempty"`
	Overlap     bool   `json:"overlap,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// GrepMatch is one grep_chunks hit.
type GrepMatch struct {
	ChunkID int64  `json:"chunk_id"`
	Line    int    `json:"line"`
	Match   string `json:"match"`
	Context string `json:"context"`
}

// BufferSummary is the list_buffers entry shape (no content).
type BufferSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ByteSize   int64  `json:"byte_size"`
	ChunkCount int    `json:"chunk_count"`
}

// RegisterStandardTools registers the seven fixed tools against the
// given chunk store and hybrid searcher.
func RegisterStandardTools(r *Registry, chunkStore store.ChunkStore, searcher *hybrid.Searcher) {
	r.Register(&Tool{
		Name:        "get_chunks",
		Description: "Fetch chunk text by id, aligned to the input list; missing ids come back nil.",
		Parameters:  schemaFor[getChunksArgs](),
		Handler:     getChunksHandler(chunkStore),
	})

	r.Register(&Tool{
		Name:        "get_chunk_metadata",
		Description: "Fetch chunk position/provenance metadata (no text) by id, in one round trip.",
		Parameters:  schemaFor[getChunkMetadataArgs](),
		Handler:     getChunkMetadataHandler(chunkStore),
	})

	r.Register(&Tool{
		Name:        "search",
		Description: "Run the hybrid searcher and return fused, lexical, and semantic scores.",
		Parameters:  schemaFor[searchArgs](),
		Handler:     searchHandler(searcher),
	})

	r.Register(&Tool{
		Name:        "grep_chunks",
		Description: "Regex search over chunk text with line context.",
		Parameters:  schemaFor[grepChunksArgs](),
		Handler:     grepChunksHandler(chunkStore),
	})

	r.Register(&Tool{
		Name:        "get_buffer",
		Description: "Fetch a buffer with its content, by name or id.",
		Parameters:  schemaFor[getBufferArgs](),
		Handler:     getBufferHandler(chunkStore),
	})

	r.Register(&Tool{
		Name:        "list_buffers",
		Description: "List buffer summaries, without content.",
		Parameters:  schemaFor[listBuffersArgs](),
		Handler:     listBuffersHandler(chunkStore),
	})

	r.Register(&Tool{
		Name:        "storage_stats",
		Description: "Return aggregate store statistics.",
		Parameters:  schemaFor[storageStatsArgs](),
		Handler:     storageStatsHandler(chunkStore),
	})
}

func getChunksHandler(chunkStore store.ChunkStore) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		ids, err := intSliceArg(args, "chunk_ids")
		if err != nil {
			return nil, err
		}
		chunks, err := chunkStore.GetChunksByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make([]*ChunkResult, len(chunks))
		for i, c := range chunks {
			if c == nil {
				continue
			}
			out[i] = &ChunkResult{ChunkID: c.ID, Text: c.Text}
		}
		return out, nil
	}
}

func getChunkMetadataHandler(chunkStore store.ChunkStore) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		ids, err := intSliceArg(args, "chunk_ids")
		if err != nil {
			return nil, err
		}
		meta, err := chunkStore.GetChunkMetadataBatch(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make([]*ChunkMetadataResult, len(meta))
		for i, m := range meta {
			if m == nil {
				continue
			}
			out[i] = &ChunkMetadataResult{
				ChunkID: m.ID, BufferID: m.BufferID, Index: m.Index, Start: m.Start, End: m.End,
				Strategy: m.Strategy, TokenCount: m.TokenCount, Overlap: m.Overlap, ContentHash: m.ContentHash,
			}
		}
		return out, nil
	}
}

func searchHandler(searcher *hybrid.Searcher) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return nil, engerrors.ValidationError("search requires a non-empty query", nil)
		}
		topK := 10
		if n, ok := asInt(args["top_k"]); ok && n > 0 {
			topK = n
		}
		mode := hybrid.ModeHybrid
		if m, ok := args["mode"].(string); ok && m != "" {
			mode = hybrid.Mode(m)
		}

		results, err := searcher.Search(ctx, hybrid.Query{Text: query, Mode: mode, TopK: topK})
		if err != nil {
			return nil, err
		}
		out := make([]SearchResult, len(results))
		for i, r := range results {
			out[i] = SearchResult{ChunkID: r.ChunkID, FusedScore: r.FusedScore, LexicalScore: r.LexicalScore, SemanticScore: r.SemanticScore}
		}
		return out, nil
	}
}

func grepChunksHandler(chunkStore store.ChunkStore) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		pattern, _ := args["pattern"].(string)
		if pattern == "" {
			return nil, engerrors.ValidationError("grep_chunks requires a pattern", nil)
		}

		parsed, err := syntax.Parse(pattern, syntax.Perl)
		if err != nil {
			return engerrors.ValidationError("invalid regex pattern", err), nil
		}
		if parsed.Op == syntax.OpNoMatch {
			return engerrors.ValidationError("regex pattern matches nothing", nil), nil
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return engerrors.ValidationError("invalid regex pattern", err), nil
		}

		contextLines := 2
		if n, ok := asInt(args["context_lines"]); ok && n >= 0 {
			contextLines = n
		}

		var chunks []*store.Chunk
		if ids, ok := args["chunk_ids"]; ok && ids != nil {
			idList, err := intSliceArg(args, "chunk_ids")
			if err != nil {
				return nil, err
			}
			chunks, err = chunkStore.GetChunksByIDs(ctx, idList)
			if err != nil {
				return nil, err
			}
		} else if bufID, ok := asInt(args["buffer_id"]); ok {
			chunks, err = chunkStore.ListChunks(ctx, int64(bufID))
			if err != nil {
				return nil, err
			}
		} else {
			return nil, engerrors.ValidationError("grep_chunks requires chunk_ids or buffer_id", nil)
		}

		if len(chunks) > MaxGrepChunks {
			chunks = chunks[:MaxGrepChunks]
		}

		var matches []GrepMatch
		for _, c := range chunks {
			if c == nil {
				continue
			}
			matches = append(matches, grepChunk(c, re, contextLines)...)
		}
		return matches, nil
	}
}

func grepChunk(c *store.Chunk, re *regexp.Regexp, contextLines int) []GrepMatch {
	lines := strings.Split(c.Text, "\n")
	var out []GrepMatch
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		start := i - contextLines
		if start < 0 {
			start = 0
		}
		end := i + contextLines + 1
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, GrepMatch{
			ChunkID: c.ID,
			Line:    i + 1,
			Match:   strings.TrimSpace(line),
			Context: strings.Join(lines[start:end], "\n"),
		})
	}
	return out
}

func getBufferHandler(chunkStore store.ChunkStore) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		idVal, hasID := asInt(args["id"])
		if name == "" && !hasID {
			return nil, engerrors.ValidationError("get_buffer requires name or id", nil)
		}
		key := name
		if hasID {
			key = fmt.Sprintf("%d", idVal)
		}
		return chunkStore.GetBuffer(ctx, key)
	}
}

func listBuffersHandler(chunkStore store.ChunkStore) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		buffers, err := chunkStore.ListBuffers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]BufferSummary, len(buffers))
		for i, b := range buffers {
			out[i] = BufferSummary{ID: b.ID, Name: b.Name, ByteSize: b.ByteSize, ChunkCount: b.ChunkCount}
		}
		return out, nil
	}
}

func storageStatsHandler(chunkStore store.ChunkStore) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		return chunkStore.Stats(ctx)
	}
}

func intSliceArg(args map[string]any, key string) ([]int64, error) {
	raw, ok := args[key]
	if !ok {
		return nil, engerrors.ValidationError(fmt.Sprintf("missing required argument %q", key), nil)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, engerrors.ValidationError(fmt.Sprintf("%q must be an array of integers", key), nil)
	}
	out := make([]int64, 0, len(list))
	for _, v := range list {
		n, ok := asInt(v)
		if !ok {
			return nil, engerrors.ValidationError(fmt.Sprintf("%q must contain only integers", key), nil)
		}
		out = append(out, int64(n))
	}
	return out, nil
}
