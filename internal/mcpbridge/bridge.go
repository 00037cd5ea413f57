// Package mcpbridge exposes the retrieval engine over the Model Context
// Protocol: the seven Tool Executor tools plus a query tool, and per-buffer /
// per-chunk resources addressable by engine://{buffer_name}[/{chunk_index}]
// URIs (§6).
package mcpbridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docquery/internal/logging"
	"github.com/Aman-CERP/docquery/internal/orchestrator"
	"github.com/Aman-CERP/docquery/internal/store"
	"github.com/Aman-CERP/docquery/internal/toolexec"
	"github.com/Aman-CERP/docquery/pkg/version"
)

// Bridge wires a toolexec.Registry and an orchestrator.Config onto an MCP
// server, following the teacher's Server/registerTools/RegisterResources
// split.
type Bridge struct {
	mcp    *mcp.Server
	tools  *toolexec.Registry
	store  store.ChunkStore
	orch   orchestrator.Config
	logger *slog.Logger
}

// New constructs a Bridge and registers the fixed tool set. tools must
// already have the seven standard tools registered via
// toolexec.RegisterStandardTools.
func New(tools *toolexec.Registry, chunkStore store.ChunkStore, orch orchestrator.Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "docquery",
			Version: version.Version,
		}, nil),
		tools:  tools,
		store:  chunkStore,
		orch:   orch,
		logger: logger,
	}

	b.registerTools()
	return b
}

// MCPServer returns the underlying MCP server, for tests and transport wiring.
func (b *Bridge) MCPServer() *mcp.Server {
	return b.mcp
}

// Serve runs the server over stdio until ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context) error {
	b.logger.Info("starting mcp server", slog.String("transport", "stdio"))
	err := b.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	b.logger.Info("mcp server stopped")
	return nil
}

// --- tool registration -----------------------------------------------------

// GetChunksInput mirrors toolexec's get_chunks parameters.
type GetChunksInput struct {
	ChunkIDs []int64 `json:"chunk_ids" jsonschema:"chunk ids to fetch, aligned to the input order"`
}

// GetChunksOutput wraps toolexec's []*ChunkResult.
type GetChunksOutput struct {
	Chunks []*toolexec.ChunkResult `json:"chunks"`
}

// GetChunkMetadataInput mirrors toolexec's get_chunk_metadata parameters.
type GetChunkMetadataInput struct {
	ChunkIDs []int64 `json:"chunk_ids" jsonschema:"chunk ids to fetch metadata for, aligned to the input order"`
}

// GetChunkMetadataOutput wraps toolexec's []*ChunkMetadataResult.
type GetChunkMetadataOutput struct {
	Chunks []*toolexec.ChunkMetadataResult `json:"chunks"`
}

// SearchToolInput mirrors toolexec's search parameters.
type SearchToolInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10"`
	Mode  string `json:"mode,omitempty" jsonschema:"hybrid, semantic, or lexical"`
}

// SearchToolOutput wraps toolexec's []SearchResult.
type SearchToolOutput struct {
	Results []toolexec.SearchResult `json:"results"`
}

// GrepChunksInput mirrors toolexec's grep_chunks parameters.
type GrepChunksInput struct {
	Pattern      string  `json:"pattern" jsonschema:"regular expression to search for"`
	ChunkIDs     []int64 `json:"chunk_ids,omitempty" jsonschema:"restrict the search to these chunk ids"`
	BufferID     int64   `json:"buffer_id,omitempty" jsonschema:"restrict the search to this buffer's chunks"`
	ContextLines int     `json:"context_lines,omitempty" jsonschema:"lines of context around each match, default 2"`
}

// GrepChunksOutput wraps toolexec's []GrepMatch.
type GrepChunksOutput struct {
	Matches []toolexec.GrepMatch `json:"matches"`
}

// GetBufferInput mirrors toolexec's get_buffer parameters.
type GetBufferInput struct {
	Name string `json:"name,omitempty" jsonschema:"buffer name"`
	ID   int64  `json:"id,omitempty" jsonschema:"buffer id"`
}

// GetBufferOutput wraps a single store.Buffer.
type GetBufferOutput struct {
	Buffer *store.Buffer `json:"buffer"`
}

// ListBuffersInput is empty; list_buffers takes no parameters.
type ListBuffersInput struct{}

// ListBuffersOutput wraps toolexec's []BufferSummary.
type ListBuffersOutput struct {
	Buffers []toolexec.BufferSummary `json:"buffers"`
}

// StorageStatsInput is empty; storage_stats takes no parameters.
type StorageStatsInput struct{}

// StorageStatsOutput wraps a store.Stats.
type StorageStatsOutput struct {
	Stats *store.Stats `json:"stats"`
}

// QueryToolInput drives the full orchestrator pipeline as an MCP tool,
// distinct from the Tool Executor's bounded tools.
type QueryToolInput struct {
	Query      string `json:"query" jsonschema:"the question to answer"`
	BufferID   int64  `json:"buffer_id,omitempty" jsonschema:"restrict the query to a single buffer"`
	SearchMode string `json:"search_mode,omitempty" jsonschema:"override the planner's chosen search mode"`
}

// QueryToolOutput is the orchestrator's result, flattened for MCP transport.
type QueryToolOutput struct {
	RequestID      string `json:"request_id"`
	Report         string `json:"report"`
	ChunksAnalyzed int    `json:"chunks_analyzed"`
	FindingsCount  int    `json:"findings_count"`
	BatchesFailed  int    `json:"batches_failed"`
	SynthesisError string `json:"synthesis_error,omitempty"`
}

func (b *Bridge) registerTools() {
	b.logger.Debug("registering mcp tools")

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "get_chunks",
		Description: "Fetch chunk text by id, aligned to the input list; missing ids come back nil.",
	}, b.handleGetChunks)

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "get_chunk_metadata",
		Description: "Fetch chunk position/provenance metadata (no text) by id, in one round trip.",
	}, b.handleGetChunkMetadata)

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Run the hybrid searcher and return fused, lexical, and semantic scores.",
	}, b.handleSearch)

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "grep_chunks",
		Description: "Regex search over chunk text with line context.",
	}, b.handleGrepChunks)

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "get_buffer",
		Description: "Fetch a buffer with its content, by name or id.",
	}, b.handleGetBuffer)

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "list_buffers",
		Description: "List buffer summaries, without content.",
	}, b.handleListBuffers)

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "storage_stats",
		Description: "Return aggregate store statistics.",
	}, b.handleStorageStats)

	mcp.AddTool(b.mcp, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question over the document set via the full plan/search/extract/synthesize pipeline.",
	}, b.handleQuery)

	b.logger.Info("mcp tools registered", slog.Int("count", 8))
}

func (b *Bridge) handleGetChunks(ctx context.Context, _ *mcp.CallToolRequest, in GetChunksInput) (*mcp.CallToolResult, GetChunksOutput, error) {
	args := map[string]any{"chunk_ids": int64SliceToAny(in.ChunkIDs)}
	result, err := b.tools.Execute(ctx, "get_chunks", args)
	if err != nil {
		return nil, GetChunksOutput{}, MapError(err)
	}
	chunks, _ := result.([]*toolexec.ChunkResult)
	return nil, GetChunksOutput{Chunks: chunks}, nil
}

func (b *Bridge) handleGetChunkMetadata(ctx context.Context, _ *mcp.CallToolRequest, in GetChunkMetadataInput) (*mcp.CallToolResult, GetChunkMetadataOutput, error) {
	args := map[string]any{"chunk_ids": int64SliceToAny(in.ChunkIDs)}
	result, err := b.tools.Execute(ctx, "get_chunk_metadata", args)
	if err != nil {
		return nil, GetChunkMetadataOutput{}, MapError(err)
	}
	chunks, _ := result.([]*toolexec.ChunkMetadataResult)
	return nil, GetChunkMetadataOutput{Chunks: chunks}, nil
}

func (b *Bridge) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchToolInput) (*mcp.CallToolResult, SearchToolOutput, error) {
	if in.Query == "" {
		return nil, SearchToolOutput{}, newInvalidParamsError("query is required")
	}
	args := map[string]any{"query": in.Query}
	if in.TopK > 0 {
		args["top_k"] = in.TopK
	}
	if in.Mode != "" {
		args["mode"] = in.Mode
	}
	result, err := b.tools.Execute(ctx, "search", args)
	if err != nil {
		return nil, SearchToolOutput{}, MapError(err)
	}
	results, _ := result.([]toolexec.SearchResult)
	return nil, SearchToolOutput{Results: results}, nil
}

func (b *Bridge) handleGrepChunks(ctx context.Context, _ *mcp.CallToolRequest, in GrepChunksInput) (*mcp.CallToolResult, GrepChunksOutput, error) {
	if in.Pattern == "" {
		return nil, GrepChunksOutput{}, newInvalidParamsError("pattern is required")
	}
	args := map[string]any{"pattern": in.Pattern, "context_lines": in.ContextLines}
	if len(in.ChunkIDs) > 0 {
		args["chunk_ids"] = int64SliceToAny(in.ChunkIDs)
	}
	if in.BufferID != 0 {
		args["buffer_id"] = in.BufferID
	}
	result, err := b.tools.Execute(ctx, "grep_chunks", args)
	if err != nil {
		return nil, GrepChunksOutput{}, MapError(err)
	}
	matches, _ := result.([]toolexec.GrepMatch)
	return nil, GrepChunksOutput{Matches: matches}, nil
}

func (b *Bridge) handleGetBuffer(ctx context.Context, _ *mcp.CallToolRequest, in GetBufferInput) (*mcp.CallToolResult, GetBufferOutput, error) {
	if in.Name == "" && in.ID == 0 {
		return nil, GetBufferOutput{}, newInvalidParamsError("name or id is required")
	}
	args := map[string]any{}
	if in.Name != "" {
		args["name"] = in.Name
	}
	if in.ID != 0 {
		args["id"] = in.ID
	}
	result, err := b.tools.Execute(ctx, "get_buffer", args)
	if err != nil {
		return nil, GetBufferOutput{}, MapError(err)
	}
	buf, _ := result.(*store.Buffer)
	return nil, GetBufferOutput{Buffer: buf}, nil
}

func (b *Bridge) handleListBuffers(ctx context.Context, _ *mcp.CallToolRequest, _ ListBuffersInput) (*mcp.CallToolResult, ListBuffersOutput, error) {
	result, err := b.tools.Execute(ctx, "list_buffers", map[string]any{})
	if err != nil {
		return nil, ListBuffersOutput{}, MapError(err)
	}
	buffers, _ := result.([]toolexec.BufferSummary)
	return nil, ListBuffersOutput{Buffers: buffers}, nil
}

func (b *Bridge) handleStorageStats(ctx context.Context, _ *mcp.CallToolRequest, _ StorageStatsInput) (*mcp.CallToolResult, StorageStatsOutput, error) {
	result, err := b.tools.Execute(ctx, "storage_stats", map[string]any{})
	if err != nil {
		return nil, StorageStatsOutput{}, MapError(err)
	}
	stats, _ := result.(*store.Stats)
	return nil, StorageStatsOutput{Stats: stats}, nil
}

func (b *Bridge) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, in QueryToolInput) (*mcp.CallToolResult, QueryToolOutput, error) {
	if in.Query == "" {
		return nil, QueryToolOutput{}, newInvalidParamsError("query is required")
	}

	var bufferScope *int64
	if in.BufferID != 0 {
		bufferScope = &in.BufferID
	}

	var overrides orchestrator.Overrides
	if in.SearchMode != "" {
		overrides.SearchMode = &in.SearchMode
	}

	result, err := orchestrator.Query(ctx, b.orch, in.Query, bufferScope, overrides)
	if err != nil {
		return nil, QueryToolOutput{}, MapError(err)
	}
	logging.WithRequestID(b.logger, result.RequestID).Info("query completed", slog.Int("findings_count", result.FindingsCount))

	return nil, QueryToolOutput{
		RequestID:      result.RequestID,
		Report:         result.Report,
		ChunksAnalyzed: result.ChunksAnalyzed,
		FindingsCount:  result.FindingsCount,
		BatchesFailed:  result.BatchesFailed,
		SynthesisError: result.SynthesisError,
	}, nil
}

func int64SliceToAny(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
