// Package orchestrator composes the Planner, Hybrid Searcher, Scaling
// Policy, Extractor, and Synthesizer into the query pipeline (C11):
// Plan -> Search -> Scale -> LoadChunks -> FanOut -> Collect ->
// Synthesize -> Done.
package orchestrator

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docquery/internal/domain"
	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/extractor"
	"github.com/Aman-CERP/docquery/internal/hybrid"
	"github.com/Aman-CERP/docquery/internal/planner"
	"github.com/Aman-CERP/docquery/internal/provider"
	"github.com/Aman-CERP/docquery/internal/scaling"
	"github.com/Aman-CERP/docquery/internal/store"
	"github.com/Aman-CERP/docquery/internal/synthesizer"
	"github.com/Aman-CERP/docquery/internal/toolexec"
)

// tracer emits spans around the pipeline's stages (§4.10). With no
// TracerProvider registered by the host process it resolves to otel's
// no-op implementation, so Query carries the same instrumentation points
// whether or not anything is listening.
var tracer = otel.Tracer("docquery/orchestrator")

// Defaults are the configuration-layer defaults consulted after the
// Planner and the Scaling Policy in the parameter resolution chain
// (§4.11), before the package's own hard-coded defaults.
type Defaults struct {
	SearchMode  string
	BatchSize   int
	Threshold   float64
	TopK        int
	MaxChunks   int
	Concurrency int
}

// Config wires the orchestrator's dependencies. Store, Searcher and LLM
// are required. Tools is not read by Query; the Synthesizer takes its
// tools from SynthesizerConfig.Tools. Defaults and ConcurrencyCeiling fall
// back to sane hard-coded values.
type Config struct {
	Store             store.ChunkStore
	Searcher          *hybrid.Searcher
	Tools             *toolexec.Registry
	LLM               provider.Provider
	PlannerConfig     planner.Config
	ExtractorConfig   extractor.Config
	SynthesizerConfig synthesizer.Config
	Defaults          Defaults

	// ConcurrencyCeiling is the global cap applied on top of the
	// Scaling Policy's recommendation (§4.11). 0 means no extra ceiling.
	ConcurrencyCeiling int
}

// Overrides are caller-supplied parameters that win over the Planner and
// the Scaling Policy in the resolution chain (§4.11). Nil/zero means
// "no override": let the rest of the chain decide.
type Overrides struct {
	SearchMode  *string
	BatchSize   *int
	Threshold   *float64
	TopK        *int
	MaxChunks   *int
	Concurrency *int

	// SkipPlan, when true, skips invoking the Planner and uses
	// domain.DefaultPlan() instead (§4.10's Plan stage).
	SkipPlan bool

	// FindingThreshold drops findings below this relevance, in addition
	// to the always-dropped RelevanceNone (§4.10's Collect stage).
	FindingThreshold domain.Relevance
}

// QueryResult is the pipeline's final output (§4.10's Done stage).
type QueryResult struct {
	Report string
	Tier   scaling.Tier

	ChunksAvailable   int
	ChunksAnalyzed    int
	FindingsCount     int
	FindingsFiltered  int
	BatchesProcessed  int
	BatchesFailed     int
	ChunkLoadFailures int

	BatchErrors []domain.BatchError
	TotalTokens int
	Elapsed     time.Duration
	Cancelled   bool

	// RequestID identifies this Query call for log/span correlation
	// across the Planner, Extractor, and Synthesizer agent calls it
	// triggers.
	RequestID string

	// SynthesisError is set, and Report left empty, when the
	// Synthesizer fails after findings were already gathered (§4.12:
	// "still surfaces a QueryResult without a report").
	SynthesisError string
}

var fallbackOrder = []hybrid.Mode{hybrid.ModeHybrid, hybrid.ModeLexical, hybrid.ModeSemantic}

// Query runs the full pipeline for one question.
func Query(ctx context.Context, cfg Config, queryText string, bufferScope *int64, overrides Overrides) (*QueryResult, error) {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "orchestrator.query", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.String("query", queryText),
	))
	defer span.End()

	profile, totalBytes, err := datasetProfile(ctx, cfg.Store, bufferScope)
	if err != nil {
		return nil, engerrors.StoreError("failed to read dataset profile", err)
	}
	scalingProfile := scaling.Resolve(profile)

	// Plan.
	var plan domain.AnalysisPlan
	if overrides.SkipPlan {
		plan = domain.DefaultPlan()
	} else {
		plan = planner.Plan(ctx, cfg.LLM, cfg.PlannerConfig, planner.Input{
			Query:      queryText,
			ChunkCount: profile.ChunkCount,
			TotalBytes: totalBytes,
		})
	}

	searchMode := resolveString(overrides.SearchMode, plan.SearchMode, cfg.Defaults.SearchMode, string(hybrid.ModeHybrid))
	threshold := resolveFloat(overrides.Threshold, plan.Threshold, cfg.Defaults.Threshold, 0)
	topK := resolveIntWithScaling(overrides.TopK, 0, scalingProfile.TopK, cfg.Defaults.TopK, 10)

	// Search, with the hybrid -> lexical -> semantic fallback (§4.4) when
	// the requested mode comes back empty.
	hits, err := searchWithFallback(ctx, cfg.Searcher, queryText, hybrid.Mode(searchMode), topK, threshold, bufferScope)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, engerrors.New(engerrors.ErrCodeNoChunks,
			"no chunks matched the query in any search mode", nil).
			WithSuggestion("try a lower threshold, a different search mode, or run embed_buffer if the buffer has no embeddings")
	}

	if ctx.Err() != nil {
		return cancelledResult(start, requestID, profile.ChunkCount, scalingProfile.Tier), nil
	}

	// Scale: fill the remaining effective parameters.
	batchSize := resolveIntWithScaling(overrides.BatchSize, plan.BatchSize, scalingProfile.BatchSize, cfg.Defaults.BatchSize, 10)
	maxChunks := resolveIntWithScaling(overrides.MaxChunks, plan.MaxChunks, scalingProfile.MaxChunksLoaded, cfg.Defaults.MaxChunks, 0)
	concurrency := resolveIntWithScaling(overrides.Concurrency, 0, scalingProfile.Concurrency, cfg.Defaults.Concurrency, 5)
	concurrency = scaling.ClampConcurrency(scaling.Profile{Concurrency: concurrency}, cfg.ConcurrencyCeiling)

	// LoadChunks: one batched call, missing ids logged but not fatal.
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	rawChunks, err := cfg.Store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, engerrors.StoreError("failed to load chunks", err)
	}

	lookup := make(map[int64]*store.Chunk, len(rawChunks))
	loaded := make([]*store.Chunk, 0, len(rawChunks))
	chunkLoadFailures := 0
	for _, c := range rawChunks {
		if c == nil {
			chunkLoadFailures++
			continue
		}
		lookup[c.ID] = c
		loaded = append(loaded, c)
	}
	if maxChunks > 0 && len(loaded) > maxChunks {
		loaded = loaded[:maxChunks]
	}

	if ctx.Err() != nil {
		return cancelledResult(start, requestID, profile.ChunkCount, scalingProfile.Tier), nil
	}

	// FanOut: partition into batches, run concurrently bounded by
	// effective_concurrency.
	batches := partition(loaded, batchSize)
	findings, batchErrors, batchesProcessed, batchesFailed := fanOut(ctx, cfg, queryText, batches, concurrency)

	if ctx.Err() != nil {
		result := cancelledResult(start, requestID, profile.ChunkCount, scalingProfile.Tier)
		result.ChunksAnalyzed = len(loaded)
		result.ChunkLoadFailures = chunkLoadFailures
		result.BatchesProcessed = batchesProcessed
		result.BatchesFailed = batchesFailed
		result.BatchErrors = batchErrors
		return result, nil
	}

	// Collect: stamp document position, filter, and sort deterministically.
	for i := range findings {
		if c, ok := lookup[findings[i].ChunkID]; ok {
			findings[i].BufferID = c.BufferID
			findings[i].ChunkIndex = c.Index
		}
	}
	surviving, filtered := collect(findings, overrides.FindingThreshold)

	result := &QueryResult{
		RequestID:         requestID,
		Tier:              scalingProfile.Tier,
		ChunksAvailable:   len(hits),
		ChunksAnalyzed:    len(loaded),
		FindingsCount:     len(surviving),
		FindingsFiltered:  filtered,
		BatchesProcessed:  batchesProcessed,
		BatchesFailed:     batchesFailed,
		ChunkLoadFailures: chunkLoadFailures,
		BatchErrors:       batchErrors,
	}

	// Synthesize.
	if len(surviving) == 0 {
		result.Report = "No relevant information was found for this question."
		result.Elapsed = time.Since(start)
		return result, nil
	}

	synthResult, err := synthesizer.Synthesize(ctx, cfg.LLM, cfg.SynthesizerConfig, queryText, surviving)
	if err != nil {
		result.SynthesisError = err.Error()
		result.Elapsed = time.Since(start)
		return result, nil
	}

	result.Report = synthResult.Report
	result.TotalTokens += synthResult.TokensUsed
	result.Elapsed = time.Since(start)
	return result, nil
}

func datasetProfile(ctx context.Context, s store.ChunkStore, bufferScope *int64) (scaling.DatasetProfile, int64, error) {
	if bufferScope != nil {
		buf, err := s.GetBuffer(ctx, strconv.FormatInt(*bufferScope, 10))
		if err != nil {
			return scaling.DatasetProfile{}, 0, err
		}
		return scaling.DatasetProfile{ChunkCount: buf.ChunkCount}, buf.ByteSize, nil
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return scaling.DatasetProfile{}, 0, err
	}
	return scaling.DatasetProfile{ChunkCount: stats.Chunks}, stats.Bytes, nil
}

// searchWithFallback tries mode first, then the remaining modes from
// fallbackOrder in order, returning the first non-empty result list
// (§4.4's "this fallback is the Orchestrator's policy, not the
// searcher's"). It never unions results across modes.
func searchWithFallback(ctx context.Context, searcher *hybrid.Searcher, queryText string, mode hybrid.Mode, topK int, threshold float64, bufferScope *int64) ([]hybrid.Result, error) {
	tried := map[hybrid.Mode]bool{}
	order := append([]hybrid.Mode{mode}, fallbackOrder...)

	var lastErr error
	for _, m := range order {
		if tried[m] {
			continue
		}
		tried[m] = true

		hits, err := searcher.Search(ctx, hybrid.Query{
			Text:        queryText,
			Mode:        m,
			TopK:        topK,
			Threshold:   float32(threshold),
			BufferScope: bufferScope,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func partition(chunks []*store.Chunk, batchSize int) [][]*store.Chunk {
	if batchSize <= 0 {
		batchSize = len(chunks)
		if batchSize == 0 {
			return nil
		}
	}
	var batches [][]*store.Chunk
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[i:end])
	}
	return batches
}

// fanOut runs one extractor task per batch, bounded to concurrency
// simultaneous tasks. All failures are captured per-batch; none abort
// the remaining batches.
func fanOut(ctx context.Context, cfg Config, queryText string, batches [][]*store.Chunk, concurrency int) ([]domain.Finding, []domain.BatchError, int, int) {
	var mu sync.Mutex
	var findings []domain.Finding
	var batchErrors []domain.BatchError
	processed, failed := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			batchCtx, batchSpan := tracer.Start(gctx, "orchestrator.batch", trace.WithAttributes(
				attribute.Int("batch_id", i),
				attribute.Int("chunk_count", len(batch)),
			))
			defer batchSpan.End()

			inputs := make([]extractor.ChunkInput, len(batch))
			for j, c := range batch {
				inputs[j] = extractor.ChunkInput{ChunkID: c.ID, Text: c.Text}
			}

			batchFindings, batchErr := extractor.RunBatch(batchCtx, cfg.LLM, cfg.ExtractorConfig, queryText, inputs)

			mu.Lock()
			defer mu.Unlock()
			if batchErr != nil {
				batchErr.BatchID = i
				batchErrors = append(batchErrors, *batchErr)
				failed++
				batchSpan.RecordError(batchErr)
			} else {
				findings = append(findings, batchFindings...)
				processed++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(batchErrors, func(a, b int) bool { return batchErrors[a].BatchID < batchErrors[b].BatchID })

	return findings, batchErrors, processed, failed
}

// collect drops low-relevance findings and sorts the rest by relevance
// descending, then (buffer_id, chunk_index) ascending (§4.10).
func collect(findings []domain.Finding, threshold domain.Relevance) ([]domain.Finding, int) {
	surviving := make([]domain.Finding, 0, len(findings))
	filtered := 0
	for _, f := range findings {
		if f.Relevance == domain.RelevanceNone || f.Relevance < threshold {
			filtered++
			continue
		}
		surviving = append(surviving, f)
	}

	sort.Slice(surviving, func(i, j int) bool {
		if surviving[i].Relevance != surviving[j].Relevance {
			return surviving[i].Relevance > surviving[j].Relevance
		}
		if surviving[i].BufferID != surviving[j].BufferID {
			return surviving[i].BufferID < surviving[j].BufferID
		}
		return surviving[i].ChunkIndex < surviving[j].ChunkIndex
	})
	return surviving, filtered
}

func cancelledResult(start time.Time, requestID string, chunksAvailable int, tier scaling.Tier) *QueryResult {
	return &QueryResult{
		RequestID:       requestID,
		Tier:            tier,
		ChunksAvailable: chunksAvailable,
		Cancelled:       true,
		Elapsed:         time.Since(start),
	}
}

func resolveString(override *string, planVal, cfgDefault, hardcoded string) string {
	if override != nil && *override != "" {
		return *override
	}
	if planVal != "" {
		return planVal
	}
	if cfgDefault != "" {
		return cfgDefault
	}
	return hardcoded
}

func resolveFloat(override *float64, planVal, cfgDefault, hardcoded float64) float64 {
	if override != nil {
		return *override
	}
	if planVal != 0 {
		return planVal
	}
	if cfgDefault != 0 {
		return cfgDefault
	}
	return hardcoded
}

// resolveIntWithScaling implements the §4.11 chain for fields the
// Scaling Policy recommends a value for (batch_size, top_k, max_chunks,
// concurrency). planVal of 0 means "the Planner didn't set this field"
// (consistent with AnalysisPlan's own omitempty JSON encoding); pass 0
// for fields the Planner doesn't carry (top_k, concurrency).
func resolveIntWithScaling(override *int, planVal, scalingVal, cfgDefault, hardcoded int) int {
	if override != nil {
		return *override
	}
	if planVal != 0 {
		return planVal
	}
	// scalingVal is always applicable once reached; scaling.Unbounded
	// (-1) is itself a meaningful resolved value ("no cap"), not absent.
	if scalingVal != 0 {
		return scalingVal
	}
	if cfgDefault != 0 {
		return cfgDefault
	}
	return hardcoded
}
