package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/docquery/internal/agentloop"
	"github.com/Aman-CERP/docquery/internal/config"
	"github.com/Aman-CERP/docquery/internal/embed"
	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/extractor"
	"github.com/Aman-CERP/docquery/internal/hybrid"
	"github.com/Aman-CERP/docquery/internal/lexical"
	"github.com/Aman-CERP/docquery/internal/orchestrator"
	"github.com/Aman-CERP/docquery/internal/planner"
	"github.com/Aman-CERP/docquery/internal/provider"
	"github.com/Aman-CERP/docquery/internal/store"
	"github.com/Aman-CERP/docquery/internal/synthesizer"
	"github.com/Aman-CERP/docquery/internal/toolexec"
	"github.com/Aman-CERP/docquery/internal/vector"
)

// dataDirName is the project-local directory holding the chunk store and
// lexical index when the config doesn't name an explicit path.
const dataDirName = ".docquery"

// engine bundles the dependencies every subcommand needs: the store, the
// hybrid searcher built over it, and the tool registry the agents call
// into. Built once per invocation by newEngine.
type engine struct {
	cfg      *config.Config
	store    store.ChunkStore
	lex      lexical.Index
	vec      vector.Index
	embedder embed.Embedder
	searcher *hybrid.Searcher
	tools    *toolexec.Registry
	llm      provider.Provider
}

// newEngine loads configuration for the working directory, opens the
// chunk store and lexical index (creating them under .docquery/ if no
// explicit path is configured), and rebuilds the in-memory vector index
// from the store's persisted embeddings. The vector index is a derived
// structure, not a second source of truth: the store's embeddings table
// is what survives between invocations.
func newEngine(ctx context.Context) (*engine, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	cfg, err := config.Load(wd)
	if err != nil {
		return nil, err
	}

	storePath := cfg.Store.Path
	lexPath := ""
	if storePath == "" {
		dataDir := filepath.Join(wd, dataDirName)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		storePath = filepath.Join(dataDir, "chunks.db")
		lexPath = filepath.Join(dataDir, "lexical")
	}

	cs, err := store.NewSQLiteChunkStore(storePath)
	if err != nil {
		return nil, err
	}
	if err := cs.Init(ctx); err != nil {
		_ = cs.Close()
		return nil, err
	}

	lex, err := lexical.Open(lexPath)
	if err != nil {
		_ = cs.Close()
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		_ = cs.Close()
		_ = lex.Close()
		return nil, err
	}

	vec, err := rebuildVectorIndex(ctx, cs, embedder)
	if err != nil {
		_ = cs.Close()
		_ = lex.Close()
		return nil, err
	}

	searcher := hybrid.New(lex, vec, embedder, hybrid.WithRRFConstant(cfg.Search.RRFConstant))

	tools := toolexec.NewRegistry()
	toolexec.RegisterStandardTools(tools, cs, searcher)
	tools.SetLimits(toolexec.Limits{
		MaxArgsPayloadBytes: cfg.Tool.MaxArgsPayloadBytes,
		MaxChunkIDs:         cfg.Tool.MaxChunkIDs,
		MaxTopK:             cfg.Tool.MaxTopK,
		MaxRegexBytes:       cfg.Tool.MaxRegexBytes,
		MaxGrepContextLines: cfg.Tool.MaxGrepContextLines,
	})

	llm := newProvider(cfg.Agent.Provider)

	return &engine{
		cfg:      cfg,
		store:    cs,
		lex:      lex,
		vec:      vec,
		embedder: embedder,
		searcher: searcher,
		tools:    tools,
		llm:      llm,
	}, nil
}

// rebuildVectorIndex reads every chunk's embedding for the active model
// out of the store and loads it into a fresh in-memory vector.Index.
// Chunks that haven't been embedded yet (or were embedded under a
// different model) are simply absent from the index until embed_buffer
// runs for them.
func rebuildVectorIndex(ctx context.Context, cs store.ChunkStore, embedder embed.Embedder) (vector.Index, error) {
	dims := embedder.Dimensions()
	model := embedder.ModelName()

	buffers, err := cs.ListBuffers(ctx)
	if err != nil {
		return nil, err
	}

	var entries []vector.Entry
	for _, b := range buffers {
		chunks, err := cs.ListChunks(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			emb, err := cs.GetEmbedding(ctx, c.ID, model)
			if err != nil {
				continue
			}
			entries = append(entries, vector.Entry{ChunkID: c.ID, BufferID: b.ID, Vector: emb.Vector})
		}
	}

	idx := vector.NewAuto(vector.DefaultConfig(dims), len(entries))
	if len(entries) > 0 {
		if err := idx.Add(ctx, entries); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// newProvider builds the LLM backing the Planner, Extractor, and
// Synthesizer agents (C7-C9) from an agent.provider config name. API
// keys are read from the provider SDKs' own environment variables
// (ANTHROPIC_API_KEY, OPENAI_API_KEY); docquery never handles them
// directly. The result is wrapped in a circuit breaker so that a
// provider failing under the concurrent load of an orchestrator fan-out
// (§8) trips and fails fast rather than letting every batch queue up
// against it.
func newProvider(name string) provider.Provider {
	var p provider.Provider
	switch name {
	case "openai":
		p = provider.NewOpenAI(provider.OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		})
	default:
		p = provider.NewAnthropic(provider.AnthropicConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
		})
	}
	cb := engerrors.NewCircuitBreaker(p.Name(),
		engerrors.WithMaxFailures(5),
		engerrors.WithResetTimeout(30*time.Second))
	return provider.WithCircuitBreaker(p, cb)
}

// orchestratorConfig assembles an orchestrator.Config from the engine and
// loaded agent configuration.
func (e *engine) orchestratorConfig() orchestrator.Config {
	a := e.cfg.Agent
	return orchestrator.Config{
		Store:    e.store,
		Searcher: e.searcher,
		Tools:    e.tools,
		LLM:      e.llm,
		PlannerConfig: planner.Config{
			Model:       a.PlannerModel,
			Temperature: a.Temperature,
			MaxTokens:   a.MaxTokens,
		},
		ExtractorConfig: extractor.Config{
			Model:       a.ExtractorModel,
			Temperature: a.Temperature,
			MaxTokens:   a.MaxTokens,
		},
		SynthesizerConfig: synthesizer.Config{
			Model:       a.SynthesizerModel,
			Temperature: a.Temperature,
			MaxTokens:   a.MaxTokens,
			MaxTurns:    agentMaxTurns(a.MaxTurns),
			Tools:       e.tools,
		},
		Defaults: orchestrator.Defaults{
			SearchMode:  e.cfg.Scaling.DefaultSearchMode,
			BatchSize:   e.cfg.Scaling.DefaultBatchSize,
			Threshold:   e.cfg.Scaling.DefaultThreshold,
			TopK:        e.cfg.Scaling.DefaultTopK,
			MaxChunks:   e.cfg.Scaling.DefaultMaxChunks,
			Concurrency: e.cfg.Scaling.DefaultConcurrency,
		},
		ConcurrencyCeiling: e.cfg.Scaling.ConcurrencyCeiling,
	}
}

func agentMaxTurns(configured int) int {
	if configured > 0 {
		return configured
	}
	return agentloop.DefaultMaxTurns
}

// Close releases the store, lexical index, and vector index.
func (e *engine) Close() {
	_ = e.vec.Close()
	_ = e.lex.Close()
	_ = e.store.Close()
}
