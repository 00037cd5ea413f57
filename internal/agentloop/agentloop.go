// Package agentloop drives a multi-turn chat completion over tool calls
// (C6): system+user seed, alternating assistant/tool-response messages,
// terminating on a tool-call-free assistant turn, max turns, or a
// non-retryable provider error.
package agentloop

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/provider"
	"github.com/Aman-CERP/docquery/internal/toolexec"
)

// DefaultMaxTurns bounds the loop when the caller doesn't set one.
const DefaultMaxTurns = 10

var tracer = otel.Tracer("docquery/agentloop")

// Config configures one Run.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	MaxTurns    int
	Tools       *toolexec.Registry // nil disables tool calls
}

// Result is the outcome of a completed loop.
type Result struct {
	RunID      string
	Text       string
	TokensUsed int
	Turns      int
}

// Run executes the loop against llm, starting from systemPrompt and
// userInput, retrying transient provider errors with backoff (§4.6). A
// non-retryable provider error surfaces immediately, with no further
// attempts and no backoff sleep.
func Run(ctx context.Context, llm provider.Provider, cfg Config, systemPrompt, userInput string) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "agentloop.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	messages := []provider.Message{
		{Role: provider.RoleSystem, Text: systemPrompt},
		{Role: provider.RoleUser, Text: userInput},
	}

	var toolSpecs []provider.ToolSpec
	if cfg.Tools != nil {
		for _, t := range cfg.Tools.List() {
			toolSpecs = append(toolSpecs, provider.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
	}

	totalTokens := 0
	retryCfg := engerrors.DefaultRetryConfig()

	for turn := 1; turn <= maxTurns; turn++ {
		turnCtx, turnSpan := tracer.Start(ctx, "agentloop.turn", trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("turn", turn),
		))

		req := provider.Request{
			Model:       cfg.Model,
			Messages:    messages,
			Tools:       toolSpecs,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}

		resp, err := generateWithRetry(turnCtx, llm, req, retryCfg)
		if err != nil {
			turnSpan.RecordError(err)
			turnSpan.End()
			return nil, err
		}
		turnSpan.End()

		totalTokens += resp.TokensUsed
		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return &Result{RunID: runID, Text: resp.Message.Text, TokensUsed: totalTokens, Turns: turn}, nil
		}

		if cfg.Tools == nil {
			return &Result{RunID: runID, Text: resp.Message.Text, TokensUsed: totalTokens, Turns: turn}, nil
		}

		for _, call := range resp.Message.ToolCalls {
			result, toolErr := cfg.Tools.Execute(ctx, call.Name, call.Args)
			var text string
			if toolErr != nil {
				text = fmt.Sprintf("error: %v", toolErr)
			} else {
				text = fmt.Sprintf("%v", result)
			}
			messages = append(messages, provider.Message{Role: provider.RoleTool, Text: text, ToolCallID: call.ID})
		}
	}

	// Reached max turns: return the last assistant text seen, if any.
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == provider.RoleAssistant {
			return &Result{RunID: runID, Text: messages[i].Text, TokensUsed: totalTokens, Turns: maxTurns}, nil
		}
	}
	return &Result{RunID: runID, TokensUsed: totalTokens, Turns: maxTurns}, nil
}

// generateWithRetry calls llm.Generate, retrying transient errors with
// exponential backoff per cfg. It is a thin wrapper over
// engerrors.RetryWithResult with IsRetryable as the retry predicate, so a
// non-retryable error (§7 KindProviderPermanent) returns immediately
// without consuming a retry attempt or sleeping.
func generateWithRetry(ctx context.Context, llm provider.Provider, req provider.Request, cfg engerrors.RetryConfig) (*provider.Response, error) {
	return engerrors.RetryWithResult(ctx, cfg, func() (*provider.Response, error) {
		return llm.Generate(ctx, req)
	}, engerrors.WithRetryable(engerrors.IsRetryable))
}
