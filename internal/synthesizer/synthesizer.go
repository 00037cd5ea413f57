// Package synthesizer is the Synthesizer Agent (C9): a tool-using agent
// driven by the Agent Loop over the Tool Executor, merging surviving
// findings into a free-form report. Unlike the Planner and Extractor, it
// runs multiple turns and may call tools to verify quotes or retrieve
// additional chunks.
package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/docquery/internal/agentloop"
	"github.com/Aman-CERP/docquery/internal/domain"
	"github.com/Aman-CERP/docquery/internal/provider"
	"github.com/Aman-CERP/docquery/internal/toolexec"
)

const systemPrompt = `You are the synthesis stage of a document question-answering pipeline.
You are given a question and a set of findings gathered from a document
set, each tied to a chunk id and a relevance level. Write a clear report
answering the question, grounded in the findings. You may call any
available tool to verify a quote, search for content the findings may
have missed, or retrieve a chunk by id. Findings are the authoritative
input; chunk content retrieved via tools is supporting context only.`

// DefaultTemperature is low but non-zero: the report should stay
// grounded in the findings while still reading as prose, not a list
// (§4.9: "Temperature is low but non-zero to allow narrative variation").
const DefaultTemperature = 0.2

// Config configures the underlying model call.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	MaxTurns    int
	Tools       *toolexec.Registry
}

// Result is the synthesizer's output.
type Result struct {
	Report     string
	TokensUsed int
}

// Synthesize runs the synthesizer's tool loop over the findings and
// returns the report. A provider error here is surfaced to the caller
// (§4.9, §4.12: "Synthesize failure after findings are gathered still
// surfaces a QueryResult without a report").
func Synthesize(ctx context.Context, llm provider.Provider, cfg Config, query string, findings []domain.Finding) (*Result, error) {
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	userMsg := buildUserMessage(query, findings)

	loopResult, err := agentloop.Run(ctx, llm, agentloop.Config{
		Model:       cfg.Model,
		Temperature: temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxTurns:    cfg.MaxTurns,
		Tools:       cfg.Tools,
	}, systemPrompt, userMsg)
	if err != nil {
		return nil, err
	}

	return &Result{Report: loopResult.Text, TokensUsed: loopResult.TokensUsed}, nil
}

func buildUserMessage(query string, findings []domain.Finding) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nFindings:\n\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- chunk %d (relevance: %s)", f.ChunkID, f.Relevance)
		if f.Summary != "" {
			fmt.Fprintf(&b, ": %s", f.Summary)
		}
		b.WriteString("\n")
		for _, e := range f.Evidence {
			fmt.Fprintf(&b, "  evidence: %s\n", e)
		}
		for _, fu := range f.FollowUps {
			fmt.Fprintf(&b, "  follow-up: %s\n", fu)
		}
	}
	return b.String()
}
