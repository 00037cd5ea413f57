// Package planner is the Planner Agent (C7): a single-shot, tool-free
// call that turns a query plus buffer statistics into an advisory
// AnalysisPlan. It is the Agent Loop configured with no tools and a
// one-turn budget.
package planner

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Aman-CERP/docquery/internal/agentloop"
	"github.com/Aman-CERP/docquery/internal/domain"
	"github.com/Aman-CERP/docquery/internal/provider"
)

const systemPrompt = `You are the planning stage of a document question-answering pipeline.
Given a user's question and statistics about the document set, choose a
retrieval strategy. Respond with a single JSON object and nothing else:

{
  "search_mode": "hybrid" | "semantic" | "lexical",
  "batch_size": <positive integer, omit if unsure>,
  "threshold": <float in [0,1], omit if unsure>,
  "focus_areas": [<1 to 5 short strings>],
  "max_chunks": <non-negative integer, 0 means unlimited, omit if unsure>
}

Omit any field you are not confident about; downstream defaults will fill
it in. Do not include any text before or after the JSON object.`

// Input describes the query and the buffer statistics visible to the planner.
type Input struct {
	Query       string
	ChunkCount  int
	ContentType string
	TotalBytes  int64
}

// Config configures the underlying model call.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Plan asks the model for an AnalysisPlan. On any provider or parse
// failure it returns domain.DefaultPlan() instead — the planner is
// advisory (§4.7), never fatal to the query pipeline.
func Plan(ctx context.Context, llm provider.Provider, cfg Config, in Input) domain.AnalysisPlan {
	userMsg := buildUserMessage(in)

	result, err := agentloop.Run(ctx, llm, agentloop.Config{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxTurns:    1,
	}, systemPrompt, userMsg)
	if err != nil {
		return domain.DefaultPlan()
	}

	plan, ok := parsePlan(result.Text)
	if !ok {
		return domain.DefaultPlan()
	}
	return plan
}

func buildUserMessage(in Input) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(in.Query)
	b.WriteString("\n\nDocument set stats:\n")
	b.WriteString("chunk_count: ")
	b.WriteString(strconv.Itoa(in.ChunkCount))
	b.WriteString("\ntotal_bytes: ")
	b.WriteString(strconv.FormatInt(in.TotalBytes, 10))
	if in.ContentType != "" {
		b.WriteString("\ncontent_type: ")
		b.WriteString(in.ContentType)
	}
	return b.String()
}

// parsePlan extracts the first JSON object found in text. Models
// occasionally wrap their JSON in prose or a code fence despite
// instructions not to; this tolerates the common cases without treating
// well-formed bare JSON any differently.
func parsePlan(text string) (domain.AnalysisPlan, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return domain.AnalysisPlan{}, false
	}

	var plan domain.AnalysisPlan
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil {
		return domain.AnalysisPlan{}, false
	}
	if plan.SearchMode != "hybrid" && plan.SearchMode != "semantic" && plan.SearchMode != "lexical" {
		return domain.AnalysisPlan{}, false
	}
	return plan, true
}
