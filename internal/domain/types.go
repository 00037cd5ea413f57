// Package domain holds the data model shared across the query pipeline
// (C7-C11): the Planner's AnalysisPlan, the Extractor's Finding and
// BatchError, and the relevance ordering used to filter and sort them.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Relevance is a total order: None < Low < Medium < High < Critical.
type Relevance int

const (
	RelevanceNone Relevance = iota
	RelevanceLow
	RelevanceMedium
	RelevanceHigh
	RelevanceCritical
)

// ParseRelevance converts a case-insensitive relevance string. An unknown
// value yields RelevanceNone, since an extractor's confused output should
// degrade gracefully rather than abort the batch.
func ParseRelevance(s string) Relevance {
	switch strings.ToLower(s) {
	case "low":
		return RelevanceLow
	case "medium":
		return RelevanceMedium
	case "high":
		return RelevanceHigh
	case "critical":
		return RelevanceCritical
	default:
		return RelevanceNone
	}
}

func (r Relevance) String() string {
	switch r {
	case RelevanceLow:
		return "low"
	case RelevanceMedium:
		return "medium"
	case RelevanceHigh:
		return "high"
	case RelevanceCritical:
		return "critical"
	default:
		return "none"
	}
}

// AnalysisPlan is the Planner's advisory output (§4.7). All optional
// fields default downstream in the parameter resolution chain (§4.11);
// a zero-value AnalysisPlan is a valid "use the defaults" plan.
type AnalysisPlan struct {
	SearchMode string   `json:"search_mode"` // "hybrid" | "semantic" | "lexical"
	BatchSize  int      `json:"batch_size,omitempty"`
	Threshold  float64  `json:"threshold,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`
	MaxChunks  int      `json:"max_chunks,omitempty"`
}

// DefaultPlan is the plan used when planning is skipped or fails (§4.7:
// "on parse failure or error, return AnalysisPlan defaults").
func DefaultPlan() AnalysisPlan {
	return AnalysisPlan{SearchMode: "hybrid"}
}

// Finding is an extractor's structured report about one chunk (§3).
type Finding struct {
	ChunkID   int64     `json:"chunk_id"`
	Relevance Relevance `json:"-"`
	Evidence  []string  `json:"evidence,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	FollowUps []string  `json:"follow_ups,omitempty"`

	// BufferID/ChunkIndex are stamped in during Collect, from the
	// lookup table built during LoadChunks — not produced by the
	// extractor itself.
	BufferID   int64 `json:"-"`
	ChunkIndex int   `json:"-"`
}

// findingWire is the JSON shape the extractor is asked to emit; Relevance
// travels as a string on the wire but as an ordered Relevance in memory.
type findingWire struct {
	ChunkID   int64    `json:"chunk_id"`
	Relevance string   `json:"relevance"`
	Evidence  []string `json:"evidence,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	FollowUps []string `json:"follow_ups,omitempty"`
}

// ParseFindingsJSON decodes the extractor's JSON array output and checks
// it against the batch's expected chunk ids (§4.8: "a JSON array whose
// length equals the input batch size"). Any mismatch is a parse error,
// which the caller turns into a BatchError rather than a fatal failure.
func ParseFindingsJSON(raw []byte, expectedChunkIDs []int64) ([]Finding, error) {
	var wire []findingWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode findings array: %w", err)
	}
	if len(wire) != len(expectedChunkIDs) {
		return nil, fmt.Errorf("expected %d findings, got %d", len(expectedChunkIDs), len(wire))
	}

	expected := make(map[int64]bool, len(expectedChunkIDs))
	for _, id := range expectedChunkIDs {
		expected[id] = true
	}

	findings := make([]Finding, len(wire))
	for i, w := range wire {
		if !expected[w.ChunkID] {
			return nil, fmt.Errorf("finding references chunk %d outside the batch", w.ChunkID)
		}
		findings[i] = Finding{
			ChunkID:   w.ChunkID,
			Relevance: ParseRelevance(w.Relevance),
			Evidence:  w.Evidence,
			Summary:   w.Summary,
			FollowUps: w.FollowUps,
		}
	}
	return findings, nil
}

// BatchError replaces a batch's result when extraction fails outright
// (parse error, provider error, or a batch exceeding its token budget).
// The orchestrator counts it and continues with the remaining batches.
// BatchID is the batch's position in the FanOut partition, not its
// completion order, so batch_errors[n].batch_id stays stable regardless
// of which goroutine finishes first.
type BatchError struct {
	BatchID  int     `json:"batch_id"`
	ChunkIDs []int64 `json:"chunk_ids"`
	Reason   string  `json:"reason"`
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d of %d chunks failed: %s", e.BatchID, len(e.ChunkIDs), e.Reason)
}
