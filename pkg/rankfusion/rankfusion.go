// Package rankfusion implements Reciprocal Rank Fusion over any number of
// ranked id lists, independent of what produced the rankings (BM25, vector
// similarity, or anything else).
package rankfusion

import "sort"

// DefaultConstant is the RRF smoothing constant k used when a caller
// doesn't override it. 60 is the de facto standard value from the original
// RRF paper and the teacher's pkg/searcher/fusion.go default.
const DefaultConstant = 60

// RankedList is one source's results, in rank order (best first), keyed by
// an opaque int64 id.
type RankedList []int64

// Fuse computes fused(id) = Σ_i weight_i / (k + rank_i(id) + 1) across
// lists, where rank_i(id) is id's 0-indexed position in lists[i]. An id
// absent from a list contributes nothing from that list. weights may be
// nil or shorter than lists, in which case missing entries default to 1.0.
func Fuse(constant int, lists []RankedList, weights []float64) map[int64]float64 {
	if constant <= 0 {
		constant = DefaultConstant
	}

	scores := make(map[int64]float64)
	for i, list := range lists {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		for rank, id := range list {
			scores[id] += w / float64(constant+rank+1)
		}
	}
	return scores
}

// Sorted returns scores' keys ordered by descending fused score, ties
// broken by ascending id for determinism.
func Sorted(scores map[int64]float64) []int64 {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
