// Package chunkspan splits a buffer's byte content into chunks by byte
// range, never splitting a UTF-8 code point. It implements the chunking
// contract from §3: `0 ≤ start < end ≤ size`, index in document order,
// byte boundaries fall on valid rune boundaries.
package chunkspan

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// Strategy names a chunking strategy. Only the two below are implemented;
// spec.md puts chunking-strategy internals beyond the byte-range contract
// out of scope, so there is no symbol-aware or header-aware strategy here.
type Strategy string

const (
	StrategyFixed     Strategy = "fixed"
	StrategyParagraph Strategy = "paragraph"
)

// DefaultChunkSize and DefaultOverlap mirror the teacher's markdown/code
// chunker defaults (512 tokens at ~4 bytes/token, ~12.5% overlap),
// expressed here in bytes since this package has no tokenizer.
const (
	DefaultChunkSize = 2048
	DefaultOverlap   = 256
	tokensPerByte    = 4 // approx bytes per token, matches teacher's estimateTokens
)

// Span is one chunk's byte range, text, and chunking metadata, ready to
// become a store.Chunk once a buffer id and index base are assigned.
type Span struct {
	Index       int
	Start       int
	End         int
	Text        string
	Strategy    string
	TokenCount  int
	Overlap     bool
	ContentHash string
}

// Split divides content into spans using the named strategy. chunkSize and
// overlap are both in bytes; non-positive chunkSize falls back to
// DefaultChunkSize, negative overlap to 0, and overlap ≥ chunkSize is
// clamped to half the chunk size so the sliding window always advances.
func Split(content string, strategy Strategy, chunkSize, overlap int) ([]Span, error) {
	if content == "" {
		return nil, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}

	switch strategy {
	case StrategyFixed, "":
		return splitFixed(content, chunkSize, overlap), nil
	case StrategyParagraph:
		return splitParagraph(content, chunkSize, overlap), nil
	default:
		return nil, engerrors.ValidationError("unknown chunking strategy: "+string(strategy), nil)
	}
}

// splitFixed slides a fixed-size window over content, snapping every
// boundary forward to the next rune start so a multi-byte code point is
// never split across two chunks (§8 scenario 5).
func splitFixed(content string, chunkSize, overlap int) []Span {
	n := len(content)
	var spans []Span
	start := 0
	index := 0

	for start < n {
		end := start + chunkSize
		if end >= n {
			end = n
		} else {
			end = snapToRuneBoundary(content, end)
		}

		spans = append(spans, newSpan(index, start, end, content[start:end], StrategyFixed, start > 0 && overlap > 0))
		index++

		if end >= n {
			break
		}
		next := snapToRuneBoundary(content, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// splitParagraph chunks on blank-line boundaries, falling back to fixed
// splitting for any paragraph that alone exceeds chunkSize, following the
// teacher's markdown chunker's section-too-large fallback.
func splitParagraph(content string, chunkSize, overlap int) []Span {
	paragraphs := paragraphRanges(content)
	var spans []Span
	index := 0

	for _, p := range paragraphs {
		text := content[p.start:p.end]
		if len(text) <= chunkSize {
			spans = append(spans, newSpan(index, p.start, p.end, text, StrategyParagraph, false))
			index++
			continue
		}
		for _, sub := range splitFixed(text, chunkSize, overlap) {
			spans = append(spans, newSpan(index, p.start+sub.Start, p.start+sub.End, sub.Text, StrategyParagraph, sub.Overlap))
			index++
		}
	}

	if len(spans) == 0 {
		spans = splitFixed(content, chunkSize, overlap)
	}
	return spans
}

type byteRange struct{ start, end int }

// paragraphRanges finds maximal runs of non-blank-line-separated text,
// i.e. content split on one or more blank lines, as byte ranges into the
// original content so chunk boundaries stay exact offsets.
func paragraphRanges(content string) []byteRange {
	var ranges []byteRange
	start := 0
	i := 0
	n := len(content)

	for i < n {
		idx := strings.Index(content[i:], "\n\n")
		if idx < 0 {
			break
		}
		sepStart := i + idx
		sepEnd := sepStart + 2
		for sepEnd < n && content[sepEnd] == '\n' {
			sepEnd++
		}
		if trimmed := strings.TrimSpace(content[start:sepStart]); trimmed != "" {
			ranges = append(ranges, byteRange{start, sepStart})
		}
		start = sepEnd
		i = sepEnd
	}
	if trimmed := strings.TrimSpace(content[start:n]); trimmed != "" {
		ranges = append(ranges, byteRange{start, n})
	}
	return ranges
}

func newSpan(index, start, end int, text string, strategy Strategy, overlap bool) Span {
	return Span{
		Index:       index,
		Start:       start,
		End:         end,
		Text:        text,
		Strategy:    string(strategy),
		TokenCount:  estimateTokens(text),
		Overlap:     overlap,
		ContentHash: hashText(text),
	}
}

// snapToRuneBoundary advances pos to the next byte that starts a rune (or
// to len(s)), never backing up, so a boundary never lands inside a
// multi-byte UTF-8 sequence.
func snapToRuneBoundary(s string, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(s) {
		return len(s)
	}
	for pos < len(s) && !utf8.RuneStart(s[pos]) {
		pos++
	}
	return pos
}

func estimateTokens(text string) int {
	return len(text) / tokensPerByte
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
