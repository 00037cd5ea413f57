package chunkspan

import (
	"strings"
	"testing"
)

func TestSplitFixed_NeverSplitsAMultiByteRune(t *testing.T) {
	content := "héllo" // h, é (2 bytes), l, l, o — 6 bytes total
	spans, err := Split(content, StrategyFixed, 4, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rebuilt strings.Builder
	for _, s := range spans {
		rebuilt.WriteString(s.Text)
		if !strings.Contains(content, s.Text) {
			t.Fatalf("span text %q not a substring of content", s.Text)
		}
	}
	if rebuilt.String() != content {
		t.Fatalf("rebuilt = %q, want %q", rebuilt.String(), content)
	}

	for _, s := range spans {
		if strings.Count(s.Text, "é") == 0 && strings.Contains(content[s.Start:s.End], "\xc3") && !strings.Contains(content[s.Start:s.End], "é") {
			t.Fatalf("span %+v split the é code point", s)
		}
	}
}

func TestSplitFixed_BoundariesAndTextAreConsistent(t *testing.T) {
	content := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	spans, err := Split(content, StrategyFixed, 64, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) < 2 {
		t.Fatalf("expected multiple spans, got %d", len(spans))
	}

	for i, s := range spans {
		if s.Index != i {
			t.Fatalf("span %d has Index %d", i, s.Index)
		}
		if s.Start < 0 || s.End > len(content) || s.Start >= s.End {
			t.Fatalf("span %d has invalid range [%d,%d)", i, s.Start, s.End)
		}
		if content[s.Start:s.End] != s.Text {
			t.Fatalf("span %d text mismatch: got %q, want %q", i, s.Text, content[s.Start:s.End])
		}
	}
	if spans[0].Overlap {
		t.Fatalf("first span should not be marked as overlap")
	}
	if len(spans) > 1 && !spans[1].Overlap {
		t.Fatalf("second span should be marked as overlap when overlap > 0")
	}
	last := spans[len(spans)-1]
	if last.End != len(content) {
		t.Fatalf("last span end = %d, want %d", last.End, len(content))
	}
}

func TestSplitParagraph_OneChunkPerParagraphWhenUnderBudget(t *testing.T) {
	content := "first paragraph.\n\nsecond paragraph.\n\nthird paragraph."
	spans, err := Split(content, StrategyParagraph, 4096, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("expected 3 paragraph spans, got %d: %+v", len(spans), spans)
	}
	for i, s := range spans {
		if content[s.Start:s.End] != s.Text {
			t.Fatalf("span %d text mismatch", i)
		}
		if strings.Contains(s.Text, "\n\n") {
			t.Fatalf("span %d should not span a paragraph break: %q", i, s.Text)
		}
	}
}

func TestSplitParagraph_FallsBackToFixedForOversizedParagraph(t *testing.T) {
	big := strings.Repeat("word ", 200)
	content := "short.\n\n" + big
	spans, err := Split(content, StrategyParagraph, 128, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) < 3 {
		t.Fatalf("expected the oversized paragraph to be split into multiple chunks, got %d spans", len(spans))
	}
	for _, s := range spans {
		if len(s.Text) > 128+16 {
			t.Fatalf("span exceeds chunk size budget: %d bytes", len(s.Text))
		}
	}
}

func TestSplit_EmptyContentReturnsNoSpans(t *testing.T) {
	spans, err := Split("", StrategyFixed, 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("expected no spans for empty content, got %d", len(spans))
	}
}

func TestSplit_RejectsUnknownStrategy(t *testing.T) {
	_, err := Split("hello", Strategy("unknown"), 10, 0)
	if err == nil {
		t.Fatalf("expected an error for an unknown strategy")
	}
}

func TestSplit_ClampsOverlapSmallerThanChunkSize(t *testing.T) {
	spans, err := Split(strings.Repeat("x", 100), StrategyFixed, 10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) == 0 {
		t.Fatalf("expected spans to be produced despite overlap == chunkSize")
	}
}

func TestSpan_ContentHashIsDeterministic(t *testing.T) {
	spans1, _ := Split("hello world", StrategyFixed, 5, 0)
	spans2, _ := Split("hello world", StrategyFixed, 5, 0)
	if len(spans1) != len(spans2) {
		t.Fatalf("expected deterministic span count")
	}
	for i := range spans1 {
		if spans1[i].ContentHash != spans2[i].ContentHash {
			t.Fatalf("hash mismatch at span %d", i)
		}
		if spans1[i].ContentHash == "" {
			t.Fatalf("content hash should not be empty")
		}
	}
}
