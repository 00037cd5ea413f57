// Package lexical ranks chunks by BM25 over their text content (C2),
// staying in sync with chunk inserts/deletes in the same transaction as the
// chunk store's writer.
package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

const (
	tokenizerName = "docquery_tokenizer"
	stopFilterName = "docquery_stop"
	analyzerName   = "docquery_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(tokenizerName, tokenizerConstructor)
	_ = registry.RegisterTokenFilter(stopFilterName, stopFilterConstructor)
}

// Entry is one chunk's text, keyed by chunk id (as a string for Bleve's
// document-id API).
type Entry struct {
	ChunkID int64
	Text    string
}

// Result is a single lexical search hit, highest score first, strictly positive.
type Result struct {
	ChunkID      int64
	Score        float64
	MatchedTerms []string
}

// Index provides keyword search over chunk text using BM25-style scoring.
type Index interface {
	Put(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, queryText string, limit int) ([]Result, error)
	Delete(ctx context.Context, chunkIDs []int64) error
	Close() error
}

// BleveIndex wraps Bleve v2 for BM25-scored keyword search. Queries are
// issued through bleve.NewMatchQuery, which treats its input as plain text —
// no query-syntax characters (AND/OR/wildcards/field selectors) are parsed
// out of user input, satisfying the escape-before-matching requirement.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

var _ Index = (*BleveIndex)(nil)

// Open creates or opens a Bleve index at path. An empty path opens an
// in-memory index, used by tests.
func Open(path string) (*BleveIndex, error) {
	indexMapping, err := buildMapping()
	if err != nil {
		return nil, engerrors.InternalError("failed to build lexical index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return nil, engerrors.StoreError(fmt.Sprintf("cannot create directory for lexical index %s", path), mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, engerrors.StoreError("failed to open lexical index", err)
	}

	return &BleveIndex{index: idx}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": tokenizerName,
		"token_filters": []string{
			lowercase.Name,
			stopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = analyzerName
	return im, nil
}

type bleveDoc struct {
	Content string `json:"content"`
}

// Put adds or replaces lexical entries for the given chunks, atomically as a batch.
func (b *BleveIndex) Put(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(chunkDocID(e.ChunkID), bleveDoc{Content: e.Text}); err != nil {
			return engerrors.StoreError(fmt.Sprintf("failed to index chunk %d", e.ChunkID), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return engerrors.StoreError("failed to commit lexical batch", err)
	}
	return nil
}

// Search returns chunks whose text matches queryText, scored by BM25.
// Multi-term queries use OR semantics (forgiving recall, per the matcher's default).
func (b *BleveIndex) Search(ctx context.Context, queryText string, limit int) ([]Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if strings.TrimSpace(queryText) == "" {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(queryText)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, engerrors.StoreError("lexical search failed", err)
	}

	out := make([]Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, ok := chunkIDFromDocID(hit.ID)
		if !ok {
			continue
		}
		out = append(out, Result{
			ChunkID:      id,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return out, nil
}

// Delete removes lexical entries for the given chunk ids.
func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(chunkDocID(id))
	}
	if err := b.index.Batch(batch); err != nil {
		return engerrors.StoreError("failed to delete lexical entries", err)
	}
	return nil
}

// Close releases index resources.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

func chunkDocID(id int64) string {
	return fmt.Sprintf("chunk-%d", id)
}

func chunkIDFromDocID(docID string) (int64, bool) {
	var id int64
	n, err := fmt.Sscanf(docID, "chunk-%d", &id)
	return id, err == nil && n == 1
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	return out
}

type codeTokenizer struct{}

func tokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{}, nil
}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func stopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
