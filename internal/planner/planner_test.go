package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/provider"
)

type fakeProvider struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Text: f.text}}, nil
}

func TestPlan_ParsesWellFormedJSON(t *testing.T) {
	llm := &fakeProvider{text: `{"search_mode":"semantic","batch_size":5,"focus_areas":["pricing"]}`}

	plan := Plan(context.Background(), llm, Config{Model: "m"}, Input{Query: "what is the price?", ChunkCount: 42})
	assert.Equal(t, "semantic", plan.SearchMode)
	assert.Equal(t, 5, plan.BatchSize)
	assert.Equal(t, []string{"pricing"}, plan.FocusAreas)
}

func TestPlan_TolersProseWrappedJSON(t *testing.T) {
	llm := &fakeProvider{text: "Sure, here's the plan:\n```json\n{\"search_mode\":\"lexical\"}\n```\nLet me know if that helps!"}

	plan := Plan(context.Background(), llm, Config{Model: "m"}, Input{Query: "q"})
	assert.Equal(t, "lexical", plan.SearchMode)
}

func TestPlan_DefaultsOnProviderError(t *testing.T) {
	llm := &fakeProvider{err: engerrors.ProviderPermanentError("boom", nil)}

	plan := Plan(context.Background(), llm, Config{Model: "m"}, Input{Query: "q"})
	assert.Equal(t, "hybrid", plan.SearchMode)
	assert.Empty(t, plan.FocusAreas)
}

func TestPlan_DefaultsOnMalformedJSON(t *testing.T) {
	llm := &fakeProvider{text: "not json at all"}

	plan := Plan(context.Background(), llm, Config{Model: "m"}, Input{Query: "q"})
	assert.Equal(t, "hybrid", plan.SearchMode)
}

func TestPlan_DefaultsOnUnknownSearchMode(t *testing.T) {
	llm := &fakeProvider{text: `{"search_mode":"fulltext"}`}

	plan := Plan(context.Background(), llm, Config{Model: "m"}, Input{Query: "q"})
	require.Equal(t, "hybrid", plan.SearchMode)
}
