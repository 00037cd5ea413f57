package synthesizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docquery/internal/domain"
	"github.com/Aman-CERP/docquery/internal/provider"
	"github.com/Aman-CERP/docquery/internal/toolexec"
)

type fakeProvider struct {
	responses []*provider.Response
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func TestSynthesize_ReturnsReportWhenNoToolCalls(t *testing.T) {
	llm := &fakeProvider{responses: []*provider.Response{
		{Message: provider.Message{Role: provider.RoleAssistant, Text: "## Report\nPricing is $10/mo."}, TokensUsed: 20},
	}}

	findings := []domain.Finding{{ChunkID: 1, Relevance: domain.RelevanceHigh, Summary: "mentions pricing"}}
	result, err := Synthesize(context.Background(), llm, Config{Model: "m"}, "what is the price?", findings)
	require.NoError(t, err)
	assert.Contains(t, result.Report, "Pricing")
	assert.Equal(t, 20, result.TokensUsed)
}

func TestSynthesize_UsesToolsWhenAttached(t *testing.T) {
	reg := toolexec.NewRegistry()
	reg.Register(&toolexec.Tool{
		Name:       "get_chunks",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "chunk text", nil
		},
	})

	llm := &fakeProvider{responses: []*provider.Response{
		{
			Message: provider.Message{
				Role: provider.RoleAssistant,
				ToolCalls: []provider.ToolCall{
					{ID: "c1", Name: "get_chunks", Args: map[string]any{"chunk_ids": []any{1}}},
				},
			},
		},
		{Message: provider.Message{Role: provider.RoleAssistant, Text: "verified report"}},
	}}

	findings := []domain.Finding{{ChunkID: 1, Relevance: domain.RelevanceMedium}}
	result, err := Synthesize(context.Background(), llm, Config{Model: "m", Tools: reg, MaxTurns: 5}, "q", findings)
	require.NoError(t, err)
	assert.Equal(t, "verified report", result.Report)
	assert.Equal(t, 2, llm.calls)
}

func TestSynthesize_DefaultTemperatureIsLowButNonZero(t *testing.T) {
	assert.Greater(t, DefaultTemperature, 0.0)
	assert.Less(t, DefaultTemperature, 0.5)
}
