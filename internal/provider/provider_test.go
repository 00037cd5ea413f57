package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportsTemperature_RejectsReasoningModels(t *testing.T) {
	cases := []struct {
		model string
		want  bool
	}{
		{"o1-preview", false},
		{"o3-mini", false},
		{"o4-mini", false},
		{"gpt-5", false},
		{"gpt-5-turbo", false},
		{"gpt-4o", true},
		{"gpt-4o-mini", true},
		{"claude-sonnet-4-5-20250929", true},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, SupportsTemperature(c.model), "model=%s", c.model)
	}
}
