// Package provider defines the chat-completions model-provider interface
// (§6) and its concrete Anthropic/OpenAI implementations, used by the
// Agent Loop (C6) to drive the Planner, Extractor, and Synthesizer agents.
package provider

import "context"

// Role is a chat message's role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Message is one chat turn. ToolCallID is set on RoleTool messages to
// correlate the response with the ToolCall that requested it.
type Message struct {
	Role       Role
	Text       string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolSpec describes one tool available for the model to call, in the
// provider-agnostic JSON-schema shape toolexec.Tool.Parameters already
// produces.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one chat-completion call.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64 // ignored by models that reject custom temperatures, see SupportsTemperature
	MaxTokens   int64
}

// Response is one chat-completion result.
type Response struct {
	Message    Message
	TokensUsed int
}

// Provider is a chat-completions model backend with optional tool calls.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	// Name identifies the provider for logging and model-identifier routing.
	Name() string
}

// SupportsTemperature reports whether model accepts a custom temperature
// parameter. Some reasoning-tier models (OpenAI's o-series, gpt-5 family)
// reject it and must be called without the field set at all (§4.6).
func SupportsTemperature(model string) bool {
	for _, prefix := range noTemperaturePrefixes {
		if hasPrefix(model, prefix) {
			return false
		}
	}
	return true
}

var noTemperaturePrefixes = []string{"o1", "o3", "o4", "gpt-5"}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
