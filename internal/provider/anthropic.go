package provider

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// AnthropicProvider implements Provider over the Anthropic Messages API.
type AnthropicProvider struct {
	cfg    AnthropicConfig
	client anthropic.Client
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropic builds an Anthropic-backed Provider.
func NewAnthropic(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{cfg: cfg, client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate issues one Messages.New call and translates the result back
// into the provider-agnostic Response shape.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	var systemPrompts []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			systemPrompts = append(systemPrompts, m.Text)
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		case RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Text, false),
			))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(req.MaxTokens, p.cfg.MaxTokens),
	}
	if len(systemPrompts) > 0 {
		text := systemPrompts[0]
		for _, s := range systemPrompts[1:] {
			text += "\n" + s
		}
		params.System = []anthropic.TextBlockParam{{Text: text}}
	}
	if SupportsTemperature(model) && req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = make([]anthropic.ToolUnionParam, len(req.Tools))
		for i, t := range req.Tools {
			params.Tools[i] = anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        t.Name,
					Description: anthropic.String(t.Description),
					InputSchema: schemaFromParameters(t.Parameters),
				},
			}
		}
	}

	apiMsg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, engerrors.ProviderTransientError("anthropic messages.new failed", err)
	}

	var text string
	var toolCalls []ToolCall
	for _, block := range apiMsg.Content {
		switch block.Type {
		case "text":
			text = block.Text
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err != nil {
				return nil, engerrors.ParseErrorf("failed to decode anthropic tool_use input: %v", err)
			}
			toolCalls = append(toolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}

	return &Response{
		Message:    Message{Role: RoleAssistant, Text: text, ToolCalls: toolCalls},
		TokensUsed: int(apiMsg.Usage.InputTokens + apiMsg.Usage.OutputTokens),
	}, nil
}

func maxTokensOrDefault(requested, fallback int64) int64 {
	if requested > 0 {
		return requested
	}
	return fallback
}

func schemaFromParameters(params map[string]any) anthropic.ToolInputSchemaParam {
	properties, _ := params["properties"].(map[string]any)
	return anthropic.ToolInputSchemaParam{Properties: properties}
}
