package provider

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// OpenAIProvider implements Provider over the OpenAI Chat Completions API.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client openai.Client
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAI builds an OpenAI-backed Provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{cfg: cfg, client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Text))
		case RoleAssistant:
			assistantMsg := openai.AssistantMessage(m.Text)
			if len(m.ToolCalls) > 0 && assistantMsg.OfAssistant != nil {
				assistantMsg.OfAssistant.ToolCalls = encodeToolCalls(m.ToolCalls)
			}
			messages = append(messages, assistantMsg)
		case RoleTool:
			messages = append(messages, openai.ToolMessage(m.Text, m.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if SupportsTemperature(model) && req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(maxTokens)
	}
	if len(req.Tools) > 0 {
		params.Tools = make([]openai.ChatCompletionToolUnionParam, len(req.Tools))
		for i, t := range req.Tools {
			params.Tools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  t.Parameters,
			})
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, engerrors.ProviderTransientError("openai chat.completions.new failed", err)
	}
	if len(completion.Choices) == 0 {
		return nil, engerrors.ProviderPermanentError("openai returned no choices", nil)
	}

	choice := completion.Choices[0]
	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, engerrors.ParseErrorf("failed to decode openai tool call arguments: %v", err)
		}
		toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	return &Response{
		Message:    Message{Role: RoleAssistant, Text: choice.Message.Content, ToolCalls: toolCalls},
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

func encodeToolCalls(calls []ToolCall) []openai.ChatCompletionMessageToolCallUnionParam {
	out := make([]openai.ChatCompletionMessageToolCallUnionParam, len(calls))
	for i, c := range calls {
		argsJSON, _ := json.Marshal(c.Args)
		out[i] = openai.ChatCompletionMessageFunctionToolCallParam{
			ID: c.ID,
			Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
				Name:      c.Name,
				Arguments: string(argsJSON),
			},
		}.AsAny()
	}
	return out
}
