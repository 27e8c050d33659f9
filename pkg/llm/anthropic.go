package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tractionlabs/aigateway/pkg/apperr"
)

// resultToolName is the synthetic tool used to force structured output out
// of the Messages API.
const resultToolName = "record_result"

// AnthropicProvider calls the Anthropic Messages API directly. Structured
// output is obtained by advertising a single tool whose input schema is
// the response model and forcing the model to call it.
type AnthropicProvider struct {
	client  sdk.Client
	modelID string
}

// NewAnthropicProvider creates a direct Anthropic provider. baseURL is
// optional and covers proxy setups.
func NewAnthropicProvider(apiKey, modelID, baseURL string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if modelID == "" {
		return nil, errors.New("anthropic model identifier is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client:  sdk.NewClient(opts...),
		modelID: modelID,
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Invoke implements Provider.
func (p *AnthropicProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, *params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	resp := &Response{
		FinishReason:   string(msg.StopReason),
		ProcessingTime: time.Since(start),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.Structured = block.Input
		}
	}

	if req.Schema != nil && len(resp.Structured) == 0 {
		return nil, apperr.New(apperr.CodeProviderMalformedOutput,
			"model produced no structured output for schema %s", req.Schema.Name)
	}

	resolveUsage(resp, int(msg.Usage.InputTokens+msg.Usage.OutputTokens))
	return resp, nil
}

func (p *AnthropicProvider) buildParams(req *Request) (*sdk.MessageNewParams, error) {
	msgs, system, err := splitMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	conversation := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.modelID),
		MaxTokens: int64(req.MaxTokens),
		Messages:  conversation,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.Schema != nil {
		tool := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{
			ExtraFields: req.Schema.Document,
		}, resultToolName)
		if tool.OfTool != nil {
			tool.OfTool.Description = sdk.String("Record the structured result of the analysis.")
		}
		params.Tools = []sdk.ToolUnionParam{tool}
		params.ToolChoice = sdk.ToolChoiceParamOfTool(resultToolName)
	}
	return &params, nil
}

// splitMessages separates system text from the conversation; Anthropic
// carries system prompts outside the message list.
func splitMessages(messages []Message) ([]Message, string, error) {
	var (
		conversation []Message
		system       string
	)
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		conversation = append(conversation, m)
	}
	if len(conversation) == 0 {
		return nil, "", errors.New("at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func classifyAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.CodeProviderTimeout, err, "anthropic call timed out")
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return apperr.Wrap(apperr.CodeProviderRateLimited, err, "anthropic rate limited")
		case apiErr.StatusCode == http.StatusBadRequest:
			return apperr.Wrap(apperr.CodeProviderRefused, err, "anthropic rejected the request")
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return apperr.Wrap(apperr.CodeProviderUnavailable, err,
				"anthropic returned HTTP %d", apiErr.StatusCode)
		}
	}
	return apperr.Wrap(apperr.CodeProviderUnavailable, err, "anthropic call failed")
}
