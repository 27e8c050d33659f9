package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tractionlabs/aigateway/pkg/apperr"
)

// ChatCompleter is the slice of the OpenAI client the provider needs;
// satisfied by *openai.Client and by test fakes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider calls any chat-completions compatible endpoint: the
// hosted OpenAI API or a local runtime exposed through a base URL.
// Structured output uses response_format json_schema.
type OpenAIProvider struct {
	client  ChatCompleter
	modelID string
	name    string
}

// NewOpenAIProvider builds a provider against the hosted API or, when
// baseURL is set, a compatible local endpoint.
func NewOpenAIProvider(apiKey, modelID, baseURL, name string) (*OpenAIProvider, error) {
	if modelID == "" {
		return nil, errors.New("openai model identifier is required")
	}
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("openai api key is required")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		modelID: modelID,
		name:    name,
	}, nil
}

// NewOpenAIProviderFromClient wires an existing client (tests).
func NewOpenAIProviderFromClient(client ChatCompleter, modelID, name string) *OpenAIProvider {
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{client: client, modelID: modelID, name: name}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Invoke implements Provider.
func (p *OpenAIProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	completion, err := p.client.CreateChatCompletion(ctx, *chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, apperr.New(apperr.CodeProviderMalformedOutput, "model returned no choices")
	}

	choice := completion.Choices[0]
	resp := &Response{
		FinishReason:   string(choice.FinishReason),
		ProcessingTime: time.Since(start),
	}
	if req.Schema != nil {
		content := choice.Message.Content
		if !json.Valid([]byte(content)) {
			return nil, apperr.New(apperr.CodeProviderMalformedOutput,
				"model output is not valid JSON for schema %s", req.Schema.Name)
		}
		resp.Structured = json.RawMessage(content)
	} else {
		resp.Text = choice.Message.Content
	}

	resolveUsage(resp, completion.Usage.TotalTokens)
	return resp, nil
}

func (p *OpenAIProvider) buildRequest(req *Request) (*openai.ChatCompletionRequest, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.Schema != nil {
		doc, err := json.Marshal(req.Schema.Document)
		if err != nil {
			return nil, err
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: json.RawMessage(doc),
				Strict: false,
			},
		}
	}
	return &chatReq, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.CodeProviderTimeout, err, "chat completion timed out")
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return apperr.Wrap(apperr.CodeProviderRateLimited, err, "chat completion rate limited")
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return apperr.Wrap(apperr.CodeProviderRefused, err, "chat completion rejected")
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return apperr.Wrap(apperr.CodeProviderUnavailable, err,
				"chat completion returned HTTP %d", apiErr.HTTPStatusCode)
		}
	}
	return apperr.Wrap(apperr.CodeProviderUnavailable, err, "chat completion failed")
}
