package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/tractionlabs/aigateway/pkg/apperr"
)

// ConverseAPI is the subset of the Bedrock runtime client the provider
// uses; satisfied by *bedrockruntime.Client and by test fakes.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider serves Anthropic models through the managed runtime's
// Converse API. Structured output uses a forced tool whose input schema is
// the response model.
type BedrockProvider struct {
	runtime ConverseAPI
	modelID string
}

// NewBedrockProvider builds the managed-runtime provider. Credentials come
// from the default AWS chain; region may be overridden per model.
func NewBedrockProvider(ctx context.Context, modelID, region string) (*BedrockProvider, error) {
	if modelID == "" {
		return nil, errors.New("bedrock model identifier is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return &BedrockProvider{
		runtime: bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
	}, nil
}

// NewBedrockProviderFromClient wires an existing runtime client (tests).
func NewBedrockProviderFromClient(runtime ConverseAPI, modelID string) *BedrockProvider {
	return &BedrockProvider{runtime: runtime, modelID: modelID}
}

// Name implements Provider.
func (p *BedrockProvider) Name() string { return "anthropic_on_managed_runtime" }

// Invoke implements Provider.
func (p *BedrockProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	input, err := p.buildInput(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	output, err := p.runtime.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	resp := &Response{
		FinishReason:   string(output.StopReason),
		ProcessingTime: time.Since(start),
	}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Text += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				if v.Value.Input != nil {
					if data, err := v.Value.Input.MarshalSmithyDocument(); err == nil {
						resp.Structured = json.RawMessage(data)
					}
				}
			}
		}
	}

	if req.Schema != nil && len(resp.Structured) == 0 {
		return nil, apperr.New(apperr.CodeProviderMalformedOutput,
			"model produced no structured output for schema %s", req.Schema.Name)
	}

	var reported int
	if usage := output.Usage; usage != nil && usage.TotalTokens != nil {
		reported = int(*usage.TotalTokens)
	}
	resolveUsage(resp, reported)
	return resp, nil
}

func (p *BedrockProvider) buildInput(req *Request) (*bedrockruntime.ConverseInput, error) {
	msgs, system, err := splitMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	conversation := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		role := brtypes.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.modelID),
		Messages: conversation,
	}
	if system != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: system},
		}
	}

	cfg := brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		cfg.Temperature = aws.Float32(float32(req.Temperature))
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil {
		input.InferenceConfig = &cfg
	}

	if req.Schema != nil {
		var doc any = req.Schema.Document
		spec := brtypes.ToolSpecification{
			Name:        aws.String(resultToolName),
			Description: aws.String("Record the structured result of the analysis."),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(&doc)},
		}
		input.ToolConfig = &brtypes.ToolConfiguration{
			Tools: []brtypes.Tool{&brtypes.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &brtypes.ToolChoiceMemberTool{
				Value: brtypes.SpecificToolChoice{Name: aws.String(resultToolName)},
			},
		}
	}
	return input, nil
}

func classifyBedrockError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.CodeProviderTimeout, err, "managed runtime call timed out")
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return apperr.Wrap(apperr.CodeProviderRateLimited, err, "managed runtime rate limited")
		case "ValidationException":
			return apperr.Wrap(apperr.CodeProviderRefused, err, "managed runtime rejected the request")
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.HTTPStatusCode() == http.StatusTooManyRequests:
			return apperr.Wrap(apperr.CodeProviderRateLimited, err, "managed runtime rate limited")
		case respErr.HTTPStatusCode() == http.StatusBadRequest:
			return apperr.Wrap(apperr.CodeProviderRefused, err, "managed runtime rejected the request")
		}
	}
	return apperr.Wrap(apperr.CodeProviderUnavailable, err, "managed runtime call failed")
}
