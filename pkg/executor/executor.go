// Package executor runs the single-shot pipeline shared by the synchronous
// endpoint and the async job workers: resolve topic, enrich parameters,
// render templates, invoke the model, validate the structured output.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/llm"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/registry"
)

// correctiveInstruction is appended as an extra system message on the one
// re-prompt allowed after the model returns output that fails validation.
const correctiveInstruction = "Your previous answer did not conform to the required output schema. " +
	"Respond again, strictly following the schema. Do not include any text outside the structured result."

// TopicResolver is the registry slice the executor needs.
type TopicResolver interface {
	Get(topicID string) (*registry.Topic, error)
	MergedRuntimeConfig(ctx context.Context, topicID string) (registry.RuntimeConfig, error)
}

// ParamEnricher resolves a topic's template parameters.
type ParamEnricher interface {
	Enrich(ctx context.Context, topic *registry.Topic, request map[string]any, scope enrich.Scope, conversation map[string]any) (map[string]any, error)
}

// TemplateSource loads active template text by topic and role.
type TemplateSource interface {
	Get(ctx context.Context, topicID string, role models.TemplateRole) (string, error)
}

// ModelInvoker is the LLM client slice the executor needs.
type ModelInvoker interface {
	Invoke(ctx context.Context, modelCode string, req *llm.Request, timeout time.Duration) (*llm.Response, error)
}

// OutputValidator checks structured output against a response model and
// exports its JSON Schema document.
type OutputValidator interface {
	Validate(name string, value any) error
	JSONSchema(name string) (map[string]any, error)
}

// Renderer substitutes placeholders in template text.
type Renderer func(template string, context map[string]any) (string, error)

// Metadata describes how a result was produced.
type Metadata struct {
	Model            string `json:"model"`
	TokensUsed       int    `json:"tokens_used"`
	TokensEstimated  bool   `json:"tokens_estimated,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	FinishReason     string `json:"finish_reason"`
}

// Result is the single-shot response envelope.
type Result struct {
	TopicID   string          `json:"topic_id"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	SchemaRef string          `json:"schema_ref"`
	Metadata  Metadata        `json:"metadata"`
}

// Executor wires the pipeline stages together.
type Executor struct {
	topics         TopicResolver
	enricher       ParamEnricher
	templates      TemplateSource
	invoker        ModelInvoker
	validator      OutputValidator
	render         Renderer
	requestTimeout time.Duration
	logger         *slog.Logger
}

// New builds an executor. requestTimeout bounds the whole pipeline for one
// request; zero disables the bound (async workers apply their own cap).
func New(topics TopicResolver, enricher ParamEnricher, templates TemplateSource,
	invoker ModelInvoker, validator OutputValidator, render Renderer, requestTimeout time.Duration) *Executor {
	return &Executor{
		topics:         topics,
		enricher:       enricher,
		templates:      templates,
		invoker:        invoker,
		validator:      validator,
		render:         render,
		requestTimeout: requestTimeout,
		logger:         slog.Default(),
	}
}

// Execute runs the full single-shot pipeline for one request. Expiry of
// the executor's own request budget surfaces as RequestTimeout; deadlines
// the caller brought along keep their own classification.
func (e *Executor) Execute(ctx context.Context, scope enrich.Scope, topicID string, parameters map[string]any) (*Result, error) {
	if e.requestTimeout <= 0 {
		return e.run(ctx, scope, topicID, parameters)
	}

	budgetCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	result, err := e.run(budgetCtx, scope, topicID, parameters)
	if err != nil &&
		errors.Is(budgetCtx.Err(), context.DeadlineExceeded) &&
		!errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, apperr.Wrap(apperr.CodeRequestTimeout, err,
			"request exceeded the %s processing budget", e.requestTimeout)
	}
	return result, err
}

func (e *Executor) run(ctx context.Context, scope enrich.Scope, topicID string, parameters map[string]any) (*Result, error) {
	topic, err := e.topics.Get(topicID)
	if err != nil {
		return nil, err
	}
	if topic.Type == models.TopicTypeConversation {
		return nil, apperr.New(apperr.CodeWrongTopicType,
			"topic %s is a coaching conversation; use the coaching endpoints", topicID).WithName(topicID)
	}

	runtime, err := e.topics.MergedRuntimeConfig(ctx, topicID)
	if err != nil {
		return nil, err
	}

	enriched, err := e.enricher.Enrich(ctx, topic, parameters, scope, nil)
	if err != nil {
		return nil, err
	}

	systemText, err := e.templates.Get(ctx, topicID, models.RoleSystem)
	if err != nil {
		return nil, err
	}
	userText, err := e.templates.Get(ctx, topicID, models.RoleUser)
	if err != nil {
		return nil, err
	}
	systemMsg, err := e.render(systemText, enriched)
	if err != nil {
		return nil, err
	}
	userMsg, err := e.render(userText, enriched)
	if err != nil {
		return nil, err
	}

	doc, err := e.validator.JSONSchema(topic.ResponseModel)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternalError, err,
			"response model %s is not registered", topic.ResponseModel)
	}

	req := &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemMsg},
			{Role: llm.RoleUser, Content: userMsg},
		},
		Temperature: runtime.Temperature,
		MaxTokens:   runtime.MaxTokens,
		Schema:      &llm.SchemaSpec{Name: topic.ResponseModel, Document: doc},
	}

	resp, data, err := e.invokeValidated(ctx, topic, runtime, req)
	if err != nil {
		return nil, err
	}

	return &Result{
		TopicID:   topicID,
		Success:   true,
		Data:      data,
		SchemaRef: topic.ResponseModel,
		Metadata: Metadata{
			Model:            runtime.ModelCode,
			TokensUsed:       resp.TokensUsed,
			TokensEstimated:  resp.TokensEstimated,
			ProcessingTimeMS: resp.ProcessingTime.Milliseconds(),
			FinishReason:     resp.FinishReason,
		},
	}, nil
}

// invokeValidated calls the model and validates the structured output.
// Output that fails validation earns exactly one corrective re-prompt;
// a second failure surfaces as the validation error.
func (e *Executor) invokeValidated(ctx context.Context, topic *registry.Topic,
	runtime registry.RuntimeConfig, req *llm.Request) (*llm.Response, json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := e.invoker.Invoke(ctx, runtime.ModelCode, req, runtime.Timeout)
		if err != nil {
			if attempt == 1 && apperr.HasCode(err, apperr.CodeProviderMalformedOutput) {
				lastErr = err
				req = withCorrective(req)
				continue
			}
			return nil, nil, err
		}

		data, verr := e.validateOutput(topic.ResponseModel, resp.Structured)
		if verr == nil {
			return resp, data, nil
		}
		lastErr = verr
		if attempt == 1 {
			e.logger.Warn("model output failed validation, re-prompting",
				"topic_id", topic.ID, "response_model", topic.ResponseModel)
			req = withCorrective(req)
		}
	}
	return nil, nil, lastErr
}

func (e *Executor) validateOutput(responseModel string, raw json.RawMessage) (json.RawMessage, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderMalformedOutput, err,
			"model output is not valid JSON for schema %s", responseModel)
	}
	if err := e.validator.Validate(responseModel, value); err != nil {
		return nil, err
	}
	return raw, nil
}

// withCorrective returns a copy of the request with the corrective
// instruction appended as an extra system message.
func withCorrective(req *llm.Request) *llm.Request {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: correctiveInstruction})
	next := *req
	next.Messages = messages
	return &next
}
