package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/llm"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/prompt"
	"github.com/tractionlabs/aigateway/pkg/registry"
	"github.com/tractionlabs/aigateway/pkg/schema"
)

type fakeTopics struct {
	topic   *registry.Topic
	runtime registry.RuntimeConfig
}

func (f *fakeTopics) Get(topicID string) (*registry.Topic, error) {
	if f.topic == nil || f.topic.ID != topicID {
		return nil, apperr.New(apperr.CodeTopicNotFound, "unknown topic %s", topicID)
	}
	return f.topic, nil
}

func (f *fakeTopics) MergedRuntimeConfig(ctx context.Context, topicID string) (registry.RuntimeConfig, error) {
	return f.runtime, nil
}

type fakeEnricher struct {
	context map[string]any
	err     error
}

func (f *fakeEnricher) Enrich(ctx context.Context, topic *registry.Topic, request map[string]any, scope enrich.Scope, conversation map[string]any) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.context, nil
}

type fakeTemplates struct {
	byRole map[models.TemplateRole]string
}

func (f *fakeTemplates) Get(ctx context.Context, topicID string, role models.TemplateRole) (string, error) {
	text, ok := f.byRole[role]
	if !ok {
		return "", apperr.New(apperr.CodeTemplateNotFound, "no %s template for %s", role, topicID)
	}
	return text, nil
}

type fakeInvoker struct {
	responses []*llm.Response
	errs      []error
	calls     []*llm.Request
}

func (f *fakeInvoker) Invoke(ctx context.Context, modelCode string, req *llm.Request, timeout time.Duration) (*llm.Response, error) {
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func alignmentTopic() *registry.Topic {
	return &registry.Topic{
		ID:            "alignment_check",
		Type:          models.TopicTypeSingleShot,
		Category:      models.CategoryStrategicPlanning,
		ResponseModel: "AlignmentCheckResult",
		Active:        true,
	}
}

func newTestExecutor(t *testing.T, invoker *fakeInvoker) *Executor {
	t.Helper()
	schemas, err := schema.NewBuiltinRegistry()
	require.NoError(t, err)

	topics := &fakeTopics{
		topic: alignmentTopic(),
		runtime: registry.RuntimeConfig{
			ModelCode:   "coach-std",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
	}
	templates := &fakeTemplates{byRole: map[models.TemplateRole]string{
		models.RoleSystem: "You are a coach for a {industry} business.",
		models.RoleUser:   "Check goal {goal_title} against the vision.",
	}}
	enricher := &fakeEnricher{context: map[string]any{
		"industry":   "services",
		"goal_title": "Grow revenue",
	}}
	return New(topics, enricher, templates, invoker, schemas, prompt.Render, 30*time.Second)
}

func validAlignment() json.RawMessage {
	return json.RawMessage(`{"aligned":true,"score":82,"rationale":"On track","risks":["capacity"]}`)
}

func TestExecuteHappyPath(t *testing.T) {
	invoker := &fakeInvoker{responses: []*llm.Response{{
		Structured:     validAlignment(),
		FinishReason:   "tool_use",
		TokensUsed:     120,
		ProcessingTime: 800 * time.Millisecond,
	}}}
	e := newTestExecutor(t, invoker)

	result, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1", UserID: "u1"},
		"alignment_check", map[string]any{"goal_id": "g1"})
	require.NoError(t, err)

	assert.Equal(t, "alignment_check", result.TopicID)
	assert.True(t, result.Success)
	assert.Equal(t, "AlignmentCheckResult", result.SchemaRef)
	assert.JSONEq(t, string(validAlignment()), string(result.Data))
	assert.Equal(t, "coach-std", result.Metadata.Model)
	assert.Equal(t, 120, result.Metadata.TokensUsed)
	assert.EqualValues(t, 800, result.Metadata.ProcessingTimeMS)

	require.Len(t, invoker.calls, 1)
	req := invoker.calls[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "You are a coach for a services business.", req.Messages[0].Content)
	assert.Equal(t, "Check goal Grow revenue against the vision.", req.Messages[1].Content)
	require.NotNil(t, req.Schema)
	assert.Equal(t, "AlignmentCheckResult", req.Schema.Name)
}

func TestExecuteUnknownTopic(t *testing.T) {
	e := newTestExecutor(t, &fakeInvoker{})

	_, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "nope", nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeTopicNotFound))
}

func TestExecuteRejectsConversationTopic(t *testing.T) {
	invoker := &fakeInvoker{}
	e := newTestExecutor(t, invoker)
	topic := alignmentTopic()
	topic.Type = models.TopicTypeConversation
	e.topics.(*fakeTopics).topic = topic

	_, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeWrongTopicType))
	assert.Empty(t, invoker.calls)
}

func TestExecuteRepromptsOnInvalidOutput(t *testing.T) {
	invoker := &fakeInvoker{responses: []*llm.Response{
		{Structured: json.RawMessage(`{"aligned":true}`), FinishReason: "tool_use"},
		{Structured: validAlignment(), FinishReason: "tool_use", TokensUsed: 90},
	}}
	e := newTestExecutor(t, invoker)

	result, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, invoker.calls, 2)
	second := invoker.calls[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, llm.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "did not conform")
}

func TestExecuteInvalidOutputTwiceFails(t *testing.T) {
	invoker := &fakeInvoker{responses: []*llm.Response{
		{Structured: json.RawMessage(`{"aligned":true}`)},
		{Structured: json.RawMessage(`{"score":200}`)},
	}}
	e := newTestExecutor(t, invoker)

	_, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeLLMOutputInvalid))
	assert.Len(t, invoker.calls, 2)
}

func TestExecuteRepromptsOnMalformedOutput(t *testing.T) {
	invoker := &fakeInvoker{
		errs: []error{apperr.New(apperr.CodeProviderMalformedOutput, "no structured output")},
		responses: []*llm.Response{
			nil,
			{Structured: validAlignment(), FinishReason: "tool_use"},
		},
	}
	e := newTestExecutor(t, invoker)

	result, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, invoker.calls, 2)
}

func TestExecuteProviderErrorPassesThrough(t *testing.T) {
	invoker := &fakeInvoker{
		errs: []error{apperr.New(apperr.CodeProviderUnavailable, "backend down")},
	}
	e := newTestExecutor(t, invoker)

	_, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderUnavailable))
	assert.Len(t, invoker.calls, 1)
}

func TestExecuteEnrichmentErrorPassesThrough(t *testing.T) {
	invoker := &fakeInvoker{}
	e := newTestExecutor(t, invoker)
	e.enricher.(*fakeEnricher).err = apperr.New(apperr.CodeMissingParameter, "goal_id is required")

	_, err := e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingParameter))
	assert.Empty(t, invoker.calls)
}

// stallingInvoker holds the call open until the context ends, then fails
// the way a provider deadline does.
type stallingInvoker struct{}

func (stallingInvoker) Invoke(ctx context.Context, _ string, _ *llm.Request, _ time.Duration) (*llm.Response, error) {
	<-ctx.Done()
	return nil, apperr.Wrap(apperr.CodeProviderTimeout, ctx.Err(), "model call timed out")
}

func TestExecuteRequestBudgetSurfacesRequestTimeout(t *testing.T) {
	schemas, err := schema.NewBuiltinRegistry()
	require.NoError(t, err)
	topics := &fakeTopics{topic: alignmentTopic(), runtime: registry.RuntimeConfig{ModelCode: "coach-std"}}
	templates := &fakeTemplates{byRole: map[models.TemplateRole]string{
		models.RoleSystem: "system",
		models.RoleUser:   "user",
	}}
	e := New(topics, &fakeEnricher{}, templates, stallingInvoker{}, schemas, prompt.Render, 30*time.Millisecond)

	_, err = e.Execute(context.Background(), enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeRequestTimeout))
}

func TestExecuteCallerDeadlineKeepsProviderCode(t *testing.T) {
	schemas, err := schema.NewBuiltinRegistry()
	require.NoError(t, err)
	topics := &fakeTopics{topic: alignmentTopic(), runtime: registry.RuntimeConfig{ModelCode: "coach-std"}}
	templates := &fakeTemplates{byRole: map[models.TemplateRole]string{
		models.RoleSystem: "system",
		models.RoleUser:   "user",
	}}
	e := New(topics, &fakeEnricher{}, templates, stallingInvoker{}, schemas, prompt.Render, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = e.Execute(ctx, enrich.Scope{TenantID: "t1"}, "alignment_check", nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderTimeout),
		"the caller's own deadline is not the processing budget")
}
