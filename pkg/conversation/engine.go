// Package conversation runs the multi-turn coaching session engine: the
// session state machine, per-session message serialization, the final
// result extraction pass, and the expiry sweep.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/llm"
	"github.com/tractionlabs/aigateway/pkg/metrics"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/registry"
)

// coachTurnModel is the response model every conversational turn is
// validated against.
const coachTurnModel = "CoachTurn"

const defaultMaxTurns = 10

// Synthetic user prompts for the turns the user does not author.
const (
	openingKickoff = "Begin the session with your opening coaching question."
	resumeKickoff  = "I'm back and would like to continue where we left off."
)

const extractionInstruction = "The coaching conversation has concluded. " +
	"From the conversation so far, produce the final structured result for this session. " +
	"Respond only with the structured result."

const correctiveInstruction = "Your previous answer did not conform to the required output schema. " +
	"Respond again, strictly following the schema. Do not include any text outside the structured result."

// TopicResolver is the registry slice the engine needs.
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

// ModelInvoker is the LLM client slice the engine needs.
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

// EventSink publishes terminal coaching envelopes. Satisfied by
// *events.Publisher.
type EventSink interface {
	PublishCoachingEvent(ctx context.Context, session *models.Session, errorCode string) error
}

// CheckResult is the session availability report for a (tenant, topic).
type CheckResult struct {
	TopicID        string               `json:"topic_id"`
	HasSession     bool                 `json:"has_session"`
	SessionID      string               `json:"session_id,omitempty"`
	Status         models.SessionStatus `json:"status,omitempty"`
	ActualStatus   models.SessionStatus `json:"actual_status,omitempty"`
	IsIdle         bool                 `json:"is_idle,omitempty"`
	Turn           int                  `json:"turn,omitempty"`
	MaxTurns       int                  `json:"max_turns,omitempty"`
	Conflict       bool                 `json:"conflict,omitempty"`
	ConflictUserID string               `json:"conflict_user_id,omitempty"`
}

// coachTurn is the structured shape of one conversational reply.
type coachTurn struct {
	Message string `json:"message"`
	IsFinal bool   `json:"is_final"`
}

// Engine drives coaching sessions through their state machine.
type Engine struct {
	store     *Store
	topics    TopicResolver
	enricher  ParamEnricher
	templates TemplateSource
	invoker   ModelInvoker
	validator OutputValidator
	render    Renderer
	publisher EventSink
	config    *config.SessionsConfig
	locks     *keyedMutex
	logger    *slog.Logger
}

// NewEngine builds the session engine. publisher may be nil (events
// disabled).
func NewEngine(store *Store, topics TopicResolver, enricher ParamEnricher,
	templates TemplateSource, invoker ModelInvoker, validator OutputValidator,
	render Renderer, publisher EventSink, cfg *config.SessionsConfig) *Engine {
	return &Engine{
		store:     store,
		topics:    topics,
		enricher:  enricher,
		templates: templates,
		invoker:   invoker,
		validator: validator,
		render:    render,
		publisher: publisher,
		config:    cfg,
		locks:     newKeyedMutex(),
		logger:    slog.Default(),
	}
}

// Check reports whether the tenant already has a session on the topic and
// whether it belongs to the caller. Active sessions past the idle timeout
// read as paused without changing stored state.
func (e *Engine) Check(ctx context.Context, scope enrich.Scope, topicID string) (*CheckResult, error) {
	topic, err := e.conversationTopic(topicID)
	if err != nil {
		return nil, err
	}

	open, err := e.store.FindOpen(ctx, scope.TenantID, topicID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return &CheckResult{TopicID: topicID, HasSession: false}, nil
	}

	if open.UserID != scope.UserID {
		return &CheckResult{
			TopicID:        topicID,
			Conflict:       true,
			ConflictUserID: open.UserID,
		}, nil
	}

	idle := e.idleTimeout(ctx, topic)
	now := time.Now()
	return &CheckResult{
		TopicID:      topicID,
		HasSession:   true,
		SessionID:    open.ID,
		Status:       open.ComputedStatus(idle, now),
		ActualStatus: open.Status,
		IsIdle:       open.IsIdle(idle, now),
		Turn:         open.Turn,
		MaxTurns:     open.MaxTurns,
	}, nil
}

// Start creates a new session, superseding the caller's existing open
// session for the topic. Another user's open session blocks the start.
func (e *Engine) Start(ctx context.Context, scope enrich.Scope, topicID string, contextParams map[string]any) (*models.Session, error) {
	topic, err := e.conversationTopic(topicID)
	if err != nil {
		return nil, err
	}
	runtime, err := e.topics.MergedRuntimeConfig(ctx, topicID)
	if err != nil {
		return nil, err
	}

	open, err := e.store.FindOpen(ctx, scope.TenantID, topicID)
	if err != nil {
		return nil, err
	}
	if open != nil && open.UserID != scope.UserID {
		return nil, sessionConflict(topicID, open.UserID)
	}

	enriched, err := e.enricher.Enrich(ctx, topic, contextParams, scope, nil)
	if err != nil {
		return nil, err
	}
	templateText, err := e.templates.Get(ctx, topicID, models.RoleInitiation)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := e.render(templateText, enriched)
	if err != nil {
		return nil, err
	}

	turn, err := e.invokeCoachTurn(ctx, runtime, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: openingKickoff},
	})
	if err != nil {
		return nil, err
	}

	maxTurns := runtime.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	now := time.Now()
	session := &models.Session{
		ID:       uuid.NewString(),
		TenantID: scope.TenantID,
		UserID:   scope.UserID,
		TopicID:  topicID,
		Status:   models.SessionStatusActive,
		Turn:     1,
		MaxTurns: maxTurns,
		Messages: []models.Message{
			{Role: models.MessageRoleSystem, Content: systemPrompt, Timestamp: now},
			{Role: models.MessageRoleAssistant, Content: turn.Message, Timestamp: now},
		},
		Context:   contextParams,
		ExpiresAt: now.Add(e.config.TTL),
	}

	if err := e.store.Start(ctx, session); err != nil {
		if errors.Is(err, ErrOpenSessionExists) {
			holder, ferr := e.store.FindOpen(ctx, scope.TenantID, topicID)
			if ferr == nil && holder != nil {
				return nil, sessionConflict(topicID, holder.UserID)
			}
			return nil, sessionConflict(topicID, "")
		}
		return nil, err
	}

	metrics.ActiveSessions.Inc()
	if open != nil {
		// The superseded session was cancelled inside Start's transaction.
		metrics.ActiveSessions.Dec()
	}

	e.logger.Info("coaching session started",
		"session_id", session.ID, "tenant_id", session.TenantID, "topic_id", topicID)
	return session, nil
}

// Resume reactivates the caller's session with a welcome-back message
// built from the RESUME template and a conversation summary. Resuming an
// already-active session is a no-op on state.
func (e *Engine) Resume(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	release := e.locks.lock(sessionID)
	defer release()

	session, err := e.loadOwned(ctx, scope, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, notActive(session)
	}
	if session.IsExpired(time.Now()) {
		return nil, apperr.New(apperr.CodeSessionExpired, "session %s has expired", sessionID)
	}

	topic, err := e.conversationTopic(session.TopicID)
	if err != nil {
		return nil, err
	}
	runtime, err := e.topics.MergedRuntimeConfig(ctx, session.TopicID)
	if err != nil {
		return nil, err
	}

	enriched, err := e.enricher.Enrich(ctx, topic, session.Context, scope, summaryPayload(session))
	if err != nil {
		return nil, err
	}
	templateText, err := e.templates.Get(ctx, session.TopicID, models.RoleResume)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := e.render(templateText, enriched)
	if err != nil {
		return nil, err
	}

	turn, err := e.invokeCoachTurn(ctx, runtime, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: resumeKickoff},
	})
	if err != nil {
		return nil, err
	}

	expected := session.UpdatedAt
	now := time.Now()
	session.Status = models.SessionStatusActive
	session.LastActivityAt = now
	session.Messages = append(session.Messages, models.Message{
		Role: models.MessageRoleAssistant, Content: turn.Message, Timestamp: now,
	})
	if err := e.store.Update(ctx, session, expected); err != nil {
		return nil, err
	}
	return session, nil
}

// Message appends a user turn, generates the coach's reply, and advances
// the state machine. Explicitly paused sessions reject messages; idle
// active sessions accept them.
func (e *Engine) Message(ctx context.Context, scope enrich.Scope, sessionID, userMessage string) (*models.Session, error) {
	release := e.locks.lock(sessionID)
	defer release()

	session, err := e.loadOwned(ctx, scope, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, notActive(session)
	}
	if session.IsExpired(time.Now()) {
		return nil, apperr.New(apperr.CodeSessionExpired, "session %s has expired", sessionID)
	}
	if session.Turn >= session.MaxTurns {
		return nil, apperr.New(apperr.CodeMaxTurnsReached,
			"session %s already used all %d turns", sessionID, session.MaxTurns)
	}

	topic, err := e.conversationTopic(session.TopicID)
	if err != nil {
		return nil, err
	}
	runtime, err := e.topics.MergedRuntimeConfig(ctx, session.TopicID)
	if err != nil {
		return nil, err
	}

	expected := session.UpdatedAt
	now := time.Now()
	session.Messages = append(session.Messages, models.Message{
		Role: models.MessageRoleUser, Content: userMessage, Timestamp: now,
	})

	turn, err := e.invokeCoachTurn(ctx, runtime, historyMessages(session, ""))
	if err != nil {
		return nil, err
	}

	session.Messages = append(session.Messages, models.Message{
		Role: models.MessageRoleAssistant, Content: turn.Message, Timestamp: time.Now(),
	})
	session.Turn++
	session.LastActivityAt = time.Now()

	if turn.IsFinal || session.Turn >= session.MaxTurns {
		if err := e.finalize(ctx, session, topic, runtime, expected); err != nil {
			return nil, err
		}
		return session, nil
	}

	if err := e.store.Update(ctx, session, expected); err != nil {
		return nil, err
	}
	return session, nil
}

// Pause moves an active session to paused. Idempotent on paused.
func (e *Engine) Pause(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	release := e.locks.lock(sessionID)
	defer release()

	session, err := e.loadOwned(ctx, scope, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusPaused {
		return session, nil
	}
	if session.Status != models.SessionStatusActive {
		return nil, notActive(session)
	}

	expected := session.UpdatedAt
	session.Status = models.SessionStatusPaused
	session.LastActivityAt = time.Now()
	if err := e.store.Update(ctx, session, expected); err != nil {
		return nil, err
	}
	return session, nil
}

// Complete runs the final extraction pass and moves the session to
// completed. A repeated extraction failure moves it to failed instead.
func (e *Engine) Complete(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	release := e.locks.lock(sessionID)
	defer release()

	session, err := e.loadOwned(ctx, scope, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, notActive(session)
	}

	topic, err := e.conversationTopic(session.TopicID)
	if err != nil {
		return nil, err
	}
	runtime, err := e.topics.MergedRuntimeConfig(ctx, session.TopicID)
	if err != nil {
		return nil, err
	}

	if err := e.finalize(ctx, session, topic, runtime, session.UpdatedAt); err != nil {
		return nil, err
	}
	return session, nil
}

// Cancel moves any non-terminal session to cancelled.
func (e *Engine) Cancel(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	release := e.locks.lock(sessionID)
	defer release()

	session, err := e.loadOwned(ctx, scope, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, notActive(session)
	}

	expected := session.UpdatedAt
	session.Status = models.SessionStatusCancelled
	session.LastActivityAt = time.Now()
	if err := e.store.Update(ctx, session, expected); err != nil {
		return nil, err
	}
	metrics.ActiveSessions.Dec()
	e.logger.Info("coaching session cancelled", "session_id", session.ID)
	return session, nil
}

// Get returns the caller's session.
func (e *Engine) Get(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	return e.loadOwned(ctx, scope, sessionID)
}

// List returns the caller's sessions, newest first.
func (e *Engine) List(ctx context.Context, scope enrich.Scope, includeCompleted bool, limit int) ([]*models.Session, error) {
	return e.store.List(ctx, scope.TenantID, scope.UserID, includeCompleted, limit)
}

// finalize runs the extraction pass and persists the terminal state in a
// single conditional write, then publishes the coaching event.
func (e *Engine) finalize(ctx context.Context, session *models.Session,
	topic *registry.Topic, runtime registry.RuntimeConfig, expected time.Time) error {
	raw, err := e.invokeStructured(ctx, runtime, extractionMessages(session), topic.ResponseModel)
	now := time.Now()

	if err != nil {
		// Only output that still fails validation after the corrective
		// re-prompt is a terminal failure. A transient provider fault
		// surfaces to the caller and leaves the session open for another
		// completion attempt.
		if !extractionFailure(err) {
			return err
		}
		session.LastActivityAt = now
		session.Status = models.SessionStatusFailed
		if uerr := e.store.Update(ctx, session, expected); uerr != nil {
			return uerr
		}
		metrics.ActiveSessions.Dec()
		e.publishTerminal(session, string(apperr.CodeExtractionFailed))
		return apperr.Wrap(apperr.CodeExtractionFailed, err,
			"could not extract a valid %s result for session %s", topic.ResponseModel, session.ID)
	}
	session.LastActivityAt = now

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return apperr.Wrap(apperr.CodeInternalError, err, "decode extraction result")
	}
	session.Status = models.SessionStatusCompleted
	session.Result = result
	if err := e.store.Update(ctx, session, expected); err != nil {
		return err
	}
	metrics.ActiveSessions.Dec()
	e.publishTerminal(session, "")

	e.logger.Info("coaching session completed",
		"session_id", session.ID, "topic_id", session.TopicID, "turns", session.Turn)
	return nil
}

// extractionFailure reports whether an invokeStructured error means the
// model's output was unusable, as opposed to the call itself failing.
func extractionFailure(err error) bool {
	return apperr.HasCode(err, apperr.CodeLLMOutputInvalid) ||
		apperr.HasCode(err, apperr.CodeProviderMalformedOutput)
}

func (e *Engine) publishTerminal(session *models.Session, errorCode string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishCoachingEvent(context.Background(), session, errorCode); err != nil {
		e.logger.Warn("failed to publish coaching event", "session_id", session.ID, "error", err)
	}
}

// invokeCoachTurn invokes the model for one conversational reply.
func (e *Engine) invokeCoachTurn(ctx context.Context, runtime registry.RuntimeConfig, messages []llm.Message) (*coachTurn, error) {
	raw, err := e.invokeStructured(ctx, runtime, messages, coachTurnModel)
	if err != nil {
		return nil, err
	}
	var turn coachTurn
	if err := json.Unmarshal(raw, &turn); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternalError, err, "decode coach turn")
	}
	return &turn, nil
}

// invokeStructured calls the model and validates the structured output
// against the response model. Output that fails validation earns exactly
// one corrective re-prompt.
func (e *Engine) invokeStructured(ctx context.Context, runtime registry.RuntimeConfig,
	messages []llm.Message, responseModel string) (json.RawMessage, error) {
	doc, err := e.validator.JSONSchema(responseModel)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternalError, err,
			"response model %s is not registered", responseModel)
	}
	req := &llm.Request{
		Messages:    messages,
		Temperature: runtime.Temperature,
		MaxTokens:   runtime.MaxTokens,
		Schema:      &llm.SchemaSpec{Name: responseModel, Document: doc},
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := e.invoker.Invoke(ctx, runtime.ModelCode, req, runtime.Timeout)
		if err != nil {
			if attempt == 1 && apperr.HasCode(err, apperr.CodeProviderMalformedOutput) {
				lastErr = err
				req = withCorrective(req)
				continue
			}
			return nil, err
		}

		var value any
		if uerr := json.Unmarshal(resp.Structured, &value); uerr != nil {
			lastErr = apperr.Wrap(apperr.CodeProviderMalformedOutput, uerr,
				"model output is not valid JSON for schema %s", responseModel)
		} else if verr := e.validator.Validate(responseModel, value); verr != nil {
			lastErr = verr
		} else {
			return resp.Structured, nil
		}

		if attempt == 1 {
			e.logger.Warn("model output failed validation, re-prompting",
				"response_model", responseModel)
			req = withCorrective(req)
		}
	}
	return nil, lastErr
}

// loadOwned fetches a session and enforces owner scoping. Another
// tenant's session reads as not found; another user's in the same tenant
// as access denied.
func (e *Engine) loadOwned(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TenantID != scope.TenantID {
		return nil, apperr.New(apperr.CodeSessionNotFound, "session %s does not exist", sessionID)
	}
	if session.UserID != scope.UserID {
		return nil, apperr.New(apperr.CodeSessionAccessDenied,
			"session %s belongs to another user", sessionID)
	}
	return session, nil
}

// conversationTopic resolves a topic and rejects single-shot ones.
func (e *Engine) conversationTopic(topicID string) (*registry.Topic, error) {
	topic, err := e.topics.Get(topicID)
	if err != nil {
		return nil, err
	}
	if topic.Type != models.TopicTypeConversation {
		return nil, apperr.New(apperr.CodeWrongTopicType,
			"topic %s is single-shot; use the execute endpoints", topicID).WithName(topicID)
	}
	return topic, nil
}

// idleTimeout resolves the topic's idle timeout, falling back to the
// platform default.
func (e *Engine) idleTimeout(ctx context.Context, topic *registry.Topic) time.Duration {
	runtime, err := e.topics.MergedRuntimeConfig(ctx, topic.ID)
	if err == nil && runtime.IdleTimeout > 0 {
		return runtime.IdleTimeout
	}
	return e.config.IdleTimeout
}

func notActive(session *models.Session) error {
	return apperr.New(apperr.CodeSessionNotActive,
		"session %s is %s", session.ID, session.Status)
}

func sessionConflict(topicID, holderID string) error {
	err := apperr.New(apperr.CodeSessionConflict,
		"another user already has an open session for topic %s", topicID)
	if holderID != "" {
		err = err.WithName(holderID)
	}
	return err
}

// historyMessages builds the model message list from the stored history.
// systemOverride replaces the stored system prompt when non-empty.
func historyMessages(session *models.Session, systemOverride string) []llm.Message {
	messages := make([]llm.Message, 0, len(session.Messages)+1)
	if systemOverride != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemOverride})
	}
	for _, m := range session.Messages {
		switch m.Role {
		case models.MessageRoleSystem:
			if systemOverride == "" {
				messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: m.Content})
			}
		case models.MessageRoleUser:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case models.MessageRoleAssistant:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		}
	}
	return messages
}

// extractionMessages is the history with the extraction instruction
// appended as the closing user turn.
func extractionMessages(session *models.Session) []llm.Message {
	return append(historyMessages(session, ""), llm.Message{
		Role: llm.RoleUser, Content: extractionInstruction,
	})
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
