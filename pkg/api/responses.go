package api

import (
	"time"

	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/registry"
)

// SuccessResponse is the envelope for non-error responses that do not
// return a pipeline result directly.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// AsyncJobData is returned by POST /ai/execute-async.
type AsyncJobData struct {
	JobID               string `json:"job_id"`
	Status              string `json:"status"`
	TopicID             string `json:"topic_id"`
	EstimatedDurationMS int64  `json:"estimated_duration_ms"`
}

// ParameterView describes one request parameter a caller must (or may)
// supply for a topic.
type ParameterView struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// TopicView is the catalogue entry shape returned by the topic listings.
type TopicView struct {
	TopicID       string          `json:"topic_id"`
	Type          string          `json:"type"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	ResponseModel string          `json:"response_model"`
	Parameters    []ParameterView `json:"parameters"`
	MaxTurns      int             `json:"max_turns,omitempty"`
}

// topicView exposes the caller-facing slice of a catalogue entry: only
// request-sourced parameters are listed, internal enrichment sources are
// an implementation detail.
func topicView(t *registry.Topic) TopicView {
	params := make([]ParameterView, 0, len(t.Params))
	for _, p := range t.Params {
		if p.Source != models.SourceRequest {
			continue
		}
		params = append(params, ParameterView{Name: p.Name, Required: p.Required, Default: p.Default})
	}
	return TopicView{
		TopicID:       t.ID,
		Type:          string(t.Type),
		Category:      string(t.Category),
		Description:   t.Description,
		ResponseModel: t.ResponseModel,
		Parameters:    params,
		MaxTurns:      t.Runtime.MaxTurns,
	}
}

// MessageView is one visible conversation entry. System prompts are
// internal and never leave the gateway.
type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionView is the session shape returned by the coaching endpoints.
type SessionView struct {
	SessionID      string         `json:"session_id"`
	TopicID        string         `json:"topic_id"`
	Status         string         `json:"status"`
	Turn           int            `json:"turn"`
	MaxTurns       int            `json:"max_turns"`
	Messages       []MessageView  `json:"messages"`
	Result         map[string]any `json:"result,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

func sessionView(s *models.Session, idleTimeout time.Duration) SessionView {
	messages := make([]MessageView, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role == models.MessageRoleSystem {
			continue
		}
		messages = append(messages, MessageView{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return SessionView{
		SessionID:      s.ID,
		TopicID:        s.TopicID,
		Status:         string(s.ComputedStatus(idleTimeout, time.Now())),
		Turn:           s.Turn,
		MaxTurns:       s.MaxTurns,
		Messages:       messages,
		Result:         s.Result,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
	}
}

// HealthCheck is one component's health within the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}
