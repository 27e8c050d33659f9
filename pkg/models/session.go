package models

import "time"

// SessionStatus is the stored lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusAbandoned SessionStatus = "abandoned"
	SessionStatusFailed    SessionStatus = "failed"
)

// IsValid checks if the session status is a known value.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusActive, SessionStatusPaused, SessionStatusCompleted,
		SessionStatusCancelled, SessionStatusAbandoned, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are permitted.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusAbandoned, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Message is one entry in a session's ordered history.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Tokens    int         `json:"tokens,omitempty"`
}

// Session is a persistent multi-turn coaching conversation. At most one
// session per (tenant_id, topic_id) may be active or paused at a time.
type Session struct {
	ID             string         `json:"session_id"`
	TenantID       string         `json:"tenant_id"`
	UserID         string         `json:"user_id"`
	TopicID        string         `json:"topic_id"`
	Status         SessionStatus  `json:"status"`
	Turn           int            `json:"turn"`
	MaxTurns       int            `json:"max_turns"`
	Messages       []Message      `json:"messages"`
	Context        map[string]any `json:"context,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// IsIdle reports whether an active session has gone quiet for the topic's
// idle timeout or longer. Idle is a presentation state: the stored status
// stays active and messages are still accepted.
func (s *Session) IsIdle(idleTimeout time.Duration, now time.Time) bool {
	return s.Status == SessionStatusActive && now.Sub(s.LastActivityAt) >= idleTimeout
}

// IsExpired reports whether the session passed its hard expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ComputedStatus returns the status presented to callers: active sessions
// past the idle timeout read as paused.
func (s *Session) ComputedStatus(idleTimeout time.Duration, now time.Time) SessionStatus {
	if s.IsIdle(idleTimeout, now) {
		return SessionStatusPaused
	}
	return s.Status
}
