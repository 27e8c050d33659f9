package api

// ExecuteRequest is the body of POST /ai/execute and POST /ai/execute-async.
type ExecuteRequest struct {
	TopicID    string         `json:"topic_id"`
	Parameters map[string]any `json:"parameters"`
}

// StartSessionRequest is the body of POST /ai/coaching/start. Context
// carries optional request-scoped parameters for session initiation.
type StartSessionRequest struct {
	TopicID string         `json:"topic_id"`
	Context map[string]any `json:"context"`
}

// SessionRequest addresses an existing session (resume, pause, complete,
// cancel).
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// MessageRequest is the body of POST /ai/coaching/message.
type MessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
