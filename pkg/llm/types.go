// Package llm unifies invocation of the LLM backends behind one contract:
// messages in, text or schema-validated structured output out, with a shared
// error taxonomy and retry policy across providers.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of provider input.
type Message struct {
	Role    Role
	Content string
}

// SchemaSpec asks the provider for structured output conforming to a JSON
// Schema document. Providers use whatever native mechanism they have:
// forced tool use (Anthropic, Bedrock) or response_format (OpenAI).
type SchemaSpec struct {
	Name     string
	Document map[string]any
}

// Request is a single provider invocation.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// Schema, when set, requests structured output.
	Schema *SchemaSpec
}

// Response is the unified provider result.
type Response struct {
	// Text is the assistant's free text, if any.
	Text string
	// Structured is the raw structured output when a schema was requested.
	Structured json.RawMessage
	// FinishReason is the provider's stop reason, verbatim.
	FinishReason string
	// TokensUsed is total tokens when the provider reports usage; otherwise
	// an approximation with TokensEstimated set.
	TokensUsed      int
	TokensEstimated bool
	// ProcessingTime is the wall time of the provider call.
	ProcessingTime time.Duration
}

// Provider is one backend bound to a concrete model identifier.
type Provider interface {
	// Invoke performs a single call. Errors are classified into the
	// gateway taxonomy (ProviderUnavailable, ProviderTimeout,
	// ProviderRateLimited, ProviderRefused, ProviderMalformedOutput).
	Invoke(ctx context.Context, req *Request) (*Response, error)
	// Name identifies the backend for logging and metrics.
	Name() string
}

// estimateTokens approximates token usage as len(text)/4 when the
// provider reports none.
func estimateTokens(text string) int {
	return len(text) / 4
}

// resolveUsage fills token accounting: reported usage wins, otherwise the
// response text is estimated.
func resolveUsage(resp *Response, reported int) {
	if reported > 0 {
		resp.TokensUsed = reported
		return
	}
	text := resp.Text
	if text == "" && len(resp.Structured) > 0 {
		text = string(resp.Structured)
	}
	resp.TokensUsed = estimateTokens(text)
	resp.TokensEstimated = true
}
