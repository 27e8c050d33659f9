// Package apperr defines the gateway's error taxonomy. Internal code returns
// classified errors; only the HTTP layer maps them to status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, user-visible error code.
type Code string

// Input errors.
const (
	CodeTopicNotFound      Code = "TopicNotFound"
	CodeTopicInactive      Code = "TopicInactive"
	CodeWrongTopicType     Code = "WrongTopicType"
	CodeMissingParameter   Code = "MissingParameter"
	CodeParameterMalformed Code = "ParameterMalformed"
)

// Enrichment errors.
const (
	CodeSourceUnavailable Code = "SourceUnavailable"
	CodeSourceEmpty       Code = "SourceEmpty"
	CodeSourceTimeout     Code = "SourceTimeout"
)

// Template errors.
const (
	CodeTemplateNotFound   Code = "TemplateNotFound"
	CodeTemplateUnresolved Code = "TemplateUnresolved"
)

// Provider errors.
const (
	CodeProviderUnavailable     Code = "ProviderUnavailable"
	CodeProviderTimeout         Code = "ProviderTimeout"
	CodeProviderRateLimited     Code = "ProviderRateLimited"
	CodeProviderRefused         Code = "ProviderRefused"
	CodeProviderMalformedOutput Code = "ProviderMalformedOutput"
)

// Validation errors.
const (
	CodeLLMOutputInvalid Code = "LLMOutputInvalid"
)

// Session errors.
const (
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeSessionAccessDenied Code = "SESSION_ACCESS_DENIED"
	CodeSessionNotActive    Code = "SESSION_NOT_ACTIVE"
	CodeSessionConflict     Code = "SESSION_CONFLICT"
	CodeSessionExpired      Code = "SESSION_EXPIRED"
	CodeMaxTurnsReached     Code = "MAX_TURNS_REACHED"
	CodeExtractionFailed    Code = "EXTRACTION_FAILED"
)

// Job errors.
const (
	CodeJobNotFound       Code = "JobNotFound"
	CodeRetriesExhausted  Code = "RETRIES_EXHAUSTED"
	CodeProcessingTimeout Code = "PROCESSING_TIMEOUT"
)

// Platform errors.
const (
	CodeRequestTimeout Code = "RequestTimeout"
	CodeInternalError  Code = "InternalError"
)

// Error is a classified gateway error. Name and Source identify the
// offending parameter, template, or upstream source when applicable.
type Error struct {
	Code    Code
	Message string
	Name    string
	Source  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithName returns a copy of the error annotated with the offending name.
func (e *Error) WithName(name string) *Error {
	clone := *e
	clone.Name = name
	return &clone
}

// WithSource returns a copy of the error annotated with the offending source.
func (e *Error) WithSource(source string) *Error {
	clone := *e
	clone.Source = source
	return &clone
}

// CodeOf extracts the taxonomy code from an error chain.
// Unclassified errors report CodeInternalError.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
