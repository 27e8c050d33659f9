package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/conversation"
)

// ErrorDetail is the code/message pair carried by every error response.
// Name and Source identify the offending parameter or upstream source
// when the error names one.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Source  string `json:"source,omitempty"`
	// ConflictUserID identifies who holds the blocking session on a
	// cross-user SESSION_CONFLICT.
	ConflictUserID string `json:"conflict_user_id,omitempty"`
}

// ErrorResponse is the envelope all error responses use.
type ErrorResponse struct {
	Detail ErrorDetail `json:"detail"`
}

// classify maps an error escaping a handler to an HTTP status and the
// detail envelope. Pipeline errors carry their own code; everything else
// reads as an internal error.
func classify(err error) (int, ErrorDetail) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, ErrorDetail{
			Code:    genericCode(httpErr.Code),
			Message: httpErrMessage(httpErr),
		}
	}

	if errors.Is(err, conversation.ErrStaleSession) {
		return http.StatusConflict, ErrorDetail{
			Code:    string(apperr.CodeSessionConflict),
			Message: "session was modified concurrently, retry the request",
		}
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		detail := ErrorDetail{
			Code:    string(appErr.Code),
			Message: appErr.Error(),
			Name:    appErr.Name,
			Source:  appErr.Source,
		}
		// A cross-user session conflict carries the holding user, not a
		// parameter name.
		if appErr.Code == apperr.CodeSessionConflict && appErr.Name != "" {
			detail.ConflictUserID = appErr.Name
			detail.Name = ""
		}
		return statusFor(appErr.Code), detail
	}

	slog.Error("Unhandled error in request path", "error", err)
	return http.StatusInternalServerError, ErrorDetail{
		Code:    string(apperr.CodeInternalError),
		Message: "internal server error",
	}
}

// statusFor maps pipeline error codes to HTTP statuses.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeTopicNotFound, apperr.CodeSessionNotFound, apperr.CodeJobNotFound:
		return http.StatusNotFound
	case apperr.CodeTopicInactive, apperr.CodeWrongTopicType, apperr.CodeParameterMalformed:
		return http.StatusBadRequest
	case apperr.CodeMissingParameter, apperr.CodeSourceEmpty:
		return http.StatusUnprocessableEntity
	case apperr.CodeSessionAccessDenied:
		return http.StatusForbidden
	case apperr.CodeSessionNotActive, apperr.CodeSessionConflict, apperr.CodeMaxTurnsReached:
		return http.StatusConflict
	case apperr.CodeSessionExpired:
		return http.StatusGone
	case apperr.CodeProviderRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeSourceUnavailable, apperr.CodeProviderUnavailable, apperr.CodeProviderRefused:
		return http.StatusBadGateway
	case apperr.CodeSourceTimeout, apperr.CodeProviderTimeout,
		apperr.CodeRequestTimeout, apperr.CodeProcessingTimeout:
		return http.StatusGatewayTimeout
	default:
		// TemplateNotFound, TemplateUnresolved, ProviderMalformedOutput,
		// LLMOutputInvalid, EXTRACTION_FAILED, RETRIES_EXHAUSTED,
		// InternalError: all server-side faults.
		return http.StatusInternalServerError
	}
}

// genericCode names non-pipeline HTTP failures (bad input shape, auth).
func genericCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BadRequest"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusRequestEntityTooLarge:
		return "PayloadTooLarge"
	default:
		if status >= 500 {
			return string(apperr.CodeInternalError)
		}
		return "BadRequest"
	}
}

func httpErrMessage(httpErr *echo.HTTPError) string {
	if httpErr.Message != "" {
		return httpErr.Message
	}
	return http.StatusText(httpErr.Code)
}
