package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPError(t *testing.T) {
	status, detail := classify(&echo.HTTPError{Code: http.StatusBadRequest, Message: "topic_id is required"})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BadRequest", detail.Code)
	assert.Equal(t, "topic_id is required", detail.Message)
}

func TestClassifyHTTPErrorFallsBackToStatusText(t *testing.T) {
	status, detail := classify(&echo.HTTPError{Code: http.StatusNotFound})

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NotFound", detail.Code)
	assert.Equal(t, http.StatusText(http.StatusNotFound), detail.Message)
}

func TestStatusRecorderCapturesWrittenCode(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusBadGateway)

	assert.Equal(t, http.StatusBadGateway, w.status)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRequestLoggerPassesResponseThrough(t *testing.T) {
	handler := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", rec.Body.String())
}
