package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/executor"
	"github.com/tractionlabs/aigateway/pkg/models"
)

func TestExecuteHandler(t *testing.T) {
	f := newTestServer(t)
	token := testToken(t)

	f.runner.result = &executor.Result{
		TopicID:   "niche_review",
		Success:   true,
		Data:      json.RawMessage(`{"suggestion":"narrow the niche"}`),
		SchemaRef: "NicheReviewResult",
		Metadata:  executor.Metadata{Model: "coach-std", TokensUsed: 42},
	}

	rec := f.do(t, http.MethodPost, "/ai/execute", token, ExecuteRequest{
		TopicID:    "niche_review",
		Parameters: map[string]any{"current_value": "we do everything"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var result executor.Result
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "niche_review", result.TopicID)
	assert.True(t, result.Success)
	assert.Equal(t, "NicheReviewResult", result.SchemaRef)

	assert.Equal(t, "tenant-1", f.runner.scope.TenantID)
	assert.Equal(t, "user-1", f.runner.scope.UserID)
	assert.Equal(t, "we do everything", f.runner.params["current_value"])
}

func TestExecuteHandlerRejectsMissingTopic(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/ai/execute", testToken(t), ExecuteRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "BadRequest", detail.Code)
	assert.Contains(t, detail.Message, "topic_id")
}

func TestExecuteHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantName   string
	}{
		{
			name:       "unknown topic",
			err:        apperr.New(apperr.CodeTopicNotFound, "topic nope is not registered"),
			wantStatus: http.StatusNotFound,
			wantCode:   "TopicNotFound",
		},
		{
			name:       "missing parameter",
			err:        apperr.New(apperr.CodeMissingParameter, "required parameter current_value is missing").WithName("current_value"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "MissingParameter",
			wantName:   "current_value",
		},
		{
			name:       "rate limited",
			err:        apperr.New(apperr.CodeProviderRateLimited, "provider throttled the request"),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "ProviderRateLimited",
		},
		{
			name:       "provider timeout",
			err:        apperr.New(apperr.CodeProviderTimeout, "provider call timed out"),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "ProviderTimeout",
		},
		{
			name:       "invalid output",
			err:        apperr.New(apperr.CodeLLMOutputInvalid, "output failed schema validation"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "LLMOutputInvalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestServer(t)
			f.runner.err = tt.err

			rec := f.do(t, http.MethodPost, "/ai/execute", testToken(t), ExecuteRequest{TopicID: "niche_review"})

			assert.Equal(t, tt.wantStatus, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, detail.Code)
			assert.NotEmpty(t, detail.Message)
			assert.Equal(t, tt.wantName, detail.Name)
		})
	}
}

func TestExecuteAsyncHandler(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/ai/execute-async", testToken(t), ExecuteRequest{
		TopicID:    "niche_review",
		Parameters: map[string]any{"current_value": "we do everything"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var data AsyncJobData
	decodeData(t, rec, &data)
	assert.Equal(t, "job-1", data.JobID)
	assert.Equal(t, "pending", data.Status)
	assert.Equal(t, "niche_review", data.TopicID)
	// Catalogue entries carry no explicit timeout, so the default applies.
	assert.Equal(t, int64(10000), data.EstimatedDurationMS)
}

func TestExecuteAsyncHandlerRejectsConversationTopic(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/ai/execute-async", testToken(t), ExecuteRequest{TopicID: "core_values"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "WrongTopicType", detail.Code)
	assert.Empty(t, f.jobs.createTopicID, "no job should be enqueued")
}

func TestExecuteAsyncHandlerRejectsUnknownTopic(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/ai/execute-async", testToken(t), ExecuteRequest{TopicID: "nope"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TopicNotFound", decodeError(t, rec).Code)
}

func TestExecuteAsyncHandlerRejectsInactiveTopic(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/ai/execute-async", testToken(t), ExecuteRequest{TopicID: "pricing_review"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "TopicInactive", decodeError(t, rec).Code)
}

func TestGetJobHandler(t *testing.T) {
	f := newTestServer(t)
	f.jobs.job = &models.Job{
		ID:       "job-9",
		TenantID: "tenant-1",
		UserID:   "user-1",
		TopicID:  "niche_review",
		Status:   models.JobStatusCompleted,
		Result:   map[string]any{"success": true},
	}

	rec := f.do(t, http.MethodGet, "/ai/jobs/job-9", testToken(t), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, "job-9", job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	assert.Equal(t, "job-9", f.jobs.getJobID)
	assert.Equal(t, "tenant-1", f.jobs.getTenantID)
	assert.Equal(t, "user-1", f.jobs.getUserID)
}

func TestGetJobHandlerNotFound(t *testing.T) {
	f := newTestServer(t)
	f.jobs.err = apperr.New(apperr.CodeJobNotFound, "job job-9 not found")

	rec := f.do(t, http.MethodGet, "/ai/jobs/job-9", testToken(t), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JobNotFound", decodeError(t, rec).Code)
}
