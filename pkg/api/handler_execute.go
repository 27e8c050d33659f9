package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/metrics"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// defaultEstimatedDuration is quoted to async callers when the topic's
// runtime config carries no timeout of its own.
const defaultEstimatedDuration = 10 * time.Second

// executeHandler handles POST /ai/execute: the synchronous single-shot
// pipeline.
func (s *Server) executeHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TopicID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic_id is required")
	}

	result, err := s.runner.Execute(c.Request().Context(), scope, req.TopicID, req.Parameters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// executeAsyncHandler handles POST /ai/execute-async: validates the topic
// up front, enqueues a job, and returns immediately.
func (s *Server) executeAsyncHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TopicID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic_id is required")
	}

	topic, err := s.topics.Get(req.TopicID)
	if err != nil {
		return err
	}
	if topic.Type != models.TopicTypeSingleShot {
		return apperr.New(apperr.CodeWrongTopicType,
			"topic %s is a conversation topic, use the coaching endpoints", req.TopicID).WithName(req.TopicID)
	}

	estimated := defaultEstimatedDuration
	if runtime, err := s.topics.MergedRuntimeConfig(c.Request().Context(), req.TopicID); err == nil && runtime.Timeout > 0 {
		estimated = runtime.Timeout
	}

	job, err := s.jobs.Create(c.Request().Context(), scope.TenantID, scope.UserID, req.TopicID, req.Parameters)
	if err != nil {
		return err
	}
	metrics.JobsEnqueued.Inc()

	return c.JSON(http.StatusOK, &SuccessResponse{
		Success: true,
		Data: AsyncJobData{
			JobID:               job.ID,
			Status:              string(job.Status),
			TopicID:             job.TopicID,
			EstimatedDurationMS: estimated.Milliseconds(),
		},
	})
}

// getJobHandler handles GET /ai/jobs/:id. Lookups are scoped to the
// calling tenant and user; another owner's job reads as not found.
func (s *Server) getJobHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	jobID := c.Param("id")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	job, err := s.jobs.Get(c.Request().Context(), jobID, scope.TenantID, scope.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true, Data: job})
}
