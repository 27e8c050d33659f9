package api

import (
	"context"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/registry"
)

// startSessionHandler handles POST /ai/coaching/start.
func (s *Server) startSessionHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TopicID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic_id is required")
	}

	session, err := s.coaching.Start(c.Request().Context(), scope, req.TopicID, req.Context)
	if err != nil {
		return err
	}
	return s.sessionResponse(c, session)
}

// resumeSessionHandler handles POST /ai/coaching/resume.
func (s *Server) resumeSessionHandler(c *echo.Context) error {
	return s.sessionAction(c, s.coaching.Resume)
}

// messageHandler handles POST /ai/coaching/message.
func (s *Server) messageHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	session, err := s.coaching.Message(c.Request().Context(), scope, req.SessionID, req.Message)
	if err != nil {
		return err
	}
	return s.sessionResponse(c, session)
}

// pauseSessionHandler handles POST /ai/coaching/pause.
func (s *Server) pauseSessionHandler(c *echo.Context) error {
	return s.sessionAction(c, s.coaching.Pause)
}

// completeSessionHandler handles POST /ai/coaching/complete.
func (s *Server) completeSessionHandler(c *echo.Context) error {
	return s.sessionAction(c, s.coaching.Complete)
}

// cancelSessionHandler handles POST /ai/coaching/cancel.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	return s.sessionAction(c, s.coaching.Cancel)
}

// getSessionHandler handles GET /ai/coaching/session?session_id=...
func (s *Server) getSessionHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	session, err := s.coaching.Get(c.Request().Context(), scope, sessionID)
	if err != nil {
		return err
	}
	return s.sessionResponse(c, session)
}

// listSessionsHandler handles GET /ai/coaching/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	includeCompleted := c.QueryParam("include_completed") == "true"
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	sessions, err := s.coaching.List(c.Request().Context(), scope, includeCompleted, limit)
	if err != nil {
		return err
	}

	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView(session, s.cfg.Sessions.IdleTimeout))
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true, Data: views})
}

// checkSessionHandler handles GET /ai/coaching/session/check?topic_id=...
// It reports whether an open session exists for the topic without creating
// one.
func (s *Server) checkSessionHandler(c *echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	topicID := c.QueryParam("topic_id")
	if topicID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic_id is required")
	}

	result, err := s.coaching.Check(c.Request().Context(), scope, topicID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true, Data: result})
}

// coachingTopicsHandler handles GET /ai/coaching/topics: the active
// conversation catalogue.
func (s *Server) coachingTopicsHandler(c *echo.Context) error {
	conversationType := models.TopicTypeConversation
	topics := s.topics.List(registry.ListFilter{Type: &conversationType, ActiveOnly: true})

	views := make([]TopicView, 0, len(topics))
	for _, t := range topics {
		views = append(views, topicView(t))
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true, Data: views})
}

// sessionAction factors the bind-validate-dispatch shape shared by the
// session_id-only coaching endpoints.
func (s *Server) sessionAction(c *echo.Context, action func(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error)) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}

	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	session, err := action(c.Request().Context(), scope, req.SessionID)
	if err != nil {
		return err
	}
	return s.sessionResponse(c, session)
}

func (s *Server) sessionResponse(c *echo.Context, session *models.Session) error {
	return c.JSON(http.StatusOK, &SuccessResponse{
		Success: true,
		Data:    sessionView(session, s.cfg.Sessions.IdleTimeout),
	})
}
