// Package api exposes the gateway over HTTP: synchronous execution,
// async job submission and polling, the topic catalogue, and the
// coaching conversation endpoints. All /ai routes require a bearer
// token; /health and /metrics are open.
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tractionlabs/aigateway/pkg/auth"
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/conversation"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/executor"
	"github.com/tractionlabs/aigateway/pkg/metrics"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/queue"
	"github.com/tractionlabs/aigateway/pkg/registry"
	"github.com/tractionlabs/aigateway/pkg/schema"
)

// SingleShotRunner executes one single-shot topic request end to end.
// Implemented by executor.Executor.
type SingleShotRunner interface {
	Execute(ctx context.Context, scope enrich.Scope, topicID string, parameters map[string]any) (*executor.Result, error)
}

// JobQueue accepts async jobs and serves owner-scoped lookups.
// Implemented by jobs.Store.
type JobQueue interface {
	Create(ctx context.Context, tenantID, userID, topicID string, parameters map[string]any) (*models.Job, error)
	Get(ctx context.Context, jobID, tenantID, userID string) (*models.Job, error)
}

// CoachingService drives multi-turn coaching sessions. Implemented by
// conversation.Engine.
type CoachingService interface {
	Check(ctx context.Context, scope enrich.Scope, topicID string) (*conversation.CheckResult, error)
	Start(ctx context.Context, scope enrich.Scope, topicID string, contextParams map[string]any) (*models.Session, error)
	Resume(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error)
	Message(ctx context.Context, scope enrich.Scope, sessionID, userMessage string) (*models.Session, error)
	Pause(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error)
	Complete(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error)
	Cancel(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error)
	Get(ctx context.Context, scope enrich.Scope, sessionID string) (*models.Session, error)
	List(ctx context.Context, scope enrich.Scope, includeCompleted bool, limit int) ([]*models.Session, error)
}

// PoolHealthReporter reports worker pool health for the health endpoint.
type PoolHealthReporter interface {
	Health() *queue.PoolHealth
}

// Server is the HTTP front of the gateway.
type Server struct {
	cfg      *config.Config
	db       *sql.DB
	topics   *registry.Registry
	schemas  *schema.Registry
	runner   SingleShotRunner
	jobs     JobQueue
	coaching CoachingService
	pool     PoolHealthReporter

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer wires the HTTP layer over the pipeline services and registers
// all routes.
func NewServer(cfg *config.Config, db *sql.DB, topics *registry.Registry, schemas *schema.Registry,
	runner SingleShotRunner, jobQueue JobQueue, coaching CoachingService, pool PoolHealthReporter) *Server {
	s := &Server{
		cfg:      cfg,
		db:       db,
		topics:   topics,
		schemas:  schemas,
		runner:   runner,
		jobs:     jobQueue,
		coaching: coaching,
		pool:     pool,
		echo:     echo.New(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(errorEnvelope(), securityHeaders())

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", func(c *echo.Context) error {
		metrics.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	ai := e.Group("/ai")
	ai.Use(auth.Middleware(s.cfg.Auth.JWTSecret))

	ai.POST("/execute", s.executeHandler)
	ai.POST("/execute-async", s.executeAsyncHandler)
	ai.GET("/jobs/:id", s.getJobHandler)
	ai.GET("/topics", s.listTopicsHandler)
	ai.GET("/schemas/:name", s.getSchemaHandler)

	co := ai.Group("/coaching")
	co.POST("/start", s.startSessionHandler)
	co.POST("/resume", s.resumeSessionHandler)
	co.POST("/message", s.messageHandler)
	co.POST("/pause", s.pauseSessionHandler)
	co.POST("/complete", s.completeSessionHandler)
	co.POST("/cancel", s.cancelSessionHandler)
	co.GET("/session", s.getSessionHandler)
	co.GET("/sessions", s.listSessionsHandler)
	co.GET("/session/check", s.checkSessionHandler)
	co.GET("/topics", s.coachingTopicsHandler)
}

// Handler exposes the routing tree (tests, embedding). The request
// logger sits outside the router so it sees the status every layer
// writes, auth rejections included.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.echo)
}

// Start serves HTTP on addr and blocks until Shutdown or a listener
// failure.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestScope extracts the authenticated caller identity.
func requestScope(c *echo.Context) (enrich.Scope, error) {
	identity, ok := auth.FromContext(c)
	if !ok {
		return enrich.Scope{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return enrich.Scope{TenantID: identity.TenantID, UserID: identity.UserID}, nil
}
