package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionlabs/aigateway/pkg/auth"
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/conversation"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/executor"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/queue"
	"github.com/tractionlabs/aigateway/pkg/registry"
	"github.com/tractionlabs/aigateway/pkg/schema"
)

const testSecret = "api-test-secret"

type fakeRunner struct {
	result *executor.Result
	err    error

	scope   enrich.Scope
	topicID string
	params  map[string]any
}

func (f *fakeRunner) Execute(_ context.Context, scope enrich.Scope, topicID string, params map[string]any) (*executor.Result, error) {
	f.scope = scope
	f.topicID = topicID
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeJobQueue struct {
	created *models.Job
	job     *models.Job
	err     error

	createTopicID string
	getJobID      string
	getTenantID   string
	getUserID     string
}

func (f *fakeJobQueue) Create(_ context.Context, tenantID, userID, topicID string, params map[string]any) (*models.Job, error) {
	f.createTopicID = topicID
	if f.err != nil {
		return nil, f.err
	}
	if f.created != nil {
		return f.created, nil
	}
	return &models.Job{ID: "job-1", TenantID: tenantID, UserID: userID, TopicID: topicID,
		Parameters: params, Status: models.JobStatusPending}, nil
}

func (f *fakeJobQueue) Get(_ context.Context, jobID, tenantID, userID string) (*models.Job, error) {
	f.getJobID = jobID
	f.getTenantID = tenantID
	f.getUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type fakeCoaching struct {
	session *models.Session
	check   *conversation.CheckResult
	list    []*models.Session
	err     error

	lastMethod  string
	lastScope   enrich.Scope
	lastSession string
	lastTopic   string
	lastMessage string
}

func (f *fakeCoaching) dispatch(method string, scope enrich.Scope) (*models.Session, error) {
	f.lastMethod = method
	f.lastScope = scope
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeCoaching) Check(_ context.Context, scope enrich.Scope, topicID string) (*conversation.CheckResult, error) {
	f.lastMethod = "check"
	f.lastScope = scope
	f.lastTopic = topicID
	if f.err != nil {
		return nil, f.err
	}
	return f.check, nil
}

func (f *fakeCoaching) Start(_ context.Context, scope enrich.Scope, topicID string, _ map[string]any) (*models.Session, error) {
	f.lastTopic = topicID
	return f.dispatch("start", scope)
}

func (f *fakeCoaching) Resume(_ context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	f.lastSession = sessionID
	return f.dispatch("resume", scope)
}

func (f *fakeCoaching) Message(_ context.Context, scope enrich.Scope, sessionID, message string) (*models.Session, error) {
	f.lastSession = sessionID
	f.lastMessage = message
	return f.dispatch("message", scope)
}

func (f *fakeCoaching) Pause(_ context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	f.lastSession = sessionID
	return f.dispatch("pause", scope)
}

func (f *fakeCoaching) Complete(_ context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	f.lastSession = sessionID
	return f.dispatch("complete", scope)
}

func (f *fakeCoaching) Cancel(_ context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	f.lastSession = sessionID
	return f.dispatch("cancel", scope)
}

func (f *fakeCoaching) Get(_ context.Context, scope enrich.Scope, sessionID string) (*models.Session, error) {
	f.lastSession = sessionID
	return f.dispatch("get", scope)
}

func (f *fakeCoaching) List(_ context.Context, scope enrich.Scope, _ bool, _ int) ([]*models.Session, error) {
	f.lastMethod = "list"
	f.lastScope = scope
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

type fakePool struct {
	health *queue.PoolHealth
}

func (f *fakePool) Health() *queue.PoolHealth { return f.health }

type serverFixture struct {
	server   *Server
	runner   *fakeRunner
	jobs     *fakeJobQueue
	coaching *fakeCoaching
	pool     *fakePool
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	schemas, err := schema.NewBuiltinRegistry()
	require.NoError(t, err)
	topics, err := registry.NewBuiltin(schemas, nil, time.Minute)
	require.NoError(t, err)

	cfg := &config.Config{
		HTTP: &config.HTTPConfig{Addr: ":0"},
		Auth: &config.AuthConfig{JWTSecret: testSecret},
		Sessions: &config.SessionsConfig{
			IdleTimeout:   30 * time.Minute,
			TTL:           14 * 24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
	}

	f := &serverFixture{
		runner:   &fakeRunner{},
		jobs:     &fakeJobQueue{},
		coaching: &fakeCoaching{},
		pool:     &fakePool{health: &queue.PoolHealth{IsHealthy: true, DBReachable: true}},
	}
	f.server = NewServer(cfg, nil, topics, schemas, f.runner, f.jobs, f.coaching, f.pool)
	return f
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewToken(testSecret, auth.Identity{TenantID: "tenant-1", UserID: "user-1"}, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *serverFixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Detail
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestAuthEnforcedOnAIRoutes(t *testing.T) {
	f := newTestServer(t)

	routes := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/ai/execute"},
		{http.MethodPost, "/ai/execute-async"},
		{http.MethodGet, "/ai/jobs/job-1"},
		{http.MethodGet, "/ai/topics"},
		{http.MethodGet, "/ai/schemas/CoreValuesResult"},
		{http.MethodPost, "/ai/coaching/start"},
		{http.MethodGet, "/ai/coaching/sessions"},
	}
	for _, route := range routes {
		rec := f.do(t, route.method, route.target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.target)
		detail := decodeError(t, rec)
		assert.Equal(t, "Unauthorized", detail.Code)
	}
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aigateway_")
}

func TestSecurityHeaders(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
