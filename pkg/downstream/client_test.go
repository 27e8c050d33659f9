package downstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/models"
)

func testSourcesConfig(baseURL string) *config.SourcesConfig {
	return &config.SourcesConfig{
		DefaultTimeout: 2 * time.Second,
		BusinessURL:    baseURL,
		TractionURL:    baseURL,
		WebsiteURL:     baseURL,
		ServiceToken:   "svc-token",
	}
}

func TestFetchFoundation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tenants/t1/foundation", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"profile":{"industry":"services"},"foundation":{"vision":"v"}}`))
	}))
	defer srv.Close()

	c := NewClient(testSourcesConfig(srv.URL))
	payload, err := c.Fetch(context.Background(), models.SourceOnboarding, "t1", nil)
	require.NoError(t, err)

	profile, ok := payload["profile"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "services", profile["industry"])
}

func TestFetchGoalWithSelector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tenants/t1/goals/g42", r.URL.Path)
		w.Write([]byte(`{"title":"Grow revenue","description":"d"}`))
	}))
	defer srv.Close()

	c := NewClient(testSourcesConfig(srv.URL))
	payload, err := c.Fetch(context.Background(), models.SourceGoal, "t1",
		map[string]any{"goal_id": "g42"})
	require.NoError(t, err)
	assert.Equal(t, "Grow revenue", payload["title"])
}

func TestFetchMissingSelector(t *testing.T) {
	c := NewClient(testSourcesConfig("http://unused"))
	_, err := c.Fetch(context.Background(), models.SourceGoal, "t1", map[string]any{})
	assert.Error(t, err)
}

func TestFetchArrayWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"g1"},{"title":"g2"}]`))
	}))
	defer srv.Close()

	c := NewClient(testSourcesConfig(srv.URL))
	payload, err := c.Fetch(context.Background(), models.SourceGoals, "t1", nil)
	require.NoError(t, err)

	goals, ok := payload["goals"].([]any)
	require.True(t, ok)
	assert.Len(t, goals, 2)
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(testSourcesConfig(srv.URL))
	_, err := c.Fetch(context.Background(), models.SourceIssue, "t1",
		map[string]any{"issue_id": "i1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testSourcesConfig(srv.URL))
	_, err := c.Fetch(context.Background(), models.SourceMeasures, "t1", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := testSourcesConfig(srv.URL)
	cfg.Timeouts = map[string]time.Duration{"website": 20 * time.Millisecond}

	c := NewClient(cfg)
	_, err := c.Fetch(context.Background(), models.SourceWebsite, "t1",
		map[string]any{"url": "https://example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebsiteQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/retrieve", r.URL.Path)
		assert.Equal(t, "https://example.com", r.URL.Query().Get("url"))
		w.Write([]byte(`{"content":"c","title":"t","meta_description":null}`))
	}))
	defer srv.Close()

	c := NewClient(testSourcesConfig(srv.URL))
	payload, err := c.Fetch(context.Background(), models.SourceWebsite, "t1",
		map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "c", payload["content"])
}
