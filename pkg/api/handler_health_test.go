package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionlabs/aigateway/pkg/queue"
)

func decodeHealth(t *testing.T, body []byte) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestHealthHandlerHealthy(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeHealth(t, rec.Body.Bytes())
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["worker_pool"].Status)
}

func TestHealthHandlerDegradedPool(t *testing.T) {
	f := newTestServer(t)
	f.pool.health = &queue.PoolHealth{
		IsHealthy:   false,
		DBReachable: false,
		DBError:     "connection refused",
	}

	rec := f.do(t, http.MethodGet, "/health", "", nil)

	// A sick worker pool degrades the gateway but does not fail the probe:
	// the HTTP surface is still serving.
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeHealth(t, rec.Body.Bytes())
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["worker_pool"].Message)
}
