// Package downstream holds the JSON-over-HTTP clients for the platform
// services that enrichment pulls parameter payloads from: the business
// foundation service, the traction service (goals, strategies, measures,
// actions, issues), and the website retrieval service.
package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// ErrNotFound reports a recoverable "not found" from a collaborator: the
// tenant has no foundation record, the selected goal does not exist, the
// website could not be retrieved. Callers treat it as an empty payload.
var ErrNotFound = errors.New("resource not found")

// Client fetches source payloads from the platform services. One fetch
// per source per request; the enrichment pipeline handles fan-out.
type Client struct {
	httpClient *http.Client
	cfg        *config.SourcesConfig
	logger     *slog.Logger
}

// NewClient creates a collaborator client. Per-source timeouts come from
// the sources config; the underlying http.Client carries no timeout of
// its own so the per-fetch context stays authoritative.
func NewClient(cfg *config.SourcesConfig) *Client {
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     slog.Default(),
	}
}

// Fetch issues one request for the given source. Selectors (goal_id,
// measure_id, action_id, issue_id, url) are picked out of the request
// parameters when the source needs one. The returned payload is the
// decoded JSON object; top-level arrays are wrapped under the source's
// conventional key so extraction paths have a stable root.
func (c *Client) Fetch(ctx context.Context, source models.ParamSource, tenantID string, request map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutFor(string(source)))
	defer cancel()

	switch source {
	case models.SourceOnboarding:
		return c.getJSON(ctx, c.cfg.BusinessURL, fmt.Sprintf("/api/tenants/%s/foundation", tenantID), nil, "foundation")
	case models.SourceGoal:
		id, err := selector(request, "goal_id")
		if err != nil {
			return nil, err
		}
		return c.getJSON(ctx, c.cfg.TractionURL, fmt.Sprintf("/api/tenants/%s/goals/%s", tenantID, id), nil, "goal")
	case models.SourceGoals:
		return c.getJSON(ctx, c.cfg.TractionURL, fmt.Sprintf("/api/tenants/%s/goals", tenantID), nil, "goals")
	case models.SourceStrategies:
		query := url.Values{}
		if id, ok := request["goal_id"].(string); ok && id != "" {
			query.Set("goal_id", id)
		}
		return c.getJSON(ctx, c.cfg.TractionURL, fmt.Sprintf("/api/tenants/%s/strategies", tenantID), query, "strategies")
	case models.SourceMeasure:
		id, err := selector(request, "measure_id")
		if err != nil {
			return nil, err
		}
		return c.getJSON(ctx, c.cfg.TractionURL, fmt.Sprintf("/api/tenants/%s/measures/%s", tenantID, id), nil, "measure")
	case models.SourceMeasures:
		return c.getJSON(ctx, c.cfg.TractionURL, fmt.Sprintf("/api/tenants/%s/measures", tenantID), nil, "measures")
	case models.SourceAction:
		id, err := selector(request, "action_id")
		if err != nil {
			return nil, err
		}
		return c.getJSON(ctx, c.cfg.TractionURL, fmt.Sprintf("/api/tenants/%s/actions/%s", tenantID, id), nil, "action")
	case models.SourceIssue:
		id, err := selector(request, "issue_id")
		if err != nil {
			return nil, err
		}
		return c.getJSON(ctx, c.cfg.TractionURL, fmt.Sprintf("/api/tenants/%s/issues/%s", tenantID, id), nil, "issue")
	case models.SourceWebsite:
		target, err := selector(request, "url")
		if err != nil {
			return nil, err
		}
		query := url.Values{}
		query.Set("url", target)
		return c.getJSON(ctx, c.cfg.WebsiteURL, "/api/retrieve", query, "website")
	default:
		return nil, fmt.Errorf("source %s has no collaborator", source)
	}
}

// selector pulls a required string selector out of the request parameters.
// The pipeline validates required REQUEST parameters before fetching, so a
// miss here is an internal wiring error, not caller input.
func selector(request map[string]any, key string) (string, error) {
	v, ok := request[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("request parameter %s is required to scope the fetch", key)
	}
	return v, nil
}

func (c *Client) getJSON(ctx context.Context, base, path string, query url.Values, wrapKey string) (map[string]any, error) {
	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.ServiceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("collaborator returned HTTP %d for %s", resp.StatusCode, path)
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", path, err)
	}

	switch payload := decoded.(type) {
	case map[string]any:
		return payload, nil
	case []any:
		// List endpoints return bare arrays; extraction paths expect an
		// object root.
		return map[string]any{wrapKey: payload}, nil
	case nil:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("unexpected payload shape from %s", path)
	}
}
