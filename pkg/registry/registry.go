package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/schema"
)

// DefaultOverrideCacheTTL bounds how stale a runtime override may be.
const DefaultOverrideCacheTTL = 5 * time.Minute

// Registry is the static topic catalogue plus the runtime-override merge
// path. The catalogue is immutable after construction; overrides are
// fetched through the store with a TTL cache.
type Registry struct {
	topics    map[string]*Topic
	order     []string
	overrides OverrideStore
	cache     *overrideCache
	logger    *slog.Logger
}

// New validates the catalogue against the response model registry and
// builds the lookup structures. Overrides may be nil, in which case
// MergedRuntimeConfig always returns the static config. A cacheTTL <= 0
// selects the default.
func New(topics []Topic, schemas *schema.Registry, overrides OverrideStore, cacheTTL time.Duration) (*Registry, error) {
	if cacheTTL <= 0 {
		cacheTTL = DefaultOverrideCacheTTL
	}

	r := &Registry{
		topics:    make(map[string]*Topic, len(topics)),
		order:     make([]string, 0, len(topics)),
		overrides: overrides,
		cache:     newOverrideCache(cacheTTL),
		logger:    slog.Default(),
	}

	for i := range topics {
		t := topics[i]
		if t.ID == "" {
			return nil, fmt.Errorf("topic with empty id")
		}
		if _, exists := r.topics[t.ID]; exists {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		if !t.Type.IsValid() {
			return nil, fmt.Errorf("topic %s: invalid type %q", t.ID, t.Type)
		}
		if !t.Category.IsValid() {
			return nil, fmt.Errorf("topic %s: invalid category %q", t.ID, t.Category)
		}

		seen := make(map[string]struct{}, len(t.Params))
		for _, p := range t.Params {
			if p.Name == "" {
				return nil, fmt.Errorf("topic %s: parameter with empty name", t.ID)
			}
			if _, dup := seen[p.Name]; dup {
				return nil, fmt.Errorf("topic %s: duplicate parameter %q", t.ID, p.Name)
			}
			seen[p.Name] = struct{}{}
			if !p.Source.IsValid() {
				return nil, fmt.Errorf("topic %s: parameter %s: invalid source %q", t.ID, p.Name, p.Source)
			}
		}

		// Inactive entries may lack a response model; they are hidden
		// from listings and rejected by execution, so validation skips them.
		if t.Active {
			if t.ResponseModel == "" || !schemas.Has(t.ResponseModel) {
				return nil, fmt.Errorf("topic %s: response model %q is not registered", t.ID, t.ResponseModel)
			}
			if t.Type == models.TopicTypeConversation {
				if t.Runtime.MaxTurns < 1 {
					return nil, fmt.Errorf("topic %s: conversation topic requires max_turns >= 1", t.ID)
				}
				if t.Runtime.IdleTimeout <= 0 {
					t.Runtime.IdleTimeout = defaultIdleTimeout
				}
			}
		}

		r.topics[t.ID] = &t
		r.order = append(r.order, t.ID)
	}

	return r, nil
}

// NewBuiltin builds the registry over the shipped catalogue.
func NewBuiltin(schemas *schema.Registry, overrides OverrideStore, cacheTTL time.Duration) (*Registry, error) {
	return New(BuiltinTopics(), schemas, overrides, cacheTTL)
}

// Get returns an active topic. Unknown ids fail with TopicNotFound,
// gated-off entries with TopicInactive.
func (r *Registry) Get(topicID string) (*Topic, error) {
	t, ok := r.topics[topicID]
	if !ok {
		return nil, apperr.New(apperr.CodeTopicNotFound, "topic %s is not registered", topicID).WithName(topicID)
	}
	if !t.Active {
		return nil, apperr.New(apperr.CodeTopicInactive, "topic %s is not active", topicID).WithName(topicID)
	}
	return t, nil
}

// List returns topics in catalogue order, narrowed by the filter.
func (r *Registry) List(filter ListFilter) []*Topic {
	out := make([]*Topic, 0, len(r.order))
	for _, id := range r.order {
		t := r.topics[id]
		if filter.ActiveOnly && !t.Active {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.Category != nil && t.Category != *filter.Category {
			continue
		}
		out = append(out, t)
	}
	return out
}

// MergedRuntimeConfig returns the topic's static runtime config overlaid
// with any persisted override. Store failures are non-fatal: the static
// config is returned and a warning logged (degraded mode).
func (r *Registry) MergedRuntimeConfig(ctx context.Context, topicID string) (RuntimeConfig, error) {
	t, err := r.Get(topicID)
	if err != nil {
		return RuntimeConfig{}, err
	}

	if r.overrides == nil {
		return t.Runtime, nil
	}

	if override, ok := r.cache.get(topicID); ok {
		return override.apply(t.Runtime), nil
	}

	override, err := r.overrides.Fetch(ctx, topicID)
	if err != nil {
		r.logger.Warn("runtime override fetch failed, using static config",
			"topic_id", topicID, "error", err)
		return t.Runtime, nil
	}

	r.cache.set(topicID, override)
	return override.apply(t.Runtime), nil
}
