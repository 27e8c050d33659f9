// Package enrich resolves a topic's declared parameters into the context
// map handed to prompt rendering. Request values are validated up front,
// external sources are fetched concurrently (one fetch per source), and
// extraction paths, defaults, transforms, and computed parameters are
// applied in declaration order.
//
// Parameter values are tenant data and are never logged; debug logging is
// limited to parameter names and counts.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/downstream"
	"github.com/tractionlabs/aigateway/pkg/metrics"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/registry"
)

// Fetcher retrieves one source payload. Implemented by downstream.Client;
// tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, source models.ParamSource, tenantID string, request map[string]any) (map[string]any, error)
}

// Scope carries the caller identity a fetch is issued on behalf of.
type Scope struct {
	TenantID string
	UserID   string
}

// Enricher runs the parameter enrichment pipeline.
type Enricher struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewEnricher creates an enricher over the given source fetcher.
func NewEnricher(fetcher Fetcher) *Enricher {
	return &Enricher{
		fetcher: fetcher,
		logger:  slog.Default(),
	}
}

type fetchResult struct {
	payload map[string]any
	err     error
}

// Enrich produces the rendered context for a topic. conversation is the
// session-derived payload for CONVERSATION parameters; nil for single-shot
// topics.
func (e *Enricher) Enrich(ctx context.Context, topic *registry.Topic, request map[string]any, scope Scope, conversation map[string]any) (map[string]any, error) {
	// Required request parameters fail early, before any fetch is issued.
	for _, def := range topic.Params {
		if def.Source == models.SourceRequest && def.Required {
			if v := extract(request, effectivePath(def)); v == nil {
				return nil, apperr.New(apperr.CodeMissingParameter,
					"required parameter %s is missing from the request", def.Name).WithName(def.Name)
			}
		}
	}

	// One fetch per distinct external source, concurrently.
	sources := fetchedSources(topic)
	results := make(map[models.ParamSource]*fetchResult, len(sources))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, source := range sources {
		wg.Add(1)
		go func(source models.ParamSource) {
			defer wg.Done()
			start := time.Now()
			payload, err := e.fetcher.Fetch(ctx, source, scope.TenantID, request)
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			metrics.ObserveSourceFetch(string(source), outcome, time.Since(start))
			mu.Lock()
			results[source] = &fetchResult{payload: payload, err: err}
			mu.Unlock()
		}(source)
	}
	wg.Wait()

	// A transport failure on any source short-circuits enrichment; a
	// recoverable not-found reads as an empty payload.
	for _, source := range sources {
		res := results[source]
		if res.err == nil {
			continue
		}
		switch {
		case errors.Is(res.err, downstream.ErrNotFound):
			res.payload = nil
			res.err = nil
		case errors.Is(res.err, context.DeadlineExceeded):
			return nil, apperr.Wrap(apperr.CodeSourceTimeout, res.err,
				"source %s timed out", source).WithSource(string(source))
		default:
			return nil, apperr.Wrap(apperr.CodeSourceUnavailable, res.err,
				"source %s is unavailable", source).WithSource(string(source))
		}
	}

	// Resolve parameters in declaration order; computed ones run last.
	rendered := make(map[string]any, len(topic.Params))
	var computed []registry.ParameterDef

	for _, def := range topic.Params {
		var value any

		switch def.Source {
		case models.SourceComputed:
			computed = append(computed, def)
			continue
		case models.SourceRequest:
			value = extract(request, effectivePath(def))
		case models.SourceConversation:
			value = extract(conversation, effectivePath(def))
		default:
			res := results[def.Source]
			if len(res.payload) == 0 {
				if def.Required {
					return nil, apperr.New(apperr.CodeSourceEmpty,
						"source %s returned no data for required parameter %s",
						def.Source, def.Name).WithName(def.Name).WithSource(string(def.Source))
				}
				rendered[def.Name] = def.Default
				continue
			}
			value = extract(res.payload, effectivePath(def))
		}

		if value == nil {
			if def.Required {
				return nil, apperr.New(apperr.CodeMissingParameter,
					"required parameter %s is absent from source %s",
					def.Name, def.Source).WithName(def.Name).WithSource(string(def.Source))
			}
			rendered[def.Name] = def.Default
			continue
		}

		if def.Transform != "" {
			transformed, err := applyTransform(def.Transform, value)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", def.Name, err)
			}
			value = transformed
		}
		rendered[def.Name] = value
	}

	for _, def := range computed {
		value, err := computeParam(def, rendered)
		if err != nil {
			return nil, err
		}
		rendered[def.Name] = value
	}

	e.logger.Debug("enrichment complete",
		"topic_id", topic.ID,
		"parameter_count", len(rendered),
		"parameters", paramNames(rendered))

	return rendered, nil
}

// effectivePath is the extraction path, defaulting to the parameter name
// so request and conversation payloads keyed by name need no explicit path.
func effectivePath(def registry.ParameterDef) string {
	if def.Path != "" {
		return def.Path
	}
	return def.Name
}

// fetchedSources returns the distinct external sources the topic needs,
// in first-declaration order.
func fetchedSources(topic *registry.Topic) []models.ParamSource {
	seen := make(map[models.ParamSource]struct{})
	var sources []models.ParamSource
	for _, def := range topic.Params {
		if !def.Source.IsFetched() {
			continue
		}
		if _, ok := seen[def.Source]; ok {
			continue
		}
		seen[def.Source] = struct{}{}
		sources = append(sources, def.Source)
	}
	return sources
}

// computeParam combines already-resolved parameters into a labelled block.
// Computed parameters may only reference parameters declared before them.
func computeParam(def registry.ParameterDef, rendered map[string]any) (string, error) {
	var b strings.Builder
	for _, input := range def.Inputs {
		value, ok := rendered[input]
		if !ok {
			return "", fmt.Errorf("computed parameter %s references unresolved parameter %s", def.Name, input)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s:\n%v", input, value)
	}
	return b.String(), nil
}

func paramNames(rendered map[string]any) []string {
	names := make([]string, 0, len(rendered))
	for name := range rendered {
		names = append(names, name)
	}
	return names
}
