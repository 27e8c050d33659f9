package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tractionlabs/aigateway/pkg/apperr"
)

// ErrModelNotFound is returned when a response model name is not registered.
var ErrModelNotFound = errors.New("response model not found")

// Registry holds compiled response models. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	models   map[string]Model
	docs     map[string]map[string]any
	compiled map[string]*jsonschema.Schema
}

// NewRegistry compiles the given models. Compilation failures are
// programming errors and abort construction.
func NewRegistry(models ...Model) (*Registry, error) {
	r := &Registry{
		models:   make(map[string]Model, len(models)),
		docs:     make(map[string]map[string]any, len(models)),
		compiled: make(map[string]*jsonschema.Schema, len(models)),
	}

	for _, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("response model with empty name")
		}
		if _, exists := r.models[m.Name]; exists {
			return nil, fmt.Errorf("duplicate response model %q", m.Name)
		}

		doc, err := m.JSONSchema()
		if err != nil {
			return nil, err
		}

		c := jsonschema.NewCompiler()
		resource := m.Name + ".json"
		if err := c.AddResource(resource, anyCopy(doc)); err != nil {
			return nil, fmt.Errorf("model %q: add schema resource: %w", m.Name, err)
		}
		compiled, err := c.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("model %q: compile schema: %w", m.Name, err)
		}

		r.models[m.Name] = m
		r.docs[m.Name] = doc
		r.compiled[m.Name] = compiled
	}

	return r, nil
}

// NewBuiltinRegistry compiles the built-in response model catalogue.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry(BuiltinModels()...)
}

// Has reports whether a model with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.models[name]
	return ok
}

// Names returns the registered model names in unspecified order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

// Get returns the descriptor tree for a model.
func (r *Registry) Get(name string) (Model, error) {
	m, ok := r.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return m, nil
}

// JSONSchema returns the compiled JSON Schema document for a model. The
// document is shared; callers must not mutate it.
func (r *Registry) JSONSchema(name string) (map[string]any, error) {
	doc, ok := r.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return doc, nil
}

// Validate checks a decoded JSON value against a model. Violations come
// back as LLMOutputInvalid with the failing instance paths in the message.
func (r *Registry) Validate(name string, value any) error {
	compiled, ok := r.compiled[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	err := compiled.Validate(value)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return apperr.Wrap(apperr.CodeLLMOutputInvalid, err,
			"output does not match response model %s (violations at %s)",
			name, summarizePaths(verr)).WithName(name)
	}
	return apperr.Wrap(apperr.CodeLLMOutputInvalid, err,
		"output does not match response model %s", name).WithName(name)
}

// summarizePaths flattens a validation error tree into the failing
// instance paths. Full details stay in the wrapped cause.
func summarizePaths(verr *jsonschema.ValidationError) string {
	var paths []string
	collectLeafPaths(verr, &paths)
	const maxPaths = 5
	if len(paths) > maxPaths {
		paths = append(paths[:maxPaths], fmt.Sprintf("and %d more", len(paths)-maxPaths))
	}
	return strings.Join(paths, ", ")
}

func collectLeafPaths(verr *jsonschema.ValidationError, out *[]string) {
	if len(verr.Causes) == 0 {
		*out = append(*out, "/"+strings.Join(verr.InstanceLocation, "/"))
		return
	}
	for _, cause := range verr.Causes {
		collectLeafPaths(cause, out)
	}
}

// anyCopy re-types nested map[string]any values as plain any trees, which
// is the shape the schema compiler expects for an in-memory resource.
func anyCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = anyCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = anyCopy(val)
		}
		return out
	default:
		return v
	}
}
