// Package schema is the response model registry: typed field-descriptor trees
// compiled to JSON Schema (draft 2020-12) and used to validate structured LLM
// output. Validation is strict: unknown fields are rejected, nullability must
// be declared, and string/number bounds are enforced.
package schema

import "fmt"

// Kind is the type of a field descriptor.
type Kind string

const (
	KindString    Kind = "string"
	KindInteger   Kind = "integer"
	KindNumber    Kind = "number"
	KindBoolean   Kind = "boolean"
	KindTimestamp Kind = "timestamp"
	KindArray     Kind = "array"
	KindObject    Kind = "object"
	KindMap       Kind = "map"
	KindEnum      Kind = "enum"
)

// Field describes one node of a response model tree.
type Field struct {
	Kind        Kind
	Description string

	// Required marks object members that must be present.
	Required bool
	// Nullable allows an explicit JSON null.
	Nullable bool

	// String bounds.
	MinLength *int
	MaxLength *int

	// Numeric bounds.
	Minimum *float64
	Maximum *float64

	// Array bounds and item schema.
	MinItems *int
	MaxItems *int
	Items    *Field

	// Object members. Property order in the emitted schema is not
	// significant; the map key is the JSON field name.
	Fields map[string]*Field

	// Map value schema (string keys).
	Values *Field

	// Enum variants (string-tagged).
	Enum []string
}

// Model is a named response schema. Root must be an object descriptor.
type Model struct {
	Name string
	Root *Field
}

// compile converts a descriptor tree into a JSON Schema document.
func (f *Field) compile() (map[string]any, error) {
	node := map[string]any{}
	if f.Description != "" {
		node["description"] = f.Description
	}

	setType := func(t string) {
		if f.Nullable {
			node["type"] = []any{t, "null"}
		} else {
			node["type"] = t
		}
	}

	switch f.Kind {
	case KindString:
		setType("string")
		if f.MinLength != nil {
			node["minLength"] = *f.MinLength
		}
		if f.MaxLength != nil {
			node["maxLength"] = *f.MaxLength
		}
	case KindInteger:
		setType("integer")
		if f.Minimum != nil {
			node["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			node["maximum"] = *f.Maximum
		}
	case KindNumber:
		setType("number")
		if f.Minimum != nil {
			node["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			node["maximum"] = *f.Maximum
		}
	case KindBoolean:
		setType("boolean")
	case KindTimestamp:
		setType("string")
		node["format"] = "date-time"
	case KindEnum:
		if len(f.Enum) == 0 {
			return nil, fmt.Errorf("enum field has no variants")
		}
		variants := make([]any, 0, len(f.Enum)+1)
		for _, v := range f.Enum {
			variants = append(variants, v)
		}
		if f.Nullable {
			variants = append(variants, nil)
		}
		node["enum"] = variants
	case KindArray:
		if f.Items == nil {
			return nil, fmt.Errorf("array field has no item schema")
		}
		setType("array")
		items, err := f.Items.compile()
		if err != nil {
			return nil, err
		}
		node["items"] = items
		if f.MinItems != nil {
			node["minItems"] = *f.MinItems
		}
		if f.MaxItems != nil {
			node["maxItems"] = *f.MaxItems
		}
	case KindObject:
		setType("object")
		props := make(map[string]any, len(f.Fields))
		required := make([]any, 0, len(f.Fields))
		for name, member := range f.Fields {
			compiled, err := member.compile()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			props[name] = compiled
			if member.Required {
				required = append(required, name)
			}
		}
		node["properties"] = props
		if len(required) > 0 {
			node["required"] = required
		}
		node["additionalProperties"] = false
	case KindMap:
		if f.Values == nil {
			return nil, fmt.Errorf("map field has no value schema")
		}
		setType("object")
		values, err := f.Values.compile()
		if err != nil {
			return nil, err
		}
		node["additionalProperties"] = values
	default:
		return nil, fmt.Errorf("unknown field kind %q", f.Kind)
	}

	return node, nil
}

// JSONSchema compiles the model into a standalone JSON Schema document.
func (m Model) JSONSchema() (map[string]any, error) {
	if m.Root == nil || m.Root.Kind != KindObject {
		return nil, fmt.Errorf("model %q: root must be an object", m.Name)
	}
	doc, err := m.Root.compile()
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", m.Name, err)
	}
	doc["$schema"] = "https://json-schema.org/draft/2020-12/schema"
	doc["title"] = m.Name
	return doc, nil
}
