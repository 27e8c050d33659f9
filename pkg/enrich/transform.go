package enrich

import (
	"fmt"
	"strings"
)

// Named transforms applied to extracted values before rendering.
const (
	TransformSummarizeMeasures = "summarize_measures"
	TransformJoinValues        = "join_values"
)

// applyTransform runs a named transform. Unknown names are a catalogue
// authoring error.
func applyTransform(name string, value any) (any, error) {
	switch name {
	case TransformSummarizeMeasures:
		return summarizeMeasures(value), nil
	case TransformJoinValues:
		return joinValues(value), nil
	default:
		return nil, fmt.Errorf("unknown transform %q", name)
	}
}

// summarizeMeasures renders a measures list as one line per measure so the
// scorecard fits in a prompt without raw JSON.
func summarizeMeasures(value any) string {
	items, ok := value.([]any)
	if !ok {
		return itemLabel(value)
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			lines = append(lines, itemLabel(item))
			continue
		}
		line := itemLabel(m["name"])
		if current, ok := m["current"]; ok {
			line += fmt.Sprintf(": %v", current)
			if target, ok := m["target"]; ok {
				line += fmt.Sprintf(" / %v", target)
			}
			if unit, ok := m["unit"].(string); ok && unit != "" {
				line += " " + unit
			}
		}
		if status, ok := m["status"].(string); ok && status != "" {
			line += " (" + status + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// joinValues flattens a list into a comma-separated string. Object items
// contribute their title (or name, or value) field.
func joinValues(value any) string {
	items, ok := value.([]any)
	if !ok {
		return itemLabel(value)
	}

	labels := make([]string, 0, len(items))
	for _, item := range items {
		labels = append(labels, itemLabel(item))
	}
	return strings.Join(labels, ", ")
}

func itemLabel(item any) string {
	switch v := item.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"title", "name", "value"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
