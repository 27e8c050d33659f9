package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tractionlabs/aigateway/pkg/apperr"
)

// placeholderPattern matches {name} references in template text.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Render substitutes {name} placeholders with context values. A
// placeholder with no corresponding context entry fails with
// TemplateUnresolved naming the first missing placeholder.
func Render(template string, context map[string]any) (string, error) {
	var missing string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := context[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return stringify(value)
	})

	if missing != "" {
		return "", apperr.New(apperr.CodeTemplateUnresolved,
			"template references %s but the context does not provide it", missing).WithName(missing)
	}
	return rendered, nil
}

// stringify formats a context value for prompt text. Strings pass through
// untouched; everything else goes through %v.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
