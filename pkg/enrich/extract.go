package enrich

import (
	"strconv"
	"strings"
)

// extract applies a dotted path to a decoded JSON payload. Segments
// traverse object keys; numeric segments index arrays. Any miss (absent
// key, index past the end, traversal into a scalar) yields nil rather
// than an error; the caller decides between default and failure.
func extract(payload any, path string) any {
	if path == "" {
		return nil
	}

	current := payload
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[segment]
			if !ok {
				return nil
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return nil
		}
	}
	return current
}
