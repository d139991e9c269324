package executor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// TemplateEngine substitutes {{dotted.path}} placeholders against an
// execution context. Unresolvable placeholders are left verbatim: upstream
// outputs may legitimately be absent during partial execution.
type TemplateEngine struct {
	data map[string]any
}

// NewTemplateEngine creates a template engine over the given context.
func NewTemplateEngine(data map[string]any) *TemplateEngine {
	return &TemplateEngine{data: data}
}

// Resolve substitutes every resolvable placeholder in s.
func (e *TemplateEngine) Resolve(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := e.lookup(path)
		if !ok {
			return match
		}
		return FormatValue(value)
	})
}

// ResolveAny walks an arbitrary parameter structure and resolves templates in
// every string leaf. Maps and slices are rebuilt; other values pass through.
func (e *TemplateEngine) ResolveAny(v any) any {
	switch val := v.(type) {
	case string:
		return e.Resolve(val)
	case map[string]any:
		resolved := make(map[string]any, len(val))
		for k, item := range val {
			resolved[k] = e.ResolveAny(item)
		}
		return resolved
	case []any:
		resolved := make([]any, len(val))
		for i, item := range val {
			resolved[i] = e.ResolveAny(item)
		}
		return resolved
	default:
		return v
	}
}

// lookup resolves a dotted path against the context. Each segment after the
// first indexes into a mapping; indexing a scalar fails the lookup.
func (e *TemplateEngine) lookup(path string) (any, bool) {
	segments := strings.Split(path, ".")

	current, ok := e.data[segments[0]]
	if !ok {
		return nil, false
	}

	for _, seg := range segments[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// FormatValue stringifies a resolved value. Booleans render in their
// capitalized form, numbers by their natural decimal representation, and
// composite values as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
