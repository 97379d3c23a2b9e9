package override

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

var ErrMalformedModuleRef = errors.New("malformed module reference")

// ParseModuleRef parses the compact notation "Name(k1=v1, k2=v2)" into
// {"module": "Name", "args": {"k1": "v1", "k2": "v2"}}. ok is false when s
// is not call-like at all. Argument values are trimmed strings, except that
// a value which is itself a module reference or a JSON object is expanded.
func ParseModuleRef(s string) (ref jsontree.Value, ok bool, err error) {
	trimmed := strings.TrimSpace(s)
	open := strings.IndexByte(trimmed, '(')
	if open <= 0 || !strings.HasSuffix(trimmed, ")") {
		return jsontree.Value{}, false, nil
	}
	name := strings.TrimSpace(trimmed[:open])
	if !isModuleName(name) {
		return jsontree.Value{}, false, nil
	}

	inner := strings.TrimSpace(trimmed[open+1 : len(trimmed)-1])
	args := jsontree.Map()
	for _, part := range splitTopLevel(inner) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			return jsontree.Value{}, true, fmt.Errorf("%w: %q: argument %q is not key=value", ErrMalformedModuleRef, s, part)
		}
		key := strings.TrimSpace(part[:eq])
		val, err := normalizeString(strings.TrimSpace(part[eq+1:]))
		if err != nil {
			return jsontree.Value{}, true, err
		}
		args = args.Set(key, val)
	}

	return jsontree.Map(
		jsontree.F("module", jsontree.String(name)),
		jsontree.F("args", args),
	), true, nil
}

func isModuleName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// splitTopLevel splits on commas that are not nested inside brackets or
// quotes, so "a=[1,2], b=Foo(x=1, y=2)" yields two parts.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if start <= len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func looksLikeJSONObject(s string) bool {
	return strings.Contains(s, "{") && strings.Contains(s, "}")
}
