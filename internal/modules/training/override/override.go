// Package override applies user-supplied partial edits to a generated model
// description.
//
// Apply is the entry point: the override is normalized first (call-notation
// strings become {"module", "args"} nodes) and then deep-merged into the
// base tree, so structured module references are what end up in json_ai.
package override

import (
	"fmt"

	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

// Apply normalizes override and merges it into base. A null override leaves
// base unchanged.
func Apply(base, override jsontree.Value) (jsontree.Value, error) {
	if override.IsNull() {
		return base, nil
	}
	if !override.IsMap() {
		return jsontree.Value{}, fmt.Errorf("override: top level must be an object, got %s", override.Kind())
	}
	normalized, err := Normalize(override)
	if err != nil {
		return jsontree.Value{}, err
	}
	return Merge(base, normalized), nil
}

// Merge deep-merges override into base. Where both sides hold a map under
// the same key the maps are merged recursively; otherwise the override
// value replaces (or inserts) the base value. Merge(Merge(b, o), o) equals
// Merge(b, o).
func Merge(base, override jsontree.Value) jsontree.Value {
	if !base.IsMap() || !override.IsMap() {
		return override
	}
	out := base
	for _, k := range override.Keys() {
		ov, _ := override.Get(k)
		bv, ok := out.Get(k)
		if ok && bv.IsMap() && ov.IsMap() {
			out = out.Set(k, Merge(bv, ov))
			continue
		}
		out = out.Set(k, ov)
	}
	return out
}

// Normalize rewrites string leaves written in call notation into module
// nodes and opportunistically decodes strings that look like JSON objects.
// Maps and sequences are walked recursively. Normalize is idempotent.
func Normalize(v jsontree.Value) (jsontree.Value, error) {
	switch v.Kind() {
	case jsontree.KindMap:
		out := v
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			nc, err := Normalize(child)
			if err != nil {
				return jsontree.Value{}, fmt.Errorf("%s: %w", k, err)
			}
			out = out.Set(k, nc)
		}
		return out, nil
	case jsontree.KindSeq:
		out := v
		for i, child := range v.Items() {
			nc, err := Normalize(child)
			if err != nil {
				return jsontree.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out = out.WithItem(i, nc)
		}
		return out, nil
	case jsontree.KindScalar:
		s, ok := v.Str()
		if !ok {
			return v, nil
		}
		return normalizeString(s)
	default:
		return v, nil
	}
}

func normalizeString(s string) (jsontree.Value, error) {
	ref, ok, err := ParseModuleRef(s)
	if err != nil {
		return jsontree.Value{}, err
	}
	if ok {
		return ref, nil
	}
	if looksLikeJSONObject(s) {
		parsed, perr := jsontree.Parse([]byte(s))
		if perr != nil {
			// Best effort only: keep the raw string.
			return jsontree.String(s), nil
		}
		return Normalize(parsed)
	}
	return jsontree.String(s), nil
}
