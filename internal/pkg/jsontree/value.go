// Package jsontree is an ordered, immutable JSON value.
//
// A Value is one of Null, Scalar (bool, number, string), Seq (ordered
// sequence) or Map (string keys in insertion order). Transformations return
// new Values; a Value handed out is never mutated afterwards, so subtrees are
// shared freely between the input and output of a transformation.
package jsontree

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindSeq
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindSeq:
		return "seq"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is the zero-value-is-null tagged variant.
type Value struct {
	kind   Kind
	scalar any
	items  []Value
	keys   []string
	fields map[string]Value
}

type Field struct {
	Key   string
	Value Value
}

func F(key string, v Value) Field { return Field{Key: key, Value: v} }

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindScalar, scalar: s} }

func Bool(b bool) Value { return Value{kind: KindScalar, scalar: b} }

func Number(n float64) Value {
	return Value{kind: KindScalar, scalar: json.Number(strconv.FormatFloat(n, 'f', -1, 64))}
}

func Seq(items ...Value) Value {
	out := Value{kind: KindSeq, items: make([]Value, len(items))}
	copy(out.items, items)
	return out
}

func Map(fields ...Field) Value {
	out := emptyMap()
	for _, f := range fields {
		out.put(f.Key, f.Value)
	}
	return out
}

func emptyMap() Value {
	return Value{kind: KindMap, keys: []string{}, fields: map[string]Value{}}
}

// put mutates v in place; only used while building a fresh Value.
func (v *Value) put(key string, val Value) {
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = val
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsMap() bool    { return v.kind == KindMap }
func (v Value) IsSeq() bool    { return v.kind == KindSeq }
func (v Value) IsScalar() bool { return v.kind == KindScalar }

// Str returns the string payload of a string scalar.
func (v Value) Str() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	s, ok := v.scalar.(string)
	return s, ok
}

// Scalar returns the raw scalar payload (bool, json.Number or string).
func (v Value) Scalar() any { return v.scalar }

func (v Value) Len() int {
	switch v.kind {
	case KindSeq:
		return len(v.items)
	case KindMap:
		return len(v.keys)
	default:
		return 0
	}
}

func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.fields[key]
	return val, ok
}

func (v Value) Items() []Value {
	if v.kind != KindSeq {
		return nil
	}
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

// Set returns a copy of the map v with key bound to val. New keys are
// appended after the existing ones. A non-map receiver is treated as an
// empty map.
func (v Value) Set(key string, val Value) Value {
	out := emptyMap()
	if v.kind == KindMap {
		out.keys = append(out.keys, v.keys...)
		for k, fv := range v.fields {
			out.fields[k] = fv
		}
	}
	out.put(key, val)
	return out
}

// WithItem returns a copy of the sequence v with element i replaced.
func (v Value) WithItem(i int, val Value) Value {
	out := Seq(v.items...)
	out.items[i] = val
	return out
}

// Equal reports semantic JSON equality: map key order is ignored and
// numbers compare by value.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindScalar:
		return scalarEqual(a.scalar, b.scalar)
	case KindSeq:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for _, k := range a.keys {
			bv, ok := b.fields[k]
			if !ok || !Equal(a.fields[k], bv) {
				return false
			}
		}
		return true
	}
	return false
}

func scalarEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FromAny converts decoded-JSON shaped Go data into a Value. Keys of Go maps
// are sorted since their iteration order is undefined.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case json.Number:
		return Value{kind: KindScalar, scalar: t}
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Value{kind: KindScalar, scalar: json.Number(fmt.Sprint(t))}
	case []any:
		out := Value{kind: KindSeq, items: make([]Value, len(t))}
		for i, item := range t {
			out.items[i] = FromAny(item)
		}
		return out
	case []string:
		out := Value{kind: KindSeq, items: make([]Value, len(t))}
		for i, item := range t {
			out.items[i] = String(item)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := emptyMap()
		for _, k := range keys {
			out.put(k, FromAny(t[k]))
		}
		return out
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := emptyMap()
		for _, k := range keys {
			out.put(k, String(t[k]))
		}
		return out
	}
	// Structs and other typed values go through their JSON encoding.
	raw, err := json.Marshal(x)
	if err == nil {
		if v, perr := Parse(raw); perr == nil {
			return v
		}
	}
	return String(fmt.Sprint(x))
}

// Any converts v back into map[string]any / []any / scalar form.
func (v Value) Any() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindSeq:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.fields[k].Any()
		}
		return out
	default:
		return nil
	}
}

// AnyMap is Any for map values; non-maps yield an empty map.
func (v Value) AnyMap() map[string]any {
	if m, ok := v.Any().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
