// Package metadata provides typed metadata documents, filter evaluation and
// a roaring-bitmap inverted index over record positions. Legal corpus fields
// such as case_type, court, date and judge are ordinary string values; the
// package enforces no schema.
package metadata

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid marks the zero Value.
	KindInvalid Kind = iota
	// KindNull is an explicit null.
	KindNull
	// KindInt is an int64.
	KindInt
	// KindFloat is a float64.
	KindFloat
	// KindString is a string.
	KindString
	// KindBool is a boolean.
	KindBool
	// KindArray is a list of Values.
	KindArray
)

// Value is a small typed value used for metadata documents and filters.
// The representation avoids reflection and fmt-based stringification so
// filter evaluation stays cheap.
//
// NOTE: Value is persisted inside snapshots and WAL entries; keep it stable.
type Value struct {
	Kind Kind    `json:"k"`
	I64  int64   `json:"i,omitempty"`
	F64  float64 `json:"f,omitempty"`
	S    string  `json:"s,omitempty"`
	B    bool    `json:"b,omitempty"`
	A    []Value `json:"a,omitempty"`
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, S: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Array returns an array Value.
func Array(v ...Value) Value { return Value{Kind: KindArray, A: v} }

// Strings returns an array Value of strings, convenient for In filters.
func Strings(vs ...string) Value {
	arr := make([]Value, len(vs))
	for i, s := range vs {
		arr[i] = String(s)
	}
	return Array(arr...)
}

// Key returns a stable string representation for use as an inverted index
// key. It must remain stable across versions for persisted indexes.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.S
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindArray:
		if len(v.A) == 0 {
			return "a:"
		}
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	default:
		return "invalid"
	}
}

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the float64 value if Kind is KindFloat.
func (v Value) AsFloat64() (float64, bool) {
	if v.Kind != KindFloat {
		return 0, false
	}
	return v.F64, true
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.S, true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsArray returns the array value if Kind is KindArray.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	return v.A, true
}

// Document is a typed metadata document.
type Document map[string]Value

// Clone deep-copies the document so callers cannot mutate stored state after
// ingest. Returns nil for nil or empty input.
func (d Document) Clone() Document {
	if len(d) == 0 {
		return nil
	}
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = v.clone()
	}
	return clone
}

func (v Value) clone() Value {
	if v.Kind != KindArray || len(v.A) == 0 {
		return v
	}
	arr := make([]Value, len(v.A))
	for i := range v.A {
		arr[i] = v.A[i].clone()
	}
	v.A = arr
	return v
}

// FromAny converts a map[string]any (decoded JSON, legacy callers) into a
// Document. Unsupported value types become null.
func FromAny(m map[string]any) Document {
	if len(m) == 0 {
		return nil
	}
	doc := make(Document, len(m))
	for k, v := range m {
		doc[k] = valueFromAny(v)
	}
	return doc
}

func valueFromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float64:
		// JSON numbers decode to float64; keep integral values as ints so
		// Eq filters against Int values behave as expected.
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Int(int64(x))
		}
		return Float(x)
	case float32:
		return valueFromAny(float64(x))
	case []any:
		arr := make([]Value, len(x))
		for i, item := range x {
			arr[i] = valueFromAny(item)
		}
		return Array(arr...)
	default:
		return Null()
	}
}
