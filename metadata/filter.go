package metadata

import "strings"

// Operator is a comparison operator for filtering.
type Operator string

const (
	// OpEqual matches values that equal the filter value.
	OpEqual Operator = "eq"
	// OpNotEqual matches values that differ from the filter value.
	OpNotEqual Operator = "ne"
	// OpGreaterThan matches numeric values strictly greater.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual matches numeric values greater or equal.
	OpGreaterEqual Operator = "gte"
	// OpLessThan matches numeric values strictly less.
	OpLessThan Operator = "lt"
	// OpLessEqual matches numeric values less or equal.
	OpLessEqual Operator = "lte"
	// OpIn matches values contained in the filter's array value.
	OpIn Operator = "in"
	// OpContains matches strings containing the filter value as a substring.
	OpContains Operator = "contains"
)

// Filter is a single metadata condition on one field.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"op"`
	Value    Value    `json:"value"`
}

// Eq builds an equality filter.
func Eq(field string, v Value) Filter {
	return Filter{Field: field, Operator: OpEqual, Value: v}
}

// In builds a membership filter over an array value.
func In(field string, v Value) Filter {
	return Filter{Field: field, Operator: OpIn, Value: v}
}

// FilterSet is a conjunction: every filter must match (AND semantics).
type FilterSet []Filter

// Matches reports whether doc satisfies the filter. A missing field never
// matches, including for OpNotEqual.
func (f Filter) Matches(doc Document) bool {
	value, ok := doc[f.Field]
	if !ok {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	case OpNotEqual:
		return !compareEqual(value, f.Value)
	case OpGreaterThan:
		return compareGreater(value, f.Value)
	case OpGreaterEqual:
		return compareGreater(value, f.Value) || compareEqual(value, f.Value)
	case OpLessThan:
		return compareLess(value, f.Value)
	case OpLessEqual:
		return compareLess(value, f.Value) || compareEqual(value, f.Value)
	case OpIn:
		return compareIn(value, f.Value)
	case OpContains:
		return compareContains(value, f.Value)
	default:
		return false
	}
}

// Matches reports whether doc satisfies every filter in the set. An empty
// set matches everything.
func (fs FilterSet) Matches(doc Document) bool {
	for _, f := range fs {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.S == b.S
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if isNumber(a) && isNumber(b) {
		return asFloat64(a) > asFloat64(b)
	}
	// Date strings in the corpus are ISO-8601; lexicographic order is
	// chronological order.
	if a.Kind == KindString && b.Kind == KindString {
		return a.S > b.S
	}
	return false
}

func compareLess(a, b Value) bool {
	if isNumber(a) && isNumber(b) {
		return asFloat64(a) < asFloat64(b)
	}
	if a.Kind == KindString && b.Kind == KindString {
		return a.S < b.S
	}
	return false
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareContains(a, b Value) bool {
	if a.Kind != KindString || b.Kind != KindString {
		return false
	}
	return strings.Contains(a.S, b.S)
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
