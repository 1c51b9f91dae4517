package filter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// MaxTermsPerClause caps an OR-group.
const MaxTermsPerClause = 256

// Kind is the shape of a compiled filter clause.
type Kind string

// Clause kinds.
const (
	Equal Kind = "equal"
	Terms Kind = "terms"
	Range Kind = "range"
)

// Clause is a single compiled filter: equality, OR-of-values, or inclusive range.
type Clause struct {
	field  string
	kind   Kind
	value  any
	values []any
	min    any
	max    any
}

// NewEqual creates an equality clause.
func NewEqual(field string, value any) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("filter field is required")
	}
	if !isScalar(value) {
		return Clause{}, fmt.Errorf("equality value for %q must be a scalar", field)
	}
	return Clause{field: field, kind: Equal, value: value}, nil
}

// NewTerms creates an OR-group clause. Non-scalar entries are discarded.
func NewTerms(field string, values []any) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("filter field is required")
	}
	kept := make([]any, 0, len(values))
	for _, v := range values {
		if isScalar(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return Clause{}, fmt.Errorf("terms for %q must contain at least one scalar", field)
	}
	if len(kept) > MaxTermsPerClause {
		return Clause{}, fmt.Errorf("too many terms for %q (max %d)", field, MaxTermsPerClause)
	}
	return Clause{field: field, kind: Terms, values: kept}, nil
}

// NewRange creates an inclusive range clause. At least one bound is required.
func NewRange(field string, minV, maxV any) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("filter field is required")
	}
	if minV == nil && maxV == nil {
		return Clause{}, fmt.Errorf("range for %q needs min or max", field)
	}
	if (minV != nil && !isBound(minV)) || (maxV != nil && !isBound(maxV)) {
		return Clause{}, fmt.Errorf("range bounds for %q must be numbers or strings", field)
	}
	return Clause{field: field, kind: Range, min: minV, max: maxV}, nil
}

// Field returns the filtered field name.
func (c Clause) Field() string { return c.field }

// Kind returns the clause shape.
func (c Clause) Kind() Kind { return c.kind }

// Value returns the equality value.
func (c Clause) Value() any { return c.value }

// Values returns the OR-group values.
func (c Clause) Values() []any { return c.values }

// Min returns the inclusive lower bound or nil.
func (c Clause) Min() any { return c.min }

// Max returns the inclusive upper bound or nil.
func (c Clause) Max() any { return c.max }

// Target returns the field identifier the clause must address. On text fields
// equality and terms go to the exact-match representation, ranges to the bare field.
func (c Clause) Target(isText bool, exact func(string) string) string {
	if isText && c.kind != Range && exact != nil {
		return exact(c.field)
	}
	return c.field
}

// Compile classifies a raw field→value filter map. Malformed entries are dropped.
// Result is ordered by field name; clauses combine with AND.
func Compile(raw map[string]any) []Clause {
	fields := make([]string, 0, len(raw))
	for k := range raw {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	out := make([]Clause, 0, len(fields))
	for _, f := range fields {
		c, ok := classify(f, raw[f])
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func classify(f string, v any) (Clause, bool) {
	if v == nil {
		return Clause{}, false
	}
	if m, ok := asObject(v); ok {
		minV, maxV, ok := rangeBounds(m)
		if !ok {
			return Clause{}, false
		}
		c, err := NewRange(f, minV, maxV)
		return c, err == nil
	}
	if list, ok := asList(v); ok {
		c, err := NewTerms(f, list)
		return c, err == nil
	}
	c, err := NewEqual(f, v)
	return c, err == nil
}

// rangeBounds accepts objects whose only keys are min and/or max.
func rangeBounds(m map[string]any) (any, any, bool) {
	if len(m) == 0 || len(m) > 2 {
		return nil, nil, false
	}
	for k := range m {
		if k != "min" && k != "max" {
			return nil, nil, false
		}
	}
	return m["min"], m["max"], true
}

func asObject(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case map[string]float64:
		out := make(map[string]any, len(x))
		for k, f := range x {
			out[k] = f
		}
		return out, true
	case map[string]int:
		out := make(map[string]any, len(x))
		for k, i := range x {
			out[k] = i
		}
		return out, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func isBound(v any) bool {
	_, isBool := v.(bool)
	return isScalar(v) && !isBool
}

// AsFloat converts a numeric scalar to float64.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
