package options

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// SortField is one entry of the unified sort shorthand.
type SortField struct {
	Field string
	Desc  bool
}

// Direction returns "asc" or "desc".
func (f SortField) Direction() string {
	if f.Desc {
		return "desc"
	}
	return "asc"
}

// Sort is either the unified field→direction shorthand or native engine syntax.
type Sort struct {
	unified []SortField
	native  any
}

// UnifiedSort builds a unified sort from ordered fields.
func UnifiedSort(fields ...SortField) Sort { return Sort{unified: fields} }

// NativeSortOf wraps engine-native sort syntax for verbatim pass-through.
func NativeSortOf(v any) Sort {
	if fields, ok := ParseUnifiedSort(v); ok {
		return Sort{unified: fields}
	}
	return Sort{native: v}
}

// Unified returns the unified sort fields.
func (s Sort) Unified() []SortField { return s.unified }

// Native returns native sort syntax, or nil.
func (s Sort) Native() any { return s.native }

// IsNative reports whether the sort is native engine syntax.
func (s Sort) IsNative() bool { return s.native != nil }

// IsEmpty reports whether no sort was given.
func (s Sort) IsEmpty() bool { return len(s.unified) == 0 && s.native == nil }

// ParseUnifiedSort recognises a map of string keys to "asc"/"desc".
// Go maps are unordered, so keys are taken alphabetically; JSON input keeps its order.
func ParseUnifiedSort(v any) ([]SortField, bool) {
	var m map[string]string
	switch x := v.(type) {
	case map[string]string:
		m = x
	case map[string]any:
		m = make(map[string]string, len(x))
		for k, val := range x {
			s, ok := val.(string)
			if !ok {
				return nil, false
			}
			m[k] = s
		}
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]SortField, 0, len(keys))
	for _, k := range keys {
		desc, ok := parseDirection(m[k])
		if !ok {
			return nil, false
		}
		out = append(out, SortField{Field: k, Desc: desc})
	}
	return out, true
}

func parseDirection(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "asc":
		return false, true
	case "desc":
		return true, true
	}
	return false, false
}

// UnmarshalJSON keeps key order for the unified shorthand and anything else verbatim.
func (s *Sort) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = Sort{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if fields, ok := decodeOrderedUnified(trimmed); ok {
			*s = Sort{unified: fields}
			return nil
		}
	}
	var native any
	if err := json.Unmarshal(trimmed, &native); err != nil {
		return err
	}
	*s = Sort{native: native}
	return nil
}

func decodeOrderedUnified(b []byte) ([]SortField, bool) {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	var out []SortField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		val, ok := valTok.(string)
		if !ok {
			return nil, false
		}
		desc, ok := parseDirection(val)
		if !ok {
			return nil, false
		}
		out = append(out, SortField{Field: key, Desc: desc})
	}
	return out, len(out) > 0
}

// MarshalJSON writes the unified form as an ordered object.
func (s Sort) MarshalJSON() ([]byte, error) {
	if s.native != nil {
		return json.Marshal(s.native)
	}
	if len(s.unified) == 0 {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.unified {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteString(`:"` + f.Direction() + `"`)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
