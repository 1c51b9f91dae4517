package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

func resolveText(_ context.Context, _ field.Mapping, v content.FieldValue) (any, error) {
	s := strings.TrimSpace(flatten(v.Value))
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// resolveOptions yields the selected option values: a string for single
// selections, a list otherwise. Text mappings get the labels joined.
func resolveOptions(_ context.Context, m field.Mapping, v content.FieldValue) (any, error) {
	var values, labels []string
	for _, o := range asList(v.Value) {
		value, label := option(o)
		if value == "" {
			continue
		}
		values = append(values, value)
		labels = append(labels, label)
	}
	if len(values) == 0 {
		return nil, nil
	}
	if m.FieldType() == field.Text {
		return strings.Join(labels, " "), nil
	}
	if _, multi := v.Value.([]any); !multi && len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

func option(o any) (value, label string) {
	if mm, ok := o.(map[string]any); ok {
		value = scalar(mm["value"])
		label = scalar(mm["label"])
		if label == "" {
			label = value
		}
		return value, label
	}
	s := scalar(o)
	return s, s
}

// resolveRelation yields related ids, or their titles for text mappings.
func resolveRelation(_ context.Context, m field.Mapping, v content.FieldValue) (any, error) {
	var ids, titles []string
	for _, r := range asList(v.Value) {
		if mm, ok := r.(map[string]any); ok {
			if id := scalar(mm["id"]); id != "" {
				ids = append(ids, id)
			}
			if title := scalar(mm["title"]); title != "" {
				titles = append(titles, title)
			}
			continue
		}
		if id := scalar(r); id != "" {
			ids = append(ids, id)
		}
	}
	if m.FieldType() == field.Text {
		if len(titles) == 0 {
			return nil, nil
		}
		return strings.Join(titles, " "), nil
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

func resolveNumber(_ context.Context, m field.Mapping, v content.FieldValue) (any, error) {
	raw := v.Value
	if mm, ok := raw.(map[string]any); ok {
		raw = mm["amount"]
	}
	f, ok := toFloat(raw)
	if !ok {
		if raw == nil || scalar(raw) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("not a number: %v", raw)
	}
	if m.FieldType() == field.Integer {
		return int64(f), nil
	}
	if m.FieldType() == field.Text || m.FieldType() == field.Keyword {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return f, nil
}

func resolveBoolean(_ context.Context, _ field.Mapping, v content.FieldValue) (any, error) {
	switch x := v.Value.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "", "0", "false", "off", "no":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean: %q", x)
	}
	if f, ok := toFloat(v.Value); ok {
		return f != 0, nil
	}
	return nil, fmt.Errorf("not a boolean: %v", v.Value)
}

// resolveDate parses the value; engines convert it to their wire form on write.
func resolveDate(_ context.Context, _ field.Mapping, v content.FieldValue) (any, error) {
	if v.Value == nil || scalar(v.Value) == "" {
		return nil, nil
	}
	t, ok := document.ParseDate(v.Value)
	if !ok {
		return nil, fmt.Errorf("not a date: %v", v.Value)
	}
	return t, nil
}

// resolveStructured keeps rows for object mappings and flattens cells to text otherwise.
func resolveStructured(_ context.Context, m field.Mapping, v content.FieldValue) (any, error) {
	rows := asList(v.Value)
	if len(rows) == 0 {
		return nil, nil
	}
	if m.FieldType() == field.Object {
		return rows, nil
	}
	s := strings.TrimSpace(flatten(rows))
	if s == "" {
		return nil, nil
	}
	return s, nil
}

func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// flatten joins every scalar found in v with spaces. Map keys are visited in order.
func flatten(v any) string {
	var parts []string
	var walk func(any)
	walk = func(x any) {
		switch y := x.(type) {
		case nil:
		case []any:
			for _, e := range y {
				walk(e)
			}
		case map[string]any:
			keys := make([]string, 0, len(y))
			for k := range y {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(y[k])
			}
		default:
			if s := strings.TrimSpace(scalar(y)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	walk(v)
	return strings.Join(parts, " ")
}
