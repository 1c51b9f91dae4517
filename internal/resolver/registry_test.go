package resolver

import (
	"context"
	"testing"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

func mapping(t *testing.T, typ field.Type) field.Mapping {
	t.Helper()
	m, err := field.New(field.Params{Name: "f", Type: typ, Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func resolveWith(t *testing.T, r *Registry, kind string, typ field.Type, v any) any {
	t.Helper()
	out, err := r.For(kind).Resolve(context.Background(), mapping(t, typ), content.FieldValue{Kind: kind, Value: v})
	if err != nil {
		t.Fatalf("resolve %s: %v", kind, err)
	}
	return out
}

func TestRegistry_HierarchyFallback(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		kind string
		typ  field.Type
		in   any
		want any
	}{
		{"dropdown", field.Keyword, "red", "red"},
		{"lightswitch", field.Boolean, "1", true},
		{"money", field.Float, map[string]any{"amount": "12.50"}, 12.5},
		{"number", field.Integer, 7.9, int64(7)},
		{"plaintext", field.Text, "  hi  ", "hi"},
		{"unknown-kind", field.Text, 42.0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := resolveWith(t, r, tt.kind, tt.typ, tt.in); got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRegistry_RegisterOverridesAndInvalidatesCache(t *testing.T) {
	r := NewRegistry()
	_ = r.For("tags")

	r.Register("tags", StrategyFunc(func(context.Context, field.Mapping, content.FieldValue) (any, error) {
		return "custom", nil
	}))

	if got := resolveWith(t, r, "tags", field.Keyword, []any{"a"}); got != "custom" {
		t.Fatalf("expected custom strategy, got %#v", got)
	}
	if got := resolveWith(t, r, "entries", field.Keyword, []any{"1"}); got == "custom" {
		t.Fatal("sibling kind must keep the inherited strategy")
	}
}

func TestRegistry_RegisterParentAppliesToChildren(t *testing.T) {
	r := NewRegistry()
	r.Register(KindOptions, StrategyFunc(func(context.Context, field.Mapping, content.FieldValue) (any, error) {
		return "opts", nil
	}))

	if got := resolveWith(t, r, "radio", field.Keyword, "x"); got != "opts" {
		t.Fatalf("expected parent override to apply, got %#v", got)
	}
}

func TestResolveOptions(t *testing.T) {
	r := NewRegistry()
	multi := []any{
		map[string]any{"value": "s", "label": "Small"},
		map[string]any{"value": "m", "label": "Medium"},
	}

	got := resolveWith(t, r, "checkboxes", field.Facet, multi)
	values, ok := got.([]string)
	if !ok || len(values) != 2 || values[0] != "s" {
		t.Fatalf("expected option values, got %#v", got)
	}
	if got := resolveWith(t, r, "checkboxes", field.Text, multi); got != "Small Medium" {
		t.Fatalf("expected joined labels, got %#v", got)
	}
	if got := resolveWith(t, r, "multiselect", field.Facet, []any{}); got != nil {
		t.Fatalf("expected nil for empty selection, got %#v", got)
	}
}

func TestResolveRelation(t *testing.T) {
	r := NewRegistry()
	related := []any{
		map[string]any{"id": "10", "title": "Lisbon"},
		map[string]any{"id": "11", "title": "Porto"},
		"12",
	}

	ids, ok := resolveWith(t, r, "entries", field.Keyword, related).([]string)
	if !ok || len(ids) != 3 || ids[2] != "12" {
		t.Fatalf("expected 3 ids, got %#v", ids)
	}
	if got := resolveWith(t, r, "categories", field.Text, related); got != "Lisbon Porto" {
		t.Fatalf("expected titles, got %#v", got)
	}
}

func TestResolveStructured(t *testing.T) {
	r := NewRegistry()
	rows := []any{
		map[string]any{"a": "one", "b": 2.0},
		map[string]any{"a": "three"},
	}

	if got := resolveWith(t, r, "table", field.Text, rows); got != "one 2 three" {
		t.Fatalf("expected flattened cells, got %#v", got)
	}
	if got, ok := resolveWith(t, r, "matrix", field.Object, rows).([]any); !ok || len(got) != 2 {
		t.Fatalf("expected rows kept for object mapping, got %#v", got)
	}
}

func TestResolve_Errors(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	if _, err := r.For("number").Resolve(ctx, mapping(t, field.Float), content.FieldValue{Value: "abc"}); err == nil {
		t.Error("expected number error")
	}
	if _, err := r.For("date").Resolve(ctx, mapping(t, field.Date), content.FieldValue{Value: "not a date"}); err == nil {
		t.Error("expected date error")
	}
	if _, err := r.For("lightswitch").Resolve(ctx, mapping(t, field.Boolean), content.FieldValue{Value: "maybe"}); err == nil {
		t.Error("expected boolean error")
	}
}
