package algolia

import "testing"

func TestCompileFilters(t *testing.T) {
	idx := testIndex(t)
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"string equality", map[string]any{"sku": `A"1`}, `sku:"A\"1"`},
		{"numeric equality", map[string]any{"price": 10}, `price = 10`},
		{"boolean", map[string]any{"sku": true}, `sku:true`},
		{"single term", map[string]any{"brand": []any{"Acme"}}, `brand:"Acme"`},
		{"closed range", map[string]any{"price": map[string]any{"min": 1, "max": 2.5}}, `price:1 TO 2.5`},
		{"upper bound", map[string]any{"price": map[string]any{"max": 3}}, `price <= 3`},
		{"date range", map[string]any{"released": map[string]any{"min": "2024-01-02T00:00:00Z"}}, `released >= 1704153600`},
		{"object id", map[string]any{"objectID": "42"}, `objectID:"42"`},
		{"combined", map[string]any{"sku": "x", "brand": "y"}, `brand:"y" AND sku:"x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compileFilters(idx, tt.raw); got != tt.want {
				t.Errorf("compileFilters() = %q, want %q", got, tt.want)
			}
		})
	}
}
