package meili

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/filter"
)

// compileFilters renders unified filters in Meilisearch filter syntax.
func compileFilters(idx index.Index, raw map[string]any) string {
	var parts []string
	for _, c := range filter.Compile(raw) {
		f := c.Field()
		switch c.Kind() {
		case filter.Equal:
			parts = append(parts, f+" = "+literal(c.Value()))
		case filter.Terms:
			vals := make([]string, 0, len(c.Values()))
			for _, v := range c.Values() {
				vals = append(vals, literal(v))
			}
			parts = append(parts, f+" IN ["+strings.Join(vals, ", ")+"]")
		case filter.Range:
			minV, hasMin := bound(idx, f, c.Min())
			maxV, hasMax := bound(idx, f, c.Max())
			switch {
			case hasMin && hasMax:
				parts = append(parts, f+" "+minV+" TO "+maxV)
			case hasMin:
				parts = append(parts, f+" >= "+minV)
			case hasMax:
				parts = append(parts, f+" <= "+maxV)
			}
		}
	}
	return strings.Join(parts, " AND ")
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return `"` + strings.ReplaceAll(strings.ReplaceAll(x, `\`, `\\`), `"`, `\"`) + `"`
	case bool:
		return strconv.FormatBool(x)
	}
	if n, ok := filter.AsFloat(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return `""`
}

func bound(idx index.Index, f string, v any) (string, bool) {
	if v == nil {
		return "", false
	}
	if ft, ok := idx.FieldType(f); ok && ft == field.Date {
		if epoch, ok := document.NormaliseDate(v, document.EpochSeconds).(int64); ok {
			return strconv.FormatInt(epoch, 10), true
		}
		return "", false
	}
	if n, ok := filter.AsFloat(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	if s, ok := v.(string); ok {
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return s, true
		}
	}
	return "", false
}
