package algolia

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/filter"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// compileFilters renders unified filters in Algolia filter syntax.
func compileFilters(idx index.Index, raw map[string]any) string {
	var parts []string
	for _, c := range filter.Compile(raw) {
		switch c.Kind() {
		case filter.Equal:
			parts = append(parts, equality(c.Field(), c.Value()))
		case filter.Terms:
			alts := make([]string, 0, len(c.Values()))
			for _, v := range c.Values() {
				alts = append(alts, equality(c.Field(), v))
			}
			if len(alts) == 1 {
				parts = append(parts, alts[0])
			} else {
				parts = append(parts, "("+strings.Join(alts, " OR ")+")")
			}
		case filter.Range:
			if s := rangeFilter(idx, c); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " AND ")
}

func equality(f string, v any) string {
	switch x := v.(type) {
	case bool:
		return f + ":" + strconv.FormatBool(x)
	case string:
		return f + ":" + quote(x)
	default:
		if n, ok := filter.AsFloat(v); ok {
			return f + " = " + number(n)
		}
		return f + ":" + quote(engine.IDString(v))
	}
}

func rangeFilter(idx index.Index, c filter.Clause) string {
	minV, hasMin := bound(idx, c.Field(), c.Min())
	maxV, hasMax := bound(idx, c.Field(), c.Max())
	switch {
	case hasMin && hasMax:
		return c.Field() + ":" + minV + " TO " + maxV
	case hasMin:
		return c.Field() + " >= " + minV
	case hasMax:
		return c.Field() + " <= " + maxV
	}
	return ""
}

// bound renders a numeric bound; date strings become epoch seconds.
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
		return number(n), true
	}
	if s, ok := v.(string); ok {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return number(n), true
		}
	}
	return "", false
}

func number(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func quote(s string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
}
