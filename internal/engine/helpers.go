package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
)

// NormaliseHit adds objectID, _score and _highlights to a native hit, keeping
// every native key and any value already set under the canonical keys.
func NormaliseHit(raw map[string]any, idKey, scoreKey string) result.Hit {
	hit := make(result.Hit, len(raw)+3)
	for k, v := range raw {
		hit[k] = v
	}
	if v, ok := hit[document.KeyID]; !ok || v == nil {
		hit[document.KeyID] = IDString(raw[idKey])
	}
	if _, ok := hit[result.KeyScore]; !ok {
		if s, ok := raw[scoreKey]; ok && scoreKey != "" {
			hit[result.KeyScore] = s
		} else {
			hit[result.KeyScore] = nil
		}
	}
	if _, ok := hit[result.KeyHighlights]; !ok {
		hit[result.KeyHighlights] = map[string][]string{}
	}
	return hit
}

// NormaliseHits applies NormaliseHit to every hit, keeping order.
func NormaliseHits(raws []map[string]any, idKey, scoreKey string) []result.Hit {
	hits := make([]result.Hit, 0, len(raws))
	for _, raw := range raws {
		hits = append(hits, NormaliseHit(raw, idKey, scoreKey))
	}
	return hits
}

// IDString renders a native id as a string.
func IDString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// NormaliseFacetCounts sorts value→count pairs by count descending, then value.
func NormaliseFacetCounts(counts map[string]int) []result.FacetValue {
	out := make([]result.FacetValue, 0, len(counts))
	for v, c := range counts {
		out = append(out, result.FacetValue{Value: v, Count: c})
	}
	SortFacetValues(out)
	return out
}

// SortFacetValues orders values by count descending, ties by value.
func SortFacetValues(values []result.FacetValue) {
	sort.SliceStable(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
}

// NormaliseFacets converts field→value→count into sorted lists, omitting empty fields.
func NormaliseFacets(raw map[string]map[string]int) map[string][]result.FacetValue {
	out := make(map[string][]result.FacetValue, len(raw))
	for f, counts := range raw {
		if len(counts) == 0 {
			continue
		}
		out[f] = NormaliseFacetCounts(counts)
	}
	return out
}

// LimitFacetValues truncates each list to limit entries when limit > 0.
func LimitFacetValues(facets map[string][]result.FacetValue, limit int) map[string][]result.FacetValue {
	if limit <= 0 {
		return facets
	}
	for f, values := range facets {
		if len(values) > limit {
			facets[f] = values[:limit]
		}
	}
	return facets
}

// NormaliseHighlights converts native highlight shapes into field → fragments.
// Accepted per field: a string, a list of strings, a list of {snippet|value}
// objects, or a single such object. Empty fragments and non-string entries are
// dropped; fields without fragments are omitted.
func NormaliseHighlights(raw map[string]any) map[string][]string {
	out := make(map[string][]string, len(raw))
	for f, v := range raw {
		frags := fragments(v)
		if len(frags) > 0 {
			out[f] = frags
		}
	}
	return out
}

func fragments(v any) []string {
	switch x := v.(type) {
	case string:
		if x != "" {
			return []string{x}
		}
	case []string:
		var out []string
		for _, s := range x {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, e := range x {
			if s := fragment(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		if s := fragment(x); s != "" {
			return []string{s}
		}
	}
	return nil
}

func fragment(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if lvl, ok := x["matchLevel"].(string); ok && lvl == "none" {
			return ""
		}
		if s, ok := x["snippet"].(string); ok {
			return s
		}
		if s, ok := x["value"].(string); ok {
			return s
		}
	}
	return ""
}

// luceneOperators are the optional Lucene regexp operators that
// regexp.QuoteMeta leaves alone.
const luceneOperators = `#@&<>~"`

// FacetRegex compiles a case-insensitive "contains" pattern: every letter becomes
// a [xX] class, everything else is escaped for both Go and Lucene regexps. An
// empty query matches everything.
func FacetRegex(query string) string {
	var b strings.Builder
	b.WriteString(".*")
	for _, r := range query {
		lower, upper := unicode.ToLower(r), unicode.ToUpper(r)
		if unicode.IsLetter(r) && lower != upper {
			b.WriteString("[" + string(lower) + string(upper) + "]")
			continue
		}
		if strings.ContainsRune(luceneOperators, r) {
			b.WriteString(`\` + string(r))
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteString(".*")
	return b.String()
}

// FacetMatcher returns a predicate implementing FacetRegex for engines that
// filter facet values client-side.
func FacetMatcher(query string) func(string) bool {
	re := regexp.MustCompile("^(?s:" + FacetRegex(query) + ")$")
	return re.MatchString
}

// FilterFacetValues keeps values matching query, sorted by count, truncated to limit.
func FilterFacetValues(values []result.FacetValue, query string, limit int) []result.FacetValue {
	match := FacetMatcher(query)
	out := make([]result.FacetValue, 0, len(values))
	for _, v := range values {
		if match(v.Value) {
			out = append(out, v)
		}
	}
	SortFacetValues(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortBuckets orders histogram buckets by ascending key.
func SortBuckets(buckets []result.Bucket) []result.Bucket {
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key < buckets[j].Key })
	return buckets
}

// Orphans returns engine ids absent from the source id set, in engine order.
func Orphans(engineIDs, sourceIDs []string) []string {
	keep := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		keep[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(engineIDs))
	var out []string
	for _, id := range engineIDs {
		if _, ok := keep[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Chunk splits items into slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// PrepareDocuments normalises date fields to the engine's wire form.
func PrepareDocuments(idx index.Index, docs []document.Document, format document.DateFormat) []document.Document {
	out := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, document.NormaliseDates(d, idx.EnabledMappings(), format))
	}
	return out
}

// StatsFields keeps requested fields that are numeric on the index.
func StatsFields(idx index.Index, requested []string) []string {
	var out []string
	for _, f := range requested {
		if ft, ok := idx.FieldType(f); ok && ft.IsNumeric() {
			out = append(out, f)
		}
	}
	return out
}

// Remarshal converts between loosely typed SDK values and local wire structs.
func Remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
