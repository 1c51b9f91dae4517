package esfamily

import (
	"strconv"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/filter"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// Aggregation name prefixes; the response parser dispatches on them.
const (
	aggFacet     = "facets__"
	aggStats     = "stats__"
	aggHistogram = "histogram__"
	aggValues    = "values"
	suggestName  = "did_you_mean"
)

// compileFilters translates unified filters into bool filter clauses.
func compileFilters(idx index.Index, raw map[string]any) []any {
	clauses := filter.Compile(raw)
	out := make([]any, 0, len(clauses))
	for _, c := range clauses {
		if c.Field() == document.KeyID && c.Kind() != filter.Range {
			out = append(out, map[string]any{"ids": map[string]any{"values": idValues(c)}})
			continue
		}
		target := c.Target(idx.IsText(c.Field()), keywordField)
		switch c.Kind() {
		case filter.Equal:
			out = append(out, map[string]any{"term": map[string]any{target: c.Value()}})
		case filter.Terms:
			out = append(out, map[string]any{"terms": map[string]any{target: c.Values()}})
		case filter.Range:
			bounds := map[string]any{}
			if c.Min() != nil {
				bounds["gte"] = c.Min()
			}
			if c.Max() != nil {
				bounds["lte"] = c.Max()
			}
			out = append(out, map[string]any{"range": map[string]any{target: bounds}})
		}
	}
	return out
}

func idValues(c filter.Clause) []string {
	if c.Kind() == filter.Equal {
		return []string{engine.IDString(c.Value())}
	}
	ids := make([]string, 0, len(c.Values()))
	for _, v := range c.Values() {
		ids = append(ids, engine.IDString(v))
	}
	return ids
}

// searchFields lists multi_match targets as name^weight. Requested fields
// unknown to the index keep the default weight.
func searchFields(idx index.Index, requested []string) []string {
	weights := map[string]int{}
	for _, m := range idx.EnabledMappings() {
		weights[m.Name()] = m.Weight()
	}
	if len(requested) > 0 {
		out := make([]string, 0, len(requested))
		for _, f := range requested {
			w, ok := weights[f]
			if !ok {
				w = field.DefaultWeight
			}
			out = append(out, f+"^"+strconv.Itoa(w))
		}
		return out
	}
	searchable := idx.SearchableFields()
	out := make([]string, 0, len(searchable))
	for _, m := range searchable {
		out = append(out, m.Name()+"^"+strconv.Itoa(m.Weight()))
	}
	return out
}

func textFieldNames(idx index.Index) []string {
	var out []string
	for _, m := range idx.SearchableFields() {
		out = append(out, m.Name())
	}
	return out
}

// sortTarget sorts text fields on their keyword subfield.
func sortTarget(idx index.Index, name string) string {
	if idx.IsText(name) {
		return keywordField(name)
	}
	return name
}

// buildSearchBody translates a unified query into a _search body.
func (a *Adapter) buildSearchBody(idx index.Index, query string, opts options.Options) map[string]any {
	page := opts.Pagination(options.DefaultPerPage)
	body := map[string]any{
		"from":             page.Offset,
		"size":             page.PerPage,
		"track_total_hits": true,
	}

	boolQuery := map[string]any{}
	if query != "" {
		mm := map[string]any{"query": query, "type": "best_fields"}
		if fields := searchFields(idx, opts.Fields); len(fields) > 0 {
			mm["fields"] = fields
		}
		boolQuery["must"] = []any{map[string]any{"multi_match": mm}}
	} else {
		boolQuery["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}
	filters := compileFilters(idx, opts.Filters)
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	body["query"] = map[string]any{"bool": boolQuery}

	if opts.HasVector() {
		a.flavor.ApplyVector(body, boolQuery, VectorQuery{
			Field:   opts.Vector.Field,
			Vector:  opts.Vector.Vector,
			K:       opts.VectorK(),
			Filters: filters,
			HasText: query != "",
		})
	}

	if unified, native := opts.ResolveSort(); native != nil {
		body["sort"] = native
	} else if len(unified) > 0 {
		sorts := make([]any, 0, len(unified)+1)
		for _, s := range unified {
			sorts = append(sorts, map[string]any{
				sortTarget(idx, s.Field): map[string]any{"order": s.Direction()},
			})
		}
		body["sort"] = sorts
	}

	if aggs := buildAggs(idx, opts); len(aggs) > 0 {
		body["aggs"] = aggs
	}

	if hl := opts.HighlightFields(textFieldNames(idx)); len(hl) > 0 {
		fields := make(map[string]any, len(hl))
		for _, f := range hl {
			fields[f] = map[string]any{}
		}
		body["highlight"] = map[string]any{
			"fields":    fields,
			"pre_tags":  []string{"<em>"},
			"post_tags": []string{"</em>"},
		}
	}

	if opts.Suggest && query != "" {
		if names := textFieldNames(idx); len(names) > 0 {
			body["suggest"] = map[string]any{
				suggestName: map[string]any{
					"text": query,
					"term": map[string]any{"field": names[0], "suggest_mode": "popular"},
				},
			}
		}
	}

	if !opts.RetrieveAll() {
		if len(opts.AttributesToRetrieve) == 0 {
			body["_source"] = false
		} else {
			body["_source"] = opts.AttributesToRetrieve
		}
	}
	return body
}

func buildAggs(idx index.Index, opts options.Options) map[string]any {
	aggs := map[string]any{}
	for _, f := range opts.Facets {
		aggs[aggFacet+f] = map[string]any{
			"terms": map[string]any{
				"field": sortTarget(idx, f),
				"size":  opts.FacetLimit(),
			},
		}
	}
	for _, f := range engine.StatsFields(idx, opts.Stats) {
		aggs[aggStats+f] = map[string]any{"stats": map[string]any{"field": f}}
	}
	for f, spec := range opts.Histograms() {
		h := map[string]any{
			"field":         f,
			"interval":      spec.Interval,
			"min_doc_count": 1,
		}
		if spec.Min != nil || spec.Max != nil {
			bounds := map[string]any{}
			if spec.Min != nil {
				bounds["min"] = *spec.Min
			}
			if spec.Max != nil {
				bounds["max"] = *spec.Max
			}
			h["hard_bounds"] = bounds
		}
		aggs[aggHistogram+f] = map[string]any{"histogram": h}
	}
	return aggs
}

// buildFacetBody is a zero-hit terms aggregation narrowed by a contains regex.
// Regex includes only apply to string terms; numeric fields are filtered client-side.
func buildFacetBody(idx index.Index, q engine.FacetQuery) (map[string]any, bool) {
	terms := map[string]any{
		"field": sortTarget(idx, q.Field),
		"size":  q.EffectiveLimit(),
	}
	regex := true
	if ft, ok := idx.FieldType(q.Field); ok && ft != field.Text && ft != field.Keyword && ft != field.Facet {
		regex = false
	}
	if regex && q.Query != "" {
		terms["include"] = engine.FacetRegex(q.Query)
	}
	if !regex {
		terms["size"] = maxFacetScan
	}

	boolQuery := map[string]any{}
	if filters := compileFilters(idx, q.Filters); len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]any{
		"size":  0,
		"query": map[string]any{"bool": boolQuery},
		"aggs":  map[string]any{aggValues: map[string]any{"terms": terms}},
	}, regex
}

// maxFacetScan bounds the buckets fetched when matching happens client-side.
const maxFacetScan = 1000
