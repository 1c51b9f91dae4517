package options

import (
	"encoding/json"
	"fmt"
)

// Defaults used when a caller leaves a value unset.
const (
	DefaultPerPage           = 20
	DefaultMaxValuesPerFacet = 10
	DefaultVectorK           = 10
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
)

// Options is the engine-agnostic query specification accepted by every engine.
type Options struct {
	Page              int            `json:"page,omitempty"`
	PerPage           int            `json:"perPage,omitempty"`
	Fields            []string       `json:"fields,omitempty"`
	Sort              Sort           `json:"sort,omitempty"`
	NativeSort        any            `json:"nativeSort,omitempty"`
	Filters           map[string]any `json:"filters,omitempty"`
	Facets            []string       `json:"facets,omitempty"`
	MaxValuesPerFacet int            `json:"maxValuesPerFacet,omitempty"`
	// AttributesToRetrieve restricts returned fields when non-nil, even if empty.
	AttributesToRetrieve []string       `json:"attributesToRetrieve"`
	Highlight            Highlight      `json:"highlight,omitempty"`
	Suggest              bool           `json:"suggest,omitempty"`
	Stats                []string       `json:"stats,omitempty"`
	Histogram            map[string]any `json:"histogram,omitempty"`
	Vector               *Vector        `json:"vector,omitempty"`
}

// Vector holds vector-search parameters.
type Vector struct {
	Enabled bool      `json:"enabled"`
	Field   string    `json:"field,omitempty"`
	Vector  []float32 `json:"vector,omitempty"`
	K       int       `json:"k,omitempty"`
}

// Page is the resolved pagination window.
type Page struct {
	Page    int
	PerPage int
	Offset  int
}

// Pagination clamps page to >=1, falls back to defaultPerPage when perPage < 1.
func (o Options) Pagination(defaultPerPage int) Page {
	return Paginate(o.Page, o.PerPage, defaultPerPage)
}

// Paginate is the pagination math shared by every engine.
func Paginate(page, perPage, defaultPerPage int) Page {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	return Page{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

// ResolveSort returns the unified sort list, or the native sort when one is given.
// Native syntax wins when both are present.
func (o Options) ResolveSort() ([]SortField, any) {
	if o.NativeSort != nil {
		return nil, o.NativeSort
	}
	if o.Sort.IsNative() {
		return nil, o.Sort.Native()
	}
	return o.Sort.Unified(), nil
}

// FacetLimit returns maxValuesPerFacet or the default.
func (o Options) FacetLimit() int {
	if o.MaxValuesPerFacet > 0 {
		return o.MaxValuesPerFacet
	}
	return DefaultMaxValuesPerFacet
}

// RetrieveAll reports whether every stored field should be returned.
func (o Options) RetrieveAll() bool { return o.AttributesToRetrieve == nil }

// HighlightFields resolves highlight settings against the engine's default field list.
func (o Options) HighlightFields(defaults []string) []string {
	if len(o.Highlight.Fields) > 0 {
		return o.Highlight.Fields
	}
	if o.Highlight.Enabled {
		return defaults
	}
	return nil
}

// Histograms parses the histogram option, dropping malformed entries.
func (o Options) Histograms() map[string]HistogramSpec { return ParseHistograms(o.Histogram) }

// VectorK returns the requested neighbour count or the default.
func (o Options) VectorK() int {
	if o.Vector != nil && o.Vector.K > 0 {
		return o.Vector.K
	}
	return DefaultVectorK
}

// WantsVector reports whether vector search was requested.
func (o Options) WantsVector() bool { return o.Vector != nil && o.Vector.Enabled }

// HasVector reports whether a ready vector and target field are present.
func (o Options) HasVector() bool {
	return o.WantsVector() && len(o.Vector.Vector) > 0 && o.Vector.Field != ""
}

// Highlight is either a boolean switch or an explicit field list.
type Highlight struct {
	Enabled bool
	Fields  []string
}

// UnmarshalJSON accepts true/false or a list of field names.
func (h *Highlight) UnmarshalJSON(b []byte) error {
	var on bool
	if err := json.Unmarshal(b, &on); err == nil {
		*h = Highlight{Enabled: on}
		return nil
	}
	var fields []string
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("highlight must be a boolean or a list of fields")
	}
	*h = Highlight{Enabled: len(fields) > 0, Fields: fields}
	return nil
}

// MarshalJSON emits the field list when present, otherwise the switch.
func (h Highlight) MarshalJSON() ([]byte, error) {
	if len(h.Fields) > 0 {
		return json.Marshal(h.Fields)
	}
	return json.Marshal(h.Enabled)
}
