package result

import "encoding/json"

// Hit is a single search hit: the stored fields plus objectID, _score and _highlights.
type Hit map[string]any

// Reserved hit keys added by normalisation.
const (
	KeyScore      = "_score"
	KeyHighlights = "_highlights"
)

// FacetValue is one aggregated value and its document count.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Stats holds numeric aggregation for one field.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
}

// Bucket is one histogram bucket.
type Bucket struct {
	Key   float64 `json:"key"`
	Count int     `json:"count"`
}

// Result is the canonical search response produced by every engine (immutable value object).
type Result struct {
	hits             []Hit
	total            int
	page             int
	perPage          int
	totalPages       int
	processingTimeMS int
	facets           map[string][]FacetValue
	stats            map[string]Stats
	histograms       map[string][]Bucket
	suggestions      []string
	raw              any
	success          bool
	message          string
}

// Params groups Result constructor arguments.
type Params struct {
	Hits             []Hit
	Total            int
	Page             int
	PerPage          int
	ProcessingTimeMS int
	Facets           map[string][]FacetValue
	Stats            map[string]Stats
	Histograms       map[string][]Bucket
	Suggestions      []string
	Raw              any
}

// New creates a successful result. totalPages is derived, nil collections become empty.
func New(p Params) Result {
	r := Result{
		hits:             p.Hits,
		total:            p.Total,
		page:             p.Page,
		perPage:          p.PerPage,
		totalPages:       TotalPages(p.Total, p.PerPage),
		processingTimeMS: p.ProcessingTimeMS,
		facets:           p.Facets,
		stats:            p.Stats,
		histograms:       p.Histograms,
		suggestions:      p.Suggestions,
		raw:              p.Raw,
		success:          true,
	}
	r.fillEmpty()
	return r
}

// Failed creates a failure result carrying a message instead of hits.
func Failed(message string, page, perPage int) Result {
	r := Result{page: page, perPage: perPage, message: message}
	r.fillEmpty()
	return r
}

func (r *Result) fillEmpty() {
	if r.hits == nil {
		r.hits = []Hit{}
	}
	if r.facets == nil {
		r.facets = map[string][]FacetValue{}
	}
	if r.stats == nil {
		r.stats = map[string]Stats{}
	}
	if r.histograms == nil {
		r.histograms = map[string][]Bucket{}
	}
	if r.suggestions == nil {
		r.suggestions = []string{}
	}
}

// TotalPages is ceil(total/perPage), 0 when perPage is 0.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Hits returns the ordered hits.
func (r Result) Hits() []Hit { return r.hits }

// Total returns the total hit count.
func (r Result) Total() int { return r.total }

// Page returns the 1-based page.
func (r Result) Page() int { return r.page }

// PerPage returns the page size.
func (r Result) PerPage() int { return r.perPage }

// TotalPages returns the number of pages.
func (r Result) TotalPages() int { return r.totalPages }

// ProcessingTimeMS returns the engine-reported processing time.
func (r Result) ProcessingTimeMS() int { return r.processingTimeMS }

// Facets returns field → count-sorted values.
func (r Result) Facets() map[string][]FacetValue { return r.facets }

// Stats returns field → numeric stats.
func (r Result) Stats() map[string]Stats { return r.stats }

// Histograms returns field → ascending buckets.
func (r Result) Histograms() map[string][]Bucket { return r.histograms }

// Suggestions returns spelling suggestions.
func (r Result) Suggestions() []string { return r.suggestions }

// Raw returns the decoded native response.
func (r Result) Raw() any { return r.raw }

// Success reports whether the engine answered.
func (r Result) Success() bool { return r.success }

// Message returns the failure message.
func (r Result) Message() string { return r.message }

type wireResult struct {
	Success          bool                    `json:"success"`
	Message          string                  `json:"message,omitempty"`
	Hits             []Hit                   `json:"hits"`
	TotalHits        int                     `json:"totalHits"`
	Page             int                     `json:"page"`
	PerPage          int                     `json:"perPage"`
	TotalPages       int                     `json:"totalPages"`
	ProcessingTimeMS int                     `json:"processingTimeMs"`
	Facets           map[string][]FacetValue `json:"facets"`
	Stats            map[string]Stats        `json:"stats"`
	Histograms       map[string][]Bucket     `json:"histograms"`
	Suggestions      []string                `json:"suggestions"`
	Raw              any                     `json:"raw,omitempty"`
}

// MarshalJSON emits the canonical wire form.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireResult{
		Success:          r.success,
		Message:          r.message,
		Hits:             r.hits,
		TotalHits:        r.total,
		Page:             r.page,
		PerPage:          r.perPage,
		TotalPages:       r.totalPages,
		ProcessingTimeMS: r.processingTimeMS,
		Facets:           r.facets,
		Stats:            r.stats,
		Histograms:       r.histograms,
		Suggestions:      r.suggestions,
		Raw:              r.raw,
	})
}

// WithoutRaw returns a copy with the native response dropped.
func (r Result) WithoutRaw() Result {
	r.raw = nil
	return r
}
