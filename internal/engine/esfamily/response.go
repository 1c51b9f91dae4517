package esfamily

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

const (
	keyNativeID    = "_id"
	keyNativeScore = "_score"
)

type searchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []searchHit     `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
	Suggest      map[string][]struct {
		Options []struct {
			Text string `json:"text"`
		} `json:"options"`
	} `json:"suggest"`
}

type searchHit struct {
	ID        string         `json:"_id"`
	Score     *float64       `json:"_score"`
	Source    map[string]any `json:"_source"`
	Highlight map[string]any `json:"highlight"`
}

type termsAgg struct {
	Buckets []struct {
		Key         any    `json:"key"`
		KeyAsString string `json:"key_as_string"`
		DocCount    int    `json:"doc_count"`
	} `json:"buckets"`
}

type statsAgg struct {
	Count int      `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
	Sum   float64  `json:"sum"`
}

type histogramAgg struct {
	Buckets []struct {
		Key      float64 `json:"key"`
		DocCount int     `json:"doc_count"`
	} `json:"buckets"`
}

// parseTotal accepts both {"value": n} and a bare number.
func parseTotal(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var obj struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	var n int
	_ = json.Unmarshal(raw, &n)
	return n
}

// parseSearch normalises a _search response into the canonical result.
func parseSearch(body []byte, page, perPage int) (result.Result, error) {
	var res searchResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return result.Result{}, fmt.Errorf("%w: decode search response: %w", engine.ErrBadResponse, err)
	}
	var raw any
	_ = json.Unmarshal(body, &raw)

	raws := make([]map[string]any, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		r := make(map[string]any, len(h.Source)+3)
		for k, v := range h.Source {
			r[k] = v
		}
		r[keyNativeID] = h.ID
		if h.Score != nil {
			r[keyNativeScore] = *h.Score
		} else {
			r[keyNativeScore] = nil
		}
		if _, ok := r[result.KeyHighlights]; !ok {
			r[result.KeyHighlights] = engine.NormaliseHighlights(h.Highlight)
		}
		raws = append(raws, r)
	}

	facets, stats, histograms, err := parseAggs(res.Aggregations)
	if err != nil {
		return result.Result{}, err
	}

	var suggestions []string
	for _, entries := range res.Suggest {
		for _, e := range entries {
			for _, o := range e.Options {
				suggestions = append(suggestions, o.Text)
			}
		}
	}

	return result.New(result.Params{
		Hits:             engine.NormaliseHits(raws, keyNativeID, keyNativeScore),
		Total:            parseTotal(res.Hits.Total),
		Page:             page,
		PerPage:          perPage,
		ProcessingTimeMS: res.Took,
		Facets:           facets,
		Stats:            stats,
		Histograms:       histograms,
		Suggestions:      suggestions,
		Raw:              raw,
	}), nil
}

func parseAggs(aggs map[string]json.RawMessage) (
	map[string][]result.FacetValue, map[string]result.Stats, map[string][]result.Bucket, error,
) {
	facets := map[string][]result.FacetValue{}
	stats := map[string]result.Stats{}
	histograms := map[string][]result.Bucket{}

	for name, body := range aggs {
		switch {
		case strings.HasPrefix(name, aggFacet):
			values, err := parseTerms(body)
			if err != nil {
				return nil, nil, nil, err
			}
			if len(values) > 0 {
				facets[strings.TrimPrefix(name, aggFacet)] = values
			}
		case strings.HasPrefix(name, aggStats):
			var s statsAgg
			if err := json.Unmarshal(body, &s); err != nil {
				return nil, nil, nil, fmt.Errorf("%w: decode stats: %w", engine.ErrBadResponse, err)
			}
			if s.Count == 0 {
				continue
			}
			stats[strings.TrimPrefix(name, aggStats)] = result.Stats{
				Min: deref(s.Min), Max: deref(s.Max), Avg: deref(s.Avg), Sum: s.Sum, Count: s.Count,
			}
		case strings.HasPrefix(name, aggHistogram):
			var h histogramAgg
			if err := json.Unmarshal(body, &h); err != nil {
				return nil, nil, nil, fmt.Errorf("%w: decode histogram: %w", engine.ErrBadResponse, err)
			}
			buckets := make([]result.Bucket, 0, len(h.Buckets))
			for _, b := range h.Buckets {
				buckets = append(buckets, result.Bucket{Key: b.Key, Count: b.DocCount})
			}
			if len(buckets) > 0 {
				histograms[strings.TrimPrefix(name, aggHistogram)] = engine.SortBuckets(buckets)
			}
		}
	}
	return facets, stats, histograms, nil
}

func parseTerms(body json.RawMessage) ([]result.FacetValue, error) {
	var t termsAgg
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("%w: decode terms: %w", engine.ErrBadResponse, err)
	}
	values := make([]result.FacetValue, 0, len(t.Buckets))
	for _, b := range t.Buckets {
		v := b.KeyAsString
		if v == "" {
			v = engine.IDString(b.Key)
		}
		values = append(values, result.FacetValue{Value: v, Count: b.DocCount})
	}
	engine.SortFacetValues(values)
	return values, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// bulkError reports the first failed item. Deletes of missing documents are ignored.
func bulkError(body []byte) error {
	var res bulkResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("%w: decode bulk response: %w", engine.ErrBadResponse, err)
	}
	if !res.Errors {
		return nil
	}
	failed := 0
	var first string
	for _, item := range res.Items {
		for action, outcome := range item {
			if outcome.Error == nil {
				continue
			}
			if action == "delete" && outcome.Status == 404 {
				continue
			}
			failed++
			if first == "" {
				first = fmt.Sprintf("%s %s: %s: %s", action, outcome.ID, outcome.Error.Type, outcome.Error.Reason)
			}
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d bulk items failed, first: %s", engine.ErrBadResponse, failed, first)
}
