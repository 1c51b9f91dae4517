package options

import "github.com/kailas-cloud/searchbridge/internal/domain/search/filter"

// HistogramSpec is a normalised histogram request.
type HistogramSpec struct {
	Interval float64
	Min      *float64
	Max      *float64
}

// ParseHistograms normalises field→interval and field→{interval,min,max}.
// Non-numeric or non-positive intervals are dropped.
func ParseHistograms(raw map[string]any) map[string]HistogramSpec {
	out := make(map[string]HistogramSpec, len(raw))
	for f, v := range raw {
		spec, ok := parseHistogram(v)
		if ok {
			out[f] = spec
		}
	}
	return out
}

func parseHistogram(v any) (HistogramSpec, bool) {
	if interval, ok := filter.AsFloat(v); ok {
		return HistogramSpec{Interval: interval}, interval > 0
	}
	m, ok := v.(map[string]any)
	if !ok {
		return HistogramSpec{}, false
	}
	interval, ok := filter.AsFloat(m["interval"])
	if !ok || interval <= 0 {
		return HistogramSpec{}, false
	}
	spec := HistogramSpec{Interval: interval}
	if minV, ok := filter.AsFloat(m["min"]); ok {
		spec.Min = &minV
	}
	if maxV, ok := filter.AsFloat(m["max"]); ok {
		spec.Max = &maxV
	}
	return spec, true
}
