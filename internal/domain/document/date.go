package document

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

// DateFormat is the wire form an engine expects for date fields.
type DateFormat string

// Date wire forms.
const (
	EpochSeconds DateFormat = "epoch_seconds"
	ISO8601      DateFormat = "iso8601"
)

// Epoch values above this magnitude are milliseconds (year 5138 in seconds).
const millisThreshold = 99_999_999_999

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate accepts epoch seconds, epoch milliseconds, ISO-8601 strings and time.Time.
func ParseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return x.UTC(), !x.IsZero()
	case int:
		return fromEpoch(float64(x))
	case int32:
		return fromEpoch(float64(x))
	case int64:
		return fromEpoch(float64(x))
	case float32:
		return fromEpoch(float64(x))
	case float64:
		return fromEpoch(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case string:
		return parseDateString(strings.TrimSpace(x))
	}
	return time.Time{}, false
}

func parseDateString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if math.Abs(f) > millisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// NormaliseDate converts v to the wire form. Unparsable input yields nil.
func NormaliseDate(v any, format DateFormat) any {
	t, ok := ParseDate(v)
	if !ok {
		return nil
	}
	if format == ISO8601 {
		return t.Format(time.RFC3339)
	}
	return t.Unix()
}

// NormaliseDates returns a copy of doc with every date-typed mapping normalised.
func NormaliseDates(doc Document, mappings []field.Mapping, format DateFormat) Document {
	out := doc.Clone()
	for _, m := range mappings {
		if !m.Enabled() || m.FieldType() != field.Date {
			continue
		}
		v, ok := out[m.Name()]
		if !ok || v == nil {
			continue
		}
		out[m.Name()] = NormaliseDate(v, format)
	}
	return out
}
