// Package typesense implements the engine contract on Typesense.
package typesense

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/filter"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/metrics"
)

const (
	keyID            = "id"
	keyTextMatch     = "_text_match"
	importChunkSize  = 500
	listPageSize     = 250
	facetScanLimit   = 1000
	defaultTimeout   = 5 * time.Second
	defaultVectorDim = 1536
)

// Config is the per-index Typesense configuration.
type Config struct {
	Server     string `json:"server"`
	APIKey     string `json:"apiKey"`
	TimeoutSec int    `json:"timeoutSec"`
}

// Adapter is the Typesense engine.
type Adapter struct {
	api    api
	logger *zap.Logger
}

var _ engine.Engine = (*Adapter)(nil)

// New builds an adapter on the official client.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.Server == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: typesense needs server and apiKey", engine.ErrBadConfig)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	return newAdapter(newSDK(cfg.Server, cfg.APIKey, timeout), logger), nil
}

func newAdapter(a api, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{api: a, logger: logger}
}

// Factory adapts New to the engine pool.
func Factory(logger *zap.Logger) engine.Factory {
	return func(raw map[string]any) (engine.Engine, error) {
		var cfg Config
		if err := engine.DecodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return New(cfg, logger)
	}
}

// Type returns index.Typesense.
func (a *Adapter) Type() index.EngineType { return index.Typesense }

func (a *Adapter) observe(op string, start time.Time, err error) error {
	metrics.ObserveEngine(string(index.Typesense), op, start, err)
	if err == nil {
		return nil
	}
	return engine.Wrap(index.Typesense, op, err)
}

// Ping calls /health.
func (a *Adapter) Ping(ctx context.Context) error {
	start := time.Now()
	ok, err := a.api.Health(ctx)
	if err == nil && !ok {
		err = errors.New("typesense is unhealthy")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}
	return a.observe(engine.OpPing, start, err)
}

// MapFieldType returns the Typesense field type name.
func (a *Adapter) MapFieldType(t field.Type) any {
	switch t {
	case field.Integer, field.Date:
		return "int64"
	case field.Float:
		return "float"
	case field.Boolean:
		return "bool"
	case field.GeoPoint:
		return "geopoint"
	case field.Object:
		return "object"
	case field.Embedding:
		return "float[]"
	default:
		return "string"
	}
}

func (a *Adapter) fieldSchema(name string, t field.Type, dims int) map[string]any {
	f := map[string]any{
		"name":     name,
		"type":     a.MapFieldType(t),
		"optional": true,
	}
	switch t {
	case field.Text, field.Facet, field.Keyword, field.Boolean:
		f["facet"] = true
	case field.Integer, field.Float, field.Date, field.GeoPoint:
		f["sort"] = true
	case field.Embedding:
		f["num_dim"] = dims
	}
	return f
}

// BuildSchema returns the collection schema.
func (a *Adapter) BuildSchema(idx index.Index) map[string]any {
	dims := idx.VectorDim()
	if dims <= 0 {
		dims = defaultVectorDim
	}
	fields := []map[string]any{}
	nested := false
	for _, m := range idx.EnabledMappings() {
		fields = append(fields, a.fieldSchema(m.Name(), m.FieldType(), dims))
		if m.FieldType() == field.Object {
			nested = true
		}
	}
	for _, d := range document.Discriminators {
		fields = append(fields, a.fieldSchema(d, field.Keyword, dims))
	}
	schema := map[string]any{
		"name":   idx.Handle(),
		"fields": fields,
	}
	if nested {
		schema["enable_nested_fields"] = true
	}
	return schema
}

// CreateIndex creates the collection, or adds fields missing from an existing one.
// Typesense cannot change the type of an existing field.
func (a *Adapter) CreateIndex(ctx context.Context, idx index.Index) error {
	start := time.Now()
	schema := a.BuildSchema(idx)
	info, err := a.api.RetrieveCollection(ctx, idx.Handle())
	if errors.Is(err, engine.ErrIndexNotFound) {
		return a.observe(engine.OpCreateIndex, start, a.api.CreateCollection(ctx, schema))
	}
	if err != nil {
		return a.observe(engine.OpCreateIndex, start, err)
	}

	have := make(map[string]bool, len(info.Fields))
	for _, f := range info.Fields {
		have[f] = true
	}
	var missing []map[string]any
	for _, f := range schema["fields"].([]map[string]any) {
		if !have[f["name"].(string)] {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return a.observe(engine.OpUpdateSchema, start, nil)
	}
	return a.observe(engine.OpUpdateSchema, start, a.api.AddFields(ctx, idx.Handle(), missing))
}

// DeleteIndex drops the collection; a missing collection is not an error.
func (a *Adapter) DeleteIndex(ctx context.Context, handle string) error {
	start := time.Now()
	return a.observe(engine.OpDeleteIndex, start, a.api.DeleteCollection(ctx, handle))
}

// IndexExists retrieves the collection.
func (a *Adapter) IndexExists(ctx context.Context, handle string) (bool, error) {
	start := time.Now()
	_, err := a.api.RetrieveCollection(ctx, handle)
	if errors.Is(err, engine.ErrIndexNotFound) {
		return false, a.observe(engine.OpIndexExists, start, nil)
	}
	return err == nil, a.observe(engine.OpIndexExists, start, err)
}

// UpsertDocuments imports documents with action=upsert.
func (a *Adapter) UpsertDocuments(ctx context.Context, idx index.Index, docs []document.Document) error {
	start := time.Now()
	docs = engine.PrepareDocuments(idx, docs, document.EpochSeconds)
	for _, chunk := range engine.Chunk(docs, importChunkSize) {
		batch := make([]map[string]any, 0, len(chunk))
		for _, d := range chunk {
			batch = append(batch, toWire(idx, d))
		}
		results, err := a.api.Import(ctx, idx.Handle(), batch)
		if err != nil {
			return a.observe(engine.OpUpsert, start, err)
		}
		if err := importError(results); err != nil {
			return a.observe(engine.OpUpsert, start, err)
		}
	}
	return a.observe(engine.OpUpsert, start, nil)
}

func importError(results []importResult) error {
	failed := 0
	var first string
	for _, r := range results {
		if r.Success {
			continue
		}
		failed++
		if first == "" {
			first = r.Error
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d documents rejected, first: %s", engine.ErrBadResponse, failed, first)
}

// toWire sets the Typesense id and renders geo points as [lat, lng].
func toWire(idx index.Index, d document.Document) map[string]any {
	out := map[string]any(d.Clone())
	out[keyID] = d.ID()
	for _, m := range idx.EnabledMappings() {
		if m.FieldType() != field.GeoPoint {
			continue
		}
		if v, ok := out[m.Name()].(map[string]any); ok {
			lat, okLat := filter.AsFloat(v["lat"])
			lng, okLng := filter.AsFloat(v["lng"])
			if !okLng {
				lng, okLng = filter.AsFloat(v["lon"])
			}
			if okLat && okLng {
				out[m.Name()] = []float64{lat, lng}
			}
		}
	}
	return out
}

// DeleteDocuments deletes one document at a time; missing ids are ignored.
func (a *Adapter) DeleteDocuments(ctx context.Context, idx index.Index, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	for _, id := range ids {
		if err := a.api.DeleteDocument(ctx, idx.Handle(), id); err != nil {
			return a.observe(engine.OpDelete, start, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	return a.observe(engine.OpDelete, start, nil)
}

func queryBy(idx index.Index, requested []string) (string, string) {
	var names, weights []string
	if len(requested) > 0 {
		byName := map[string]int{}
		for _, m := range idx.EnabledMappings() {
			byName[m.Name()] = m.Weight()
		}
		for _, f := range requested {
			w, ok := byName[f]
			if !ok {
				w = field.DefaultWeight
			}
			names = append(names, f)
			weights = append(weights, strconv.Itoa(w))
		}
	} else {
		for _, m := range idx.SearchableFields() {
			names = append(names, m.Name())
			weights = append(weights, strconv.Itoa(m.Weight()))
		}
	}
	return strings.Join(names, ","), strings.Join(weights, ",")
}

func sortBy(unified []options.SortField, native any) string {
	if s, ok := native.(string); ok {
		return s
	}
	parts := make([]string, 0, len(unified))
	for _, s := range unified {
		parts = append(parts, s.Field+":"+s.Direction())
	}
	return strings.Join(parts, ",")
}

func vectorQuery(v *options.Vector, k int) string {
	vals := make([]string, 0, len(v.Vector))
	for _, f := range v.Vector {
		vals = append(vals, strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	return fmt.Sprintf("%s:([%s], k:%d)", v.Field, strings.Join(vals, ","), k)
}

// searchParams translates a unified query.
func (a *Adapter) searchParams(idx index.Index, text string, opts options.Options) map[string]any {
	page := opts.Pagination(options.DefaultPerPage)
	q := text
	if q == "" {
		q = "*"
	}
	params := map[string]any{
		"q":        q,
		"page":     page.Page,
		"per_page": page.PerPage,
	}
	if by, weights := queryBy(idx, opts.Fields); by != "" {
		params["query_by"] = by
		params["query_by_weights"] = weights
	}
	if f := compileFilters(idx, opts.Filters); f != "" {
		params["filter_by"] = f
	}
	if len(opts.Facets) > 0 {
		params["facet_by"] = strings.Join(opts.Facets, ",")
		params["max_facet_values"] = opts.FacetLimit()
	}
	if unified, native := opts.ResolveSort(); native != nil || len(unified) > 0 {
		if s := sortBy(unified, native); s != "" {
			params["sort_by"] = s
		}
	}
	if !opts.RetrieveAll() {
		params["include_fields"] = strings.Join(append([]string{keyID}, opts.AttributesToRetrieve...), ",")
	}
	if hl := opts.HighlightFields(nil); len(hl) > 0 {
		params["highlight_fields"] = strings.Join(hl, ",")
	}
	if opts.HasVector() {
		params["vector_query"] = vectorQuery(opts.Vector, opts.VectorK())
	}
	return params
}

// Search runs a unified query.
func (a *Adapter) Search(ctx context.Context, idx index.Index, text string, opts options.Options) (result.Result, error) {
	start := time.Now()
	page := opts.Pagination(options.DefaultPerPage)
	res, err := a.api.Search(ctx, idx.Handle(), a.searchParams(idx, text, opts))
	if err != nil {
		return result.Result{}, a.observe(engine.OpSearch, start, err)
	}

	// Typesense highlights query_by fields even when nothing was asked for.
	highlighted := opts.Highlight.Enabled || len(opts.Highlight.Fields) > 0
	wanted := map[string]bool{}
	for _, f := range opts.Highlight.Fields {
		wanted[f] = true
	}

	raws := make([]map[string]any, 0, len(res.Hits))
	for _, h := range res.Hits {
		raw := make(map[string]any, len(h.Document)+2)
		for k, v := range h.Document {
			raw[k] = v
		}
		if h.TextMatch != nil {
			raw[keyTextMatch] = *h.TextMatch
		} else if h.VectorDistance != nil {
			raw[keyTextMatch] = 1 - *h.VectorDistance
		}
		raw[result.KeyHighlights] = pickHighlights(h.Highlights, wanted, highlighted)
		raws = append(raws, raw)
	}

	out := result.New(result.Params{
		Hits:             engine.NormaliseHits(raws, keyID, keyTextMatch),
		Total:            res.Found,
		Page:             page.Page,
		PerPage:          page.PerPage,
		ProcessingTimeMS: res.SearchTimeMs,
		Facets:           facets(res.FacetCounts),
		Raw:              res,
	})
	return out, a.observe(engine.OpSearch, start, nil)
}

// pickHighlights keeps the requested highlight snippets. An empty wanted set
// keeps every field Typesense returned.
func pickHighlights(hits []highlight, wanted map[string]bool, enabled bool) map[string][]string {
	hl := make(map[string]any, len(hits))
	if !enabled {
		return engine.NormaliseHighlights(hl)
	}
	for _, x := range hits {
		if len(wanted) > 0 && !wanted[x.Field] {
			continue
		}
		if len(x.Snippets) > 0 {
			hl[x.Field] = x.Snippets
		} else {
			hl[x.Field] = x.Snippet
		}
	}
	return engine.NormaliseHighlights(hl)
}

func facets(counts []facetCount) map[string][]result.FacetValue {
	out := make(map[string][]result.FacetValue, len(counts))
	for _, fc := range counts {
		values := make([]result.FacetValue, 0, len(fc.Counts))
		for _, c := range fc.Counts {
			values = append(values, result.FacetValue{Value: c.Value, Count: c.Count})
		}
		if len(values) == 0 {
			continue
		}
		engine.SortFacetValues(values)
		out[fc.FieldName] = values
	}
	return out
}

// SearchFacetValues runs a zero-hit facet query and matches values client-side.
func (a *Adapter) SearchFacetValues(ctx context.Context, idx index.Index, q engine.FacetQuery) ([]result.FacetValue, error) {
	start := time.Now()
	params := map[string]any{
		"q":                "*",
		"per_page":         0,
		"facet_by":         q.Field,
		"max_facet_values": facetScanLimit,
	}
	if f := compileFilters(idx, q.Filters); f != "" {
		params["filter_by"] = f
	}
	res, err := a.api.Search(ctx, idx.Handle(), params)
	if err != nil {
		return nil, a.observe(engine.OpFacetSearch, start, err)
	}
	values := facets(res.FacetCounts)[q.Field]
	return engine.FilterFacetValues(values, q.Query, q.EffectiveLimit()), a.observe(engine.OpFacetSearch, start, nil)
}

// CountDocuments reads num_documents.
func (a *Adapter) CountDocuments(ctx context.Context, idx index.Index) (int, error) {
	start := time.Now()
	info, err := a.api.RetrieveCollection(ctx, idx.Handle())
	return info.NumDocuments, a.observe(engine.OpCount, start, err)
}

// ListIDs pages through a wildcard query returning only ids.
func (a *Adapter) ListIDs(ctx context.Context, idx index.Index) ([]string, error) {
	start := time.Now()
	var ids []string
	for page := 1; ; page++ {
		res, err := a.api.Search(ctx, idx.Handle(), map[string]any{
			"q":              "*",
			"page":           page,
			"per_page":       listPageSize,
			"include_fields": keyID,
		})
		if err != nil {
			return nil, a.observe(engine.OpListIDs, start, err)
		}
		for _, h := range res.Hits {
			ids = append(ids, engine.IDString(h.Document[keyID]))
		}
		if len(res.Hits) < listPageSize {
			return ids, a.observe(engine.OpListIDs, start, nil)
		}
	}
}

// SupportsAtomicSwap is false.
func (a *Adapter) SupportsAtomicSwap() bool { return false }

// SwapIndex is not supported.
func (a *Adapter) SwapIndex(context.Context, index.Index, string) error {
	return engine.Wrap(index.Typesense, engine.OpSwap, engine.ErrNotSupported)
}
