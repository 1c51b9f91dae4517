// Package meili implements the engine contract on Meilisearch.
package meili

import (
	"context"
	"fmt"
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
	keyFormatted    = "_formatted"
	keyRankingScore = "_rankingScore"
	keyGeo          = "_geo"
	keyVectors      = "_vectors"
	listPageSize    = 1000
	addChunkSize    = 1000
	// maxValuesPerFacet bounds the distribution facet value search matches against.
	maxValuesPerFacet = 1000
)

// Config is the per-index Meilisearch configuration.
type Config struct {
	Host   string `json:"host"`
	APIKey string `json:"apiKey"`
}

// Adapter is the Meilisearch engine.
type Adapter struct {
	api    api
	logger *zap.Logger
}

var _ engine.Engine = (*Adapter)(nil)

// New builds an adapter on the official client.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: meilisearch needs host", engine.ErrBadConfig)
	}
	return newAdapter(newSDK(cfg.Host, cfg.APIKey), logger), nil
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

// Type returns index.Meilisearch.
func (a *Adapter) Type() index.EngineType { return index.Meilisearch }

func (a *Adapter) observe(op string, start time.Time, err error) error {
	metrics.ObserveEngine(string(index.Meilisearch), op, start, err)
	if err == nil {
		return nil
	}
	return engine.Wrap(index.Meilisearch, op, err)
}

// Ping calls /health.
func (a *Adapter) Ping(ctx context.Context) error {
	start := time.Now()
	err := a.api.Health(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}
	return a.observe(engine.OpPing, start, err)
}

// MapFieldType returns the attribute roles a type gets in the settings.
func (a *Adapter) MapFieldType(t field.Type) any {
	switch t {
	case field.Text:
		return []string{"searchable", "filterable"}
	case field.Keyword, field.Facet, field.Boolean:
		return []string{"filterable"}
	case field.Integer, field.Float, field.Date, field.GeoPoint:
		return []string{"filterable", "sortable"}
	case field.Embedding:
		return []string{"embedder"}
	default:
		return []string{}
	}
}

// BuildSchema returns the index settings.
func (a *Adapter) BuildSchema(idx index.Index) map[string]any {
	searchable := []string{}
	for _, m := range idx.SearchableFields() {
		searchable = append(searchable, m.Name())
	}
	if len(searchable) == 0 {
		searchable = []string{"*"}
	}

	filterable := []string{document.KeyID}
	filterable = append(filterable, document.Discriminators...)
	sortable := []string{}
	embedders := map[string]any{}
	dims := idx.VectorDim()

	for _, m := range idx.EnabledMappings() {
		name := m.Name()
		switch m.FieldType() {
		case field.Text, field.Keyword, field.Facet, field.Boolean:
			filterable = append(filterable, name)
		case field.Integer, field.Float, field.Date:
			filterable = append(filterable, name)
			sortable = append(sortable, name)
		case field.GeoPoint:
			filterable = appendOnce(filterable, keyGeo)
			sortable = appendOnce(sortable, keyGeo)
		case field.Embedding:
			e := map[string]any{"source": "userProvided"}
			if dims > 0 {
				e["dimensions"] = dims
			}
			embedders[name] = e
		}
	}

	schema := map[string]any{
		"searchableAttributes": searchable,
		"filterableAttributes": filterable,
		"sortableAttributes":   sortable,
		"faceting":             map[string]any{"maxValuesPerFacet": maxValuesPerFacet},
	}
	if len(embedders) > 0 {
		schema["embedders"] = embedders
	}
	return schema
}

func appendOnce(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// CreateIndex creates the index when missing and applies settings.
func (a *Adapter) CreateIndex(ctx context.Context, idx index.Index) error {
	start := time.Now()
	exists, err := a.api.IndexExists(ctx, idx.Handle())
	if err != nil {
		return a.observe(engine.OpCreateIndex, start, err)
	}
	if !exists {
		if err := a.api.CreateIndex(ctx, idx.Handle(), document.KeyID); err != nil {
			return a.observe(engine.OpCreateIndex, start, err)
		}
	}
	err = a.api.UpdateSettings(ctx, idx.Handle(), a.BuildSchema(idx))
	return a.observe(engine.OpCreateIndex, start, err)
}

// DeleteIndex drops the index; a missing index is not an error.
func (a *Adapter) DeleteIndex(ctx context.Context, handle string) error {
	start := time.Now()
	return a.observe(engine.OpDeleteIndex, start, a.api.DeleteIndex(ctx, handle))
}

// IndexExists reports whether the index exists.
func (a *Adapter) IndexExists(ctx context.Context, handle string) (bool, error) {
	start := time.Now()
	ok, err := a.api.IndexExists(ctx, handle)
	return ok, a.observe(engine.OpIndexExists, start, err)
}

// UpsertDocuments adds or replaces documents. Geo points move to _geo and
// embeddings to _vectors.
func (a *Adapter) UpsertDocuments(ctx context.Context, idx index.Index, docs []document.Document) error {
	start := time.Now()
	docs = engine.PrepareDocuments(idx, docs, document.EpochSeconds)
	for _, chunk := range engine.Chunk(docs, addChunkSize) {
		batch := make([]map[string]any, 0, len(chunk))
		for _, d := range chunk {
			batch = append(batch, toWire(idx, d))
		}
		if err := a.api.AddDocuments(ctx, idx.Handle(), batch, document.KeyID); err != nil {
			return a.observe(engine.OpUpsert, start, err)
		}
	}
	return a.observe(engine.OpUpsert, start, nil)
}

func toWire(idx index.Index, d document.Document) map[string]any {
	out := map[string]any(d.Clone())
	vectors := map[string]any{}
	for _, m := range idx.EnabledMappings() {
		v, ok := out[m.Name()]
		if !ok || v == nil {
			continue
		}
		switch m.FieldType() {
		case field.GeoPoint:
			if geo, ok := geoPoint(v); ok {
				out[keyGeo] = geo
			}
		case field.Embedding:
			vectors[m.Name()] = v
			delete(out, m.Name())
		}
	}
	if len(vectors) > 0 {
		out[keyVectors] = vectors
	}
	return out
}

// geoPoint accepts {lat,lng}, {lat,lon} and [lat,lng].
func geoPoint(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		lat, okLat := filter.AsFloat(x["lat"])
		lng, okLng := filter.AsFloat(x["lng"])
		if !okLng {
			lng, okLng = filter.AsFloat(x["lon"])
		}
		if okLat && okLng {
			return map[string]any{"lat": lat, "lng": lng}, true
		}
	case []any:
		if len(x) == 2 {
			lat, okLat := filter.AsFloat(x[0])
			lng, okLng := filter.AsFloat(x[1])
			if okLat && okLng {
				return map[string]any{"lat": lat, "lng": lng}, true
			}
		}
	case []float64:
		if len(x) == 2 {
			return map[string]any{"lat": x[0], "lng": x[1]}, true
		}
	}
	return nil, false
}

// DeleteDocuments deletes by id; unknown ids are ignored by Meilisearch.
func (a *Adapter) DeleteDocuments(ctx context.Context, idx index.Index, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	return a.observe(engine.OpDelete, start, a.api.DeleteDocuments(ctx, idx.Handle(), ids))
}

// sortExpressions renders unified sort as field:direction.
func sortExpressions(idx index.Index, unified []options.SortField, native any) []string {
	switch x := native.(type) {
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, v := range x {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	out := make([]string, 0, len(unified))
	for _, s := range unified {
		name := s.Field
		if ft, ok := idx.FieldType(name); ok && ft == field.GeoPoint {
			continue
		}
		out = append(out, name+":"+s.Direction())
	}
	return out
}

// Search runs a unified query.
func (a *Adapter) Search(ctx context.Context, idx index.Index, text string, opts options.Options) (result.Result, error) {
	start := time.Now()
	page := opts.Pagination(options.DefaultPerPage)
	unified, native := opts.ResolveSort()

	defaults := make([]string, 0)
	for _, m := range idx.SearchableFields() {
		defaults = append(defaults, m.Name())
	}
	highlight := opts.HighlightFields(defaults)

	req := searchRequest{
		Offset:                page.Offset,
		Limit:                 page.PerPage,
		Filter:                compileFilters(idx, opts.Filters),
		Facets:                opts.Facets,
		Sort:                  sortExpressions(idx, unified, native),
		AttributesToHighlight: highlight,
		AttributesToSearchOn:  opts.Fields,
		ShowRankingScore:      true,
	}
	if !opts.RetrieveAll() {
		req.AttributesToRetrieve = append([]string{document.KeyID}, opts.AttributesToRetrieve...)
	}
	if opts.HasVector() {
		ratio := 1.0
		if text != "" {
			ratio = 0.5
		}
		req.Vector = opts.Vector.Vector
		req.Hybrid = &hybrid{SemanticRatio: ratio, Embedder: opts.Vector.Field}
	}

	res, err := a.api.Search(ctx, idx.Handle(), text, req)
	if err != nil {
		return result.Result{}, a.observe(engine.OpSearch, start, err)
	}

	raws := make([]map[string]any, 0, len(res.Hits))
	for _, h := range res.Hits {
		raw := make(map[string]any, len(h)+1)
		for k, v := range h {
			raw[k] = v
		}
		raw[result.KeyHighlights] = formattedHighlights(h, highlight)
		raws = append(raws, raw)
	}

	total := res.EstimatedTotalHits
	if res.TotalHits > total {
		total = res.TotalHits
	}
	out := result.New(result.Params{
		Hits:             engine.NormaliseHits(raws, document.KeyID, keyRankingScore),
		Total:            total,
		Page:             page.Page,
		PerPage:          page.PerPage,
		ProcessingTimeMS: res.ProcessingTimeMs,
		Facets:           engine.LimitFacetValues(engine.NormaliseFacets(res.FacetDistribution), opts.FacetLimit()),
		Raw:              res,
	})
	return out, a.observe(engine.OpSearch, start, nil)
}

// formattedHighlights keeps _formatted values of highlighted fields that contain a match.
func formattedHighlights(hit map[string]any, fields []string) map[string][]string {
	formatted, _ := hit[keyFormatted].(map[string]any)
	picked := make(map[string]any, len(fields))
	for _, f := range fields {
		if s, ok := formatted[f].(string); ok && strings.Contains(s, "<em>") {
			picked[f] = s
		}
	}
	return engine.NormaliseHighlights(picked)
}

// SearchFacetValues reads the zero-hit facet distribution and matches values client-side.
func (a *Adapter) SearchFacetValues(ctx context.Context, idx index.Index, q engine.FacetQuery) ([]result.FacetValue, error) {
	start := time.Now()
	res, err := a.api.Search(ctx, idx.Handle(), "", searchRequest{
		Limit:  0,
		Filter: compileFilters(idx, q.Filters),
		Facets: []string{q.Field},
	})
	if err != nil {
		return nil, a.observe(engine.OpFacetSearch, start, err)
	}
	values := engine.NormaliseFacetCounts(res.FacetDistribution[q.Field])
	return engine.FilterFacetValues(values, q.Query, q.EffectiveLimit()), a.observe(engine.OpFacetSearch, start, nil)
}

// CountDocuments reads index stats.
func (a *Adapter) CountDocuments(ctx context.Context, idx index.Index) (int, error) {
	start := time.Now()
	n, err := a.api.Count(ctx, idx.Handle())
	return n, a.observe(engine.OpCount, start, err)
}

// ListIDs pages through every document fetching only the id.
func (a *Adapter) ListIDs(ctx context.Context, idx index.Index) ([]string, error) {
	start := time.Now()
	var ids []string
	for offset := 0; ; offset += listPageSize {
		page, err := a.api.DocumentIDs(ctx, idx.Handle(), document.KeyID, offset, listPageSize)
		if err != nil {
			return nil, a.observe(engine.OpListIDs, start, err)
		}
		ids = append(ids, page...)
		if len(page) < listPageSize {
			return ids, a.observe(engine.OpListIDs, start, nil)
		}
	}
}

// SupportsAtomicSwap is true.
func (a *Adapter) SupportsAtomicSwap() bool { return true }

// SwapIndex exchanges the swap generation with production, then drops the
// old generation now living under the swap handle.
func (a *Adapter) SwapIndex(ctx context.Context, idx index.Index, swapHandle string) error {
	start := time.Now()
	exists, err := a.api.IndexExists(ctx, idx.Handle())
	if err != nil {
		return a.observe(engine.OpSwap, start, err)
	}
	if !exists {
		if err := a.api.CreateIndex(ctx, idx.Handle(), document.KeyID); err != nil {
			return a.observe(engine.OpSwap, start, err)
		}
	}
	if err := a.api.SwapIndexes(ctx, idx.Handle(), swapHandle); err != nil {
		return a.observe(engine.OpSwap, start, err)
	}
	if err := a.api.DeleteIndex(ctx, swapHandle); err != nil {
		a.logger.Warn("Failed to drop previous generation",
			zap.String("index", idx.Handle()),
			zap.String("swap", swapHandle),
			zap.Error(err),
		)
	}
	a.logger.Info("Index swapped", zap.String("engine", "meilisearch"), zap.String("index", idx.Handle()))
	return a.observe(engine.OpSwap, start, nil)
}
