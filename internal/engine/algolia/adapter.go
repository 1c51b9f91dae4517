// Package algolia implements the engine contract on Algolia.
package algolia

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/metrics"
)

const (
	keyHighlightResult = "_highlightResult"
	// maxFacetHits is the largest page SearchForFacetValues returns.
	maxFacetHits  = 100
	saveChunkSize = 1000
)

// Config is the per-index Algolia configuration.
type Config struct {
	AppID  string `json:"appId"`
	APIKey string `json:"apiKey"`
}

// Adapter is the Algolia engine.
type Adapter struct {
	api    api
	logger *zap.Logger
}

var _ engine.Engine = (*Adapter)(nil)

// New builds an adapter on the official client.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: algolia needs appId and apiKey", engine.ErrBadConfig)
	}
	return newAdapter(newSDK(cfg.AppID, cfg.APIKey), logger), nil
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

// Type returns index.Algolia.
func (a *Adapter) Type() index.EngineType { return index.Algolia }

func (a *Adapter) observe(op string, start time.Time, err error) error {
	metrics.ObserveEngine(string(index.Algolia), op, start, err)
	if err == nil {
		return nil
	}
	return engine.Wrap(index.Algolia, op, err)
}

// Ping lists indices.
func (a *Adapter) Ping(ctx context.Context) error {
	start := time.Now()
	err := a.api.ListIndices(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}
	return a.observe(engine.OpPing, start, err)
}

// MapFieldType returns the attribute role of a type: "searchable", "facet",
// "filter", "numeric" or "none".
func (a *Adapter) MapFieldType(t field.Type) any {
	switch t {
	case field.Text:
		return "searchable"
	case field.Facet:
		return "facet"
	case field.Keyword, field.Boolean:
		return "filter"
	case field.Integer, field.Float, field.Date:
		return "numeric"
	default:
		return "none"
	}
}

// BuildSchema returns the index settings. Facets are declared searchable so
// facet-value search works on them.
func (a *Adapter) BuildSchema(idx index.Index) map[string]any {
	s := buildSettings(idx)
	return map[string]any{
		"searchableAttributes":  s.SearchableAttributes,
		"attributesForFaceting": s.AttributesForFaceting,
	}
}

func buildSettings(idx index.Index) settings {
	searchable := []string{}
	for _, m := range idx.SearchableFields() {
		searchable = append(searchable, m.Name())
	}
	faceting := []string{}
	for _, m := range idx.EnabledMappings() {
		switch m.FieldType() {
		case field.Facet:
			faceting = append(faceting, "searchable("+m.Name()+")")
		case field.Keyword, field.Text, field.Boolean:
			faceting = append(faceting, "filterOnly("+m.Name()+")")
		}
	}
	for _, d := range document.Discriminators {
		faceting = append(faceting, "filterOnly("+d+")")
	}
	return settings{SearchableAttributes: searchable, AttributesForFaceting: faceting}
}

// CreateIndex applies settings; Algolia creates the index on first write.
func (a *Adapter) CreateIndex(ctx context.Context, idx index.Index) error {
	start := time.Now()
	err := a.api.SetSettings(ctx, idx.Handle(), buildSettings(idx))
	return a.observe(engine.OpCreateIndex, start, err)
}

// DeleteIndex drops the index; a missing index is not an error.
func (a *Adapter) DeleteIndex(ctx context.Context, handle string) error {
	exists, err := a.IndexExists(ctx, handle)
	if err != nil || !exists {
		return err
	}
	start := time.Now()
	return a.observe(engine.OpDeleteIndex, start, a.api.DeleteIndex(ctx, handle))
}

// IndexExists reports whether the index exists.
func (a *Adapter) IndexExists(ctx context.Context, handle string) (bool, error) {
	start := time.Now()
	ok, err := a.api.Exists(ctx, handle)
	return ok, a.observe(engine.OpIndexExists, start, err)
}

// UpsertDocuments saves objects; dates are sent as epoch seconds.
func (a *Adapter) UpsertDocuments(ctx context.Context, idx index.Index, docs []document.Document) error {
	start := time.Now()
	docs = engine.PrepareDocuments(idx, docs, document.EpochSeconds)
	for _, chunk := range engine.Chunk(docs, saveChunkSize) {
		objects := make([]map[string]any, 0, len(chunk))
		for _, d := range chunk {
			objects = append(objects, map[string]any(d))
		}
		if err := a.api.SaveObjects(ctx, idx.Handle(), objects); err != nil {
			return a.observe(engine.OpUpsert, start, err)
		}
	}
	return a.observe(engine.OpUpsert, start, nil)
}

// DeleteDocuments deletes objects by id; unknown ids are ignored by Algolia.
func (a *Adapter) DeleteDocuments(ctx context.Context, idx index.Index, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	return a.observe(engine.OpDelete, start, a.api.DeleteObjects(ctx, idx.Handle(), ids))
}

// Search runs a unified query. A native sort string names a replica index.
func (a *Adapter) Search(ctx context.Context, idx index.Index, text string, opts options.Options) (result.Result, error) {
	start := time.Now()
	page := opts.Pagination(options.DefaultPerPage)
	target := idx.Handle()

	unified, native := opts.ResolveSort()
	if replica, ok := native.(string); ok && replica != "" {
		target = replica
	} else if len(unified) > 0 || native != nil {
		a.logger.Debug("Sort ignored, algolia sorts through replicas", zap.String("index", idx.Handle()))
	}
	if opts.WantsVector() {
		a.logger.Debug("Vector search not available on algolia, running keyword search", zap.String("index", idx.Handle()))
	}

	q := query{
		Text:                         text,
		Page:                         page.Page - 1,
		HitsPerPage:                  page.PerPage,
		Filters:                      compileFilters(idx, opts.Filters),
		Facets:                       opts.Facets,
		MaxValuesPerFacet:            opts.FacetLimit(),
		RestrictSearchableAttributes: opts.Fields,
	}
	if !opts.RetrieveAll() {
		q.AttributesToRetrieve = opts.AttributesToRetrieve
	}
	q.AttributesToHighlight = opts.HighlightFields(nil)
	if q.AttributesToHighlight == nil && !opts.Highlight.Enabled {
		q.AttributesToHighlight = []string{}
	}

	res, err := a.api.Search(ctx, target, q)
	if err != nil {
		return result.Result{}, a.observe(engine.OpSearch, start, err)
	}

	raws := make([]map[string]any, 0, len(res.Hits))
	for _, h := range res.Hits {
		raw := make(map[string]any, len(h)+1)
		for k, v := range h {
			raw[k] = v
		}
		hl, _ := h[keyHighlightResult].(map[string]any)
		raw[result.KeyHighlights] = engine.NormaliseHighlights(hl)
		raws = append(raws, raw)
	}

	out := result.New(result.Params{
		Hits:             engine.NormaliseHits(raws, document.KeyID, ""),
		Total:            res.NbHits,
		Page:             page.Page,
		PerPage:          page.PerPage,
		ProcessingTimeMS: res.ProcessingTimeMS,
		Facets:           engine.LimitFacetValues(engine.NormaliseFacets(res.Facets), opts.FacetLimit()),
		Raw:              res,
	})
	return out, a.observe(engine.OpSearch, start, nil)
}

// SearchFacetValues fetches the top values and matches the query client-side,
// giving "contains" semantics instead of Algolia's prefix matching.
func (a *Adapter) SearchFacetValues(ctx context.Context, idx index.Index, q engine.FacetQuery) ([]result.FacetValue, error) {
	start := time.Now()
	hits, err := a.api.SearchForFacetValues(ctx, idx.Handle(), q.Field, "", compileFilters(idx, q.Filters), maxFacetHits)
	if err != nil {
		return nil, a.observe(engine.OpFacetSearch, start, err)
	}
	values := make([]result.FacetValue, 0, len(hits))
	for _, h := range hits {
		values = append(values, result.FacetValue{Value: h.Value, Count: h.Count})
	}
	return engine.FilterFacetValues(values, q.Query, q.EffectiveLimit()), a.observe(engine.OpFacetSearch, start, nil)
}

// CountDocuments runs an empty zero-hit query.
func (a *Adapter) CountDocuments(ctx context.Context, idx index.Index) (int, error) {
	start := time.Now()
	res, err := a.api.Search(ctx, idx.Handle(), query{HitsPerPage: 0, AttributesToRetrieve: []string{}})
	if err != nil {
		return 0, a.observe(engine.OpCount, start, err)
	}
	return res.NbHits, a.observe(engine.OpCount, start, nil)
}

// ListIDs browses the whole index.
func (a *Adapter) ListIDs(ctx context.Context, idx index.Index) ([]string, error) {
	start := time.Now()
	ids, err := a.api.BrowseIDs(ctx, idx.Handle())
	return ids, a.observe(engine.OpListIDs, start, err)
}

// SupportsAtomicSwap is true: MoveIndex replaces the destination atomically.
func (a *Adapter) SupportsAtomicSwap() bool { return true }

// SwapIndex moves the swap generation onto the production handle.
func (a *Adapter) SwapIndex(ctx context.Context, idx index.Index, swapHandle string) error {
	start := time.Now()
	err := a.api.MoveIndex(ctx, swapHandle, idx.Handle())
	if err == nil {
		a.logger.Info("Index swapped", zap.String("engine", "algolia"), zap.String("index", idx.Handle()), zap.String("from", swapHandle))
	}
	return a.observe(engine.OpSwap, start, err)
}
