// Package esfamily implements the engine contract for Elasticsearch and OpenSearch.
// Both speak the same REST dialect; differences live behind Flavor.
package esfamily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/metrics"
)

const (
	scrollKeepAlive  = "1m"
	defaultPageScan  = 1000
	defaultBulkChunk = 500
)

// Adapter is the shared Elasticsearch/OpenSearch engine.
type Adapter struct {
	flavor    Flavor
	transport Transport
	logger    *zap.Logger
	scanSize  int
	bulkChunk int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithScanSize sets the scroll page size used by ListIDs.
func WithScanSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.scanSize = n
		}
	}
}

// WithBulkChunk sets how many documents go into one bulk request.
func WithBulkChunk(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.bulkChunk = n
		}
	}
}

// New creates an adapter over an arbitrary transport.
func New(flavor Flavor, transport Transport, logger *zap.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		flavor:    flavor,
		transport: transport,
		logger:    logger,
		scanSize:  defaultPageScan,
		bulkChunk: defaultBulkChunk,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

var _ engine.Engine = (*Adapter)(nil)

// Type returns the flavor's engine type.
func (a *Adapter) Type() index.EngineType { return a.flavor.Type() }

// do performs one call and records metrics for op.
func (a *Adapter) do(ctx context.Context, op, method, path string, body any) (res *Response, err error) {
	start := time.Now()
	defer func() {
		observed := err
		if observed == nil && res != nil && res.StatusCode >= 500 {
			observed = errServerStatus
		}
		metrics.ObserveEngine(string(a.flavor.Type()), op, start, observed)
	}()

	var payload []byte
	contentType := contentJSON
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
		contentType = contentNDJSON
	default:
		payload, err = json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
	}
	return a.transport.Perform(ctx, method, path, payload, contentType)
}

func (a *Adapter) wrap(op string, err error) error { return engine.Wrap(a.flavor.Type(), op, err) }

func indexPath(handle string, parts ...string) string {
	p := "/" + url.PathEscape(handle)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Ping checks cluster reachability.
func (a *Adapter) Ping(ctx context.Context) error {
	res, err := a.do(ctx, engine.OpPing, http.MethodGet, "/", nil)
	if err != nil {
		return a.wrap(engine.OpPing, err)
	}
	if res.IsError() {
		return a.wrap(engine.OpPing, responseError(res))
	}
	return nil
}

// IndexExists issues HEAD /{index}.
func (a *Adapter) IndexExists(ctx context.Context, handle string) (bool, error) {
	res, err := a.do(ctx, engine.OpIndexExists, http.MethodHead, indexPath(handle), nil)
	if err != nil {
		return false, a.wrap(engine.OpIndexExists, err)
	}
	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, a.wrap(engine.OpIndexExists, responseError(res))
	default:
		return true, nil
	}
}

// CreateIndex creates the index, or updates the mapping when it already exists.
func (a *Adapter) CreateIndex(ctx context.Context, idx index.Index) error {
	schema := a.BuildSchema(idx)
	exists, err := a.IndexExists(ctx, idx.Handle())
	if err != nil {
		return err
	}
	if exists {
		return a.putMapping(ctx, idx.Handle(), schema)
	}

	res, err := a.do(ctx, engine.OpCreateIndex, http.MethodPut, indexPath(idx.Handle()), schema)
	if err != nil {
		return a.wrap(engine.OpCreateIndex, err)
	}
	if res.IsError() {
		var er errorResponse
		if json.Unmarshal(res.Body, &er) == nil && er.Error.Type == "resource_already_exists_exception" {
			return a.putMapping(ctx, idx.Handle(), schema)
		}
		return a.wrap(engine.OpCreateIndex, responseError(res))
	}
	a.logger.Info("Index created",
		zap.String("engine", string(a.flavor.Type())),
		zap.String("index", idx.Handle()),
	)
	return nil
}

func (a *Adapter) putMapping(ctx context.Context, handle string, schema map[string]any) error {
	mappings, _ := schema["mappings"].(map[string]any)
	res, err := a.do(ctx, engine.OpUpdateSchema, http.MethodPut, indexPath(handle, "_mapping"), mappings)
	if err != nil {
		return a.wrap(engine.OpUpdateSchema, err)
	}
	if res.IsError() {
		return a.wrap(engine.OpUpdateSchema, responseError(res))
	}
	return nil
}

// DeleteIndex drops the index; a missing index is not an error.
func (a *Adapter) DeleteIndex(ctx context.Context, handle string) error {
	res, err := a.do(ctx, engine.OpDeleteIndex, http.MethodDelete, indexPath(handle), nil)
	if err != nil {
		return a.wrap(engine.OpDeleteIndex, err)
	}
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return a.wrap(engine.OpDeleteIndex, responseError(res))
	}
	return nil
}

// UpsertDocuments writes documents through _bulk index actions.
func (a *Adapter) UpsertDocuments(ctx context.Context, idx index.Index, docs []document.Document) error {
	docs = engine.PrepareDocuments(idx, docs, document.ISO8601)
	for _, chunk := range engine.Chunk(docs, a.bulkChunk) {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, d := range chunk {
			action := map[string]any{"index": map[string]any{"_index": idx.Handle(), "_id": d.ID()}}
			if err := enc.Encode(action); err != nil {
				return a.wrap(engine.OpUpsert, err)
			}
			if err := enc.Encode(d.Without(document.KeyID)); err != nil {
				return a.wrap(engine.OpUpsert, fmt.Errorf("encode document %s: %w", d.ID(), err))
			}
		}
		if err := a.bulk(ctx, engine.OpUpsert, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocuments removes ids through _bulk delete actions.
func (a *Adapter) DeleteDocuments(ctx context.Context, idx index.Index, ids []string) error {
	for _, chunk := range engine.Chunk(ids, a.bulkChunk) {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, id := range chunk {
			action := map[string]any{"delete": map[string]any{"_index": idx.Handle(), "_id": id}}
			if err := enc.Encode(action); err != nil {
				return a.wrap(engine.OpDelete, err)
			}
		}
		if err := a.bulk(ctx, engine.OpDelete, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) bulk(ctx context.Context, op string, ndjson []byte) error {
	if len(ndjson) == 0 {
		return nil
	}
	res, err := a.do(ctx, op, http.MethodPost, "/_bulk", ndjson)
	if err != nil {
		return a.wrap(op, err)
	}
	if res.IsError() {
		return a.wrap(op, responseError(res))
	}
	return a.wrap(op, bulkError(res.Body))
}

// Search runs a unified query.
func (a *Adapter) Search(ctx context.Context, idx index.Index, query string, opts options.Options) (result.Result, error) {
	page := opts.Pagination(options.DefaultPerPage)
	body := a.buildSearchBody(idx, query, opts)

	res, err := a.do(ctx, engine.OpSearch, http.MethodPost, indexPath(idx.Handle(), "_search"), body)
	if err != nil {
		return result.Result{}, a.wrap(engine.OpSearch, err)
	}
	if res.IsError() {
		return result.Result{}, a.wrap(engine.OpSearch, responseError(res))
	}
	out, err := parseSearch(res.Body, page.Page, page.PerPage)
	if err != nil {
		return result.Result{}, a.wrap(engine.OpSearch, err)
	}
	return out, nil
}

// SearchFacetValues returns values of one field containing the query.
func (a *Adapter) SearchFacetValues(ctx context.Context, idx index.Index, q engine.FacetQuery) ([]result.FacetValue, error) {
	body, regex := buildFacetBody(idx, q)
	res, err := a.do(ctx, engine.OpFacetSearch, http.MethodPost, indexPath(idx.Handle(), "_search"), body)
	if err != nil {
		return nil, a.wrap(engine.OpFacetSearch, err)
	}
	if res.IsError() {
		return nil, a.wrap(engine.OpFacetSearch, responseError(res))
	}

	var parsed struct {
		Aggregations map[string]json.RawMessage `json:"aggregations"`
	}
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return nil, a.wrap(engine.OpFacetSearch, fmt.Errorf("%w: %w", engine.ErrBadResponse, err))
	}
	raw, ok := parsed.Aggregations[aggValues]
	if !ok {
		return []result.FacetValue{}, nil
	}
	values, err := parseTerms(raw)
	if err != nil {
		return nil, a.wrap(engine.OpFacetSearch, err)
	}
	if !regex {
		return engine.FilterFacetValues(values, q.Query, q.EffectiveLimit()), nil
	}
	return values, nil
}

// CountDocuments uses _count.
func (a *Adapter) CountDocuments(ctx context.Context, idx index.Index) (int, error) {
	res, err := a.do(ctx, engine.OpCount, http.MethodPost, indexPath(idx.Handle(), "_count"), nil)
	if err != nil {
		return 0, a.wrap(engine.OpCount, err)
	}
	if res.IsError() {
		return 0, a.wrap(engine.OpCount, responseError(res))
	}
	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return 0, a.wrap(engine.OpCount, fmt.Errorf("%w: %w", engine.ErrBadResponse, err))
	}
	return parsed.Count, nil
}

type scrollResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// ListIDs walks the whole index with a scroll cursor.
func (a *Adapter) ListIDs(ctx context.Context, idx index.Index) ([]string, error) {
	body := map[string]any{
		"size":    a.scanSize,
		"_source": false,
		"sort":    []string{"_doc"},
		"query":   map[string]any{"match_all": map[string]any{}},
	}
	path := indexPath(idx.Handle(), "_search") + "?scroll=" + scrollKeepAlive
	res, err := a.do(ctx, engine.OpListIDs, http.MethodPost, path, body)
	if err != nil {
		return nil, a.wrap(engine.OpListIDs, err)
	}

	var ids []string
	var scrollID string
	defer func() {
		if scrollID != "" {
			a.clearScroll(ctx, scrollID)
		}
	}()

	for {
		if res.IsError() {
			return nil, a.wrap(engine.OpListIDs, responseError(res))
		}
		var page scrollResponse
		if err := json.Unmarshal(res.Body, &page); err != nil {
			return nil, a.wrap(engine.OpListIDs, fmt.Errorf("%w: %w", engine.ErrBadResponse, err))
		}
		scrollID = page.ScrollID
		if len(page.Hits.Hits) == 0 {
			return ids, nil
		}
		for _, h := range page.Hits.Hits {
			ids = append(ids, h.ID)
		}
		if len(page.Hits.Hits) < a.scanSize || scrollID == "" {
			return ids, nil
		}

		res, err = a.do(ctx, engine.OpListIDs, http.MethodPost, "/_search/scroll", map[string]any{
			"scroll":    scrollKeepAlive,
			"scroll_id": scrollID,
		})
		if err != nil {
			return nil, a.wrap(engine.OpListIDs, err)
		}
	}
}

func (a *Adapter) clearScroll(ctx context.Context, scrollID string) {
	res, err := a.do(ctx, engine.OpListIDs, http.MethodDelete, "/_search/scroll", map[string]any{
		"scroll_id": []string{scrollID},
	})
	if err != nil || res.IsError() {
		a.logger.Debug("Failed to clear scroll", zap.String("engine", string(a.flavor.Type())), zap.Error(err))
	}
}

// SupportsAtomicSwap is false: aliases are not managed here.
func (a *Adapter) SupportsAtomicSwap() bool { return false }

// SwapIndex is not supported.
func (a *Adapter) SwapIndex(_ context.Context, _ index.Index, _ string) error {
	return a.wrap(engine.OpSwap, engine.ErrNotSupported)
}
