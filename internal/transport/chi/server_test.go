package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/queue"
	healthuc "github.com/kailas-cloud/searchbridge/internal/usecase/health"
	"github.com/kailas-cloud/searchbridge/internal/usecase/indexsync"
)

// --- Mocks ---

type mockSearcher struct {
	searchFn func(handle, query string, opts options.Options) (result.Result, error)
	gotQuery string
	gotOpts  options.Options
	facetQ   engine.FacetQuery
	err      error
}

func (m *mockSearcher) Search(_ context.Context, handle, query string, opts options.Options) (result.Result, error) {
	m.gotQuery, m.gotOpts = query, opts
	if m.searchFn != nil {
		return m.searchFn(handle, query, opts)
	}
	return result.New(result.Params{Hits: []result.Hit{{"id": "1"}}, Total: 1, Page: 1, PerPage: 20, Raw: "native"}), nil
}

func (m *mockSearcher) GetDocument(_ context.Context, handle, id string) (result.Hit, error) {
	if m.err != nil {
		return nil, m.err
	}
	if id != "42" {
		return nil, fmt.Errorf("%s/%s: %w", handle, id, domain.ErrDocumentNotFound)
	}
	return result.Hit{"id": "42", "title": "Lisbon"}, nil
}

func (m *mockSearcher) SearchFacetValues(_ context.Context, _ string, q engine.FacetQuery) ([]result.FacetValue, error) {
	m.facetQ = q
	if m.err != nil {
		return nil, m.err
	}
	return []result.FacetValue{{Value: "Lisbon", Count: 3}}, nil
}

func (m *mockSearcher) Count(_ context.Context, handle string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return 7, nil
}

func (m *mockSearcher) Schema(handle string) (map[string]any, error) {
	if handle != "places" {
		return nil, fmt.Errorf("index %q: %w", handle, domain.ErrNotFound)
	}
	return map[string]any{"fields": []string{"title"}}, nil
}

type mockSyncer struct {
	saved, deleted []content.Item
	importOpts     indexsync.ImportOptions
	err            error
}

func (m *mockSyncer) OnSave(_ context.Context, item content.Item) error {
	m.saved = append(m.saved, item)
	return m.err
}

func (m *mockSyncer) OnDelete(_ context.Context, item content.Item) error {
	m.deleted = append(m.deleted, item)
	return m.err
}

func (m *mockSyncer) Import(_ context.Context, handle string, opts indexsync.ImportOptions) (indexsync.Plan, error) {
	m.importOpts = opts
	if m.err != nil {
		return indexsync.Plan{}, m.err
	}
	return indexsync.Plan{
		Index: handle, Generation: "gen-1", Target: handle, Total: 250,
		BatchSize: 100, Batches: 3, Trailer: queue.KindCleanup,
	}, nil
}

type mockIndexes struct {
	list     []index.Index
	scopeArg [3]string
}

func (m *mockIndexes) List() []index.Index { return m.list }

func (m *mockIndexes) ForContent(site, category, subtype string) []index.Index {
	m.scopeArg = [3]string{site, category, subtype}
	return m.list[:1]
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- Helpers ---

type fixture struct {
	search  *mockSearcher
	sync    *mockSyncer
	indexes *mockIndexes
	health  *mockHealth
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var list []index.Index
	for _, h := range []string{"places", "news"} {
		idx, err := index.New(index.Params{Handle: h, EngineType: index.Typesense, Enabled: true})
		if err != nil {
			t.Fatal(err)
		}
		list = append(list, idx)
	}
	f := &fixture{
		search:  &mockSearcher{},
		sync:    &mockSyncer{},
		indexes: &mockIndexes{list: list},
		health:  &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK}}},
	}
	srv := NewServer(f.search, f.sync, f.indexes, f.health)
	f.router = NewRouter(srv, RouterConfig{RequestTimeout: time.Second}, zap.NewNop())
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v (body %q)", err, rr.Body.String())
	}
	return v
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	resp := decode[HealthResponse](t, rr)
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("unexpected body: %+v", resp)
	}

	f.health.report = healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{"engine:places": healthuc.CheckError}}
	if rr := f.do(t, http.MethodGet, "/healthz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d", rr.Code)
	}
}

func TestListIndexes(t *testing.T) {
	f := newFixture(t)

	all := decode[[]IndexResponse](t, f.do(t, http.MethodGet, "/indexes", ""))
	if len(all) != 2 || all[0].Handle != "places" || all[0].Engine != "typesense" {
		t.Fatalf("unexpected list: %+v", all)
	}

	scoped := decode[[]IndexResponse](t, f.do(t, http.MethodGet, "/indexes?site=en&category=blog", ""))
	if len(scoped) != 1 {
		t.Fatalf("expected scoped list, got %d", len(scoped))
	}
	if f.indexes.scopeArg != [3]string{"en", "blog", ""} {
		t.Errorf("scope args = %v", f.indexes.scopeArg)
	}
}

func TestSearchQuery(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/indexes/places/search?q=lisbon&page=2&perPage=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
	if f.search.gotQuery != "lisbon" || f.search.gotOpts.Page != 2 || f.search.gotOpts.PerPage != 5 {
		t.Errorf("bound query=%q opts=%+v", f.search.gotQuery, f.search.gotOpts)
	}
	body := decode[map[string]any](t, rr)
	if _, ok := body["raw"]; ok {
		t.Error("raw must be stripped by default")
	}
	if body["totalHits"].(float64) != 1 {
		t.Errorf("totalHits = %v", body["totalHits"])
	}
}

func TestSearchQuery_RawKept(t *testing.T) {
	f := newFixture(t)
	body := decode[map[string]any](t, f.do(t, http.MethodGet, "/indexes/places/search?q=x&raw=true", ""))
	if body["raw"] != "native" {
		t.Errorf("raw = %v", body["raw"])
	}
}

func TestSearchQuery_BadPage(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/indexes/places/search?q=x&page=two", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Code != CodeBadRequest {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestSearchBody(t *testing.T) {
	f := newFixture(t)
	body := `{"q":"cafe","perPage":3,"facets":["city"],"filters":{"city":"Lisbon"},"sort":{"price":"asc"}}`
	rr := f.do(t, http.MethodPost, "/indexes/places/search", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
	opts := f.search.gotOpts
	if f.search.gotQuery != "cafe" || opts.PerPage != 3 || len(opts.Facets) != 1 || opts.Filters["city"] != "Lisbon" {
		t.Errorf("bound query=%q opts=%+v", f.search.gotQuery, opts)
	}
	if opts.Sort.IsEmpty() {
		t.Error("expected sort to be decoded")
	}
}

func TestSearchBody_Malformed(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, http.MethodPost, "/indexes/places/search", "{"); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"unknown index", fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound, CodeIndexNotFound},
		{"read-only", fmt.Errorf("x: %w", domain.ErrIndexReadOnly), http.StatusConflict, CodeIndexReadOnly},
		{"validation", fmt.Errorf("query too long: %w", domain.ErrInvalidRequest), http.StatusBadRequest, CodeValidationFailed},
		{"disabled", fmt.Errorf("x: %w", domain.ErrIndexDisabled), http.StatusServiceUnavailable, CodeIndexDisabled},
		{"provider", fmt.Errorf("x: %w", domain.ErrEmbeddingProviderError), http.StatusBadGateway, CodeEmbeddingError},
		{"swap", domain.NewSwapError("places", "gen-1", errors.New("alias")), http.StatusInternalServerError, CodeSwapFailed},
		{"internal", errors.New("boom: secret dsn"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.search.err = tt.err
			rr := f.do(t, http.MethodGet, "/indexes/places/count", "")
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			resp := decode[ErrorResponse](t, rr)
			if resp.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Code, tt.code)
			}
			if strings.Contains(resp.Message, "secret") {
				t.Errorf("internal detail leaked: %q", resp.Message)
			}
		})
	}
}

func TestGetSchema(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, http.MethodGet, "/indexes/places/schema", ""); rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/indexes/missing/schema", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rr.Code)
	}
}

func TestGetDocument(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/indexes/places/documents/42", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if hit := decode[map[string]any](t, rr); hit["title"] != "Lisbon" {
		t.Errorf("hit = %v", hit)
	}

	rr = f.do(t, http.MethodGet, "/indexes/places/documents/7", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Code != CodeDocumentNotFound {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestCountDocuments(t *testing.T) {
	f := newFixture(t)
	if resp := decode[CountResponse](t, f.do(t, http.MethodGet, "/indexes/places/count", "")); resp.Count != 7 {
		t.Errorf("count = %d", resp.Count)
	}
}

func TestSearchFacetValues(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/indexes/places/facets/city/search", `{"query":"li","limit":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if q := f.search.facetQ; q.Field != "city" || q.Query != "li" || q.Limit != 5 {
		t.Errorf("facet query = %+v", q)
	}
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/indexes/places/import", `{"flush":true}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
	if !f.sync.importOpts.Flush {
		t.Error("flush not forwarded")
	}
	resp := decode[ImportResponse](t, rr)
	if resp.Generation != "gen-1" || resp.Batches != 3 || resp.Trailer != string(queue.KindCleanup) {
		t.Errorf("resp = %+v", resp)
	}
}

func TestImport_EmptyBody(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, http.MethodPost, "/indexes/places/import", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if f.sync.importOpts.Flush {
		t.Error("flush must default to false")
	}
}

func TestImport_ReadOnly(t *testing.T) {
	f := newFixture(t)
	f.sync.err = fmt.Errorf("places: %w", domain.ErrIndexReadOnly)
	if rr := f.do(t, http.MethodPost, "/indexes/places/import", ""); rr.Code != http.StatusConflict {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestContentEvent(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/events/content", `{"type":"save","item":{"id":"1","siteId":"en","category":"blog","enabled":true}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("save status = %d body %s", rr.Code, rr.Body.String())
	}
	if len(f.sync.saved) != 1 || f.sync.saved[0].Category != "blog" {
		t.Errorf("saved = %+v", f.sync.saved)
	}

	rr = f.do(t, http.MethodPost, "/events/content", `{"type":"delete","item":{"id":"1","siteId":"en"}}`)
	if rr.Code != http.StatusAccepted || len(f.sync.deleted) != 1 {
		t.Errorf("delete status = %d deleted = %d", rr.Code, len(f.sync.deleted))
	}
}

func TestContentEvent_Invalid(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{"type":"archive","item":{"id":"1","siteId":"en"}}`, `{"type":"save","item":{}}`, `nope`} {
		if rr := f.do(t, http.MethodPost, "/events/content", body); rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, rr.Code)
		}
	}
	if len(f.sync.saved) != 0 {
		t.Error("invalid events must not reach the orchestrator")
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Code != CodeInternalError {
		t.Errorf("code = %s", resp.Code)
	}
}
