package meili

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

type fakeAPI struct {
	indexes   map[string]bool
	settings  map[string]map[string]any
	added     map[string][]map[string]any
	deleted   []string
	dropped   []string
	swaps     [][2]string
	lastReq   searchRequest
	lastQuery string
	searchRes searchResponse
	idPages   [][]string
	count     int
	err       error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		indexes:  map[string]bool{},
		settings: map[string]map[string]any{},
		added:    map[string][]map[string]any{},
	}
}

func (f *fakeAPI) Health(context.Context) error { return f.err }

func (f *fakeAPI) IndexExists(_ context.Context, uid string) (bool, error) {
	return f.indexes[uid], f.err
}

func (f *fakeAPI) CreateIndex(_ context.Context, uid, _ string) error {
	f.indexes[uid] = true
	return f.err
}

func (f *fakeAPI) DeleteIndex(_ context.Context, uid string) error {
	f.dropped = append(f.dropped, uid)
	delete(f.indexes, uid)
	return f.err
}

func (f *fakeAPI) UpdateSettings(_ context.Context, uid string, s map[string]any) error {
	f.settings[uid] = s
	return f.err
}

func (f *fakeAPI) AddDocuments(_ context.Context, uid string, docs []map[string]any, _ string) error {
	f.added[uid] = append(f.added[uid], docs...)
	return f.err
}

func (f *fakeAPI) DeleteDocuments(_ context.Context, _ string, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return f.err
}

func (f *fakeAPI) Search(_ context.Context, _ string, q string, req searchRequest) (searchResponse, error) {
	f.lastQuery, f.lastReq = q, req
	return f.searchRes, f.err
}

func (f *fakeAPI) DocumentIDs(_ context.Context, _, _ string, offset, limit int) ([]string, error) {
	i := offset / limit
	if i >= len(f.idPages) {
		return nil, f.err
	}
	return f.idPages[i], f.err
}

func (f *fakeAPI) Count(context.Context, string) (int, error) { return f.count, f.err }

func (f *fakeAPI) SwapIndexes(_ context.Context, a, b string) error {
	f.swaps = append(f.swaps, [2]string{a, b})
	return f.err
}

func mustMapping(t *testing.T, name string, ft field.Type, weight int) field.Mapping {
	t.Helper()
	m, err := field.New(field.Params{Name: name, Type: ft, Weight: weight, Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testIndex(t *testing.T) index.Index {
	t.Helper()
	idx, err := index.New(index.Params{
		Handle:     "articles",
		EngineType: index.Meilisearch,
		Enabled:    true,
		VectorDim:  4,
		Mappings: []field.Mapping{
			mustMapping(t, "title", field.Text, 10),
			mustMapping(t, "summary", field.Text, 3),
			mustMapping(t, "tag", field.Facet, 0),
			mustMapping(t, "views", field.Integer, 0),
			mustMapping(t, "posted", field.Date, 0),
			mustMapping(t, "location", field.GeoPoint, 0),
			mustMapping(t, "vec", field.Embedding, 0),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestBuildSchema(t *testing.T) {
	a := newAdapter(newFakeAPI(), nil)
	s := a.BuildSchema(testIndex(t))

	if !reflect.DeepEqual(s["searchableAttributes"], []string{"title", "summary"}) {
		t.Errorf("searchable = %v", s["searchableAttributes"])
	}
	wantFilterable := []string{"objectID", "content_category", "content_subtype", "_geo", "posted", "summary", "tag", "title", "views"}
	if !reflect.DeepEqual(s["filterableAttributes"], wantFilterable) {
		t.Errorf("filterable = %v, want %v", s["filterableAttributes"], wantFilterable)
	}
	if !reflect.DeepEqual(s["sortableAttributes"], []string{"_geo", "posted", "views"}) {
		t.Errorf("sortable = %v", s["sortableAttributes"])
	}
	if s["faceting"].(map[string]any)["maxValuesPerFacet"] != maxValuesPerFacet {
		t.Errorf("faceting = %v", s["faceting"])
	}
	emb := s["embedders"].(map[string]any)["vec"].(map[string]any)
	if emb["source"] != "userProvided" || emb["dimensions"] != 4 {
		t.Errorf("embedder = %v", emb)
	}
}

func TestCreateIndex(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	if err := a.CreateIndex(context.Background(), testIndex(t)); err != nil {
		t.Fatal(err)
	}
	if !f.indexes["articles"] {
		t.Error("index not created")
	}
	if _, ok := f.settings["articles"]; !ok {
		t.Error("settings not applied")
	}
}

func TestUpsertDocuments_WireShape(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	doc := document.New("5")
	doc["location"] = map[string]any{"lat": 59.9, "lon": 10.7}
	doc["vec"] = []float32{1, 2, 3, 4}
	doc["posted"] = "2024-01-02T00:00:00Z"

	if err := a.UpsertDocuments(context.Background(), testIndex(t), []document.Document{doc}); err != nil {
		t.Fatal(err)
	}
	got := f.added["articles"][0]
	if got["_geo"].(map[string]any)["lng"] != 10.7 {
		t.Errorf("_geo = %v", got["_geo"])
	}
	if _, ok := got["vec"]; ok {
		t.Error("embedding must move under _vectors")
	}
	if _, ok := got["_vectors"].(map[string]any)["vec"]; !ok {
		t.Errorf("_vectors = %v", got["_vectors"])
	}
	if got["posted"] != int64(1704153600) {
		t.Errorf("posted = %#v, want epoch seconds", got["posted"])
	}
	if _, ok := doc["_vectors"]; ok {
		t.Error("input document must not be mutated")
	}
}

func TestSearch(t *testing.T) {
	f := newFakeAPI()
	f.searchRes = searchResponse{
		EstimatedTotalHits: 30,
		ProcessingTimeMs:   4,
		Hits: []map[string]any{{
			"objectID":      "1",
			"title":         "Go tips",
			"_rankingScore": 0.9,
			"_formatted":    map[string]any{"title": "<em>Go</em> tips", "summary": "nothing"},
		}},
		FacetDistribution: map[string]map[string]int{"tag": {"go": 4, "db": 9}},
	}
	a := newAdapter(f, nil)

	res, err := a.Search(context.Background(), testIndex(t), "go", options.Options{
		Page: 2, PerPage: 10,
		Sort:      options.UnifiedSort(options.SortField{Field: "views", Desc: true}),
		Filters:   map[string]any{"tag": []any{"go", "db"}, "views": map[string]any{"min": 1, "max": 9}},
		Facets:    []string{"tag"},
		Highlight: options.Highlight{Enabled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.lastReq.Offset != 10 || f.lastReq.Limit != 10 {
		t.Errorf("offset/limit = %d/%d", f.lastReq.Offset, f.lastReq.Limit)
	}
	if f.lastReq.Filter != `tag IN ["go", "db"] AND views 1 TO 9` {
		t.Errorf("filter = %q", f.lastReq.Filter)
	}
	if !reflect.DeepEqual(f.lastReq.Sort, []string{"views:desc"}) {
		t.Errorf("sort = %v", f.lastReq.Sort)
	}
	hit := res.Hits()[0]
	if hit["_score"] != 0.9 || hit["objectID"] != "1" {
		t.Errorf("hit = %v", hit)
	}
	hl := hit["_highlights"].(map[string][]string)
	if len(hl) != 1 || hl["title"][0] != "<em>Go</em> tips" {
		t.Errorf("highlights = %v", hl)
	}
	if res.Total() != 30 || res.Facets()["tag"][0].Value != "db" {
		t.Errorf("total=%d facets=%v", res.Total(), res.Facets())
	}
}

func TestSearch_VectorUsesHybrid(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	_, err := a.Search(context.Background(), testIndex(t), "", options.Options{
		Vector: &options.Vector{Enabled: true, Field: "vec", Vector: []float32{1, 0, 0, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.lastReq.Hybrid == nil || f.lastReq.Hybrid.Embedder != "vec" || f.lastReq.Hybrid.SemanticRatio != 1 {
		t.Errorf("hybrid = %+v", f.lastReq.Hybrid)
	}
}

func TestSearch_AttributesToRetrieveKeepsID(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	if _, err := a.Search(context.Background(), testIndex(t), "", options.Options{AttributesToRetrieve: []string{"title"}}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.lastReq.AttributesToRetrieve, []string{"objectID", "title"}) {
		t.Errorf("attributes = %v", f.lastReq.AttributesToRetrieve)
	}
}

func TestSearchFacetValues(t *testing.T) {
	f := newFakeAPI()
	f.searchRes = searchResponse{FacetDistribution: map[string]map[string]int{"tag": {"golang": 2, "go": 5, "rust": 8}}}
	a := newAdapter(f, nil)

	values, err := a.SearchFacetValues(context.Background(), testIndex(t), engine.FacetQuery{Field: "tag", Query: "GO"})
	if err != nil {
		t.Fatal(err)
	}
	if f.lastReq.Limit != 0 || !reflect.DeepEqual(f.lastReq.Facets, []string{"tag"}) {
		t.Errorf("request = %+v", f.lastReq)
	}
	if len(values) != 2 || values[0].Value != "go" || values[1].Value != "golang" {
		t.Errorf("values = %v", values)
	}
}

func TestSearch_TextFieldFilterAndFacet(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	idx := testIndex(t)

	_, err := a.Search(context.Background(), idx, "", options.Options{
		Filters: map[string]any{"title": "Villa"},
		Facets:  []string{"title"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.lastReq.Filter != `title = "Villa"` {
		t.Errorf("filter = %q", f.lastReq.Filter)
	}
	filterable := a.BuildSchema(idx)["filterableAttributes"].([]string)
	for _, attr := range append([]string{"title"}, f.lastReq.Facets...) {
		found := false
		for _, name := range filterable {
			found = found || name == attr
		}
		if !found {
			t.Errorf("%s is filtered or faceted on but not filterable: %v", attr, filterable)
		}
	}
}

func TestListIDs_Pages(t *testing.T) {
	f := newFakeAPI()
	full := make([]string, listPageSize)
	for i := range full {
		full[i] = "x"
	}
	f.idPages = [][]string{full, {"y", "z"}}
	a := newAdapter(f, nil)

	ids, err := a.ListIDs(context.Background(), testIndex(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != listPageSize+2 {
		t.Errorf("ids = %d", len(ids))
	}
}

func TestSwapIndex(t *testing.T) {
	f := newFakeAPI()
	f.indexes["articles_swap"] = true
	a := newAdapter(f, nil)

	if err := a.SwapIndex(context.Background(), testIndex(t), "articles_swap"); err != nil {
		t.Fatal(err)
	}
	if !f.indexes["articles"] {
		t.Error("missing production index must be created before swapping")
	}
	if len(f.swaps) != 1 || f.swaps[0] != [2]string{"articles", "articles_swap"} {
		t.Errorf("swaps = %v", f.swaps)
	}
	if len(f.dropped) != 1 || f.dropped[0] != "articles_swap" {
		t.Errorf("dropped = %v, want old generation", f.dropped)
	}
}

func TestErrorsAreWrapped(t *testing.T) {
	f := newFakeAPI()
	f.err = errors.New("boom")
	a := newAdapter(f, nil)

	err := a.SwapIndex(context.Background(), testIndex(t), "articles_swap")
	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Op != engine.OpSwap {
		t.Errorf("err = %v, want swap error", err)
	}
}

func TestCompileFilters_Dates(t *testing.T) {
	got := compileFilters(testIndex(t), map[string]any{
		"posted":   map[string]any{"max": "2024-01-02T00:00:00Z"},
		"objectID": "a\"b",
	})
	want := `objectID = "a\"b" AND posted <= 1704153600`
	if got != want {
		t.Errorf("compileFilters() = %q, want %q", got, want)
	}
}
