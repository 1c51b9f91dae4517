package algolia

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
	exists     map[string]bool
	settings   map[string]settings
	saved      map[string][]map[string]any
	deleted    map[string][]string
	dropped    []string
	moves      [][2]string
	lastIndex  string
	lastQuery  query
	searchRes  queryResult
	facetHits  []facetHit
	facetCalls int
	ids        []string
	err        error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		exists:   map[string]bool{},
		settings: map[string]settings{},
		saved:    map[string][]map[string]any{},
		deleted:  map[string][]string{},
	}
}

func (f *fakeAPI) ListIndices(context.Context) error { return f.err }

func (f *fakeAPI) Exists(_ context.Context, index string) (bool, error) {
	return f.exists[index], f.err
}

func (f *fakeAPI) SetSettings(_ context.Context, index string, s settings) error {
	f.settings[index] = s
	return f.err
}

func (f *fakeAPI) DeleteIndex(_ context.Context, index string) error {
	f.dropped = append(f.dropped, index)
	return f.err
}

func (f *fakeAPI) SaveObjects(_ context.Context, index string, objects []map[string]any) error {
	f.saved[index] = append(f.saved[index], objects...)
	return f.err
}

func (f *fakeAPI) DeleteObjects(_ context.Context, index string, ids []string) error {
	f.deleted[index] = append(f.deleted[index], ids...)
	return f.err
}

func (f *fakeAPI) Search(_ context.Context, index string, q query) (queryResult, error) {
	f.lastIndex, f.lastQuery = index, q
	return f.searchRes, f.err
}

func (f *fakeAPI) SearchForFacetValues(context.Context, string, string, string, string, int) ([]facetHit, error) {
	f.facetCalls++
	return f.facetHits, f.err
}

func (f *fakeAPI) BrowseIDs(context.Context, string) ([]string, error) { return f.ids, f.err }

func (f *fakeAPI) MoveIndex(_ context.Context, src, dst string) error {
	f.moves = append(f.moves, [2]string{src, dst})
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
		Handle:     "products",
		EngineType: index.Algolia,
		Enabled:    true,
		Mappings: []field.Mapping{
			mustMapping(t, "body", field.Text, 2),
			mustMapping(t, "title", field.Text, 9),
			mustMapping(t, "brand", field.Facet, 0),
			mustMapping(t, "sku", field.Keyword, 0),
			mustMapping(t, "price", field.Float, 0),
			mustMapping(t, "released", field.Date, 0),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestBuildSettings(t *testing.T) {
	s := buildSettings(testIndex(t))

	if !reflect.DeepEqual(s.SearchableAttributes, []string{"title", "body"}) {
		t.Errorf("searchable = %v, want weight order", s.SearchableAttributes)
	}
	want := []string{
		"filterOnly(body)", "filterOnly(title)", "searchable(brand)", "filterOnly(sku)",
		"filterOnly(content_category)", "filterOnly(content_subtype)",
	}
	got := map[string]bool{}
	for _, f := range s.AttributesForFaceting {
		got[f] = true
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("attributesForFaceting %v missing %s", s.AttributesForFaceting, w)
		}
	}
	if len(s.AttributesForFaceting) != len(want) {
		t.Errorf("attributesForFaceting = %v", s.AttributesForFaceting)
	}
}

func TestCreateIndex_AppliesSettings(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	if err := a.CreateIndex(context.Background(), testIndex(t)); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.settings["products"]; !ok {
		t.Error("settings not applied")
	}
}

func TestDeleteIndex_MissingIsNoop(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	if err := a.DeleteIndex(context.Background(), "products"); err != nil {
		t.Fatal(err)
	}
	if len(f.dropped) != 0 {
		t.Errorf("dropped = %v, want none", f.dropped)
	}
	f.exists["products"] = true
	if err := a.DeleteIndex(context.Background(), "products"); err != nil {
		t.Fatal(err)
	}
	if len(f.dropped) != 1 {
		t.Errorf("dropped = %v, want products", f.dropped)
	}
}

func TestUpsertDocuments_EpochDates(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	doc := document.New("1")
	doc["released"] = "2024-01-02T00:00:00Z"

	if err := a.UpsertDocuments(context.Background(), testIndex(t), []document.Document{doc}); err != nil {
		t.Fatal(err)
	}
	saved := f.saved["products"]
	if len(saved) != 1 || saved[0]["objectID"] != "1" {
		t.Fatalf("saved = %v", saved)
	}
	if saved[0]["released"] != int64(1704153600) {
		t.Errorf("released = %#v, want epoch seconds", saved[0]["released"])
	}
}

func TestSearch_Normalises(t *testing.T) {
	f := newFakeAPI()
	f.searchRes = queryResult{
		NbHits:           45,
		ProcessingTimeMS: 3,
		Hits: []map[string]any{{
			"objectID": "9",
			"title":    "Red shoe",
			"_highlightResult": map[string]any{
				"title": map[string]any{"value": "<em>Red</em> shoe", "matchLevel": "full"},
				"body":  map[string]any{"value": "plain", "matchLevel": "none"},
			},
		}},
		Facets: map[string]map[string]int{"brand": {"Acme": 2, "Zed": 7}},
	}
	a := newAdapter(f, nil)

	res, err := a.Search(context.Background(), testIndex(t), "red", options.Options{
		Page: 2, PerPage: 20, Facets: []string{"brand"},
		Filters: map[string]any{"brand": []any{"Acme", "Zed"}, "price": map[string]any{"min": 5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.lastQuery.Page != 1 {
		t.Errorf("algolia page = %d, want zero-based 1", f.lastQuery.Page)
	}
	if f.lastQuery.Filters != `(brand:"Acme" OR brand:"Zed") AND price >= 5` {
		t.Errorf("filters = %q", f.lastQuery.Filters)
	}
	if f.lastQuery.AttributesToHighlight == nil || len(f.lastQuery.AttributesToHighlight) != 0 {
		t.Errorf("highlighting must be off unless requested, got %v", f.lastQuery.AttributesToHighlight)
	}
	if res.Total() != 45 || res.TotalPages() != 3 {
		t.Errorf("total=%d pages=%d", res.Total(), res.TotalPages())
	}
	hit := res.Hits()[0]
	if hit["objectID"] != "9" {
		t.Errorf("objectID = %v", hit["objectID"])
	}
	if v, ok := hit["_score"]; !ok || v != nil {
		t.Errorf("_score = %v, want nil", v)
	}
	hl := hit["_highlights"].(map[string][]string)
	if len(hl) != 1 || hl["title"][0] != "<em>Red</em> shoe" {
		t.Errorf("highlights = %v", hl)
	}
	brand := res.Facets()["brand"]
	if len(brand) != 2 || brand[0].Value != "Zed" {
		t.Errorf("facets = %v", brand)
	}
	if len(res.Stats()) != 0 || len(res.Histograms()) != 0 || len(res.Suggestions()) != 0 {
		t.Error("stats, histograms and suggestions are not available on algolia")
	}
}

func TestSearch_NativeSortTargetsReplica(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	if _, err := a.Search(context.Background(), testIndex(t), "", options.Options{NativeSort: "products_price_asc"}); err != nil {
		t.Fatal(err)
	}
	if f.lastIndex != "products_price_asc" {
		t.Errorf("index = %q, want replica", f.lastIndex)
	}

	if _, err := a.Search(context.Background(), testIndex(t), "", options.Options{
		Sort: options.UnifiedSort(options.SortField{Field: "price"}),
	}); err != nil {
		t.Fatal(err)
	}
	if f.lastIndex != "products" {
		t.Errorf("index = %q, unified sort must not change target", f.lastIndex)
	}
}

func TestSearchFacetValues_Contains(t *testing.T) {
	f := newFakeAPI()
	f.facetHits = []facetHit{{"Acme", 3}, {"Nacme", 8}, {"Other", 20}}
	a := newAdapter(f, nil)

	values, err := a.SearchFacetValues(context.Background(), testIndex(t), engine.FacetQuery{Field: "brand", Query: "ACM"})
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0].Value != "Nacme" || values[1].Value != "Acme" {
		t.Errorf("values = %v", values)
	}
}

func TestSwapIndex(t *testing.T) {
	f := newFakeAPI()
	a := newAdapter(f, nil)
	if !a.SupportsAtomicSwap() {
		t.Fatal("algolia supports atomic swap")
	}
	if err := a.SwapIndex(context.Background(), testIndex(t), "products_swap"); err != nil {
		t.Fatal(err)
	}
	if len(f.moves) != 1 || f.moves[0] != [2]string{"products_swap", "products"} {
		t.Errorf("moves = %v", f.moves)
	}
}

func TestErrorsAreWrapped(t *testing.T) {
	f := newFakeAPI()
	f.err = errors.New("boom")
	a := newAdapter(f, nil)

	_, err := a.CountDocuments(context.Background(), testIndex(t))
	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Engine != index.Algolia || engErr.Op != engine.OpCount {
		t.Errorf("err = %v, want wrapped count error", err)
	}
	if err := a.Ping(context.Background()); !errors.Is(err, engine.ErrUnavailable) {
		t.Errorf("ping err = %v, want ErrUnavailable", err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{AppID: "x"}, nil); !errors.Is(err, engine.ErrBadConfig) {
		t.Errorf("err = %v, want ErrBadConfig", err)
	}
}
