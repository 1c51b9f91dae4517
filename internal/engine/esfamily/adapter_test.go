package esfamily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

func TestCreateIndex_New(t *testing.T) {
	ft := newFakeTransport()
	ft.on("HEAD", "/places", 404, ``)
	a := New(Elasticsearch{}, ft, nil)

	if err := a.CreateIndex(context.Background(), testIndex(t, index.Elasticsearch)); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	call, ok := ft.find("PUT", "/places")
	if !ok {
		t.Fatal("expected PUT /places")
	}
	body := decodeBody(t, call.Body)
	if _, ok := body["mappings"]; !ok {
		t.Errorf("create body = %v, want mappings", body)
	}
}

func TestCreateIndex_ExistingUpdatesMapping(t *testing.T) {
	ft := newFakeTransport()
	ft.on("HEAD", "/places", 200, ``)
	a := New(Elasticsearch{}, ft, nil)

	if err := a.CreateIndex(context.Background(), testIndex(t, index.Elasticsearch)); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	call, ok := ft.find("PUT", "/places/_mapping")
	if !ok {
		t.Fatal("expected PUT /places/_mapping")
	}
	if _, ok := decodeBody(t, call.Body)["properties"]; !ok {
		t.Error("mapping update must send properties")
	}
	if _, ok := ft.find("PUT", "/places"); ok {
		t.Error("existing index must not be recreated")
	}
}

func TestCreateIndex_RaceFallsBackToMapping(t *testing.T) {
	ft := newFakeTransport()
	ft.on("HEAD", "/places", 404, ``)
	ft.on("PUT", "/places", 400, `{"error":{"type":"resource_already_exists_exception","reason":"exists"},"status":400}`)
	a := New(OpenSearch{}, ft, nil)

	if err := a.CreateIndex(context.Background(), testIndex(t, index.OpenSearch)); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if _, ok := ft.find("PUT", "/places/_mapping"); !ok {
		t.Error("expected mapping update after concurrent create")
	}
}

func TestDeleteIndex_MissingIsOK(t *testing.T) {
	ft := newFakeTransport()
	ft.on("DELETE", "/places", 404, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
	a := New(Elasticsearch{}, ft, nil)

	if err := a.DeleteIndex(context.Background(), "places"); err != nil {
		t.Errorf("DeleteIndex on missing index: %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	ft := newFakeTransport()
	ft.on("HEAD", "/places", 200, ``)
	ft.on("HEAD", "/gone", 404, ``)
	ft.on("HEAD", "/locked", 403, ``)
	a := New(Elasticsearch{}, ft, nil)
	ctx := context.Background()

	if ok, err := a.IndexExists(ctx, "places"); err != nil || !ok {
		t.Errorf("places: ok=%v err=%v", ok, err)
	}
	if ok, err := a.IndexExists(ctx, "gone"); err != nil || ok {
		t.Errorf("gone: ok=%v err=%v", ok, err)
	}
	if _, err := a.IndexExists(ctx, "locked"); !errors.Is(err, engine.ErrUnauthorized) {
		t.Errorf("locked: err=%v, want ErrUnauthorized", err)
	}
}

func TestUpsertDocuments_BulkNDJSON(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/_bulk", 200, `{"errors":false,"items":[]}`)
	a := New(Elasticsearch{}, ft, nil)

	doc := document.New("7")
	doc["title"] = "Villa"
	doc["published"] = float64(1700000000)
	if err := a.UpsertDocuments(context.Background(), testIndex(t, index.Elasticsearch), []document.Document{doc}); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	call, ok := ft.find("POST", "/_bulk")
	if !ok {
		t.Fatal("expected POST /_bulk")
	}
	if call.ContentType != contentNDJSON {
		t.Errorf("content type = %q", call.ContentType)
	}
	lines := bytes.Split(bytes.TrimSpace(call.Body), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want action + source", len(lines))
	}
	action := decodeBody(t, lines[0])["index"].(map[string]any)
	if action["_index"] != "places" || action["_id"] != "7" {
		t.Errorf("action = %v", action)
	}
	source := decodeBody(t, lines[1])
	if _, ok := source["objectID"]; ok {
		t.Error("objectID must travel as _id, not in the source")
	}
	if s, _ := source["published"].(string); !strings.HasPrefix(s, "2023-11-14") {
		t.Errorf("published = %v, want ISO8601", source["published"])
	}
}

func TestUpsertDocuments_Chunks(t *testing.T) {
	ft := newFakeTransport()
	a := New(Elasticsearch{}, ft, nil, WithBulkChunk(2))

	docs := []document.Document{document.New("1"), document.New("2"), document.New("3")}
	if err := a.UpsertDocuments(context.Background(), testIndex(t, index.Elasticsearch), docs); err != nil {
		t.Fatal(err)
	}
	if len(ft.calls) != 2 {
		t.Errorf("bulk calls = %d, want 2", len(ft.calls))
	}
}

func TestDeleteDocuments_ItemFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/_bulk", 200, `{"errors":true,"items":[{"delete":{"_id":"1","status":500,"error":{"type":"x","reason":"boom"}}}]}`)
	a := New(Elasticsearch{}, ft, nil)

	err := a.DeleteDocuments(context.Background(), testIndex(t, index.Elasticsearch), []string{"1"})
	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Op != engine.OpDelete {
		t.Errorf("err = %v, want engine delete error", err)
	}
}

func TestDeleteDocuments_Empty(t *testing.T) {
	ft := newFakeTransport()
	a := New(Elasticsearch{}, ft, nil)
	if err := a.DeleteDocuments(context.Background(), testIndex(t, index.Elasticsearch), nil); err != nil {
		t.Fatal(err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("calls = %d, want none", len(ft.calls))
	}
}

func TestSearch(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/places/_search", 200, searchFixture)
	a := New(Elasticsearch{}, ft, nil)

	res, err := a.Search(context.Background(), testIndex(t, index.Elasticsearch), "villa", options.Options{Page: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Page() != 2 || res.PerPage() != options.DefaultPerPage || len(res.Hits()) != 2 {
		t.Errorf("page=%d perPage=%d hits=%d", res.Page(), res.PerPage(), len(res.Hits()))
	}
}

func TestSearch_ServerError(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/places/_search", 503, `{"error":{"type":"cluster_block_exception","reason":"blocked"},"status":503}`)
	a := New(Elasticsearch{}, ft, nil)

	_, err := a.Search(context.Background(), testIndex(t, index.Elasticsearch), "", options.Options{})
	if !errors.Is(err, engine.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestSearch_MissingIndex(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/places/_search", 404, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
	a := New(Elasticsearch{}, ft, nil)

	_, err := a.Search(context.Background(), testIndex(t, index.Elasticsearch), "", options.Options{})
	if !errors.Is(err, engine.ErrIndexNotFound) {
		t.Errorf("err = %v, want ErrIndexNotFound", err)
	}
}

func TestSearchFacetValues(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/places/_search", 200, `{"aggregations":{"values":{"buckets":[{"key":"Oslo","doc_count":2},{"key":"Oslofjord","doc_count":5}]}}}`)
	a := New(Elasticsearch{}, ft, nil)

	values, err := a.SearchFacetValues(context.Background(), testIndex(t, index.Elasticsearch), engine.FacetQuery{Field: "city", Query: "oslo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0].Value != "Oslofjord" {
		t.Errorf("values = %v, want count-ordered", values)
	}
}

func TestSearchFacetValues_NumericClientSide(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/places/_search", 200, `{"aggregations":{"values":{"buckets":[{"key":1,"doc_count":2},{"key":12,"doc_count":1},{"key":3,"doc_count":9}]}}}`)
	a := New(Elasticsearch{}, ft, nil)

	values, err := a.SearchFacetValues(context.Background(), testIndex(t, index.Elasticsearch), engine.FacetQuery{Field: "rooms", Query: "1"})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, v := range values {
		got = append(got, v.Value)
	}
	if !reflect.DeepEqual(got, []string{"1", "12"}) {
		t.Errorf("values = %v", got)
	}
}

func TestCountDocuments(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/places/_count", 200, `{"count": 17}`)
	a := New(Elasticsearch{}, ft, nil)

	n, err := a.CountDocuments(context.Background(), testIndex(t, index.Elasticsearch))
	if err != nil || n != 17 {
		t.Errorf("count = %d, err = %v", n, err)
	}
}

func TestListIDs_Scroll(t *testing.T) {
	ft := newFakeTransport()
	ft.on("POST", "/places/_search?scroll=1m", 200, `{"_scroll_id":"s1","hits":{"hits":[{"_id":"a"},{"_id":"b"}]}}`)
	ft.on("POST", "/_search/scroll", 200, `{"_scroll_id":"s2","hits":{"hits":[{"_id":"c"}]}}`)
	a := New(Elasticsearch{}, ft, nil, WithScanSize(2))

	ids, err := a.ListIDs(context.Background(), testIndex(t, index.Elasticsearch))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("ids = %v", ids)
	}
	call, ok := ft.find("DELETE", "/_search/scroll")
	if !ok {
		t.Fatal("scroll must be cleared")
	}
	var clear struct {
		ScrollID []string `json:"scroll_id"`
	}
	if err := json.Unmarshal(call.Body, &clear); err != nil || clear.ScrollID[0] != "s2" {
		t.Errorf("clear body = %s", call.Body)
	}
}

func TestSwapIndex_NotSupported(t *testing.T) {
	a := New(OpenSearch{}, newFakeTransport(), nil)
	if a.SupportsAtomicSwap() {
		t.Error("esfamily must not claim atomic swap")
	}
	err := a.SwapIndex(context.Background(), testIndex(t, index.OpenSearch), "places_swap")
	if !errors.Is(err, engine.ErrNotSupported) {
		t.Errorf("err = %v, want ErrNotSupported", err)
	}
}

func TestPing(t *testing.T) {
	ft := newFakeTransport()
	ft.on("GET", "/", 401, `{"error":{"type":"security_exception","reason":"missing auth"},"status":401}`)
	a := New(Elasticsearch{}, ft, nil)
	if err := a.Ping(context.Background()); !errors.Is(err, engine.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}
