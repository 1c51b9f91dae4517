package esfamily

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

type recordedCall struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
}

// fakeTransport replies from a queue of canned responses keyed by "METHOD path".
type fakeTransport struct {
	mu        sync.Mutex
	calls     []recordedCall
	responses map[string][]*Response
	err       error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string][]*Response{}}
}

func (f *fakeTransport) on(method, path string, status int, body string) {
	key := method + " " + path
	f.responses[key] = append(f.responses[key], &Response{StatusCode: status, Body: []byte(body)})
}

func (f *fakeTransport) Perform(_ context.Context, method, path string, body []byte, contentType string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{Method: method, Path: path, Body: body, ContentType: contentType})
	if f.err != nil {
		return nil, f.err
	}
	key := method + " " + path
	queue := f.responses[key]
	if len(queue) == 0 {
		return &Response{StatusCode: 200, Body: []byte(`{}`)}, nil
	}
	res := queue[0]
	if len(queue) > 1 {
		f.responses[key] = queue[1:]
	}
	return res, nil
}

func (f *fakeTransport) find(method, path string) (recordedCall, bool) {
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			return c, true
		}
	}
	return recordedCall{}, false
}

func decodeBody(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode body %s: %v", b, err)
	}
	return m
}

// asJSON round-trips v so assertions compare against decoded JSON shapes.
func asJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return decodeBody(t, b)
}

func mustMapping(t *testing.T, name string, ft field.Type, weight int) field.Mapping {
	t.Helper()
	m, err := field.New(field.Params{Name: name, Type: ft, Weight: weight, Enabled: true})
	if err != nil {
		t.Fatalf("field.New(%s): %v", name, err)
	}
	return m
}

func testIndex(t *testing.T, et index.EngineType) index.Index {
	t.Helper()
	idx, err := index.New(index.Params{
		Handle:     "places",
		EngineType: et,
		Enabled:    true,
		VectorDim:  3,
		Mappings: []field.Mapping{
			mustMapping(t, "title", field.Text, 8),
			mustMapping(t, "body", field.Text, 2),
			mustMapping(t, "city", field.Facet, 0),
			mustMapping(t, "price", field.Float, 0),
			mustMapping(t, "rooms", field.Integer, 0),
			mustMapping(t, "published", field.Date, 0),
			mustMapping(t, "embedding", field.Embedding, 0),
		},
	})
	if err != nil {
		t.Fatalf("index.New: %v", err)
	}
	return idx
}
