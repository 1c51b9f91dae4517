package meili

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// taskServer answers DELETE /indexes/{uid} with an enqueued task and
// reports that task as failed with the given error code.
func taskServer(t *testing.T, code string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /indexes/{uid}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"taskUid":1,"indexUid":"` + r.PathValue("uid") + `","status":"enqueued","type":"indexDeletion"}`))
	})
	mux.HandleFunc("GET /tasks/1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uid":1,"status":"failed","type":"indexDeletion",` +
			`"error":{"message":"Index places_swap not found.","code":"` + code + `","type":"invalid_request"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDeleteIndex_MissingIndexTaskIsIgnored(t *testing.T) {
	srv := taskServer(t, codeIndexNotFound)
	a := newAdapter(newSDK(srv.URL, ""), nil)

	if err := a.DeleteIndex(context.Background(), "places_swap"); err != nil {
		t.Fatalf("DeleteIndex() = %v, want nil for a missing index", err)
	}
}

func TestDeleteIndex_OtherTaskFailureIsReturned(t *testing.T) {
	srv := taskServer(t, "internal")
	a := newAdapter(newSDK(srv.URL, ""), nil)

	err := a.DeleteIndex(context.Background(), "places_swap")
	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Op != engine.OpDeleteIndex {
		t.Fatalf("err = %v, want delete_index error", err)
	}
	var te *taskError
	if !errors.As(err, &te) || te.Code != "internal" {
		t.Errorf("err = %v, want task error with code", err)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"task index_not_found", &taskError{UID: 3, Code: codeIndexNotFound}, true},
		{"task other code", &taskError{UID: 3, Code: "invalid_swap_indexes"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
