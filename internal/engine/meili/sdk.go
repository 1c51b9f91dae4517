package meili

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/kailas-cloud/searchbridge/internal/engine"
)

const (
	taskPollInterval  = 50 * time.Millisecond
	codeIndexNotFound = "index_not_found"
)

// taskError is an asynchronous task that finished without succeeding.
type taskError struct {
	UID     int64
	Status  meilisearch.TaskStatus
	Code    string
	Message string
}

func (e *taskError) Error() string {
	return fmt.Sprintf("task %d %s: %s", e.UID, e.Status, e.Message)
}

// sdk implements api on the official client.
type sdk struct {
	client meilisearch.ServiceManager
}

func newSDK(host, apiKey string) *sdk {
	return &sdk{client: meilisearch.New(host, meilisearch.WithAPIKey(apiKey))}
}

// isNotFound matches both a synchronous 404 and a task that failed with
// index_not_found.
func isNotFound(err error) bool {
	var me *meilisearch.Error
	if errors.As(err, &me) && me.StatusCode == http.StatusNotFound {
		return true
	}
	var te *taskError
	return errors.As(err, &te) && te.Code == codeIndexNotFound
}

func (s *sdk) wait(task *meilisearch.TaskInfo, err error) error {
	if err != nil {
		return err
	}
	done, err := s.client.WaitForTask(task.TaskUID, taskPollInterval)
	if err != nil {
		return fmt.Errorf("wait for task %d: %w", task.TaskUID, err)
	}
	if done.Status != meilisearch.TaskStatusSucceeded {
		return &taskError{
			UID:     task.TaskUID,
			Status:  done.Status,
			Code:    done.Error.Code,
			Message: done.Error.Message,
		}
	}
	return nil
}

func (s *sdk) Health(context.Context) error {
	_, err := s.client.Health()
	return err
}

func (s *sdk) IndexExists(_ context.Context, uid string) (bool, error) {
	_, err := s.client.GetIndex(uid)
	if isNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *sdk) CreateIndex(_ context.Context, uid, primaryKey string) error {
	return s.wait(s.client.CreateIndex(&meilisearch.IndexConfig{Uid: uid, PrimaryKey: primaryKey}))
}

func (s *sdk) DeleteIndex(_ context.Context, uid string) error {
	err := s.wait(s.client.DeleteIndex(uid))
	if isNotFound(err) {
		return nil
	}
	return err
}

func (s *sdk) UpdateSettings(_ context.Context, uid string, settings map[string]any) error {
	var typed meilisearch.Settings
	if err := engine.Remarshal(settings, &typed); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.wait(s.client.Index(uid).UpdateSettings(&typed))
}

func (s *sdk) AddDocuments(_ context.Context, uid string, docs []map[string]any, primaryKey string) error {
	return s.wait(s.client.Index(uid).AddDocuments(docs, &meilisearch.DocumentOptions{PrimaryKey: &primaryKey}))
}

func (s *sdk) DeleteDocuments(_ context.Context, uid string, ids []string) error {
	return s.wait(s.client.Index(uid).DeleteDocuments(ids, nil))
}

func (s *sdk) Search(ctx context.Context, uid, q string, req searchRequest) (searchResponse, error) {
	var typed meilisearch.SearchRequest
	if err := engine.Remarshal(req, &typed); err != nil {
		return searchResponse{}, fmt.Errorf("encode search request: %w", err)
	}
	res, err := s.client.Index(uid).SearchWithContext(ctx, q, &typed)
	if err != nil {
		return searchResponse{}, err
	}
	var out searchResponse
	if err := engine.Remarshal(res, &out); err != nil {
		return searchResponse{}, fmt.Errorf("%w: %w", engine.ErrBadResponse, err)
	}
	return out, nil
}

func (s *sdk) DocumentIDs(_ context.Context, uid, idField string, offset, limit int) ([]string, error) {
	var res meilisearch.DocumentsResult
	err := s.client.Index(uid).GetDocuments(&meilisearch.DocumentsQuery{
		Offset: int64(offset),
		Limit:  int64(limit),
		Fields: []string{idField},
	}, &res)
	if err != nil {
		return nil, err
	}
	var page struct {
		Results []map[string]any `json:"results"`
	}
	if err := engine.Remarshal(res, &page); err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrBadResponse, err)
	}
	ids := make([]string, 0, len(page.Results))
	for _, doc := range page.Results {
		ids = append(ids, engine.IDString(doc[idField]))
	}
	return ids, nil
}

func (s *sdk) Count(_ context.Context, uid string) (int, error) {
	stats, err := s.client.Index(uid).GetStats()
	if err != nil {
		return 0, err
	}
	return int(stats.NumberOfDocuments), nil
}

func (s *sdk) SwapIndexes(_ context.Context, a, b string) error {
	return s.wait(s.client.SwapIndexes([]*meilisearch.SwapIndexesParams{{Indexes: []string{a, b}}}))
}
