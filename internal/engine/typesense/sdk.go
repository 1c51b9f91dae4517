package typesense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/typesense/typesense-go/typesense"
	tsapi "github.com/typesense/typesense-go/typesense/api"

	"github.com/kailas-cloud/searchbridge/internal/engine"
)

const healthTimeout = 5 * time.Second

// sdk implements api on the official client.
type sdk struct {
	client *typesense.Client
}

func newSDK(server, apiKey string, timeout time.Duration) *sdk {
	return &sdk{client: typesense.NewClient(
		typesense.WithServer(server),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(timeout),
	)}
}

func isNotFound(err error) bool {
	var he *typesense.HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

func (s *sdk) Health(ctx context.Context) (bool, error) {
	return s.client.Health(ctx, healthTimeout)
}

func (s *sdk) RetrieveCollection(ctx context.Context, name string) (collectionInfo, error) {
	res, err := s.client.Collection(name).Retrieve(ctx)
	if isNotFound(err) {
		return collectionInfo{}, fmt.Errorf("%w: %s", engine.ErrIndexNotFound, name)
	}
	if err != nil {
		return collectionInfo{}, err
	}
	var info struct {
		NumDocuments int `json:"num_documents"`
		Fields       []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := engine.Remarshal(res, &info); err != nil {
		return collectionInfo{}, fmt.Errorf("%w: %w", engine.ErrBadResponse, err)
	}
	out := collectionInfo{NumDocuments: info.NumDocuments}
	for _, f := range info.Fields {
		out.Fields = append(out.Fields, f.Name)
	}
	return out, nil
}

func (s *sdk) CreateCollection(ctx context.Context, schema map[string]any) error {
	var typed tsapi.CollectionSchema
	if err := engine.Remarshal(schema, &typed); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	_, err := s.client.Collections().Create(ctx, &typed)
	return err
}

func (s *sdk) AddFields(ctx context.Context, name string, fields []map[string]any) error {
	var typed tsapi.CollectionUpdateSchema
	if err := engine.Remarshal(map[string]any{"fields": fields}, &typed); err != nil {
		return fmt.Errorf("encode schema update: %w", err)
	}
	_, err := s.client.Collection(name).Update(ctx, &typed)
	return err
}

func (s *sdk) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.client.Collection(name).Delete(ctx)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (s *sdk) Import(ctx context.Context, name string, docs []map[string]any) ([]importResult, error) {
	var params tsapi.ImportDocumentsParams
	if err := engine.Remarshal(map[string]any{"action": "upsert"}, &params); err != nil {
		return nil, fmt.Errorf("encode import params: %w", err)
	}
	batch := make([]any, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, d)
	}
	res, err := s.client.Collection(name).Documents().Import(ctx, batch, &params)
	if err != nil {
		return nil, err
	}
	var out []importResult
	if err := engine.Remarshal(res, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrBadResponse, err)
	}
	return out, nil
}

func (s *sdk) DeleteDocument(ctx context.Context, name, id string) error {
	_, err := s.client.Collection(name).Document(id).Delete(ctx)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (s *sdk) Search(ctx context.Context, name string, params map[string]any) (searchResult, error) {
	var typed tsapi.SearchCollectionParams
	if err := engine.Remarshal(params, &typed); err != nil {
		return searchResult{}, fmt.Errorf("encode search params: %w", err)
	}
	res, err := s.client.Collection(name).Documents().Search(ctx, &typed)
	if isNotFound(err) {
		return searchResult{}, fmt.Errorf("%w: %s", engine.ErrIndexNotFound, name)
	}
	if err != nil {
		return searchResult{}, err
	}
	var out searchResult
	if err := engine.Remarshal(res, &out); err != nil {
		return searchResult{}, fmt.Errorf("%w: %w", engine.ErrBadResponse, err)
	}
	return out, nil
}
