// Package enginetest provides an in-memory engine for tests of code built on the engine contract.
package enginetest

import (
	"context"
	"sort"
	"sync"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/filter"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// Memory is a thread-safe in-memory Engine: store[handle][id] = document.
type Memory struct {
	mu    sync.RWMutex
	store map[string]map[string]document.Document
	calls map[string]int

	EngineType index.EngineType
	Swap       bool
	// Errors injects a failure per engine op name.
	Errors map[string]error
	// LastQuery and LastOptions record the most recent Search call.
	LastQuery   string
	LastOptions options.Options
}

// NewMemory creates an empty in-memory engine.
func NewMemory(t index.EngineType, swap bool) *Memory {
	return &Memory{
		store:      make(map[string]map[string]document.Document),
		calls:      make(map[string]int),
		EngineType: t,
		Swap:       swap,
		Errors:     make(map[string]error),
	}
}

func (m *Memory) hit(op string) error {
	m.calls[op]++
	return m.Errors[op]
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Docs returns a copy of the documents under handle.
func (m *Memory) Docs(handle string) map[string]document.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]document.Document, len(m.store[handle]))
	for id, d := range m.store[handle] {
		out[id] = d
	}
	return out
}

// Seed writes documents without counting a call.
func (m *Memory) Seed(handle string, docs ...document.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store[handle] == nil {
		m.store[handle] = make(map[string]document.Document)
	}
	for _, d := range docs {
		m.store[handle][d.ID()] = d
	}
}

// Type returns the configured engine type.
func (m *Memory) Type() index.EngineType { return m.EngineType }

// MapFieldType returns the taxonomy name unchanged.
func (m *Memory) MapFieldType(t field.Type) any { return string(t) }

// BuildSchema lists enabled fields plus discriminators.
func (m *Memory) BuildSchema(idx index.Index) map[string]any {
	fields := map[string]any{}
	for _, d := range document.Discriminators {
		fields[d] = string(field.Keyword)
	}
	for _, f := range idx.EnabledMappings() {
		fields[f.Name()] = m.MapFieldType(f.FieldType())
	}
	return map[string]any{"fields": fields}
}

// CreateIndex creates the handle when missing.
func (m *Memory) CreateIndex(_ context.Context, idx index.Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpCreateIndex); err != nil {
		return err
	}
	if m.store[idx.Handle()] == nil {
		m.store[idx.Handle()] = make(map[string]document.Document)
	}
	return nil
}

// DeleteIndex drops the handle.
func (m *Memory) DeleteIndex(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpDeleteIndex); err != nil {
		return err
	}
	delete(m.store, handle)
	return nil
}

// IndexExists reports whether the handle exists.
func (m *Memory) IndexExists(_ context.Context, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpIndexExists); err != nil {
		return false, err
	}
	_, ok := m.store[handle]
	return ok, nil
}

// UpsertDocuments stores documents by id.
func (m *Memory) UpsertDocuments(_ context.Context, idx index.Index, docs []document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpUpsert); err != nil {
		return err
	}
	if m.store[idx.Handle()] == nil {
		m.store[idx.Handle()] = make(map[string]document.Document)
	}
	for _, d := range docs {
		m.store[idx.Handle()][d.ID()] = d.Clone()
	}
	return nil
}

// DeleteDocuments removes documents; missing ids are ignored.
func (m *Memory) DeleteDocuments(_ context.Context, idx index.Index, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpDelete); err != nil {
		return err
	}
	for _, id := range ids {
		delete(m.store[idx.Handle()], id)
	}
	return nil
}

// Search returns documents matching equality filters, ordered by id.
func (m *Memory) Search(_ context.Context, idx index.Index, query string, opts options.Options) (result.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastQuery, m.LastOptions = query, opts
	if err := m.hit(engine.OpSearch); err != nil {
		return result.Result{}, err
	}
	clauses := filter.Compile(opts.Filters)
	var raws []map[string]any
	for _, d := range m.store[idx.Handle()] {
		if matchesAll(d, clauses) {
			raws = append(raws, map[string]any(d.Clone()))
		}
	}
	sort.Slice(raws, func(i, j int) bool {
		return engine.IDString(raws[i][document.KeyID]) < engine.IDString(raws[j][document.KeyID])
	})
	page := opts.Pagination(options.DefaultPerPage)
	total := len(raws)
	end := min(page.Offset+page.PerPage, total)
	if page.Offset < total {
		raws = raws[page.Offset:end]
	} else {
		raws = nil
	}
	return result.New(result.Params{
		Hits:    engine.NormaliseHits(raws, document.KeyID, ""),
		Total:   total,
		Page:    page.Page,
		PerPage: page.PerPage,
	}), nil
}

func matchesAll(d document.Document, clauses []filter.Clause) bool {
	for _, c := range clauses {
		v := engine.IDString(d[c.Field()])
		switch c.Kind() {
		case filter.Equal:
			if v != engine.IDString(c.Value()) {
				return false
			}
		case filter.Terms:
			found := false
			for _, t := range c.Values() {
				if v == engine.IDString(t) {
					found = true
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// SearchFacetValues aggregates field values over the stored documents.
func (m *Memory) SearchFacetValues(_ context.Context, idx index.Index, q engine.FacetQuery) ([]result.FacetValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpFacetSearch); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, d := range m.store[idx.Handle()] {
		if v, ok := d[q.Field]; ok && v != nil {
			counts[engine.IDString(v)]++
		}
	}
	return engine.FilterFacetValues(engine.NormaliseFacetCounts(counts), q.Query, q.EffectiveLimit()), nil
}

// CountDocuments returns the number of stored documents.
func (m *Memory) CountDocuments(_ context.Context, idx index.Index) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpCount); err != nil {
		return 0, err
	}
	return len(m.store[idx.Handle()]), nil
}

// ListIDs returns every stored id, sorted.
func (m *Memory) ListIDs(_ context.Context, idx index.Index) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpListIDs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.store[idx.Handle()]))
	for id := range m.store[idx.Handle()] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SupportsAtomicSwap returns the configured flag.
func (m *Memory) SupportsAtomicSwap() bool { return m.Swap }

// SwapIndex moves the swap generation onto production and discards the old one.
func (m *Memory) SwapIndex(_ context.Context, idx index.Index, swapHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(engine.OpSwap); err != nil {
		return err
	}
	if !m.Swap {
		return engine.ErrNotSupported
	}
	m.store[idx.Handle()] = m.store[swapHandle]
	delete(m.store, swapHandle)
	return nil
}

// Ping always succeeds unless an error is injected.
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hit(engine.OpPing)
}
