// Package indexes holds the configured search indexes.
package indexes

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/searchbridge/internal/config"
	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

// Registry is an immutable in-memory index set built once at startup.
type Registry struct {
	byHandle map[string]index.Index
	ordered  []index.Index
}

// New creates a registry from validated indexes. Duplicate handles are rejected.
func New(idxs ...index.Index) (*Registry, error) {
	r := &Registry{byHandle: make(map[string]index.Index, len(idxs))}
	for _, idx := range idxs {
		if _, dup := r.byHandle[idx.Handle()]; dup {
			return nil, fmt.Errorf("duplicate index handle %q", idx.Handle())
		}
		r.byHandle[idx.Handle()] = idx
		r.ordered = append(r.ordered, idx)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Handle() < r.ordered[j].Handle() })
	return r, nil
}

// FromConfig builds a registry from index definitions. Any invalid definition fails.
func FromConfig(defs []config.IndexConfig) (*Registry, error) {
	idxs := make([]index.Index, 0, len(defs))
	for _, def := range defs {
		idx, err := Build(def)
		if err != nil {
			return nil, err
		}
		idxs = append(idxs, idx)
	}
	return New(idxs...)
}

// Build converts one definition into an Index.
func Build(def config.IndexConfig) (index.Index, error) {
	mappings := make([]field.Mapping, 0, len(def.Fields))
	for i, f := range def.Fields {
		m, err := field.New(field.Params{
			Name:      f.Name,
			Source:    f.Source,
			Type:      field.Type(f.Type),
			Weight:    f.Weight,
			Enabled:   f.IsEnabled(),
			Role:      field.Role(f.Role),
			SortOrder: i,
		})
		if err != nil {
			return index.Index{}, fmt.Errorf("index %s: %w: %w", def.Handle, domain.ErrInvalidSchema, err)
		}
		mappings = append(mappings, m)
	}

	idx, err := index.New(index.Params{
		Handle:     def.Handle,
		EngineType: index.EngineType(def.Engine),
		Config:     def.Settings,
		Mappings:   mappings,
		Mode:       index.Mode(def.Mode),
		Enabled:    def.IsEnabled(),
		Scope: index.Scope{
			SiteIDs:    def.Scope.SiteIDs,
			Categories: def.Scope.Categories,
			Subtypes:   def.Scope.Subtypes,
		},
		VectorDim: def.VectorDim,
	})
	if err != nil {
		return index.Index{}, fmt.Errorf("index %s: %w: %w", def.Handle, domain.ErrInvalidSchema, err)
	}
	if _, ok := idx.EmbeddingField(); ok && idx.VectorDim() == 0 {
		return index.Index{}, fmt.Errorf("index %s: %w: embedding field needs vector_dim",
			def.Handle, domain.ErrInvalidSchema)
	}
	return idx, nil
}

// Get returns the index by handle or domain.ErrNotFound.
func (r *Registry) Get(handle string) (index.Index, error) {
	idx, ok := r.byHandle[handle]
	if !ok {
		return index.Index{}, fmt.Errorf("index %s: %w", handle, domain.ErrNotFound)
	}
	return idx, nil
}

// List returns every index ordered by handle.
func (r *Registry) List() []index.Index {
	return append([]index.Index(nil), r.ordered...)
}

// ForContent returns the enabled indexes whose scope admits the content coordinates.
func (r *Registry) ForContent(siteID, category, subtype string) []index.Index {
	var out []index.Index
	for _, idx := range r.ordered {
		if idx.Enabled() && idx.InScope(siteID, category, subtype) {
			out = append(out, idx)
		}
	}
	return out
}
