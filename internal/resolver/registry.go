// Package resolver turns content items into engine documents, dispatching on
// the kind of each content field.
package resolver

import (
	"context"
	"sync"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

// Strategy resolves one content field value into a document value.
// A nil result omits the field.
type Strategy interface {
	Resolve(ctx context.Context, m field.Mapping, v content.FieldValue) (any, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, m field.Mapping, v content.FieldValue) (any, error)

// Resolve calls f.
func (f StrategyFunc) Resolve(ctx context.Context, m field.Mapping, v content.FieldValue) (any, error) {
	return f(ctx, m, v)
}

// Built-in kind tags.
const (
	KindText       = "text"
	KindOptions    = "options"
	KindRelation   = "relation"
	KindNumber     = "number"
	KindBoolean    = "boolean"
	KindDate       = "date"
	KindStructured = "structured"
)

// parents declares the kind hierarchy. Lookup walks it until a registered kind matches.
var parents = map[string]string{
	"dropdown":    KindOptions,
	"radio":       KindOptions,
	"checkboxes":  KindOptions,
	"multiselect": KindOptions,
	"entries":     KindRelation,
	"categories":  KindRelation,
	"tags":        KindRelation,
	"assets":      KindRelation,
	"money":       KindNumber,
	"lightswitch": KindBoolean,
	"time":        KindDate,
	"table":       KindStructured,
	"matrix":      KindStructured,
}

// maxDepth bounds the hierarchy walk.
const maxDepth = 8

// Registry maps content-field kinds to strategies. Lookups are cached per kind;
// Register invalidates the cache.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	cache      map[string]Strategy
	fallback   Strategy
}

// NewRegistry creates a registry with the built-in strategies. Unmatched kinds
// resolve as plain text.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		cache:      make(map[string]Strategy),
		fallback:   StrategyFunc(resolveText),
	}
	r.strategies[KindText] = r.fallback
	r.strategies[KindOptions] = StrategyFunc(resolveOptions)
	r.strategies[KindRelation] = StrategyFunc(resolveRelation)
	r.strategies[KindNumber] = StrategyFunc(resolveNumber)
	r.strategies[KindBoolean] = StrategyFunc(resolveBoolean)
	r.strategies[KindDate] = StrategyFunc(resolveDate)
	r.strategies[KindStructured] = StrategyFunc(resolveStructured)
	return r
}

// Register installs s for kind, overriding any built-in or inherited strategy.
func (r *Registry) Register(kind string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[kind] = s
	r.cache = make(map[string]Strategy)
}

// For returns the strategy for kind: an exact registration, else the closest
// registered ancestor, else plain text.
func (r *Registry) For(kind string) Strategy {
	r.mu.RLock()
	s, ok := r.cache[kind]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s = r.lookup(kind)
	r.cache[kind] = s
	return s
}

func (r *Registry) lookup(kind string) Strategy {
	k := kind
	for range maxDepth {
		if s, ok := r.strategies[k]; ok {
			return s
		}
		parent, ok := parents[k]
		if !ok {
			break
		}
		k = parent
	}
	return r.fallback
}
