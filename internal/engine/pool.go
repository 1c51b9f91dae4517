package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kailas-cloud/searchbridge/internal/domain/index"
)

// Factory builds an engine client from an index's opaque configuration.
type Factory func(cfg map[string]any) (Engine, error)

// Pool caches engine clients per (engine type, serialized configuration).
// It is owned by the composition root and torn down with Close.
type Pool struct {
	mu        sync.Mutex
	factories map[index.EngineType]Factory
	clients   map[string]Engine
}

// NewPool creates a client cache over the given factories.
func NewPool(factories map[index.EngineType]Factory) *Pool {
	fs := make(map[index.EngineType]Factory, len(factories))
	for t, f := range factories {
		fs[t] = f
	}
	return &Pool{factories: fs, clients: make(map[string]Engine)}
}

// Register adds or replaces the factory for an engine type.
func (p *Pool) Register(t index.EngineType, f Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[t] = f
}

// For returns the cached client for the index, building it on first use.
func (p *Pool) For(idx index.Index) (Engine, error) {
	key, err := CacheKey(idx.EngineType(), idx.Config())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.clients[key]; ok {
		return e, nil
	}
	f, ok := p.factories[idx.EngineType()]
	if !ok {
		return nil, fmt.Errorf("%w: no factory for engine %q", ErrBadConfig, idx.EngineType())
	}
	e, err := f(idx.Config())
	if err != nil {
		return nil, fmt.Errorf("build %s client for %s: %w", idx.EngineType(), idx.Handle(), err)
	}
	p.clients[key] = e
	return e, nil
}

// Len returns the number of cached clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close releases every cached client that holds resources.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, e := range p.clients {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(p.clients, key)
	}
	return errors.Join(errs...)
}

// CacheKey serializes the engine type and configuration. encoding/json sorts map
// keys, so equal configurations produce equal keys.
func CacheKey(t index.EngineType, cfg map[string]any) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	return string(t) + ":" + string(b), nil
}

// DecodeConfig decodes an opaque configuration map into a typed struct.
func DecodeConfig(cfg map[string]any, out any) error {
	if err := Remarshal(cfg, out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	return nil
}
