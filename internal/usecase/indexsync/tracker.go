package indexsync

import (
	"context"
	"sync"
)

type trackerKey struct{}

type target struct {
	index, document, site string
}

// Tracker de-duplicates enqueue attempts within one triggering request.
type Tracker struct {
	mu   sync.Mutex
	seen map[target]struct{}
}

// WithTracker attaches a fresh tracker to ctx.
func WithTracker(ctx context.Context) context.Context {
	return context.WithValue(ctx, trackerKey{}, &Tracker{seen: make(map[target]struct{})})
}

func trackerFrom(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// claim reports whether the target is new. A nil tracker claims everything.
func (t *Tracker) claim(index, document, site string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := target{index: index, document: document, site: site}
	if _, ok := t.seen[k]; ok {
		return false
	}
	t.seen[k] = struct{}{}
	return true
}

// Len returns how many targets were claimed.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// TrackedUnits returns how many targets the request-scoped tracker in ctx claimed.
func TrackedUnits(ctx context.Context) int {
	return trackerFrom(ctx).Len()
}
