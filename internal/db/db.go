package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces.
type Store interface {
	Pinger
	KVStore
	ListStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ListStore provides FIFO list operations used by the job queue.
type ListStore interface {
	// RPush appends all values in one command, so readers never observe a partial push.
	RPush(ctx context.Context, key string, values ...[]byte) error
	// BLMove blocks up to timeout for the head of src and appends it to dst
	// atomically. ErrKeyNotFound on timeout.
	BLMove(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error)
	// LMove moves the tail of src to the head of dst. ErrKeyNotFound when src is empty.
	LMove(ctx context.Context, src, dst string) ([]byte, error)
	// LRem removes the first occurrence of value and reports whether one was found.
	LRem(ctx context.Context, key string, value []byte) (bool, error)
	LLen(ctx context.Context, key string) (int64, error)
}
