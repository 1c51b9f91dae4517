package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/searchbridge/internal/db"
)

// RPush appends values to the tail of a list in a single command.
func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	elems := make([]string, len(values))
	for i, v := range values {
		elems[i] = string(v)
	}
	cmd := s.b().Rpush().Key(key).Element(elems...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpRPush, Err: err}
	}
	return nil
}

// BLMove moves the head of src to the tail of dst, waiting up to timeout.
// Returns db.ErrKeyNotFound when the timeout elapses.
func (s *Store) BLMove(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	cmd := s.b().Blmove().Source(src).Destination(dst).Left().Right().Timeout(timeout.Seconds()).Build()
	v, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpBLMove, Err: err}
	}
	return []byte(v), nil
}

// LMove moves the tail of src to the head of dst.
func (s *Store) LMove(ctx context.Context, src, dst string) ([]byte, error) {
	cmd := s.b().Lmove().Source(src).Destination(dst).Right().Left().Build()
	v, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpLMove, Err: err}
	}
	return []byte(v), nil
}

// LRem removes the first occurrence of value from the list.
func (s *Store) LRem(ctx context.Context, key string, value []byte) (bool, error) {
	cmd := s.b().Lrem().Key(key).Count(1).Element(string(value)).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpLRem, Err: err}
	}
	return n > 0, nil
}

// LLen returns the list length.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Llen().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLLen, Err: err}
	}
	return n, nil
}
