package postgres

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewPool_RequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), Config{}, zap.NewNop()); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestNewPool_InvalidDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), Config{DSN: "://bad"}, zap.NewNop()); err == nil {
		t.Fatal("expected parse error")
	}
}
