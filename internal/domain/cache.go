package domain

import (
	"context"
	"time"
)

// CatalogCache holds a snapshot of the market catalog so a restarted process
// can serve reads before the first successful refresh.
type CatalogCache interface {
	SetAll(ctx context.Context, markets []Market) error
	GetAll(ctx context.Context) ([]Market, error)
	Get(ctx context.Context, address string) (Market, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. The orchestrator uses it to
// guarantee a single driver per workflow across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for ephemeral workflow events and durable
// streams for ordered delivery.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
