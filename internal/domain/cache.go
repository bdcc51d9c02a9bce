package domain

import (
	"context"
	"time"
)

// PriceCache holds the latest published price vector per market so read-heavy
// callers (charts, quote previews) never touch the engine's writer path.
type PriceCache interface {
	SetVector(ctx context.Context, marketID string, prices []float64, ts time.Time) error
	GetVector(ctx context.Context, marketID string) ([]float64, time.Time, error)
}

// RateLimiter bounds per-user submission rates.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides cluster-wide exclusive locks for operator mutations
// (recalibration, liquidity changes) that must not race across instances.
type LockManager interface {
	// Acquire returns an unlock func, or ErrLockHeld if another party holds
	// the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus provides pub/sub fan-out of engine events (fills, price updates,
// risk state changes) to out-of-process consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter stores an immutable object, used by the ledger archiver.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
