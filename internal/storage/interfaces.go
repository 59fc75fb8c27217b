package storage

import (
	"context"
	"time"

	"supply-controller/internal/domain"
)

// StateStore is a small durable key-value store for controller state documents.
// Values are opaque JSON documents; every write replaces the whole document.
type StateStore interface {
	// Get returns the document stored under key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put atomically replaces the document stored under key.
	Put(ctx context.Context, key string, value []byte) error

	// PutBatch atomically replaces several documents. Either all writes
	// become visible or none do.
	PutBatch(ctx context.Context, docs map[string][]byte) error
}

// Locker grants exclusive leases so that at most one run mutates state at a time.
type Locker interface {
	// Acquire takes the named lease. Returns ErrLeaseHeld if another holder owns it.
	// ttl bounds the lease lifetime for backends that expire leases; others ignore it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held exclusive lock.
type Lease interface {
	// Release gives the lease up. Releasing twice is a no-op.
	Release(ctx context.Context) error
}

// MetricsStore provides access to the daily_metrics table.
type MetricsStore interface {
	// Upsert inserts or replaces records keyed by day.
	Upsert(ctx context.Context, records []*domain.DailyMetrics) error

	// GetByDay retrieves one record. Returns ErrNotFound if not exists.
	GetByDay(ctx context.Context, day string) (*domain.DailyMetrics, error)

	// GetRange retrieves records within [fromDay, toDay] (inclusive), ordered by day ASC.
	GetRange(ctx context.Context, fromDay, toDay string) ([]*domain.DailyMetrics, error)

	// GetLatestOnOrBefore retrieves the newest record with day <= day.
	// Returns ErrNotFound if none exists.
	GetLatestOnOrBefore(ctx context.Context, day string) (*domain.DailyMetrics, error)

	// GetLatest retrieves the newest record. Returns ErrNotFound if the table is empty.
	GetLatest(ctx context.Context) (*domain.DailyMetrics, error)
}
