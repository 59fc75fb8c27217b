package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"supply-controller/internal/storage"
)

// Locker implements storage.Locker with session-level advisory locks.
// Each lease pins one pooled connection until released.
type Locker struct {
	pool *Pool
}

// NewLocker creates a new advisory-lock locker.
func NewLocker(pool *Pool) *Locker {
	return &Locker{pool: pool}
}

// Compile-time interface check.
var _ storage.Locker = (*Locker)(nil)

// Acquire tries pg_try_advisory_lock on a hash of name. ttl is ignored;
// the lock is dropped with the session.
func (l *Locker) Acquire(ctx context.Context, name string, _ time.Duration) (storage.Lease, error) {
	if name == "" {
		return nil, storage.ErrInvalidInput
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, storage.ErrLeaseHeld
	}

	return &advisoryLease{conn: conn, name: name}, nil
}

type advisoryLease struct {
	conn *pgxpool.Conn
	name string
	once sync.Once
	err  error
}

func (l *advisoryLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		defer l.conn.Release()
		if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, l.name); err != nil {
			l.err = fmt.Errorf("advisory unlock: %w", err)
		}
	})
	return l.err
}
