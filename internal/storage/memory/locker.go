package memory

import (
	"context"
	"sync"
	"time"

	"supply-controller/internal/storage"
)

// Locker is an in-process implementation of storage.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocker creates a new in-memory locker.
func NewLocker() *Locker {
	return &Locker{
		held: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.Locker = (*Locker)(nil)

// Acquire takes the named lease. ttl is ignored.
func (l *Locker) Acquire(_ context.Context, name string, _ time.Duration) (storage.Lease, error) {
	if name == "" {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, storage.ErrLeaseHeld
	}
	l.held[name] = true
	return &lease{locker: l, name: name}, nil
}

type lease struct {
	locker *Locker
	name   string
	once   sync.Once
}

func (l *lease) Release(_ context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		delete(l.locker.held, l.name)
		l.locker.mu.Unlock()
	})
	return nil
}
