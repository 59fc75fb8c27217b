package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"supply-controller/internal/storage"
)

// Locker hands out leases backed by lock files in a directory.
type Locker struct {
	dir string
}

// NewLocker creates a locker that keeps <name>.lock files in dir.
func NewLocker(dir string) (*Locker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &Locker{dir: dir}, nil
}

// Compile-time interface check.
var _ storage.Locker = (*Locker)(nil)

// Acquire takes an exclusive, non-blocking lock on <name>.lock.
// The lock dies with the process, so ttl is ignored.
func (l *Locker) Acquire(_ context.Context, name string, _ time.Duration) (storage.Lease, error) {
	if !keyPattern.MatchString(name) {
		return nil, fmt.Errorf("lease name %q: %w", name, storage.ErrInvalidInput)
	}

	f, err := os.OpenFile(filepath.Join(l.dir, name+".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &fileLease{f: f}, nil
}

type fileLease struct {
	f    *os.File
	once sync.Once
	err  error
}

func (l *fileLease) Release(_ context.Context) error {
	l.once.Do(func() {
		if err := unlockFile(l.f); err != nil {
			l.err = err
		}
		if err := l.f.Close(); err != nil && l.err == nil {
			l.err = fmt.Errorf("close lock file: %w", err)
		}
	})
	return l.err
}
