//go:build !unix

package file

import (
	"os"
	"sync"

	"supply-controller/internal/storage"
)

// Without flock, fall back to an in-process registry of open lock files.
var (
	heldMu sync.Mutex
	held   = map[string]bool{}
)

func lockFile(f *os.File) error {
	heldMu.Lock()
	defer heldMu.Unlock()
	if held[f.Name()] {
		return storage.ErrLeaseHeld
	}
	held[f.Name()] = true
	return nil
}

func unlockFile(f *os.File) error {
	heldMu.Lock()
	defer heldMu.Unlock()
	delete(held, f.Name())
	return nil
}
