// Package file implements storage.StateStore as one JSON document per key
// in a state directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"supply-controller/internal/storage"
)

const journalName = "commit.journal"

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// StateStore keeps each document in <dir>/<key>.json. Writes go through a
// temp file and rename so readers never observe a torn document.
// PutBatch first journals the whole batch; an unfinished journal is
// replayed by NewStateStore.
type StateStore struct {
	dir string
	mu  sync.Mutex
}

// NewStateStore opens (creating if needed) a state directory and replays
// any batch interrupted by a crash.
func NewStateStore(dir string) (*StateStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state dir: %w", storage.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &StateStore{dir: dir}
	if err := s.replayJournal(); err != nil {
		return nil, err
	}
	return s, nil
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// Get reads the document stored under key.
func (s *StateStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put atomically replaces the document stored under key.
func (s *StateStore) Put(_ context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return writeFileAtomic(path, value)
}

// PutBatch journals docs, applies them and drops the journal.
func (s *StateStore) PutBatch(_ context.Context, docs map[string][]byte) error {
	for key := range docs {
		if _, err := s.path(key); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	journal, err := sonnet.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, journalName), journal); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}

	return s.applyJournal(docs)
}

func (s *StateStore) replayJournal() error {
	data, err := os.ReadFile(filepath.Join(s.dir, journalName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read journal: %w", err)
	}

	var docs map[string][]byte
	if err := sonnet.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("decode journal: %w", err)
	}
	return s.applyJournal(docs)
}

func (s *StateStore) applyJournal(docs map[string][]byte) error {
	for key, value := range docs {
		path, err := s.path(key)
		if err != nil {
			return err
		}
		if err := writeFileAtomic(path, value); err != nil {
			return fmt.Errorf("apply %s: %w", key, err)
		}
	}

	if err := os.Remove(filepath.Join(s.dir, journalName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove journal: %w", err)
	}
	return syncDir(s.dir)
}

func (s *StateStore) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("state key %q: %w", key, storage.ErrInvalidInput)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// fsyncs it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	// Some filesystems reject fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}
