package postgres

import (
	"context"
	"fmt"

	"supply-controller/internal/storage"
)

// StateStore is a PostgreSQL implementation of storage.StateStore.
// Documents live in controller_state(key, doc jsonb).
type StateStore struct {
	pool *Pool
}

// NewStateStore creates a new PostgreSQL state store.
func NewStateStore(pool *Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

const upsertStateSQL = `
	INSERT INTO controller_state (key, doc, updated_at)
	VALUES ($1, $2::jsonb, NOW())
	ON CONFLICT (key) DO UPDATE
	SET doc = EXCLUDED.doc,
	    updated_at = NOW()
`

// Get returns the document stored under key.
func (s *StateStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}

	var doc string
	err := s.pool.QueryRow(ctx, `SELECT doc::text FROM controller_state WHERE key = $1`, key).Scan(&doc)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	return []byte(doc), nil
}

// Put replaces the document stored under key.
func (s *StateStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	if _, err := s.pool.Exec(ctx, upsertStateSQL, key, string(value)); err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

// PutBatch replaces several documents in one transaction.
func (s *StateStore) PutBatch(ctx context.Context, docs map[string][]byte) error {
	for key := range docs {
		if key == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range docs {
		if _, err := tx.Exec(ctx, upsertStateSQL, key, string(value)); err != nil {
			return fmt.Errorf("put state %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
