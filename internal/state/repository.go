// Package state gives typed access to the controller's persisted documents.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"supply-controller/internal/storage"
)

// Repository reads and writes controller state documents on a StateStore.
type Repository struct {
	store storage.StateStore
}

// NewRepository creates a repository over store.
func NewRepository(store storage.StateStore) *Repository {
	return &Repository{store: store}
}

// Bookmark returns the last committed block. ok is false when no run has committed yet.
func (r *Repository) Bookmark(ctx context.Context) (last uint64, ok bool, err error) {
	var doc bookmarkDoc
	found, err := r.load(ctx, KeyBookmark, &doc)
	if err != nil || !found {
		return 0, false, err
	}
	return doc.LastBlock, true, nil
}

// Balances returns the persisted ledger. Missing state yields an empty map.
func (r *Repository) Balances(ctx context.Context) (map[common.Address]decimal.Decimal, error) {
	var doc map[string]Amount
	if _, err := r.load(ctx, KeyBalances, &doc); err != nil {
		return nil, err
	}

	out := make(map[common.Address]decimal.Decimal, len(doc))
	for key, amount := range doc {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("balances: invalid address %q", key)
		}
		out[common.HexToAddress(key)] = amount.Decimal()
	}
	return out, nil
}

// Threshold returns the persisted msct, or def on first run.
func (r *Repository) Threshold(ctx context.Context, def float64) (float64, error) {
	var doc thresholdDoc
	found, err := r.load(ctx, KeyThreshold, &doc)
	if err != nil {
		return 0, err
	}
	if !found {
		return def, nil
	}
	return doc.MSCT, nil
}

// Beginning returns the one-shot flag; false until the first decision.
func (r *Repository) Beginning(ctx context.Context) (bool, error) {
	var doc beginningDoc
	if _, err := r.load(ctx, KeyBeginning, &doc); err != nil {
		return false, err
	}
	return doc.Beginning, nil
}

// OpenDay returns the carried-over day bucket, or nil if none.
func (r *Repository) OpenDay(ctx context.Context) (*OpenDay, error) {
	var doc OpenDay
	found, err := r.load(ctx, KeyOpenDay, &doc)
	if err != nil || !found {
		return nil, err
	}
	return &doc, nil
}

// SaveController persists the new threshold, and the beginning flag when
// markBeginning is set, in one write.
func (r *Repository) SaveController(ctx context.Context, msct float64, markBeginning bool) error {
	docs := make(map[string][]byte, 2)
	if err := encodeInto(docs, KeyThreshold, thresholdDoc{MSCT: msct}); err != nil {
		return err
	}
	if markBeginning {
		if err := encodeInto(docs, KeyBeginning, beginningDoc{Beginning: true}); err != nil {
			return err
		}
	}
	if err := r.store.PutBatch(ctx, docs); err != nil {
		return fmt.Errorf("save controller state: %w", err)
	}
	return nil
}

// Commit is the result of one ingestion run.
type Commit struct {
	LastBlock uint64
	Balances  map[common.Address]decimal.Decimal
	OpenDay   *OpenDay
}

// CommitIngestion writes bookmark, ledger and open day as a single batch,
// so a crash never leaves the ledger ahead of the bookmark.
func (r *Repository) CommitIngestion(ctx context.Context, c Commit) error {
	balances := make(map[string]Amount, len(c.Balances))
	for addr, bal := range c.Balances {
		balances[strings.ToLower(addr.Hex())] = Amount(bal)
	}

	docs := make(map[string][]byte, 3)
	if err := encodeInto(docs, KeyBookmark, bookmarkDoc{LastBlock: c.LastBlock}); err != nil {
		return err
	}
	if err := encodeInto(docs, KeyBalances, balances); err != nil {
		return err
	}
	if c.OpenDay != nil {
		if err := encodeInto(docs, KeyOpenDay, c.OpenDay); err != nil {
			return err
		}
	}

	if err := r.store.PutBatch(ctx, docs); err != nil {
		return fmt.Errorf("commit ingestion: %w", err)
	}
	return nil
}

func (r *Repository) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := sonnet.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func encodeInto(docs map[string][]byte, key string, v any) error {
	raw, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	docs[key] = raw
	return nil
}
