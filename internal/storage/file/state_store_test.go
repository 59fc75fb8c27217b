package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"supply-controller/internal/storage"
)

func TestStateStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStateStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "bookmark")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Put(ctx, "bookmark", []byte(`{"last_block":42}`)))

	got, err := store.Get(ctx, "bookmark")
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_block":42}`, string(got))

	onDisk, err := os.ReadFile(filepath.Join(dir, "bookmark.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_block":42}`, string(onDisk))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestStateStore_RejectsPathKeys(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../escape", []byte(`{}`))
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}

func TestStateStore_PutBatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStateStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.PutBatch(ctx, map[string][]byte{
		"bookmark": []byte(`{"last_block":7}`),
		"balances": []byte(`{"0xabc":1.5}`),
	}))

	b, err := store.Get(ctx, "bookmark")
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_block":7}`, string(b))

	_, err = os.Stat(filepath.Join(dir, journalName))
	assert.True(t, os.IsNotExist(err), "journal must be removed after commit")
}

func TestStateStore_ReplaysInterruptedBatch(t *testing.T) {
	dir := t.TempDir()

	// Simulate a crash after the journal was written but before it was applied.
	journal, err := sonnet.Marshal(map[string][]byte{
		"bookmark": []byte(`{"last_block":99}`),
		"balances": []byte(`{"0xdef":3}`),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bookmark.json"), []byte(`{"last_block":50}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, journalName), journal, 0o644))

	store, err := NewStateStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	b, err := store.Get(ctx, "bookmark")
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_block":99}`, string(b))

	bal, err := store.Get(ctx, "balances")
	require.NoError(t, err)
	assert.JSONEq(t, `{"0xdef":3}`, string(bal))
}

func TestLocker_Exclusive(t *testing.T) {
	locker, err := NewLocker(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "controller", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "controller", time.Minute)
	assert.ErrorIs(t, err, storage.ErrLeaseHeld)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	again, err := locker.Acquire(ctx, "controller", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
