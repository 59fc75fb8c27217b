package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"supply-controller/internal/storage"
)

func setupLocker(t *testing.T) *Locker {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	locker, err := NewLocker(ctx, Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { locker.Close() })

	return locker
}

func TestLocker_Exclusive(t *testing.T) {
	locker := setupLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "controller", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "controller", time.Minute)
	assert.ErrorIs(t, err, storage.ErrLeaseHeld)

	require.NoError(t, lease.Release(ctx))

	again, err := locker.Acquire(ctx, "controller", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_ReleaseDoesNotStealForeignLease(t *testing.T) {
	locker := setupLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "short", 200*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	other, err := locker.Acquire(ctx, "short", time.Minute)
	require.NoError(t, err, "expired lease must be acquirable")

	// The stale holder's release must not drop the new holder's key.
	require.NoError(t, lease.Release(ctx))

	_, err = locker.Acquire(ctx, "short", time.Minute)
	assert.ErrorIs(t, err, storage.ErrLeaseHeld)

	require.NoError(t, other.Release(ctx))
}

func TestLocker_InvalidInput(t *testing.T) {
	locker := &Locker{}
	_, err := locker.Acquire(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
