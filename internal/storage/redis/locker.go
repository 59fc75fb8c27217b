// Package redis provides a distributed run lease on top of Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"supply-controller/internal/storage"
)

const keyPrefix = "supply-controller:lease:"

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements storage.Locker with SET NX PX leases.
type Locker struct {
	client *redis.Client
	logger *zap.Logger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewLocker connects to Redis and verifies the connection.
func NewLocker(ctx context.Context, opts Options, logger *zap.Logger) (*Locker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return &Locker{client: rdb, logger: logger}, nil
}

// Compile-time interface check.
var _ storage.Locker = (*Locker)(nil)

// Close closes the Redis connection.
func (l *Locker) Close() error {
	return l.client.Close()
}

// Acquire sets the lease key with a fresh token if it does not exist.
// The key expires after ttl so a crashed run cannot hold it forever.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (storage.Lease, error) {
	if name == "" || ttl <= 0 {
		return nil, storage.ErrInvalidInput
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("set lease: %w", err)
	}
	if !ok {
		return nil, storage.ErrLeaseHeld
	}

	l.logger.Debug("lease acquired", zap.String("name", name), zap.Duration("ttl", ttl))
	return &redisLease{locker: l, key: keyPrefix + name, token: token}, nil
}

type redisLease struct {
	locker *Locker
	key    string
	token  string
	once   sync.Once
	err    error
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		n, err := releaseScript.Run(ctx, l.locker.client, []string{l.key}, l.token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.err = fmt.Errorf("release lease: %w", err)
			return
		}
		if n == 0 {
			l.locker.logger.Warn("lease expired before release", zap.String("key", l.key))
		}
	})
	return l.err
}
