// Package app wires configuration into stores, chain access and the run
// orchestrator, and hosts the scheduled admin server.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"supply-controller/internal/config"
	"supply-controller/internal/storage"
	chstore "supply-controller/internal/storage/clickhouse"
	"supply-controller/internal/storage/file"
	"supply-controller/internal/storage/memory"
	"supply-controller/internal/storage/migrations"
	pgstore "supply-controller/internal/storage/postgres"
	redisstore "supply-controller/internal/storage/redis"
	"supply-controller/internal/storage/sqlite"
)

// Stores holds the storage implementations selected by configuration.
// Locker is nil when the lock backend is "none".
type Stores struct {
	State   storage.StateStore
	Metrics storage.MetricsStore
	Locker  storage.Locker
}

// closer collects cleanup functions, run in reverse order.
type closer []func()

func (c closer) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// OpenStores connects every configured backend. Postgres pools are shared
// between state, metrics and lock when they use the same DSN.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, func(), error) {
	var cleanup closer
	pools := make(map[string]*pgstore.Pool)

	pgPool := func(dsn string) (*pgstore.Pool, error) {
		if p, ok := pools[dsn]; ok {
			return p, nil
		}
		p, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		cleanup = append(cleanup, p.Close)
		if err := migrations.RunPostgresMigrations(ctx, p); err != nil {
			return nil, err
		}
		pools[dsn] = p
		return p, nil
	}

	fail := func(err error) (*Stores, func(), error) {
		cleanup.close()
		return nil, func() {}, err
	}

	stores := &Stores{}

	// State
	switch cfg.State.Backend {
	case config.BackendMemory:
		stores.State = memory.NewStateStore()
	case config.BackendFile:
		st, err := file.NewStateStore(cfg.State.Dir)
		if err != nil {
			return fail(fmt.Errorf("open state dir: %w", err))
		}
		stores.State = st
	case config.BackendPostgres:
		pool, err := pgPool(cfg.State.DSN)
		if err != nil {
			return fail(fmt.Errorf("state store: %w", err))
		}
		stores.State = pgstore.NewStateStore(pool)
	default:
		return fail(fmt.Errorf("unknown state backend %q", cfg.State.Backend))
	}

	// Metrics
	switch cfg.Metrics.Backend {
	case config.BackendMemory:
		stores.Metrics = memory.NewMetricsStore()
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Metrics.DSN)
		if err != nil {
			return fail(fmt.Errorf("metrics store: %w", err))
		}
		cleanup = append(cleanup, func() { closeDB(db, logger) })
		stores.Metrics = sqlite.NewMetricsStore(db)
	case config.BackendPostgres:
		pool, err := pgPool(cfg.Metrics.DSN)
		if err != nil {
			return fail(fmt.Errorf("metrics store: %w", err))
		}
		stores.Metrics = pgstore.NewMetricsStore(pool)
	case config.BackendClickhouse:
		conn, err := chstore.NewConn(ctx, cfg.Metrics.DSN)
		if err != nil {
			return fail(fmt.Errorf("metrics store: %w", err))
		}
		cleanup = append(cleanup, func() { conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return fail(err)
		}
		stores.Metrics = chstore.NewMetricsStore(conn)
	default:
		return fail(fmt.Errorf("unknown metrics backend %q", cfg.Metrics.Backend))
	}

	// Lock
	switch cfg.Lock.Backend {
	case config.BackendNone:
	case config.BackendMemory:
		stores.Locker = memory.NewLocker()
	case config.BackendFile:
		l, err := file.NewLocker(cfg.Lock.Dir)
		if err != nil {
			return fail(fmt.Errorf("lock dir: %w", err))
		}
		stores.Locker = l
	case config.BackendPostgres:
		dsn := cfg.Lock.DSN
		if dsn == "" {
			dsn = cfg.State.DSN
		}
		pool, err := pgPool(dsn)
		if err != nil {
			return fail(fmt.Errorf("lock: %w", err))
		}
		stores.Locker = pgstore.NewLocker(pool)
	case config.BackendRedis:
		l, err := redisstore.NewLocker(ctx, redisstore.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("lock: %w", err))
		}
		cleanup = append(cleanup, func() {
			if err := l.Close(); err != nil {
				logger.Warn("Close redis", zap.Error(err))
			}
		})
		stores.Locker = l
	default:
		return fail(fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend))
	}

	return stores, cleanup.close, nil
}

func closeDB(db *sql.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("Close sqlite", zap.Error(err))
	}
}
