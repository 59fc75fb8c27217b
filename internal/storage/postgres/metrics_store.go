package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"supply-controller/internal/domain"
	"supply-controller/internal/storage"
)

// MetricsStore is a PostgreSQL implementation of storage.MetricsStore.
type MetricsStore struct {
	pool *Pool
}

// NewMetricsStore creates a new PostgreSQL metrics store.
func NewMetricsStore(pool *Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

const metricsColumns = `day, volume, circ_to_user, user_to_user, user_to_circ, circ_to_tres, user_to_tres,
	holder_count, unique_senders, active_wallets, minted, burned, circulation_contraction,
	total_supply, circulating_balance, treasury_balance`

// Upsert inserts or replaces records keyed by day, in one batch.
func (s *MetricsStore) Upsert(ctx context.Context, records []*domain.DailyMetrics) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if r == nil || r.Day == "" {
			return storage.ErrInvalidInput
		}
		day, err := domain.ParseDay(r.Day)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}

		batch.Queue(`
			INSERT INTO daily_metrics (`+metricsColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (day) DO UPDATE SET
				volume = EXCLUDED.volume,
				circ_to_user = EXCLUDED.circ_to_user,
				user_to_user = EXCLUDED.user_to_user,
				user_to_circ = EXCLUDED.user_to_circ,
				circ_to_tres = EXCLUDED.circ_to_tres,
				user_to_tres = EXCLUDED.user_to_tres,
				holder_count = EXCLUDED.holder_count,
				unique_senders = EXCLUDED.unique_senders,
				active_wallets = EXCLUDED.active_wallets,
				minted = EXCLUDED.minted,
				burned = EXCLUDED.burned,
				circulation_contraction = EXCLUDED.circulation_contraction,
				total_supply = EXCLUDED.total_supply,
				circulating_balance = EXCLUDED.circulating_balance,
				treasury_balance = EXCLUDED.treasury_balance
		`,
			day, r.Volume, r.CircToUser, r.UserToUser, r.UserToCirc, r.CircToTres, r.UserToTres,
			r.HolderCount, r.UniqueSenders, r.ActiveWallets, r.Minted, r.Burned, r.CirculationContraction,
			r.TotalSupply, r.CirculatingBalance, r.TreasuryBalance,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert daily metrics: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByDay retrieves one record.
func (s *MetricsStore) GetByDay(ctx context.Context, day string) (*domain.DailyMetrics, error) {
	t, err := domain.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	row := s.pool.QueryRow(ctx, `SELECT `+metricsColumns+` FROM daily_metrics WHERE day = $1`, t)
	return scanOne(row)
}

// GetRange retrieves records within [fromDay, toDay], ordered by day ASC.
func (s *MetricsStore) GetRange(ctx context.Context, fromDay, toDay string) ([]*domain.DailyMetrics, error) {
	from, err := domain.ParseDay(fromDay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	to, err := domain.ParseDay(toDay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+metricsColumns+`
		FROM daily_metrics
		WHERE day >= $1 AND day <= $2
		ORDER BY day ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyMetrics
	for rows.Next() {
		m, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// GetLatestOnOrBefore retrieves the newest record with day <= day.
func (s *MetricsStore) GetLatestOnOrBefore(ctx context.Context, day string) (*domain.DailyMetrics, error) {
	t, err := domain.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+metricsColumns+`
		FROM daily_metrics
		WHERE day <= $1
		ORDER BY day DESC
		LIMIT 1
	`, t)
	return scanOne(row)
}

// GetLatest retrieves the newest record.
func (s *MetricsStore) GetLatest(ctx context.Context) (*domain.DailyMetrics, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+metricsColumns+` FROM daily_metrics ORDER BY day DESC LIMIT 1`)
	return scanOne(row)
}

func scanOne(row pgx.Row) (*domain.DailyMetrics, error) {
	var m domain.DailyMetrics
	var day time.Time
	err := row.Scan(
		&day, &m.Volume, &m.CircToUser, &m.UserToUser, &m.UserToCirc, &m.CircToTres, &m.UserToTres,
		&m.HolderCount, &m.UniqueSenders, &m.ActiveWallets, &m.Minted, &m.Burned, &m.CirculationContraction,
		&m.TotalSupply, &m.CirculatingBalance, &m.TreasuryBalance,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan daily metrics: %w", err)
	}
	m.Day = domain.DayOf(day)
	return &m, nil
}
