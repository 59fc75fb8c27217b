package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"supply-controller/internal/domain"
	"supply-controller/internal/storage"
)

// MetricsStore implements storage.MetricsStore on SQLite.
type MetricsStore struct {
	db *sql.DB
}

// NewMetricsStore creates a new SQLite metrics store.
func NewMetricsStore(db *sql.DB) *MetricsStore {
	return &MetricsStore{db: db}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

const selectMetrics = `
	SELECT day, volume, circ_to_user, user_to_user, user_to_circ, circ_to_tres, user_to_tres,
		holder_count, unique_senders, active_wallets, minted, burned, circulation_contraction,
		total_supply, circulating_balance, treasury_balance
	FROM daily_metrics
`

// Upsert inserts or replaces records keyed by day in one transaction.
func (s *MetricsStore) Upsert(ctx context.Context, records []*domain.DailyMetrics) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_metrics (
			day, volume, circ_to_user, user_to_user, user_to_circ, circ_to_tres, user_to_tres,
			holder_count, unique_senders, active_wallets, minted, burned, circulation_contraction,
			total_supply, circulating_balance, treasury_balance
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			volume = excluded.volume,
			circ_to_user = excluded.circ_to_user,
			user_to_user = excluded.user_to_user,
			user_to_circ = excluded.user_to_circ,
			circ_to_tres = excluded.circ_to_tres,
			user_to_tres = excluded.user_to_tres,
			holder_count = excluded.holder_count,
			unique_senders = excluded.unique_senders,
			active_wallets = excluded.active_wallets,
			minted = excluded.minted,
			burned = excluded.burned,
			circulation_contraction = excluded.circulation_contraction,
			total_supply = excluded.total_supply,
			circulating_balance = excluded.circulating_balance,
			treasury_balance = excluded.treasury_balance
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		if _, err := domain.ParseDay(r.Day); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		_, err := stmt.ExecContext(ctx,
			r.Day, r.Volume, r.CircToUser, r.UserToUser, r.UserToCirc, r.CircToTres, r.UserToTres,
			r.HolderCount, r.UniqueSenders, r.ActiveWallets, r.Minted, r.Burned, r.CirculationContraction,
			r.TotalSupply, r.CirculatingBalance, r.TreasuryBalance,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", r.Day, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByDay retrieves one record.
func (s *MetricsStore) GetByDay(ctx context.Context, day string) (*domain.DailyMetrics, error) {
	return scanRow(s.db.QueryRowContext(ctx, selectMetrics+` WHERE day = ?`, day))
}

// GetRange retrieves records within [fromDay, toDay], ordered by day ASC.
func (s *MetricsStore) GetRange(ctx context.Context, fromDay, toDay string) ([]*domain.DailyMetrics, error) {
	rows, err := s.db.QueryContext(ctx, selectMetrics+` WHERE day >= ? AND day <= ? ORDER BY day ASC`, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyMetrics
	for rows.Next() {
		m, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// GetLatestOnOrBefore retrieves the newest record with day <= day.
func (s *MetricsStore) GetLatestOnOrBefore(ctx context.Context, day string) (*domain.DailyMetrics, error) {
	return scanRow(s.db.QueryRowContext(ctx, selectMetrics+` WHERE day <= ? ORDER BY day DESC LIMIT 1`, day))
}

// GetLatest retrieves the newest record.
func (s *MetricsStore) GetLatest(ctx context.Context) (*domain.DailyMetrics, error) {
	return scanRow(s.db.QueryRowContext(ctx, selectMetrics+` ORDER BY day DESC LIMIT 1`))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(row scanner) (*domain.DailyMetrics, error) {
	var m domain.DailyMetrics
	err := row.Scan(
		&m.Day, &m.Volume, &m.CircToUser, &m.UserToUser, &m.UserToCirc, &m.CircToTres, &m.UserToTres,
		&m.HolderCount, &m.UniqueSenders, &m.ActiveWallets, &m.Minted, &m.Burned, &m.CirculationContraction,
		&m.TotalSupply, &m.CirculatingBalance, &m.TreasuryBalance,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan daily metrics: %w", err)
	}
	return &m, nil
}
