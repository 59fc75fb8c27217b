package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"supply-controller/internal/domain"
	"supply-controller/internal/storage"
)

// MetricsStore implements storage.MetricsStore using ClickHouse.
// Upserts are plain inserts into a ReplacingMergeTree versioned by updated_at;
// every read uses FINAL so only the newest row per day is visible.
type MetricsStore struct {
	conn *Conn
	now  func() time.Time
}

// NewMetricsStore creates a new MetricsStore.
func NewMetricsStore(conn *Conn) *MetricsStore {
	return &MetricsStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

const selectMetrics = `
	SELECT day, volume, circ_to_user, user_to_user, user_to_circ, circ_to_tres, user_to_tres,
		holder_count, unique_senders, active_wallets, minted, burned, circulation_contraction,
		total_supply, circulating_balance, treasury_balance
	FROM daily_metrics FINAL
`

// Upsert inserts a new version of each record.
func (s *MetricsStore) Upsert(ctx context.Context, records []*domain.DailyMetrics) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO daily_metrics (
			day, volume, circ_to_user, user_to_user, user_to_circ, circ_to_tres, user_to_tres,
			holder_count, unique_senders, active_wallets, minted, burned, circulation_contraction,
			total_supply, circulating_balance, treasury_balance, updated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := s.now()
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		day, err := domain.ParseDay(r.Day)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}

		err = batch.Append(
			day, r.Volume, r.CircToUser, r.UserToUser, r.UserToCirc, r.CircToTres, r.UserToTres,
			r.HolderCount, r.UniqueSenders, r.ActiveWallets, r.Minted, r.Burned, r.CirculationContraction,
			r.TotalSupply, r.CirculatingBalance, r.TreasuryBalance, version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByDay retrieves one record.
func (s *MetricsStore) GetByDay(ctx context.Context, day string) (*domain.DailyMetrics, error) {
	t, err := domain.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return s.queryOne(ctx, selectMetrics+` WHERE day = ?`, t)
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

	rows, err := s.conn.Query(ctx, selectMetrics+` WHERE day >= ? AND day <= ? ORDER BY day ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// GetLatestOnOrBefore retrieves the newest record with day <= day.
func (s *MetricsStore) GetLatestOnOrBefore(ctx context.Context, day string) (*domain.DailyMetrics, error) {
	t, err := domain.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return s.queryOne(ctx, selectMetrics+` WHERE day <= ? ORDER BY day DESC LIMIT 1`, t)
}

// GetLatest retrieves the newest record.
func (s *MetricsStore) GetLatest(ctx context.Context) (*domain.DailyMetrics, error) {
	return s.queryOne(ctx, selectMetrics+` ORDER BY day DESC LIMIT 1`)
}

func (s *MetricsStore) queryOne(ctx context.Context, query string, args ...any) (*domain.DailyMetrics, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily metrics: %w", err)
	}
	defer rows.Close()

	result, err := scanMetrics(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

func scanMetrics(rows driver.Rows) ([]*domain.DailyMetrics, error) {
	var result []*domain.DailyMetrics
	for rows.Next() {
		var m domain.DailyMetrics
		var day time.Time
		if err := rows.Scan(
			&day, &m.Volume, &m.CircToUser, &m.UserToUser, &m.UserToCirc, &m.CircToTres, &m.UserToTres,
			&m.HolderCount, &m.UniqueSenders, &m.ActiveWallets, &m.Minted, &m.Burned, &m.CirculationContraction,
			&m.TotalSupply, &m.CirculatingBalance, &m.TreasuryBalance,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		m.Day = domain.DayOf(day)
		result = append(result, &m)
	}
	return result, rows.Err()
}
