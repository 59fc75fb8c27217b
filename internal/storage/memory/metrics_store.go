package memory

import (
	"context"
	"sort"
	"sync"

	"supply-controller/internal/domain"
	"supply-controller/internal/storage"
)

// MetricsStore is an in-memory implementation of storage.MetricsStore.
type MetricsStore struct {
	mu   sync.RWMutex
	days map[string]*domain.DailyMetrics
}

// NewMetricsStore creates a new in-memory metrics store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		days: make(map[string]*domain.DailyMetrics),
	}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

// Upsert inserts or replaces records by day.
func (s *MetricsStore) Upsert(_ context.Context, records []*domain.DailyMetrics) error {
	for _, r := range records {
		if r == nil || r.Day == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		cp := *r
		s.days[r.Day] = &cp
	}
	return nil
}

// GetByDay retrieves one record.
func (s *MetricsStore) GetByDay(_ context.Context, day string) (*domain.DailyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.days[day]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// GetRange retrieves records within [fromDay, toDay], ordered by day ASC.
// Day keys are fixed-width so lexical order is chronological.
func (s *MetricsStore) GetRange(_ context.Context, fromDay, toDay string) ([]*domain.DailyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyMetrics
	for day, r := range s.days {
		if day >= fromDay && day <= toDay {
			cp := *r
			result = append(result, &cp)
		}
	}
	sortByDay(result)
	return result, nil
}

// GetLatestOnOrBefore retrieves the newest record with day <= day.
func (s *MetricsStore) GetLatestOnOrBefore(_ context.Context, day string) (*domain.DailyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.DailyMetrics
	for d, r := range s.days {
		if d <= day && (best == nil || d > best.Day) {
			best = r
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// GetLatest retrieves the newest record.
func (s *MetricsStore) GetLatest(_ context.Context) (*domain.DailyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.DailyMetrics
	for _, r := range s.days {
		if best == nil || r.Day > best.Day {
			best = r
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func sortByDay(records []*domain.DailyMetrics) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Day < records[j].Day
	})
}
