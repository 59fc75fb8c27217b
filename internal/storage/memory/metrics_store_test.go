package memory

import (
	"context"
	"errors"
	"testing"

	"supply-controller/internal/domain"
	"supply-controller/internal/storage"
)

func TestMetricsStore_UpsertReplacesByDay(t *testing.T) {
	store := NewMetricsStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, []*domain.DailyMetrics{{Day: "2025-03-01", Volume: 10, HolderCount: 3}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, []*domain.DailyMetrics{{Day: "2025-03-01", Volume: 25, HolderCount: 4}}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := store.GetByDay(ctx, "2025-03-01")
	if err != nil {
		t.Fatalf("GetByDay failed: %v", err)
	}
	if got.Volume != 25 || got.HolderCount != 4 {
		t.Errorf("expected replaced record, got %+v", got)
	}

	all, err := store.GetRange(ctx, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly one record per day, got %d", len(all))
	}
}

func TestMetricsStore_GetRangeOrdered(t *testing.T) {
	store := NewMetricsStore()
	ctx := context.Background()

	records := []*domain.DailyMetrics{
		{Day: "2025-03-03"},
		{Day: "2025-03-01"},
		{Day: "2025-03-02"},
		{Day: "2025-03-05"},
	}
	if err := store.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetRange(ctx, "2025-03-01", "2025-03-03")
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []string{"2025-03-01", "2025-03-02", "2025-03-03"} {
		if got[i].Day != want {
			t.Errorf("record %d: expected %s, got %s", i, want, got[i].Day)
		}
	}
}

func TestMetricsStore_GetLatestOnOrBefore(t *testing.T) {
	store := NewMetricsStore()
	ctx := context.Background()

	if _, err := store.GetLatestOnOrBefore(ctx, "2025-03-10"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	_ = store.Upsert(ctx, []*domain.DailyMetrics{
		{Day: "2025-03-01", HolderCount: 5},
		{Day: "2025-03-04", HolderCount: 7},
	})

	got, err := store.GetLatestOnOrBefore(ctx, "2025-03-03")
	if err != nil {
		t.Fatalf("GetLatestOnOrBefore failed: %v", err)
	}
	if got.Day != "2025-03-01" {
		t.Errorf("expected 2025-03-01, got %s", got.Day)
	}

	latest, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.HolderCount != 7 {
		t.Errorf("expected latest holder count 7, got %d", latest.HolderCount)
	}
}

func TestMetricsStore_InvalidInput(t *testing.T) {
	store := NewMetricsStore()
	err := store.Upsert(context.Background(), []*domain.DailyMetrics{{Day: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
