package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"supply-controller/internal/domain"
	"supply-controller/internal/state"
	"supply-controller/internal/storage/memory"
)

var today = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store   *memory.StateStore
	repo    *state.Repository
	metrics *memory.MetricsStore
	ctrl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStateStore(),
		metrics: memory.NewMetricsStore(),
	}
	f.repo = state.NewRepository(f.store)
	f.ctrl = New(Options{
		Metrics: f.metrics,
		State:   f.repo,
		Now:     func() time.Time { return today },
		Logger:  zaptest.NewLogger(t),
	})
	return f
}

func (f *fixture) seed(t *testing.T, records ...*domain.DailyMetrics) {
	t.Helper()
	require.NoError(t, f.metrics.Upsert(context.Background(), records))
}

// activeWeek writes a prior-period record on Mar 8 and a busy week Mar 9..15.
func (f *fixture) activeWeek(t *testing.T) {
	f.seed(t, &domain.DailyMetrics{Day: "2024-03-08", HolderCount: 100, CirculatingBalance: 1_000_000})
	for day := 9; day <= 15; day++ {
		f.seed(t, &domain.DailyMetrics{
			Day:                domain.DayOf(time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)),
			Volume:             50_000,
			HolderCount:        int64(100 + day - 8),
			UniqueSenders:      3,
			ActiveWallets:      4,
			CirculatingBalance: 1_000_000,
		})
	}
}

func TestController_Gather(t *testing.T) {
	f := newFixture(t)
	f.activeWeek(t)
	f.seed(t, &domain.DailyMetrics{Day: "2024-03-01", Volume: 999_999})

	in, err := f.ctrl.Gather(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2024-03-09", in.FromDay)
	assert.Equal(t, "2024-03-15", in.ToDay)
	assert.Equal(t, 350_000.0, in.Volume)
	assert.Equal(t, int64(21), in.Senders)
	assert.Equal(t, int64(28), in.Wallets)
	assert.Equal(t, int64(107), in.Holders)
	assert.True(t, in.HasPrior)
	assert.Equal(t, int64(100), in.PriorHolders)
	assert.Equal(t, 1_000_000.0, in.Circulating)
}

func TestController_FirstDecisionUsesUpdatedThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.activeWeek(t)

	d, err := f.ctrl.Decide(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeDecision, d.Outcome)

	// v = 35, h = 0.07, c = 0.75
	assert.InDelta(t, 35.0, d.VolumeRatio, 1e-9)
	assert.InDelta(t, 0.07, d.HolderGrowth, 1e-9)
	assert.InDelta(t, 0.75, d.Concentration, 1e-9)
	wantD := 0.5*35 + 0.3*0.07 + 0.2*0.75
	assert.InDelta(t, wantD, d.Demand, 1e-9)

	wantNew := 0.5 * (1 + 0.2*(wantD-0.5))
	assert.InDelta(t, wantNew, d.NewThreshold, 1e-9)
	assert.InDelta(t, wantD-0.5, d.HeatGap, 1e-9, "gap uses the pre-update threshold")
	assert.Equal(t, d.NewThreshold, d.ThresholdUsed)
	assert.InDelta(t, 0.6*(wantD-0.5)/wantNew, d.Percent, 1e-9)
	assert.True(t, d.FirstDecision)

	msct, err := f.repo.Threshold(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, d.NewThreshold, msct)
	beginning, err := f.repo.Beginning(ctx)
	require.NoError(t, err)
	assert.True(t, beginning)
}

func TestController_SteadyStateUsesPreviousThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.activeWeek(t)
	require.NoError(t, f.repo.SaveController(ctx, 2.0, true))

	d, err := f.ctrl.Decide(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeDecision, d.Outcome)

	assert.Equal(t, 2.0, d.Threshold)
	assert.Equal(t, 2.0, d.ThresholdUsed)
	assert.False(t, d.FirstDecision)
	assert.InDelta(t, 0.6*(d.Demand-2.0)/2.0, d.Percent, 1e-12)
}

func TestController_NoDecisionOnLowVolume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t,
		&domain.DailyMetrics{Day: "2024-03-08", HolderCount: 10},
		&domain.DailyMetrics{Day: "2024-03-15", Volume: 125_000, HolderCount: 12, CirculatingBalance: 10},
	)

	d, err := f.ctrl.Decide(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDecision, d.Outcome)
	assert.Equal(t, ReasonLowVolume, d.Reason)
	assert.Zero(t, d.Percent)
	assert.Zero(t, f.store.Keys(), "threshold state is left unmodified")
}

func TestController_NoDecisionWithoutPriorHolders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &domain.DailyMetrics{Day: "2024-03-10", Volume: 500_000, HolderCount: 12, CirculatingBalance: 10})

	d, err := f.ctrl.Decide(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDecision, d.Outcome)
	assert.Equal(t, ReasonNoPriorHolders, d.Reason)
	assert.Zero(t, f.store.Keys())
}

func TestController_NoDecisionWithoutData(t *testing.T) {
	f := newFixture(t)

	d, err := f.ctrl.Decide(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDecision, d.Outcome)
	assert.Equal(t, ReasonNoData, d.Reason)
}

func TestEvaluate_ZeroDenominatorsStayNeutral(t *testing.T) {
	in := Inputs{HasData: true, HasPrior: true, Volume: 200_000}
	d := Evaluate(DefaultParams(), in, 0, true)

	assert.Equal(t, OutcomeDecision, d.Outcome)
	assert.Zero(t, d.VolumeRatio)
	assert.Zero(t, d.HolderGrowth)
	assert.Zero(t, d.Concentration)
	assert.Zero(t, d.Percent)
}
