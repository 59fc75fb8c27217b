package reporting

import (
	"context"
	"fmt"
	"time"

	"supply-controller/internal/controller"
	"supply-controller/internal/domain"
	"supply-controller/internal/state"
	"supply-controller/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	metrics    storage.MetricsStore
	state      *state.Repository
	controller *controller.Controller
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. ctrl may be nil to skip the preview.
func NewGenerator(metrics storage.MetricsStore, repo *state.Repository, ctrl *controller.Controller) *Generator {
	return &Generator{
		metrics:    metrics,
		state:      repo,
		controller: ctrl,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate reports the last days days, ending today.
func (g *Generator) Generate(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive: %w", storage.ErrInvalidInput)
	}

	now := g.now()
	to := domain.DayOf(now)
	from, err := domain.AddDays(to, -(days - 1))
	if err != nil {
		return nil, err
	}

	records, err := g.metrics.GetRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}

	st, err := g.controllerState(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: now,
		FromDay:     from,
		ToDay:       to,
		Days:        records,
		Summary:     summarize(records),
		State:       st,
	}

	if g.controller != nil {
		in, err := g.controller.Gather(ctx)
		if err != nil {
			return nil, err
		}
		report.Preview = controller.Evaluate(g.controller.Params(), in, st.Threshold, st.Beginning)
	}
	return report, nil
}

func (g *Generator) controllerState(ctx context.Context) (ControllerState, error) {
	var st ControllerState
	var err error

	if st.Bookmark, st.HasBookmark, err = g.state.Bookmark(ctx); err != nil {
		return st, err
	}
	def := controller.DefaultParams().DefaultThreshold
	if g.controller != nil {
		def = g.controller.Params().DefaultThreshold
	}
	if st.Threshold, err = g.state.Threshold(ctx, def); err != nil {
		return st, err
	}
	if st.Beginning, err = g.state.Beginning(ctx); err != nil {
		return st, err
	}
	open, err := g.state.OpenDay(ctx)
	if err != nil {
		return st, err
	}
	if open != nil {
		st.OpenDay = open.Day
	}
	return st, nil
}

func summarize(records []*domain.DailyMetrics) Summary {
	s := Summary{DayCount: len(records)}
	for _, r := range records {
		s.TotalVolume += r.Volume
		s.Minted += r.Minted
		s.Burned += r.Burned
		s.Contraction += r.CirculationContraction
	}
	if n := len(records); n > 0 {
		last := records[n-1]
		s.LatestHolderCount = last.HolderCount
		s.TotalSupply = last.TotalSupply
		s.CirculatingBalance = last.CirculatingBalance
		s.TreasuryBalance = last.TreasuryBalance
	}
	return s
}
