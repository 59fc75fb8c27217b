// Package controller implements the demand feedback controller that turns
// daily metrics into a supply adjustment percentage.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"supply-controller/internal/domain"
	"supply-controller/internal/state"
	"supply-controller/internal/storage"
)

// Outcome is the kind of result a controller invocation produced.
type Outcome string

const (
	OutcomeDecision   Outcome = "decision"
	OutcomeNoDecision Outcome = "no_decision"
)

// No-decision reasons.
const (
	ReasonNoData         = "no daily metrics on or before today"
	ReasonLowVolume      = "period volume at or below activity floor"
	ReasonNoPriorHolders = "no holder count one period ago"
)

// Inputs are the period aggregates the controller reads.
type Inputs struct {
	FromDay      string
	ToDay        string
	Volume       float64
	Circulating  float64
	Holders      int64
	PriorHolders int64
	HasPrior     bool
	HasData      bool
	Senders      int64
	Wallets      int64
}

// Decision is the full trace of one controller invocation.
type Decision struct {
	Outcome Outcome
	Reason  string
	Inputs  Inputs

	VolumeRatio   float64
	HolderGrowth  float64
	Concentration float64
	Demand        float64

	Threshold     float64 // msct at start of run
	NewThreshold  float64
	ThresholdUsed float64 // percent rule denominator
	HeatGap       float64
	Percent       float64

	// FirstDecision is set when this decision flipped the beginning flag.
	FirstDecision bool
}

// Evaluate runs the control law on in. It has no side effects.
func Evaluate(p Params, in Inputs, msct float64, beginning bool) *Decision {
	d := &Decision{Inputs: in, Threshold: msct, NewThreshold: msct}

	d.VolumeRatio = VolumeRatio(in.Volume, in.Circulating)
	d.HolderGrowth = HolderGrowth(in.Holders, in.PriorHolders)
	d.Concentration = Concentration(in.Senders, in.Wallets)
	d.Demand = p.DemandIndex(d.VolumeRatio, d.HolderGrowth, d.Concentration)

	switch {
	case !in.HasData:
		return d.noDecision(ReasonNoData)
	case in.Volume <= p.MinVolume:
		return d.noDecision(ReasonLowVolume)
	case !in.HasPrior:
		return d.noDecision(ReasonNoPriorHolders)
	}

	ph := phaseOf(beginning)
	d.Outcome = OutcomeDecision
	d.NewThreshold = p.AdaptiveThreshold(d.Demand, msct)
	d.HeatGap = HeatGap(d.Demand, msct)
	d.ThresholdUsed = ph.percentDenominator(msct, d.NewThreshold)
	d.Percent = p.PercentRule(d.HeatGap, d.ThresholdUsed)
	_, d.FirstDecision = ph.transition()
	return d
}

func (d *Decision) noDecision(reason string) *Decision {
	d.Outcome = OutcomeNoDecision
	d.Reason = reason
	return d
}

// Options configures a Controller.
type Options struct {
	Metrics storage.MetricsStore
	State   *state.Repository
	Params  Params
	Now     func() time.Time // Default: time.Now
	Logger  *zap.Logger
}

// Controller reads the metrics window and persists the adaptive threshold.
type Controller struct {
	metrics storage.MetricsStore
	state   *state.Repository
	params  Params
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a Controller.
func New(opts Options) *Controller {
	params := opts.Params
	if params.PeriodDays == 0 {
		params = DefaultParams()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		metrics: opts.Metrics,
		state:   opts.State,
		params:  params,
		now:     now,
		logger:  logger.Named("controller"),
	}
}

// Params returns the controller's constants.
func (c *Controller) Params() Params {
	return c.params
}

// Gather reads the period ending today (UTC) from the metrics store.
func (c *Controller) Gather(ctx context.Context) (Inputs, error) {
	today := domain.DayOf(c.now())
	from, err := domain.AddDays(today, -(c.params.PeriodDays - 1))
	if err != nil {
		return Inputs{}, err
	}
	prior, err := domain.AddDays(today, -c.params.PeriodDays)
	if err != nil {
		return Inputs{}, err
	}

	in := Inputs{FromDay: from, ToDay: today}

	records, err := c.metrics.GetRange(ctx, from, today)
	if err != nil {
		return Inputs{}, fmt.Errorf("read period %s..%s: %w", from, today, err)
	}
	for _, r := range records {
		in.Volume += r.Volume
		in.Senders += r.UniqueSenders
		in.Wallets += r.ActiveWallets
	}

	latest, err := c.metrics.GetLatestOnOrBefore(ctx, today)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return in, nil
	case err != nil:
		return Inputs{}, fmt.Errorf("read latest record: %w", err)
	}
	in.HasData = true
	in.Holders = latest.HolderCount
	in.Circulating = latest.CirculatingBalance

	before, err := c.metrics.GetLatestOnOrBefore(ctx, prior)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return Inputs{}, fmt.Errorf("read prior record: %w", err)
	default:
		in.HasPrior = true
		in.PriorHolders = before.HolderCount
	}
	return in, nil
}

// Decide gathers inputs, evaluates the control law and persists the new
// threshold (and the beginning flag on the first decision). A no-decision
// outcome leaves persisted state untouched.
func (c *Controller) Decide(ctx context.Context) (*Decision, error) {
	in, err := c.Gather(ctx)
	if err != nil {
		return nil, err
	}
	msct, err := c.state.Threshold(ctx, c.params.DefaultThreshold)
	if err != nil {
		return nil, fmt.Errorf("load threshold: %w", err)
	}
	beginning, err := c.state.Beginning(ctx)
	if err != nil {
		return nil, fmt.Errorf("load beginning flag: %w", err)
	}

	d := Evaluate(c.params, in, msct, beginning)
	if d.Outcome == OutcomeNoDecision {
		c.logger.Info("No decision",
			zap.String("reason", d.Reason),
			zap.String("from", in.FromDay),
			zap.String("to", in.ToDay),
			zap.Float64("volume", in.Volume),
			zap.Bool("has_prior", in.HasPrior))
		return d, nil
	}

	if err := c.state.SaveController(ctx, d.NewThreshold, d.FirstDecision); err != nil {
		return nil, err
	}

	c.logger.Info("Decision",
		zap.Float64("v_t", d.VolumeRatio),
		zap.Float64("h_t", d.HolderGrowth),
		zap.Float64("c_t", d.Concentration),
		zap.Float64("demand", d.Demand),
		zap.Float64("msct", d.Threshold),
		zap.Float64("new_msct", d.NewThreshold),
		zap.Float64("heat_gap", d.HeatGap),
		zap.Float64("percent", d.Percent),
		zap.Bool("first_decision", d.FirstDecision))
	return d, nil
}
