// Package orchestrator runs one controller cycle.
// It coordinates: lease → ingestion → controller → submission
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"supply-controller/internal/chain"
	"supply-controller/internal/controller"
	"supply-controller/internal/ingestion"
	"supply-controller/internal/observability"
	"supply-controller/internal/storage"
)

// Mode selects which phases a run executes.
type Mode string

const (
	ModeRun    Mode = "run"    // ingest, decide, submit
	ModeIngest Mode = "ingest" // ingest only
	ModeDecide Mode = "decide" // decide and submit on existing metrics
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeRun, ModeIngest, ModeDecide:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Ingester runs one ingestion pass.
type Ingester interface {
	Run(ctx context.Context) (*ingestion.Result, error)
}

// Decider runs the controller once.
type Decider interface {
	Decide(ctx context.Context) (*controller.Decision, error)
}

// Submitter broadcasts a scaled supply adjustment.
type Submitter interface {
	Submit(ctx context.Context, percent *big.Int) (*chain.Submission, error)
}

// Options for creating Orchestrator.
type Options struct {
	Ingester   Ingester
	Controller Decider
	Submitter  Submitter

	// Locker guards the whole run. Nil runs without a lease.
	Locker   storage.Locker
	LockName string        // Default: "supply-controller"
	LockTTL  time.Duration // Default: 30m

	Logger *zap.Logger
}

// Orchestrator coordinates a run.
type Orchestrator struct {
	ingester   Ingester
	controller Decider
	submitter  Submitter
	locker     storage.Locker
	lockName   string
	lockTTL    time.Duration
	logger     *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		ingester:   opts.Ingester,
		controller: opts.Controller,
		submitter:  opts.Submitter,
		locker:     opts.Locker,
		lockName:   opts.LockName,
		lockTTL:    opts.LockTTL,
		logger:     opts.Logger,
	}
	if o.lockName == "" {
		o.lockName = "supply-controller"
	}
	if o.lockTTL == 0 {
		o.lockTTL = 30 * time.Minute
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Mode       Mode
	Ingestion  *ingestion.Result
	Decision   *controller.Decision
	Scaled     *big.Int
	Submission *chain.Submission
	// Skipped explains why a run stopped before submission, if it did.
	Skipped string
}

// Skip reasons.
const (
	SkipNothingToIngest = "no new blocks"
	SkipNoDecision      = "no decision"
	SkipZeroDecision    = "zero decision"
)

// Run executes the phases of mode under the run lease.
// Phases:
//  1. Acquire lease
//  2. Ingest bookmark+1..head (run, ingest)
//  3. Decide and persist the threshold (run, decide)
//  4. Scale and submit unless zero (run, decide)
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (result *RunResult, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		} else {
			observability.RecordSuccess(float64(time.Now().Unix()))
		}
		observability.RecordRun(string(mode), status, time.Since(start).Seconds())
	}()

	if o.locker != nil {
		lease, err := o.locker.Acquire(ctx, o.lockName, o.lockTTL)
		if err != nil {
			if errors.Is(err, storage.ErrLeaseHeld) {
				return nil, fmt.Errorf("another run is in progress: %w", err)
			}
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
		defer func() {
			// release must outlive a cancelled run context
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if rerr := lease.Release(releaseCtx); rerr != nil {
				o.logger.Warn("Lease release failed", zap.Error(rerr))
			}
		}()
	}

	result = &RunResult{Mode: mode}

	if mode == ModeRun || mode == ModeIngest {
		res, err := o.ingester.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("ingestion failed: %w", err)
		}
		result.Ingestion = res
		if res.NoOp {
			result.Skipped = SkipNothingToIngest
			return result, nil
		}
	}
	if mode == ModeIngest {
		return result, nil
	}

	decision, err := o.controller.Decide(ctx)
	if err != nil {
		return nil, fmt.Errorf("controller failed: %w", err)
	}
	result.Decision = decision
	observability.RecordDecision(string(decision.Outcome), decision.NewThreshold, decision.Demand, decision.Percent)

	if decision.Outcome == controller.OutcomeNoDecision {
		result.Skipped = SkipNoDecision
		return result, nil
	}

	result.Scaled = chain.ScaleDecision(decision.Percent)
	if result.Scaled.Sign() == 0 {
		result.Skipped = SkipZeroDecision
		o.logger.Info("Zero decision, nothing to submit")
		return result, nil
	}

	sub, err := o.submitter.Submit(ctx, result.Scaled)
	if err != nil {
		observability.RecordTransaction("error")
		return nil, fmt.Errorf("submit failed: %w", err)
	}
	result.Submission = sub
	if sub.DryRun {
		observability.RecordTransaction("dry_run")
	} else {
		observability.RecordTransaction("sent")
	}

	o.logger.Info("Run completed",
		zap.String("mode", string(mode)),
		zap.Float64("percent", decision.Percent),
		zap.String("scaled", result.Scaled.String()),
		zap.String("tx", sub.TxHash.Hex()),
		zap.Bool("dry_run", sub.DryRun))
	return result, nil
}
