package app

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"supply-controller/internal/chain"
	"supply-controller/internal/config"
	"supply-controller/internal/controller"
	"supply-controller/internal/ingestion"
	"supply-controller/internal/orchestrator"
	"supply-controller/internal/state"
)

// App is a fully wired controller process.
type App struct {
	Config       *config.Config
	Stores       *Stores
	State        *state.Repository
	Controller   *controller.Controller
	Orchestrator *orchestrator.Orchestrator
}

// New wires an App on top of already opened stores. client is usually a
// *chain.HTTPClient from Dial; tests pass chain/stub.
func New(cfg *config.Config, stores *Stores, client chain.Client, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := config.Address(cfg.Token.Address)
	treasury := config.Address(cfg.Token.Treasury)
	repo := state.NewRepository(stores.State)

	ing, err := ingestion.New(ingestion.Options{
		Client:             client,
		State:              repo,
		Metrics:            stores.Metrics,
		Token:              token,
		Issuer:             config.Address(cfg.Token.Issuer),
		Treasury:           treasury,
		Funding:            config.Address(cfg.Token.Funding),
		StartBlock:         cfg.Ingestion.StartBlock,
		SupplyFromTreasury: cfg.Token.SupplyFromTreasury,
		Fetcher: ingestion.FetcherOptions{
			TargetSpan:  cfg.Ingestion.TargetSpan,
			GrowAfter:   cfg.Ingestion.GrowAfter,
			BackoffBase: cfg.Ingestion.BackoffBase,
			MaxRetries:  cfg.Ingestion.MaxRetries,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	ctrl := controller.New(controller.Options{
		Metrics: stores.Metrics,
		State:   repo,
		Params:  cfg.Controller,
		Logger:  logger,
	})

	var chainID *big.Int
	if cfg.Submitter.ChainID != 0 {
		chainID = big.NewInt(cfg.Submitter.ChainID)
	}
	sub, err := chain.NewSubmitter(chain.SubmitterOptions{
		Client:     client,
		Wallet:     treasury,
		PrivateKey: cfg.Submitter.PrivateKey,
		ChainID:    chainID,
		GasLimit:   cfg.Submitter.GasLimit,
		GasPrice:   big.NewInt(cfg.Submitter.GasPrice),
		DryRun:     cfg.Submitter.DryRun,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("submitter: %w", err)
	}

	orch := orchestrator.New(orchestrator.Options{
		Ingester:   ing,
		Controller: ctrl,
		Submitter:  sub,
		Locker:     stores.Locker,
		LockName:   cfg.Lock.Name,
		LockTTL:    cfg.Lock.TTL,
		Logger:     logger,
	})

	return &App{
		Config:       cfg,
		Stores:       stores,
		State:        repo,
		Controller:   ctrl,
		Orchestrator: orch,
	}, nil
}

// Dial connects to the configured RPC endpoint.
func Dial(ctx context.Context, cfg *config.Config) (*chain.HTTPClient, error) {
	return chain.Dial(ctx, cfg.Chain.RPCURL,
		chain.WithTimeout(cfg.Chain.Timeout),
		chain.WithRateLimit(cfg.Chain.RateLimit, cfg.Chain.RateBurst),
	)
}

// LogResult writes the outcome of a run at info level.
func LogResult(logger *zap.Logger, res *orchestrator.RunResult) {
	fields := []zap.Field{zap.String("mode", string(res.Mode))}
	if res.Ingestion != nil {
		fields = append(fields,
			zap.Uint64("from_block", res.Ingestion.FromBlock),
			zap.Uint64("to_block", res.Ingestion.ToBlock),
			zap.Int("events", res.Ingestion.Events),
			zap.Int("records", len(res.Ingestion.Records)))
	}
	if res.Decision != nil {
		fields = append(fields,
			zap.String("outcome", string(res.Decision.Outcome)),
			zap.Float64("percent", res.Decision.Percent))
	}
	if res.Scaled != nil {
		fields = append(fields, zap.String("scaled", res.Scaled.String()))
	}
	if res.Submission != nil {
		fields = append(fields,
			zap.String("tx", res.Submission.TxHash.Hex()),
			zap.Bool("dry_run", res.Submission.DryRun))
	}
	if res.Skipped != "" {
		fields = append(fields, zap.String("skipped", res.Skipped))
	}
	logger.Info("Run complete", fields...)
}
