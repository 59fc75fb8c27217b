// Package main runs the supply controller: one-shot (run, ingest, decide)
// or on a cron schedule with an admin HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"supply-controller/internal/app"
	"supply-controller/internal/config"
	"supply-controller/internal/logging"
	"supply-controller/internal/observability"
	"supply-controller/internal/orchestrator"
	"supply-controller/internal/reporting"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	mode := flag.String("mode", "run", "Mode: run, ingest, decide or schedule")
	dryRun := flag.Bool("dry-run", false, "Compute the decision but never broadcast")
	useMemory := flag.Bool("use-memory", false, "Use in-memory state, metrics and lock")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Submitter.DryRun = true
	}
	if *useMemory {
		cfg.State.Backend = config.BackendMemory
		cfg.Metrics.Backend = config.BackendMemory
		cfg.Lock.Backend = config.BackendMemory
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		sig := <-sigCh
		logger.Info("Received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error("Received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, *mode, logger)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Controller failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, mode string, logger *zap.Logger) error {
	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer cleanup()

	client, err := app.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	a, err := app.New(cfg, stores, client, logger)
	if err != nil {
		return err
	}

	if mode == "schedule" {
		server, err := app.NewServer(app.ServerOptions{
			Runner:     a.Orchestrator,
			Generator:  reporting.NewGenerator(stores.Metrics, a.State, a.Controller),
			Schedule:   cfg.Server.Schedule,
			ListenAddr: cfg.Server.ListenAddr,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("schedule %q: %w", cfg.Server.Schedule, err)
		}
		return server.Serve(ctx)
	}

	m, err := orchestrator.ParseMode(mode)
	if err != nil {
		return err
	}

	logger.Info("Starting run",
		zap.String("mode", string(m)),
		zap.String("token", cfg.Token.Address),
		zap.Bool("dry_run", cfg.Submitter.DryRun))

	res, runErr := a.Orchestrator.Run(ctx, m)
	if runErr == nil {
		app.LogResult(logger, res)
	}

	// one-shot runs exit before a scrape
	pushCtx, pushCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer pushCancel()
	if err := observability.Push(pushCtx, cfg.Server.PushgatewayURL, "supply_controller"); err != nil {
		logger.Warn("Pushgateway", zap.Error(err))
	}
	return runErr
}

// loadEnvFile exports KEY=VALUE lines from ./.env without overriding the environment.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, strings.TrimSpace(value))
		}
	}
}
