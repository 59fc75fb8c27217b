package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"supply-controller/internal/app"
	"supply-controller/internal/config"
	"supply-controller/internal/controller"
	"supply-controller/internal/logging"
	"supply-controller/internal/reporting"
	"supply-controller/internal/state"
)

func main() {
	// Parse flags
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	days := flag.Int("days", 14, "Number of days to report, ending today (UTC)")
	format := flag.String("format", "markdown", "Output format: markdown or csv")
	output := flag.String("output", "", "Write to this file instead of stdout")
	preview := flag.Bool("preview", true, "Include what the controller would decide now (markdown only)")
	flag.Parse()

	ctx := context.Background()

	if *format != "markdown" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q (markdown|csv)\n", *format)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// the report never takes the run lease
	cfg.Lock.Backend = config.BackendNone

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening stores: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	repo := state.NewRepository(stores.State)
	var ctrl *controller.Controller
	if *preview {
		ctrl = controller.New(controller.Options{
			Metrics: stores.Metrics,
			State:   repo,
			Params:  cfg.Controller,
			Logger:  logger,
		})
	}

	report, err := reporting.NewGenerator(stores.Metrics, repo, ctrl).Generate(ctx, *days)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	var out string
	if *format == "csv" {
		out = reporting.RenderCSV(report.Days)
	} else {
		out = reporting.RenderMarkdown(report)
	}

	if *output == "" {
		fmt.Print(out)
		return
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Report written to %s\n", *output)
}
