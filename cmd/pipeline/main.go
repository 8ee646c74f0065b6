package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/app"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/logger"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
)

func main() {
	var (
		date          = flag.String("date", "", "Execution date YYYY-MM-DD; the run covers the day before (default today)")
		start         = flag.String("start", "", "Window start date YYYY-MM-DD (overrides -date)")
		end           = flag.String("end", "", "Window end date YYYY-MM-DD (defaults to -start)")
		source        = flag.String("source", "", "Data source: auto, remote or synthetic (default from config)")
		sink          = flag.String("sink", "", "Sink: bigquery, sqlite or none (default from config)")
		configPath    = flag.String("config", "", "YAML config file (or set PIPELINE_CONFIG)")
		dryRun        = flag.Bool("dry-run", false, "Extract and normalize only; skip uploads, loads and run history")
		keepArtifacts = flag.Bool("keep-artifacts", false, "Keep the local raw and parsed files")
		jsonOut       = flag.Bool("json", false, "Print the run summary as JSON")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLog := logger.New()
	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *sink != "" {
		cfg.Sink = *sink
	}
	if *keepArtifacts {
		cfg.KeepArtifacts = true
	}

	log := app.NewLogger(*cfg)
	ctx = logger.WithContext(ctx, log)

	req, err := buildRequest(*date, *start, *end, *source, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid run flags")
	}

	a, err := app.New(ctx, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer a.Close()

	summary, runErr := a.Runner().Run(ctx, req)

	if *jsonOut {
		out, err := summary.JSON()
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode summary")
		} else {
			fmt.Println(string(out))
		}
	} else {
		fmt.Print(summary.Text())
	}

	if runErr != nil {
		a.Close()
		os.Exit(1)
	}
}

// buildRequest turns the date flags into a run request. An empty date means
// the runner picks today as the execution date.
func buildRequest(date, start, end, source string, dryRun bool) (pipeline.Request, error) {
	req := pipeline.Request{Source: source, DryRun: dryRun}
	if date != "" {
		d, err := civil.ParseDate(date)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("invalid -date: %w", err)
		}
		req.ExecutionDate = d.In(time.UTC)
	}
	if start == "" {
		if end != "" {
			return pipeline.Request{}, errors.New("-end requires -start")
		}
		return req, nil
	}
	w, err := domain.ParseWindow(start, end)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("invalid window: %w", err)
	}
	req.Window = &w
	return req, nil
}
