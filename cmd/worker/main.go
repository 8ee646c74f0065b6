package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/app"
	"github.com/dvloznov/paypal-pipeline/internal/jobs"
	"github.com/dvloznov/paypal-pipeline/internal/jobs/inmemory"
	"github.com/dvloznov/paypal-pipeline/internal/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file (or set PIPELINE_CONFIG)")
		metricsAddr = flag.String("metrics-addr", ":9090", "Address serving /metrics, empty to disable")
		runNow      = flag.Bool("run-now", false, "Enqueue yesterday's run immediately at startup")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootLog := logger.New()
	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := app.NewLogger(*cfg)
	log.Info().Int("schedule_hour", cfg.ScheduleHour).Msg("Starting worker service")

	a, err := app.New(ctx, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore,
		inmemory.WithLogger(log),
		inmemory.WithDepthObserver(a.Metrics.SetJobsQueued),
	)

	if err := jobQueue.Start(ctx, jobs.NewRunHandler(a.Runner(), log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	scheduler := jobs.NewScheduler(jobQueue, cfg.ScheduleHour, log)
	if *runNow {
		if _, err := scheduler.Enqueue(ctx, time.Now()); err != nil {
			log.Error().Err(err).Msg("Failed to enqueue startup run")
		}
	}
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Scheduler stopped")
		}
	}()

	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: a.Metrics.Handler(), ReadTimeout: 15 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server forced to shutdown")
		}
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
