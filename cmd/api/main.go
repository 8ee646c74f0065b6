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

	"github.com/dvloznov/paypal-pipeline/internal/api"
	"github.com/dvloznov/paypal-pipeline/internal/app"
	"github.com/dvloznov/paypal-pipeline/internal/jobs"
	"github.com/dvloznov/paypal-pipeline/internal/jobs/inmemory"
	"github.com/dvloznov/paypal-pipeline/internal/logger"
)

func main() {
	var (
		addr       = flag.String("addr", "", "Listen address (default API_ADDR)")
		configPath = flag.String("config", "", "YAML config file (or set PIPELINE_CONFIG)")
	)
	flag.Parse()

	ctx := context.Background()
	bootLog := logger.New()
	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *addr != "" {
		cfg.APIAddr = *addr
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := app.NewLogger(*cfg)

	a, err := app.New(ctx, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer a.Close()

	if cfg.APIJWTSecret == "" {
		log.Warn().Msg("API_JWT_SECRET not set - /api endpoints are unauthenticated")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore,
		inmemory.WithLogger(log),
		inmemory.WithDepthObserver(a.Metrics.SetJobsQueued),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, jobs.NewRunHandler(a.Runner(), log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	server := &http.Server{
		Addr: cfg.APIAddr,
		Handler: api.NewRouter(api.Deps{
			Publisher:   jobQueue,
			Store:       jobStore,
			Metrics:     a.Metrics.Handler(),
			Environment: cfg.Environment,
			JWTSecret:   cfg.APIJWTSecret,
			Log:         log,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.APIAddr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
