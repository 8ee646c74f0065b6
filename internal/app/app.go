// Package app wires configuration into the components shared by the
// binaries: logger, metrics, data sources, sink, object store and notifiers.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/fallback"
	"github.com/dvloznov/paypal-pipeline/internal/gcsuploader"
	infraBQ "github.com/dvloznov/paypal-pipeline/internal/infra/bigquery"
	"github.com/dvloznov/paypal-pipeline/internal/infra/sqlite"
	"github.com/dvloznov/paypal-pipeline/internal/logger"
	"github.com/dvloznov/paypal-pipeline/internal/metrics"
	"github.com/dvloznov/paypal-pipeline/internal/notify"
	"github.com/dvloznov/paypal-pipeline/internal/paypal"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/rs/zerolog"
)

// LoadConfig loads configuration. A non-empty path overrides PIPELINE_CONFIG.
func LoadConfig(ctx context.Context, path string) (*config.Config, error) {
	if path != "" {
		if err := os.Setenv(config.ConfigFileEnv, path); err != nil {
			return nil, fmt.Errorf("LoadConfig: %w", err)
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Config) zerolog.Logger {
	return logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}).
		With().Str("environment", cfg.Environment).Logger()
}

// App holds the wired components. Sink and Store are nil when disabled.
type App struct {
	Config    config.Config
	Log       zerolog.Logger
	Metrics   *metrics.Manager
	Sources   pipeline.Sources
	Sink      pipeline.Sink
	Store     *gcsuploader.Store
	Notifiers []pipeline.Notifier

	closers []func() error
}

// New wires every component cfg enables. Call Close when done.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.NewManager(metrics.WithConstLabels(map[string]string{"environment": cfg.Environment})),
	}

	a.Sources = NewSources(cfg, a.Metrics, log)

	sink, closeSink, err := OpenSink(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Sink = sink
	if closeSink != nil {
		a.closers = append(a.closers, closeSink)
	}

	if cfg.GCSBucket != "" {
		store, err := gcsuploader.NewStore(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	}

	a.Notifiers = []pipeline.Notifier{notify.NewLogNotifier(log)}
	if cfg.NotionEnabled() {
		a.Notifiers = append(a.Notifiers, notify.NewNotionNotifier(notify.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID, log))
	}

	log.Info().Fields(cfg.Summary()).Msg("Configuration loaded")
	return a, nil
}

// NewSources builds the synthetic source and, when credentials are set, the
// remote source.
func NewSources(cfg config.Config, m *metrics.Manager, log zerolog.Logger) pipeline.Sources {
	sources := pipeline.Sources{Synthetic: fallback.NewSource(cfg.FallbackCount)}
	if !cfg.HasCredentials() {
		return sources
	}

	client := paypal.NewClient(paypal.ClientConfig{
		BaseURL:      cfg.BaseURL(),
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
	}, paypal.WithLogger(log))

	sources.Remote = paypal.NewRemoteSource(client,
		paypal.FetchOptions{PageSize: cfg.PageSize},
		paypal.WithMaxPages(cfg.MaxPages),
		paypal.WithObserver(m),
		paypal.WithExtractorLogger(log),
	)
	return sources
}

// BigQueryConfig maps cfg onto the warehouse sink configuration.
func BigQueryConfig(cfg config.Config) infraBQ.Config {
	return infraBQ.Config{
		ProjectID:   cfg.GCPProjectID,
		Dataset:     cfg.BQDataset,
		Table:       cfg.BQTable,
		Location:    cfg.BQLocation,
		Environment: cfg.Environment,
	}
}

// OpenSink opens the configured sink. It returns a nil sink for "none".
func OpenSink(ctx context.Context, cfg config.Config, log zerolog.Logger) (pipeline.Sink, func() error, error) {
	switch cfg.Sink {
	case config.SinkBigQuery:
		s, err := infraBQ.NewSink(ctx, BigQueryConfig(cfg), log)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenSink: %w", err)
		}
		return s, s.Close, nil
	case config.SinkSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenSink: %w", err)
		}
		return s, s.Close, nil
	case config.SinkNone, "":
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("OpenSink: %w: unknown sink %q", config.ErrInvalidConfig, cfg.Sink)
}

// Runner returns a pipeline runner over the wired components.
func (a *App) Runner(opts ...pipeline.Option) *pipeline.Runner {
	base := []pipeline.Option{
		pipeline.WithLogger(a.Log),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithNotifiers(a.Notifiers...),
	}
	if a.Sink != nil {
		base = append(base, pipeline.WithSink(a.Sink))
	}
	if a.Store != nil {
		base = append(base, pipeline.WithObjectStore(a.Store))
	}
	return pipeline.NewRunner(a.Config, a.Sources, append(base, opts...)...)
}

// Close releases the sink and object store clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
