// Package pipeline runs the daily extract, normalize, load and validate
// sequence as an explicit state machine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/gcs"
	"github.com/dvloznov/paypal-pipeline/internal/metrics"
	"github.com/dvloznov/paypal-pipeline/internal/normalize"
	"github.com/dvloznov/paypal-pipeline/internal/report"
	"github.com/rs/zerolog"
)

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets the sink. Without one, runs stop after normalization.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithObjectStore enables artifact uploads to cfg.GCSBucket.
func WithObjectStore(s gcs.ObjectStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithNotifiers adds notifiers called after every run.
func WithNotifiers(n ...Notifier) Option {
	return func(r *Runner) { r.notifiers = append(r.notifiers, n...) }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(r *Runner) { r.normalizer = n }
}

// WithWindowLocks shares a lock set between runners.
func WithWindowLocks(l *WindowLocks) Option {
	return func(r *Runner) { r.locks = l }
}

// Runner executes pipeline runs. It is safe for concurrent use; runs whose
// windows overlap are rejected with ErrWindowBusy.
type Runner struct {
	cfg        config.Config
	sources    Sources
	sink       Sink
	store      gcs.ObjectStore
	normalizer *normalize.Normalizer
	notifiers  []Notifier
	metrics    *metrics.Manager
	log        zerolog.Logger
	now        func() time.Time
	locks      *WindowLocks
}

// NewRunner creates a Runner for cfg.
func NewRunner(cfg config.Config, sources Sources, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		sources: sources,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.normalizer == nil {
		r.normalizer = normalize.New(normalize.WithLogger(r.log), normalize.WithClock(r.now))
	}
	if r.locks == nil {
		r.locks = NewWindowLocks()
	}
	return r
}

// Request describes one run.
type Request struct {
	// ExecutionDate defaults to now. The window defaults to the day before it.
	ExecutionDate time.Time
	Window        *domain.Window
	// Source overrides cfg.Source when set.
	Source string
	// DryRun extracts and normalizes but skips uploads, loads and run history.
	DryRun bool
}

// ComputeWindow returns the explicit window if given, otherwise the day
// before the execution time.
func ComputeWindow(execution time.Time, explicit *domain.Window) domain.Window {
	if explicit != nil {
		return *explicit
	}
	return domain.DayBefore(execution)
}

// Run executes one run and returns its summary. The error is non-nil only
// for ABORTED runs; the summary is always populated.
func (r *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	started := r.now().UTC()
	execution := req.ExecutionDate
	if execution.IsZero() {
		execution = started
	}

	st := &RunState{
		RunID:         report.RunID(started),
		ExecutionDate: civil.DateOf(execution.UTC()),
	}
	log := r.log.With().Str("run_id", st.RunID).Logger()

	stageStart := r.now()
	if err := r.validateEnvironment(ctx, req); err != nil {
		return r.finish(ctx, st, req, started, log, err), err
	}
	r.metrics.ObserveStage(StageValidateEnvironment, r.now().Sub(stageStart))

	st.Window = ComputeWindow(execution, req.Window)
	log = log.With().Str("window", st.Window.Key()).Logger()
	log.Info().Str("execution_date", st.ExecutionDate.String()).Bool("dry_run", req.DryRun).Msg("Starting pipeline run")

	if !r.locks.TryLock(st.Window) {
		err := fmt.Errorf("Run: %s: %w", st.Window, ErrWindowBusy)
		return r.finish(ctx, st, req, started, log, err), err
	}
	defer r.locks.Unlock(st.Window)

	mode := r.cfg.Source
	if req.Source != "" {
		mode = req.Source
	}
	src, fallbackAllowed, err := SelectSource(ctx, mode, r.sources, log)
	if err != nil {
		return r.finish(ctx, st, req, started, log, err), err
	}
	st.Source = src
	st.FallbackAllowed = fallbackAllowed
	log.Info().Str("source", src.Name()).Bool("fallback_allowed", fallbackAllowed).Msg("Data source selected")

	r.startRun(ctx, st, req, started, log)

	machine := NewMachine(r.steps(req, log), log)
	runErr := machine.Run(ctx, st, StateExtract)
	return r.finish(ctx, st, req, started, log, runErr), runErr
}

func (r *Runner) validateEnvironment(ctx context.Context, req Request) error {
	cfg := r.cfg
	if req.Source != "" {
		cfg.Source = req.Source
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validateEnvironment: %w", err)
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return fmt.Errorf("validateEnvironment: artifact dir: %w", err)
	}
	if r.sink != nil && !req.DryRun {
		if err := r.sink.Ensure(ctx); err != nil {
			return fmt.Errorf("validateEnvironment: %s sink: %w", r.sink.Name(), err)
		}
	}
	return nil
}

func (r *Runner) startRun(ctx context.Context, st *RunState, req Request, started time.Time, log zerolog.Logger) {
	rec, ok := r.sink.(RunRecorder)
	if !ok || req.DryRun {
		return
	}
	err := rec.StartRun(ctx, domain.RunRecord{
		RunID:         st.RunID,
		ExecutionDate: st.ExecutionDate,
		Window:        st.Window,
		DataSource:    st.DataSource(),
		StartedAt:     started,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record run start")
	}
}

// finish builds the summary and runs the stages that happen regardless of
// the outcome: metrics, run history, notify and cleanup.
func (r *Runner) finish(ctx context.Context, st *RunState, req Request, started time.Time, log zerolog.Logger, runErr error) Summary {
	if runErr != nil && len(st.Trail) == 0 {
		st.Trail = []State{StateAborted}
	}
	summary := newSummary(st, r.cfg.Environment, started, r.now().UTC(), runErr)

	r.metrics.RecordRun(summary.Status, summary.DataSource, summary.FinishedAt)

	// A run rejected for a busy window never wrote history.
	if rec, ok := r.sink.(RunRecorder); ok && !req.DryRun && !errors.Is(runErr, ErrWindowBusy) && st.Source != nil {
		if err := rec.FinishRun(ctx, summary.Record()); err != nil {
			log.Warn().Err(err).Msg("Failed to record run result")
		}
	}

	notifyStart := r.now()
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("Notification failed")
		}
	}
	r.metrics.ObserveStage(StageNotify, r.now().Sub(notifyStart))

	r.cleanup(st, log)

	ev := log.Info()
	if runErr != nil {
		ev = log.Error().Err(runErr)
	}
	ev.Str("status", summary.Status).
		Str("source", summary.DataSource).
		Int("transformed", summary.Metrics.TransformedTransactions).
		Int64("loaded_rows", summary.Metrics.LoadedRows).
		Str("duration", report.FormatDuration(summary.FinishedAt.Sub(started))).
		Msg("Pipeline run finished")
	return summary
}
