package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/dvloznov/paypal-pipeline/internal/stats"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func (r *Runner) steps(req Request, log zerolog.Logger) map[State]PipelineStep {
	return map[State]PipelineStep{
		StateExtract:       StepFunc(func(ctx context.Context, st *RunState) (State, error) { return r.extract(ctx, st, req, log) }),
		StateExtractFailed: StepFunc(func(ctx context.Context, st *RunState) (State, error) { return r.extractFailed(st, log) }),
		StateFallback:      StepFunc(func(ctx context.Context, st *RunState) (State, error) { return r.fallback(ctx, st, req, log) }),
		StateNormalize:     StepFunc(func(ctx context.Context, st *RunState) (State, error) { return r.normalize(ctx, st, req, log) }),
		StateLoad:          StepFunc(func(ctx context.Context, st *RunState) (State, error) { return r.load(ctx, st, req, log) }),
		StateLoadFailed:    StepFunc(func(ctx context.Context, st *RunState) (State, error) { return r.loadFailed(st, log) }),
		StateDegradedReport: StepFunc(func(ctx context.Context, st *RunState) (State, error) {
			return r.degradedReport(st, log)
		}),
		StateValidate: StepFunc(func(ctx context.Context, st *RunState) (State, error) { return r.validate(ctx, st, log) }),
	}
}

func (r *Runner) extract(ctx context.Context, st *RunState, req Request, log zerolog.Logger) (State, error) {
	start := r.now()
	raws, err := st.Source.Fetch(ctx, st.Window)
	r.metrics.ObserveStage(StageExtract, r.now().Sub(start))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return StateAborted, fmt.Errorf("extract: %w", ctxErr)
	}

	switch {
	case err != nil && len(raws) > 0:
		log.Warn().Err(err).Int("records", len(raws)).Msg("Extraction stopped early, continuing with partial records")
		st.addError(StageExtract, err)
	case err != nil:
		if st.FallbackAllowed {
			st.extractErr = err
			return StateExtractFailed, nil
		}
		return StateAborted, fmt.Errorf("extract: %s: %w: %w", st.Source.Name(), ErrSourceUnavailable, err)
	case len(raws) == 0 && st.FallbackAllowed:
		st.extractErr = errors.New("extraction returned no records")
		return StateExtractFailed, nil
	}

	st.Raw = raws
	r.metrics.RecordExtracted(len(raws))
	log.Info().Str("stage", StageExtract).Str("source", st.Source.Name()).Int("records", len(raws)).Msg("Extraction complete")
	r.writeRaw(ctx, st, req, log)
	return StateNormalize, nil
}

func (r *Runner) extractFailed(st *RunState, log zerolog.Logger) (State, error) {
	if st.extractErr == nil {
		st.extractErr = errors.New("extraction failed")
	}
	log.Warn().Err(st.extractErr).Str("source", st.DataSource()).Msg("Extraction failed, falling back to synthetic data")
	st.addError(StageExtract, st.extractErr)
	if r.sources.Synthetic == nil || st.FallbackUsed {
		return StateAborted, fmt.Errorf("extract: %w: %w", ErrSourceUnavailable, st.extractErr)
	}
	return StateFallback, nil
}

func (r *Runner) fallback(ctx context.Context, st *RunState, req Request, log zerolog.Logger) (State, error) {
	raws, err := r.sources.Synthetic.Fetch(ctx, st.Window)
	if err != nil {
		return StateAborted, fmt.Errorf("fallback: %w", err)
	}
	st.Source = r.sources.Synthetic
	st.FallbackUsed = true
	st.FallbackAllowed = false
	st.Raw = raws
	r.metrics.RecordExtracted(len(raws))
	log.Info().Str("stage", StageExtract).Str("source", st.Source.Name()).Int("records", len(raws)).Msg("Generated fallback batch")
	r.writeRaw(ctx, st, req, log)
	return StateNormalize, nil
}

func (r *Runner) normalize(ctx context.Context, st *RunState, req Request, log zerolog.Logger) (State, error) {
	start := r.now()
	res, err := r.normalizer.Batch(ctx, st.Raw)
	r.metrics.ObserveStage(StageNormalize, r.now().Sub(start))
	if err != nil {
		return StateAborted, fmt.Errorf("normalize: %w", err)
	}
	st.Normalized = res
	r.metrics.RecordNormalized(len(res.Transactions), len(res.Failures))

	log.Info().
		Str("stage", StageNormalize).
		Int("records", len(res.Transactions)).
		Int("parse_failures", len(res.Failures)).
		Int("validation_findings", len(res.Findings)).
		Float64("success_rate", res.SuccessRate()).
		Msg("Normalization complete")
	for _, f := range res.Failures {
		log.Warn().Str("transaction_id", f.TransactionID).Str("error", f.Error).Msg("Record failed to normalize")
	}

	if len(res.Transactions) == 0 {
		if len(st.Raw) > 0 && st.FallbackAllowed && !st.FallbackUsed {
			st.extractErr = fmt.Errorf("all %d records failed to normalize", len(st.Raw))
			return StateExtractFailed, nil
		}
		return StateAborted, fmt.Errorf("normalize: %w: %d raw records, %d parse failures", ErrNoRecords, len(st.Raw), len(res.Failures))
	}

	r.writeParsed(ctx, st, req, log)
	return StateLoad, nil
}

// load runs the sink load and the batch statistics concurrently.
func (r *Runner) load(ctx context.Context, st *RunState, req Request, log zerolog.Logger) (State, error) {
	start := r.now()
	txs := st.Normalized.Transactions

	var (
		g       errgroup.Group
		summary stats.Statistics
		res     domain.LoadResult
		loadErr error
		skipped = r.sink == nil || req.DryRun
	)
	g.Go(func() error {
		summary = stats.Summarize(txs, len(st.Normalized.Failures), len(st.Normalized.Findings))
		return nil
	})
	if !skipped {
		g.Go(func() error {
			res, loadErr = r.sink.Load(ctx, domain.LoadRequest{
				Window:           st.Window,
				LocalPath:        st.ParsedPath,
				URI:              st.ParsedURI,
				Transactions:     txs,
				WriteDisposition: r.cfg.WriteDisposition,
			})
			return nil
		})
	}
	_ = g.Wait()
	r.metrics.ObserveStage(StageLoad, r.now().Sub(start))
	st.Stats = &summary

	if skipped {
		st.Load = &domain.LoadResult{State: domain.LoadStateSkipped}
		log.Info().Str("stage", StageLoad).Bool("dry_run", req.DryRun).Msg("Load skipped")
		return StateDone, nil
	}
	if loadErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StateAborted, fmt.Errorf("load: %w", ctxErr)
		}
		st.loadErr = loadErr
		return StateLoadFailed, nil
	}

	st.Load = &res
	r.metrics.RecordLoaded(res.OutputRows)
	log.Info().
		Str("stage", StageLoad).
		Str("sink", r.sink.Name()).
		Str("job_id", res.JobID).
		Int64("output_rows", res.OutputRows).
		Int64("updated_rows", res.UpdatedRows).
		Msg("Load complete")

	if n, err := r.sink.CreateViews(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create views")
	} else {
		log.Debug().Int("views", n).Msg("Views created")
	}
	return StateValidate, nil
}

func (r *Runner) loadFailed(st *RunState, log zerolog.Logger) (State, error) {
	log.Error().Err(st.loadErr).Str("sink", r.sink.Name()).Msg("Load failed, reporting degraded result")
	st.addError(StageLoad, st.loadErr)
	return StateDegradedReport, nil
}

// degradedReport derives best-effort load numbers from the normalized batch.
// Quality is not computed because the sink does not hold this batch.
func (r *Runner) degradedReport(st *RunState, log zerolog.Logger) (State, error) {
	res := domain.DegradedLoadResult(len(st.Normalized.Transactions), st.loadErr)
	st.Load = &res
	st.Degraded = true
	log.Warn().Int64("output_rows", res.OutputRows).Msg("Degraded load result recorded")
	return StateDone, nil
}

func (r *Runner) validate(ctx context.Context, st *RunState, log zerolog.Logger) (State, error) {
	start := r.now()
	rep := quality.Validate(ctx, r.sink, ValidationDate(st.Window), log)
	r.metrics.ObserveStage(StageQualityCheck, r.now().Sub(start))
	st.Quality = &rep
	r.metrics.SetQualityScore(rep.DataQuality.Total)

	names := make([]string, 0, len(rep.Errors))
	for name := range rep.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st.Errors = append(st.Errors, fmt.Sprintf("%s: %s: %s", StageQualityCheck, name, rep.Errors[name]))
	}
	return StateDone, nil
}

// ValidationDate is the date filter for quality checks: the day itself for a
// single-day window, nil (whole table) otherwise.
func ValidationDate(w domain.Window) *civil.Date {
	if w.Start == w.End {
		d := w.Start
		return &d
	}
	return nil
}
