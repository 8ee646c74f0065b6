package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/rs/zerolog"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Summary, error)
}

// NewRunHandler returns a JobHandler that runs the pipeline for each
// RunJob. DONE and DEGRADED runs succeed; an ABORTED run returns its error so
// the queue retries it, except for configuration errors and malformed jobs.
func NewRunHandler(runner Runner, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job Job) error {
		run, ok := job.(*RunJob)
		if !ok {
			return Permanent(fmt.Errorf("RunHandler: unsupported job type %q", job.GetType()))
		}

		req, err := run.Request()
		if err != nil {
			return Permanent(fmt.Errorf("RunHandler: %w", err))
		}

		summary, err := runner.Run(ctx, req)
		run.RunID = summary.RunID
		run.Summary = &summary

		log.Info().
			Str("job_id", run.JobID).
			Str("run_id", summary.RunID).
			Str("status", summary.Status).
			Msg("Run job finished")

		if err == nil {
			return nil
		}
		if errors.Is(err, config.ErrInvalidConfig) {
			return Permanent(fmt.Errorf("RunHandler: %w", err))
		}
		return fmt.Errorf("RunHandler: %w", err)
	}
}
