package jobs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
)

// Scheduler enqueues the daily run for yesterday at a fixed UTC hour.
type Scheduler struct {
	publisher Publisher
	hour      int
	now       func() time.Time
	log       zerolog.Logger
}

// NewScheduler creates a scheduler firing at hour (0-23) UTC.
func NewScheduler(publisher Publisher, hour int, log zerolog.Logger) *Scheduler {
	return &Scheduler{publisher: publisher, hour: hour, now: time.Now, log: log}
}

// NextRun returns the first time at hour:00 UTC strictly after now.
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is done, enqueueing one run per day.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := NextRun(s.now(), s.hour)
		s.log.Info().Time("next_run", next).Msg("Scheduled next daily run")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.Enqueue(ctx, next); err != nil {
			s.log.Error().Err(err).Msg("Failed to enqueue daily run")
		}
	}
}

// Enqueue publishes the run for the day before execution.
func (s *Scheduler) Enqueue(ctx context.Context, execution time.Time) (*RunJob, error) {
	job := &RunJob{
		ExecutionDate: civil.DateOf(execution.UTC()).String(),
		Trigger:       TriggerSchedule,
	}
	if err := s.publisher.PublishRun(ctx, job); err != nil {
		return nil, fmt.Errorf("Enqueue: %w", err)
	}
	s.log.Info().Str("job_id", job.JobID).Str("execution_date", job.ExecutionDate).Msg("Daily run enqueued")
	return job, nil
}
