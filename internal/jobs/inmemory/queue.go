package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/jobs"
	"github.com/dvloznov/paypal-pipeline/internal/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

const defaultWorkers = 2

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBackoff sets the delay policy between retries of a failed job.
// MaxAttempts is ignored; the job's MaxRetries bounds retries.
func WithBackoff(p retry.Policy) Option {
	return func(q *Queue) { q.backoff = p }
}

// WithDepthObserver is called with the number of waiting jobs whenever it
// changes.
func WithDepthObserver(fn func(int)) Option {
	return func(q *Queue) { q.observeDepth = fn }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is an in-memory run job publisher and consumer backed by a
// buffered channel. It is safe for concurrent use.
type Queue struct {
	jobChan   chan *jobs.RunJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers      int
	backoff      retry.Policy
	observeDepth func(int)
	log          zerolog.Logger
	now          func() time.Time

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
}

// NewQueue creates a queue holding up to bufferSize waiting jobs.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:   make(chan *jobs.RunJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   defaultWorkers,
		backoff:   retry.Policy{BaseDelay: 30 * time.Second, Multiplier: 2},
		log:       zerolog.Nop(),
		now:       time.Now,
		timers:    make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishRun implements the Publisher interface.
func (q *Queue) PublishRun(ctx context.Context, job *jobs.RunJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	queued := *job
	return q.enqueue(ctx, &queued)
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.RunJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishRun: save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		q.reportDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	return len(q.jobChan)
}

func (q *Queue) reportDepth() {
	if q.observeDepth != nil {
		q.observeDepth(len(q.jobChan))
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.reportDepth()
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one attempt. Failed attempts are re-published after a
// backoff until MaxRetries is reached or the error is permanent.
func (q *Queue) processJob(ctx context.Context, job *jobs.RunJob, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Int("attempt", job.RetryCount+1).Logger()

	job.Status = jobs.JobStatusRunning
	started := q.now().UTC()
	job.StartedAt = &started
	job.CompletedAt = nil
	q.save(ctx, job, log)

	err := handler(ctx, job)

	completed := q.now().UTC()
	job.CompletedAt = &completed

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Str("run_id", job.RunID).Msg("Run job completed")
	case jobs.IsPermanent(err) || job.RetryCount >= job.MaxRetries:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Msg("Run job failed")
	default:
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		job.Error = err.Error()
		delay := q.retryDelay(job.RetryCount)
		log.Warn().Err(err).Dur("backoff", delay).Msg("Run job failed, retrying")
		q.save(ctx, job, log)
		q.scheduleRetry(job, delay)
		return
	}

	q.save(ctx, job, log)
}

// retryDelay is the backoff before retry n (1-based).
func (q *Queue) retryDelay(n int) time.Duration {
	p := q.backoff
	p.MaxAttempts = n + 1
	delays := p.Delays()
	if len(delays) == 0 {
		return 0
	}
	return delays[len(delays)-1]
}

func (q *Queue) scheduleRetry(job *jobs.RunJob, delay time.Duration) {
	next := *job
	next.Status = jobs.JobStatusPending
	next.StartedAt = nil
	next.CompletedAt = nil

	q.timersMu.Lock()
	defer q.timersMu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.timersMu.Lock()
		delete(q.timers, t)
		q.timersMu.Unlock()

		if err := q.enqueue(context.Background(), &next); err != nil {
			q.log.Warn().Err(err).Str("job_id", next.JobID).Msg("Could not re-publish run job")
		}
	})
	q.timers[t] = struct{}{}
}

func (q *Queue) save(ctx context.Context, job *jobs.RunJob, log zerolog.Logger) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Could not save run job")
	}
}

// Stop implements the Consumer interface. Pending retries are cancelled and
// in-flight jobs are awaited until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	q.timersMu.Lock()
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	q.timersMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
