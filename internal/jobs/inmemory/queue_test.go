package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/jobs"
	"github.com/dvloznov/paypal-pipeline/internal/retry"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.RunJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), id)
	t.Fatalf("job %s never reached %s, last state %+v", id, want, job)
	return nil
}

func startQueue(t *testing.T, handler jobs.JobHandler, opts ...Option) (*Queue, *Store) {
	t.Helper()
	store := NewStore()
	opts = append([]Option{WithBackoff(retry.Policy{})}, opts...)
	q := NewQueue(10, store, opts...)
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, store
}

func TestQueue_CompletesJob(t *testing.T) {
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		job.(*jobs.RunJob).RunID = "20250731_020000"
		return nil
	})

	job := &jobs.RunJob{StartDate: "2025-07-30", Trigger: jobs.TriggerAPI}
	if err := q.PublishRun(context.Background(), job); err != nil {
		t.Fatalf("PublishRun failed: %v", err)
	}
	if job.JobID == "" || job.MaxRetries != jobs.DefaultMaxRetries || job.CreatedAt.IsZero() {
		t.Errorf("defaults not filled: %+v", job)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RunID != "20250731_020000" || done.StartedAt == nil || done.CompletedAt == nil || done.Error != "" {
		t.Errorf("unexpected completed job: %+v", done)
	}
}

func TestQueue_RetriesUntilMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("source unavailable")
	})

	job := &jobs.RunJob{MaxRetries: 2}
	if err := q.PublishRun(context.Background(), job); err != nil {
		t.Fatalf("PublishRun failed: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if failed.RetryCount != 2 || failed.Error != "source unavailable" {
		t.Errorf("unexpected failed job: %+v", failed)
	}
}

func TestQueue_RetryThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("window busy")
		}
		return nil
	})

	job := &jobs.RunJob{}
	if err := q.PublishRun(context.Background(), job); err != nil {
		t.Fatalf("PublishRun failed: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RetryCount != 1 || done.Error != "" {
		t.Errorf("unexpected job: %+v", done)
	}
}

func TestQueue_PermanentErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return jobs.Permanent(errors.New("invalid config"))
	})

	job := &jobs.RunJob{}
	if err := q.PublishRun(context.Background(), job); err != nil {
		t.Fatalf("PublishRun failed: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if attempts.Load() != 1 || failed.RetryCount != 0 {
		t.Errorf("attempts = %d, retries = %d", attempts.Load(), failed.RetryCount)
	}
}

func TestQueue_DepthObserver(t *testing.T) {
	var mu sync.Mutex
	var depths []int
	store := NewStore()
	q := NewQueue(10, store, WithDepthObserver(func(n int) {
		mu.Lock()
		depths = append(depths, n)
		mu.Unlock()
	}))
	defer q.Close()

	for i := 0; i < 2; i++ {
		if err := q.PublishRun(context.Background(), &jobs.RunJob{}); err != nil {
			t.Fatalf("PublishRun failed: %v", err)
		}
	}

	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(depths) != 2 || depths[1] != 2 {
		t.Errorf("depths = %v", depths)
	}
}

func TestQueue_ClosedQueue(t *testing.T) {
	q := NewQueue(1, nil)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
	if err := q.PublishRun(context.Background(), &jobs.RunJob{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed from Start, got %v", err)
	}
}

func TestQueue_RetryDelay(t *testing.T) {
	q := NewQueue(1, nil, WithBackoff(retry.Policy{BaseDelay: 30 * time.Second, Multiplier: 2}))
	want := []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute}
	for i, w := range want {
		if got := q.retryDelay(i + 1); got != w {
			t.Errorf("retryDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
