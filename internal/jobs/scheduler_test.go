package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockPublisher struct {
	PublishRunFunc func(ctx context.Context, job *RunJob) error
	published      []*RunJob
}

func (m *mockPublisher) PublishRun(ctx context.Context, job *RunJob) error {
	m.published = append(m.published, job)
	if m.PublishRunFunc != nil {
		return m.PublishRunFunc(ctx, job)
	}
	job.JobID = "job-1"
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2025, 7, 31, 1, 30, 0, 0, time.UTC),
			hour: 2,
			want: time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at the hour moves to tomorrow",
			now:  time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC),
			hour: 2,
			want: time.Date(2025, 8, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input",
			now:  time.Date(2025, 7, 31, 23, 0, 0, 0, time.FixedZone("PDT", -7*3600)),
			hour: 2,
			want: time.Date(2025, 8, 2, 2, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRun(tt.now, tt.hour); !got.Equal(tt.want) {
				t.Errorf("NextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduler_Enqueue(t *testing.T) {
	pub := &mockPublisher{}
	s := NewScheduler(pub, 2, zerolog.Nop())

	job, err := s.Enqueue(context.Background(), time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ExecutionDate != "2025-07-31" || job.Trigger != TriggerSchedule || job.JobID != "job-1" {
		t.Errorf("unexpected job: %+v", job)
	}

	req, err := job.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if req.Window != nil || req.ExecutionDate.Day() != 31 {
		t.Errorf("scheduled job should run the day before its execution date: %+v", req)
	}
}

func TestScheduler_EnqueueError(t *testing.T) {
	pub := &mockPublisher{PublishRunFunc: func(ctx context.Context, job *RunJob) error {
		return errors.New("queue is closed")
	}}
	if _, err := NewScheduler(pub, 2, zerolog.Nop()).Enqueue(context.Background(), time.Now()); err == nil {
		t.Error("expected error")
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewScheduler(&mockPublisher{}, 2, zerolog.Nop()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
