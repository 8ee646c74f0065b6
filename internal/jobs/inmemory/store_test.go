package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/jobs"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC)
	s := NewStore()

	seed := []*jobs.RunJob{
		{JobID: "a", StartDate: "2025-07-28", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", StartDate: "2025-07-29", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Hour)},
		{JobID: "c", StartDate: "2025-07-30", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, j := range seed {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}

	t.Run("save requires an id", func(t *testing.T) {
		if err := s.SaveJob(ctx, &jobs.RunJob{}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("get returns a copy", func(t *testing.T) {
		j, err := s.GetJob(ctx, "a")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		j.Status = jobs.JobStatusRunning
		again, _ := s.GetJob(ctx, "a")
		if again.Status != jobs.JobStatusCompleted {
			t.Error("stored job was modified through a returned copy")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
		if err := s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""); !errors.Is(err, jobs.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"c", "b", "a"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusCompleted}, want: []string{"c", "a"}},
		{name: "by start date", filter: jobs.JobFilter{StartDate: "2025-07-29"}, want: []string{"b"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 1}, want: []string{"c"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 1, Limit: 1}, want: []string{"b"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 5}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].JobID != id {
					t.Errorf("jobs[%d] = %s, want %s", i, got[i].JobID, id)
				}
			}
		})
	}

	t.Run("update status", func(t *testing.T) {
		if err := s.UpdateJobStatus(ctx, "b", jobs.JobStatusRetrying, "boom"); err != nil {
			t.Fatalf("UpdateJobStatus failed: %v", err)
		}
		j, _ := s.GetJob(ctx, "b")
		if j.Status != jobs.JobStatusRetrying || j.Error != "boom" {
			t.Errorf("unexpected job: %+v", j)
		}
	})
}
