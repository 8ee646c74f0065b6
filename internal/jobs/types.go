package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRunPipeline runs the pipeline for one date window.
	JobTypeRunPipeline JobType = "run_pipeline"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the run finished DONE or DEGRADED.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the run aborted and no retries are left.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the run aborted and is scheduled again.
	JobStatusRetrying JobStatus = "retrying"
)

// Triggers recorded on a job.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// DefaultMaxRetries bounds retries of aborted runs.
const DefaultMaxRetries = 3

// ErrJobNotFound is returned by stores for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// RunJob is a request to run the pipeline for one window.
type RunJob struct {
	JobID string `json:"job_id"`

	// ExecutionDate is the logical run day; an empty window means the day
	// before it.
	ExecutionDate string `json:"execution_date,omitempty"`
	StartDate     string `json:"start_date,omitempty"`
	EndDate       string `json:"end_date,omitempty"`

	// Source overrides the configured data source mode.
	Source  string `json:"source,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
	Trigger string `json:"trigger,omitempty"`

	Status JobStatus `json:"status"`

	// RunID and Summary describe the last attempt.
	RunID   string            `json:"run_id,omitempty"`
	Summary *pipeline.Summary `json:"summary,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *RunJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *RunJob) GetType() JobType {
	return JobTypeRunPipeline
}

// GetStatus implements the Job interface.
func (j *RunJob) GetStatus() JobStatus {
	return j.Status
}

// Request converts the job into a pipeline request. An empty window runs the
// day before the execution date.
func (j *RunJob) Request() (pipeline.Request, error) {
	req := pipeline.Request{Source: j.Source, DryRun: j.DryRun}

	if j.ExecutionDate != "" {
		d, err := civil.ParseDate(j.ExecutionDate)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("Request: execution_date: %w", err)
		}
		req.ExecutionDate = d.In(time.UTC)
	}

	if j.StartDate != "" {
		w, err := domain.ParseWindow(j.StartDate, j.EndDate)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("Request: %w", err)
		}
		req.Window = &w
	} else if j.EndDate != "" {
		return pipeline.Request{}, fmt.Errorf("Request: end_date without start_date")
	}

	return req, nil
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishRun enqueues a run job. It fills in the job id, status and
	// creation time when they are empty.
	PublishRun(ctx context.Context, job *RunJob) error

	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs. The handler is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the attempt failed; it
// is retried unless wrapped with Permanent.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	SaveJob(ctx context.Context, job *RunJob) error
	GetJob(ctx context.Context, jobID string) (*RunJob, error)
	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*RunJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Status    JobStatus
	StartDate string
	Limit     int
	Offset    int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
