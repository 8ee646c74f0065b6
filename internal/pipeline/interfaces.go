package pipeline

import (
	"context"
	"encoding/json"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
)

// DataSource produces the raw records of a window. RemoteSource (paypal) and
// the synthetic fallback.Source implement it.
type DataSource interface {
	Name() string

	// Probe checks the source can be used, e.g. that credentials are accepted.
	Probe(ctx context.Context) error

	// Fetch returns the raw records for window. A source may return partial
	// records together with an error.
	Fetch(ctx context.Context, window domain.Window) ([]json.RawMessage, error)
}

// Sink is where normalized batches are loaded and validated.
type Sink interface {
	quality.Checker

	Name() string

	// Ensure creates the destination table if needed.
	Ensure(ctx context.Context) error

	// Load writes one batch.
	Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error)

	// CreateViews creates or replaces the reporting views and returns how
	// many were created.
	CreateViews(ctx context.Context) (int, error)
}

// RunRecorder keeps run history. Sinks implement it optionally.
type RunRecorder interface {
	StartRun(ctx context.Context, rec domain.RunRecord) error
	FinishRun(ctx context.Context, rec domain.RunRecord) error
}

// Notifier is told about every finished run, including aborted ones.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}
