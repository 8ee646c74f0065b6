package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// LoadRequest is what a sink receives for one run. Sinks that load files
// use LocalPath or URI; sinks that insert rows use Transactions.
type LoadRequest struct {
	Window           Window
	LocalPath        string
	URI              string
	Transactions     []Transaction
	WriteDisposition string
}

// RunRecord is the per-run row kept in the sink's run history.
type RunRecord struct {
	RunID         string
	ExecutionDate civil.Date
	Window        Window
	Status        string
	DataSource    string
	Extracted     int64
	Transformed   int64
	Loaded        int64
	QualityScore  *float64
	Errors        []string
	StartedAt     time.Time
	FinishedAt    time.Time
}
