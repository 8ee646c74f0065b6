package domain

import (
	"encoding/json"
	"time"
)

// UnknownTransactionID is recorded when a failing record has no readable id.
const UnknownTransactionID = "UNKNOWN"

// ParseFailure records a raw record the normalizer had to drop.
type ParseFailure struct {
	TransactionID string          `json:"transaction_id"`
	Error         string          `json:"error"`
	Raw           json.RawMessage `json:"transaction"`
}

// ValidationFinding lists business-rule violations on a record that was
// still emitted.
type ValidationFinding struct {
	TransactionID string   `json:"transaction_id"`
	Errors        []string `json:"errors"`
}

// LoadResult describes one sink load. It is immutable once returned.
type LoadResult struct {
	JobID       string    `json:"job_id"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created,omitzero"`
	StartedAt   time.Time `json:"started,omitzero"`
	EndedAt     time.Time `json:"ended,omitzero"`
	InputFiles  int64     `json:"input_files"`
	InputBytes  int64     `json:"input_file_bytes"`
	OutputBytes int64     `json:"output_bytes"`
	OutputRows  int64     `json:"output_rows"`
	BadRecords  int64     `json:"bad_records"`
	UpdatedRows int64     `json:"updated_rows"`
	Errors      []string  `json:"errors,omitempty"`
	// Degraded is set when the numbers come from the local batch because
	// the sink load failed.
	Degraded bool `json:"degraded"`
}

// Load states.
const (
	LoadStateDone     = "DONE"
	LoadStateDegraded = "DEGRADED"
	LoadStateSkipped  = "SKIPPED"
)

// DegradedLoadResult builds the best-effort result reported when the sink
// load fails.
func DegradedLoadResult(rows int, err error) LoadResult {
	res := LoadResult{
		State:       LoadStateDegraded,
		OutputRows:  int64(rows),
		UpdatedRows: int64(rows),
		Degraded:    true,
	}
	if err != nil {
		res.Errors = []string{err.Error()}
	}
	return res
}
