package pipeline

import "errors"

var (
	// ErrNoRecords aborts a run whose normalization produced no usable records.
	ErrNoRecords = errors.New("no usable records")

	// ErrSourceUnavailable is returned when the selected source cannot be
	// used and fallback is disabled.
	ErrSourceUnavailable = errors.New("data source unavailable")

	// ErrWindowBusy rejects a run whose window overlaps a run in progress.
	ErrWindowBusy = errors.New("a run for this window is already in progress")
)
