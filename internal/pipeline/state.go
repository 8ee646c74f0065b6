package pipeline

import (
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/normalize"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/dvloznov/paypal-pipeline/internal/stats"
)

// State is a node of the run state machine.
type State string

const (
	StateExtract       State = "EXTRACT"
	StateExtractFailed State = "EXTRACT_FAILED"
	StateFallback      State = "FALLBACK"
	StateNormalize     State = "NORMALIZE"
	// StateLoad loads the batch while the statistics are computed alongside.
	StateLoad           State = "LOAD"
	StateLoadFailed     State = "LOAD_FAILED"
	StateDegradedReport State = "DEGRADED_REPORT"
	StateValidate       State = "VALIDATE"
	StateDone           State = "DONE"
	StateAborted        State = "ABORTED"
)

// transitions lists the allowed edges. Any non-terminal state may also move
// to StateAborted.
var transitions = map[State][]State{
	StateExtract:        {StateNormalize, StateExtractFailed},
	StateExtractFailed:  {StateFallback},
	StateFallback:       {StateNormalize},
	StateNormalize:      {StateLoad, StateExtractFailed},
	StateLoad:           {StateValidate, StateLoadFailed, StateDone},
	StateLoadFailed:     {StateDegradedReport},
	StateDegradedReport: {StateDone},
	StateValidate:       {StateDone},
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// CanTransition reports whether the machine may move from one state to the
// other.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateAborted {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RunState is the per-run state passed between steps. Each artifact is set
// by exactly one step.
type RunState struct {
	RunID         string
	ExecutionDate civil.Date
	Window        domain.Window

	Source          DataSource
	FallbackAllowed bool
	FallbackUsed    bool

	Raw     []json.RawMessage
	RawPath string
	RawURI  string

	Normalized normalize.Result
	ParsedPath string
	ParsedURI  string

	Stats   *stats.Statistics
	Load    *domain.LoadResult
	Quality *quality.Report

	Degraded bool
	Trail    []State
	Errors   []string

	extractErr error
	loadErr    error
}

// addError records a non-fatal problem for the run summary.
func (st *RunState) addError(stage string, err error) {
	st.Errors = append(st.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// DataSource names the source the run's records came from.
func (st *RunState) DataSource() string {
	if st.Source == nil {
		return ""
	}
	return st.Source.Name()
}
