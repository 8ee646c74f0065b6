package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/dvloznov/paypal-pipeline/internal/report"
	"github.com/dvloznov/paypal-pipeline/internal/stats"
)

// Summary is the structured result of one run. It is produced on every path,
// aborted runs included.
type Summary struct {
	Pipeline      string             `json:"pipeline"`
	RunID         string             `json:"run_id"`
	ExecutionDate civil.Date         `json:"execution_date"`
	DateRange     domain.Window      `json:"date_range"`
	Environment   string             `json:"environment"`
	Status        string             `json:"status"`
	DataSource    string             `json:"data_source"`
	StateTrail    []State            `json:"state_trail"`
	Metrics       RunMetrics         `json:"metrics"`
	Stats         *stats.Statistics  `json:"stats,omitempty"`
	Load          *domain.LoadResult `json:"load,omitempty"`
	Quality       *quality.Report    `json:"quality,omitempty"`
	Artifacts     Artifacts          `json:"artifacts"`
	Errors        []string           `json:"errors"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	Duration      float64            `json:"duration_seconds"`
}

// RunMetrics are the headline counts of a run.
type RunMetrics struct {
	ExtractedTransactions   int      `json:"extracted_transactions"`
	TransformedTransactions int      `json:"transformed_transactions"`
	ParsingErrors           int      `json:"parsing_errors"`
	ValidationFindings      int      `json:"validation_findings"`
	LoadedRows              int64    `json:"loaded_rows"`
	UpdatedRows             int64    `json:"updated_rows"`
	DataQualityScore        *float64 `json:"data_quality_score"`
}

// Artifacts are the local paths and object store URIs written by a run.
type Artifacts struct {
	RawPath    string `json:"raw_path,omitempty"`
	RawURI     string `json:"raw_uri,omitempty"`
	ParsedPath string `json:"parsed_path,omitempty"`
	ParsedURI  string `json:"parsed_uri,omitempty"`
}

func newSummary(st *RunState, environment string, started, finished time.Time, runErr error) Summary {
	s := Summary{
		Pipeline:      PipelineName,
		RunID:         st.RunID,
		ExecutionDate: st.ExecutionDate,
		DateRange:     st.Window,
		Environment:   environment,
		DataSource:    st.DataSource(),
		StateTrail:    append([]State{}, st.Trail...),
		Stats:         st.Stats,
		Load:          st.Load,
		Quality:       st.Quality,
		Artifacts: Artifacts{
			RawPath:    st.RawPath,
			RawURI:     st.RawURI,
			ParsedPath: st.ParsedPath,
			ParsedURI:  st.ParsedURI,
		},
		Errors:     append([]string{}, st.Errors...),
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   report.Round(finished.Sub(started).Seconds(), 3),
	}

	s.Metrics = RunMetrics{
		ExtractedTransactions:   len(st.Raw),
		TransformedTransactions: len(st.Normalized.Transactions),
		ParsingErrors:           len(st.Normalized.Failures),
		ValidationFindings:      len(st.Normalized.Findings),
	}
	if st.Load != nil {
		s.Metrics.LoadedRows = st.Load.OutputRows
		s.Metrics.UpdatedRows = st.Load.UpdatedRows
	}
	if st.Quality != nil {
		score := st.Quality.DataQuality.Total
		s.Metrics.DataQualityScore = &score
	}

	switch {
	case runErr != nil:
		s.Status = StatusAborted
		s.Errors = append(s.Errors, runErr.Error())
	case st.Degraded:
		s.Status = StatusDegraded
	default:
		s.Status = StatusDone
	}
	return s
}

// Succeeded reports whether the run finished as DONE or DEGRADED.
func (s Summary) Succeeded() bool {
	return s.Status != StatusAborted
}

// Record converts the summary to a run history row.
func (s Summary) Record() domain.RunRecord {
	return domain.RunRecord{
		RunID:         s.RunID,
		ExecutionDate: s.ExecutionDate,
		Window:        s.DateRange,
		Status:        s.Status,
		DataSource:    s.DataSource,
		Extracted:     int64(s.Metrics.ExtractedTransactions),
		Transformed:   int64(s.Metrics.TransformedTransactions),
		Loaded:        s.Metrics.LoadedRows,
		QualityScore:  s.Metrics.DataQualityScore,
		Errors:        s.Errors,
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
	}
}

// JSON renders the summary as indented JSON.
func (s Summary) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Summary.JSON: %w", err)
	}
	return b, nil
}

// Text renders a short human-readable report.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s [%s] %s\n", s.RunID, s.Status, s.DateRange)
	fmt.Fprintf(&b, "  source:      %s\n", s.DataSource)
	fmt.Fprintf(&b, "  extracted:   %s\n", report.Count(int64(s.Metrics.ExtractedTransactions)))
	fmt.Fprintf(&b, "  transformed: %s (%d parse errors, %d findings)\n",
		report.Count(int64(s.Metrics.TransformedTransactions)), s.Metrics.ParsingErrors, s.Metrics.ValidationFindings)
	fmt.Fprintf(&b, "  loaded:      %s\n", report.Count(s.Metrics.LoadedRows))
	if s.Load != nil && s.Load.InputBytes > 0 {
		fmt.Fprintf(&b, "  load input:  %s\n", report.HumanBytes(s.Load.InputBytes))
	}
	if s.Stats != nil {
		fmt.Fprintf(&b, "  amount:      %s total, %s median\n",
			report.Money(s.Stats.AmountStatistics.Total), report.Money(s.Stats.AmountStatistics.Median))
	}
	if s.Metrics.DataQualityScore != nil {
		fmt.Fprintf(&b, "  quality:     %.1f/100\n", *s.Metrics.DataQualityScore)
	}
	fmt.Fprintf(&b, "  duration:    %s\n", report.FormatDuration(time.Duration(s.Duration*float64(time.Second))))
	fmt.Fprintf(&b, "  states:      %s\n", joinStates(s.StateTrail))
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "  error:       %s\n", e)
	}
	return b.String()
}

func joinStates(states []State) string {
	parts := make([]string, len(states))
	for i, st := range states {
		parts[i] = string(st)
	}
	return strings.Join(parts, " -> ")
}
