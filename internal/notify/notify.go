// Package notify reports finished runs.
package notify

import (
	"context"

	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/rs/zerolog"
)

// LogNotifier writes every run summary to the log.
type LogNotifier struct {
	log zerolog.Logger
}

var _ pipeline.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements pipeline.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, s pipeline.Summary) error {
	ev := n.log.Info()
	if !s.Succeeded() {
		ev = n.log.Error()
	} else if s.Status == pipeline.StatusDegraded {
		ev = n.log.Warn()
	}

	ev = ev.
		Str("run_id", s.RunID).
		Str("status", s.Status).
		Str("window", s.DateRange.Key()).
		Str("data_source", s.DataSource).
		Int("extracted", s.Metrics.ExtractedTransactions).
		Int("transformed", s.Metrics.TransformedTransactions).
		Int("parsing_errors", s.Metrics.ParsingErrors).
		Int64("loaded_rows", s.Metrics.LoadedRows).
		Strs("errors", s.Errors)
	if s.Metrics.DataQualityScore != nil {
		ev = ev.Float64("quality_score", *s.Metrics.DataQualityScore)
	}
	ev.Msg("Pipeline run summary")
	return nil
}
