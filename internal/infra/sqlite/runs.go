package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// StartRun records a RUNNING row in pipeline_runs.
func (s *Sink) StartRun(ctx context.Context, rec domain.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, execution_date, start_date, end_date, status, data_source, started_ts)
		VALUES (?, ?, ?, ?, 'RUNNING', ?, ?)`,
		rec.RunID, rec.ExecutionDate.String(), rec.Window.Start.String(), rec.Window.End.String(),
		rec.DataSource, formatTime(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("StartRun: %s: %w", rec.RunID, err)
	}
	return nil
}

// FinishRun records the final state of a run.
func (s *Sink) FinishRun(ctx context.Context, rec domain.RunRecord) error {
	var score sql.NullFloat64
	if rec.QualityScore != nil {
		score = sql.NullFloat64{Float64: *rec.QualityScore, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, data_source = ?, extracted_transactions = ?, transformed_transactions = ?,
		    loaded_rows = ?, data_quality_score = ?, error_message = ?, finished_ts = ?
		WHERE run_id = ?`,
		rec.Status, rec.DataSource, rec.Extracted, rec.Transformed,
		rec.Loaded, score, strings.Join(rec.Errors, "; "), formatTime(rec.FinishedAt),
		rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("FinishRun: %s: %w", rec.RunID, err)
	}
	return nil
}

// RunStatus returns the stored status of a run.
func (s *Sink) RunStatus(ctx context.Context, runID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM pipeline_runs WHERE run_id = ?", runID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("RunStatus: %s: %w", runID, err)
	}
	return status, nil
}
