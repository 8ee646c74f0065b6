package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

const maxErrorLen = 2000

// EnsureRunsTableWithClient creates the pipeline_runs table when missing.
func EnsureRunsTableWithClient(ctx context.Context, client *bigquery.Client, cfg Config) error {
	schema, err := bigquery.InferSchema(RunRow{})
	if err != nil {
		return fmt.Errorf("EnsureRunsTable: inferring schema: %w", err)
	}

	t := client.DatasetInProject(cfg.ProjectID, cfg.Dataset).Table(runsTable)
	if _, err := t.Metadata(ctx); err == nil {
		return nil
	} else if !isNotFound(err) {
		return fmt.Errorf("EnsureRunsTable: reading metadata: %w", err)
	}

	err = t.Create(ctx, &bigquery.TableMetadata{
		Description: "PayPal pipeline run history",
		Schema:      schema,
		Labels:      labels(cfg),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureRunsTable: creating %s: %w", runsTable, err)
	}
	return nil
}

// ErrorMessage joins run errors and truncates the result for storage.
func ErrorMessage(errs []string) string {
	msg := strings.Join(errs, "; ")
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}

// StartRunWithClient inserts a RUNNING row for rec.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, cfg Config, rec domain.RunRecord) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			execution_date,
			start_date,
			end_date,
			status,
			data_source,
			extracted_transactions,
			transformed_transactions,
			loaded_rows,
			started_ts
		)
		VALUES (
			@run_id,
			@execution_date,
			@start_date,
			@end_date,
			@status,
			@data_source,
			0, 0, 0,
			@started_ts
		)
	`, cfg.ref(runsTable)))
	q.Location = cfg.Location
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: rec.RunID},
		{Name: "execution_date", Value: rec.ExecutionDate},
		{Name: "start_date", Value: rec.Window.Start},
		{Name: "end_date", Value: rec.Window.End},
		{Name: "status", Value: RunStatusRunning},
		{Name: "data_source", Value: rec.DataSource},
		{Name: "started_ts", Value: rec.StartedAt},
	}

	if _, err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("StartRun: %s: %w", rec.RunID, err)
	}
	return nil
}

// FinishRunWithClient updates the run row with the final status and counts.
func FinishRunWithClient(ctx context.Context, client *bigquery.Client, cfg Config, rec domain.RunRecord) error {
	var score float64
	if rec.QualityScore != nil {
		score = *rec.QualityScore
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    data_source = @data_source,
		    extracted_transactions = @extracted,
		    transformed_transactions = @transformed,
		    loaded_rows = @loaded,
		    data_quality_score = IF(@has_score, @quality_score, NULL),
		    error_message = @error_message,
		    finished_ts = @finished_ts
		WHERE run_id = @run_id
	`, cfg.ref(runsTable)))
	q.Location = cfg.Location
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: rec.Status},
		{Name: "data_source", Value: rec.DataSource},
		{Name: "extracted", Value: rec.Extracted},
		{Name: "transformed", Value: rec.Transformed},
		{Name: "loaded", Value: rec.Loaded},
		{Name: "has_score", Value: rec.QualityScore != nil},
		{Name: "quality_score", Value: score},
		{Name: "error_message", Value: ErrorMessage(rec.Errors)},
		{Name: "finished_ts", Value: rec.FinishedAt},
		{Name: "run_id", Value: rec.RunID},
	}

	if _, err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("FinishRun: %s: %w", rec.RunID, err)
	}
	return nil
}
