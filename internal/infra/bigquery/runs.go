package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

const runsTable = "pipeline_runs"

// RunStatusRunning is written by StartRun. Final statuses come from the
// pipeline summary.
const RunStatusRunning = "RUNNING"

// RunRow is one row of the pipeline_runs table.
type RunRow struct {
	RunID         string     `bigquery:"run_id"`         // REQUIRED
	ExecutionDate civil.Date `bigquery:"execution_date"` // REQUIRED
	StartDate     civil.Date `bigquery:"start_date"`
	EndDate       civil.Date `bigquery:"end_date"`

	Status     string `bigquery:"status"`
	DataSource string `bigquery:"data_source"`

	Extracted    int64                `bigquery:"extracted_transactions"`
	Transformed  int64                `bigquery:"transformed_transactions"`
	Loaded       int64                `bigquery:"loaded_rows"`
	QualityScore bigquery.NullFloat64 `bigquery:"data_quality_score"`

	ErrorMessage string `bigquery:"error_message"` // NULLABLE, truncated

	StartedTS  time.Time              `bigquery:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"`
}
