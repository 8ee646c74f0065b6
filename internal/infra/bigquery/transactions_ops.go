package bigquery

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/google/uuid"
)

const (
	dateFormat    = "2006-01-02"
	maxBadRecords = 10
)

// InsertTransactionsWithClient streams txs into the table. The transaction
// id is used as insert id so a retried insert does not duplicate rows.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, cfg Config, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	schema := TransactionSchema()
	now := time.Now()
	savers := make([]*bigquery.StructSaver, 0, len(txs))
	for _, tx := range txs {
		savers = append(savers, &bigquery.StructSaver{
			Schema:   schema,
			InsertID: tx.TransactionID,
			Struct:   NewTransactionRow(tx, now),
		})
	}

	inserter := client.DatasetInProject(cfg.ProjectID, cfg.Dataset).Table(cfg.Table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// LoadFileWithClient loads a local newline-delimited JSON file.
func LoadFileWithClient(ctx context.Context, client *bigquery.Client, cfg Config, path, disposition string, now time.Time) (domain.LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.LoadResult{}, fmt.Errorf("LoadFile: opening %s: %w", path, err)
	}
	defer f.Close()

	src := bigquery.NewReaderSource(f)
	configureSource(&src.FileConfig)
	return runLoad(ctx, client, cfg, src, disposition, now)
}

// LoadURIWithClient loads newline-delimited JSON from a gs:// URI.
func LoadURIWithClient(ctx context.Context, client *bigquery.Client, cfg Config, uri, disposition string, now time.Time) (domain.LoadResult, error) {
	src := bigquery.NewGCSReference(uri)
	configureSource(&src.FileConfig)
	return runLoad(ctx, client, cfg, src, disposition, now)
}

func configureSource(fc *bigquery.FileConfig) {
	fc.SourceFormat = bigquery.JSON
	fc.MaxBadRecords = maxBadRecords
	fc.IgnoreUnknownValues = true
	fc.AllowJaggedRows = false
	fc.AllowQuotedNewlines = false
}

// LoadJobLabels are attached to every load job.
func LoadJobLabels(cfg Config, now time.Time) map[string]string {
	l := labels(cfg)
	l["date"] = now.Format(dateFormat)
	return l
}

func runLoad(ctx context.Context, client *bigquery.Client, cfg Config, src bigquery.LoadSource, disposition string, now time.Time) (domain.LoadResult, error) {
	loader := client.DatasetInProject(cfg.ProjectID, cfg.Dataset).Table(cfg.Table).LoaderFrom(src)
	loader.JobID = "paypal_load_" + uuid.NewString()
	loader.Location = cfg.Location
	loader.CreateDisposition = bigquery.CreateNever
	loader.WriteDisposition = bigquery.TableWriteDisposition(disposition)
	loader.Labels = LoadJobLabels(cfg, now)

	job, err := loader.Run(ctx)
	if err != nil {
		return domain.LoadResult{}, fmt.Errorf("Load: starting job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return domain.LoadResult{JobID: job.ID()}, fmt.Errorf("Load: waiting for job %s: %w", job.ID(), err)
	}

	res := loadResult(job.ID(), status)
	if err := status.Err(); err != nil {
		return res, fmt.Errorf("Load: job %s failed: %w", job.ID(), err)
	}
	return res, nil
}

func loadResult(jobID string, status *bigquery.JobStatus) domain.LoadResult {
	res := domain.LoadResult{JobID: jobID, State: domain.LoadStateDone}
	for _, e := range status.Errors {
		if e != nil {
			res.Errors = append(res.Errors, e.Error())
		}
	}
	// Rows skipped under max_bad_records are reported as job errors.
	res.BadRecords = int64(len(res.Errors))

	stats := status.Statistics
	if stats == nil {
		return res
	}
	res.CreatedAt = stats.CreationTime
	res.StartedAt = stats.StartTime
	res.EndedAt = stats.EndTime

	if ls, ok := stats.Details.(*bigquery.LoadStatistics); ok {
		res.InputFiles = ls.InputFiles
		res.InputBytes = ls.InputFileBytes
		res.OutputBytes = ls.OutputBytes
		res.OutputRows = ls.OutputRows
	}
	return res
}

// UpdateLoadedTimestampWithClient stamps loaded_at on rows that have none
// and returns how many rows changed.
func UpdateLoadedTimestampWithClient(ctx context.Context, client *bigquery.Client, cfg Config) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET loaded_at = CURRENT_TIMESTAMP()
		WHERE loaded_at IS NULL
	`, cfg.TableRef()))
	q.Location = cfg.Location

	status, err := runQuery(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("UpdateLoadedTimestamp: %w", err)
	}
	return affectedRows(status), nil
}

func runQuery(ctx context.Context, q *bigquery.Query) (*bigquery.JobStatus, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("job error: %w", err)
	}
	return status, nil
}

func affectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return 0
	}
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return qs.NumDMLAffectedRows
	}
	return 0
}
