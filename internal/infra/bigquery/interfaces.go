// Package bigquery is the warehouse sink: table management, load jobs,
// run history and the quality checks, all against one BigQuery table.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/rs/zerolog"
)

// Config names the warehouse objects the sink works on.
type Config struct {
	ProjectID   string
	Dataset     string
	Table       string
	Location    string
	Environment string
}

// TableRef returns the backquoted fully qualified table name.
func (c Config) TableRef() string {
	return fmt.Sprintf("`%s.%s.%s`", c.ProjectID, c.Dataset, c.Table)
}

func (c Config) ref(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", c.ProjectID, c.Dataset, name)
}

// Sink is the BigQuery implementation of the pipeline sink and of
// quality.Checker. It holds a shared client to avoid a connection per
// operation.
type Sink struct {
	client *bigquery.Client
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

var _ quality.Checker = (*Sink)(nil)

// NewSink creates a Sink with its own client.
func NewSink(ctx context.Context, cfg Config, log zerolog.Logger) (*Sink, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewSink: creating client: %w", err)
	}
	client.Location = cfg.Location
	return NewSinkWithClient(client, cfg, log), nil
}

// NewSinkWithClient wraps an existing client.
func NewSinkWithClient(client *bigquery.Client, cfg Config, log zerolog.Logger) *Sink {
	return &Sink{client: client, cfg: cfg, log: log, now: time.Now}
}

// Close closes the BigQuery client connection.
func (s *Sink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Name identifies the sink in run summaries.
func (s *Sink) Name() string {
	return "bigquery"
}

// Ensure creates the dataset, the transactions table and the run history
// table when missing.
func (s *Sink) Ensure(ctx context.Context) error {
	if err := EnsureDatasetWithClient(ctx, s.client, s.cfg); err != nil {
		return err
	}
	if err := EnsureTableWithClient(ctx, s.client, s.cfg); err != nil {
		return err
	}
	return EnsureRunsTableWithClient(ctx, s.client, s.cfg)
}

// Load runs a load job for req and stamps loaded_at on the new rows. A
// gs:// URI is preferred over the local file when both are set.
// WRITE_TRUNCATE replaces only the window's dates: their rows are deleted
// and the batch is appended.
func (s *Sink) Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error) {
	disposition := req.WriteDisposition
	if disposition == string(bigquery.WriteTruncate) {
		deleted, err := DeleteWindowWithClient(ctx, s.client, s.cfg, req.Window)
		if err != nil {
			return domain.LoadResult{}, fmt.Errorf("Load: %w", err)
		}
		s.log.Info().Int64("deleted_rows", deleted).Str("window", req.Window.Key()).Msg("Cleared window before load")
		disposition = string(bigquery.WriteAppend)
	}

	var (
		res domain.LoadResult
		err error
	)
	switch {
	case req.URI != "":
		res, err = LoadURIWithClient(ctx, s.client, s.cfg, req.URI, disposition, s.now())
	case req.LocalPath != "":
		res, err = LoadFileWithClient(ctx, s.client, s.cfg, req.LocalPath, disposition, s.now())
	default:
		return domain.LoadResult{}, fmt.Errorf("Load: request has neither a file nor a URI")
	}
	if err != nil {
		return res, err
	}
	s.log.Info().
		Str("job_id", res.JobID).
		Int64("output_rows", res.OutputRows).
		Int64("bad_records", res.BadRecords).
		Msg("Load job completed")

	updated, err := UpdateLoadedTimestampWithClient(ctx, s.client, s.cfg)
	if err != nil {
		return res, err
	}
	res.UpdatedRows = updated
	s.log.Info().Int64("updated_rows", updated).Msg("Stamped loaded_at")
	return res, nil
}

// Insert streams rows into the table without a load job.
func (s *Sink) Insert(ctx context.Context, txs []domain.Transaction) error {
	return InsertTransactionsWithClient(ctx, s.client, s.cfg, txs)
}

// CreateViews creates or replaces the analytical views. Individual view
// failures are logged and counted.
func (s *Sink) CreateViews(ctx context.Context) (int, error) {
	return CreateViewsWithClient(ctx, s.client, s.cfg, s.log)
}

// StartRun records a RUNNING row in the run history.
func (s *Sink) StartRun(ctx context.Context, rec domain.RunRecord) error {
	return StartRunWithClient(ctx, s.client, s.cfg, rec)
}

// FinishRun records the final state of a run.
func (s *Sink) FinishRun(ctx context.Context, rec domain.RunRecord) error {
	return FinishRunWithClient(ctx, s.client, s.cfg, rec)
}

// TotalRows implements quality.Checker.
func (s *Sink) TotalRows(ctx context.Context, date *civil.Date) (int64, error) {
	return TotalRowsWithClient(ctx, s.client, s.cfg, date)
}

// UniqueTransactions implements quality.Checker.
func (s *Sink) UniqueTransactions(ctx context.Context, date *civil.Date) (int64, error) {
	return UniqueTransactionsWithClient(ctx, s.client, s.cfg, date)
}

// NullTransactionIDs implements quality.Checker.
func (s *Sink) NullTransactionIDs(ctx context.Context, date *civil.Date) (int64, error) {
	return NullTransactionIDsWithClient(ctx, s.client, s.cfg, date)
}

// DateRange implements quality.Checker.
func (s *Sink) DateRange(ctx context.Context, date *civil.Date) (quality.DateRange, error) {
	return DateRangeWithClient(ctx, s.client, s.cfg, date)
}

// StatusDistribution implements quality.Checker.
func (s *Sink) StatusDistribution(ctx context.Context, date *civil.Date) ([]quality.StatusCount, error) {
	return StatusDistributionWithClient(ctx, s.client, s.cfg, date)
}

// AmountSummary implements quality.Checker.
func (s *Sink) AmountSummary(ctx context.Context, date *civil.Date) (quality.AmountSummary, error) {
	return AmountSummaryWithClient(ctx, s.client, s.cfg, date)
}
