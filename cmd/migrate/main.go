// Command migrate applies the numbered SQL files in migrations/bigquery to
// the configured dataset and records them in schema_migrations. With
// -sqlite it applies the embedded SQLite migrations instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/paypal-pipeline/internal/app"
	infraBQ "github.com/dvloznov/paypal-pipeline/internal/infra/bigquery"
	"github.com/dvloznov/paypal-pipeline/internal/infra/sqlite"
	"github.com/dvloznov/paypal-pipeline/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

func main() {
	var (
		configPath    = flag.String("config", "", "YAML config file (or set PIPELINE_CONFIG)")
		projectID     = flag.String("project", "", "GCP project ID (default GCP_PROJECT_ID)")
		datasetID     = flag.String("dataset", "", "BigQuery dataset ID (default BQ_DATASET)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
		sqlitePath    = flag.String("sqlite", "", "Migrate this SQLite file instead of BigQuery")
		dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLog := logger.New()
	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := app.NewLogger(*cfg)

	if *sqlitePath != "" {
		sink, err := sqlite.Open(ctx, *sqlitePath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", *sqlitePath).Msg("SQLite migration failed")
		}
		sink.Close()
		log.Info().Str("path", *sqlitePath).Msg("SQLite database is up to date")
		return
	}

	if *projectID != "" {
		cfg.GCPProjectID = *projectID
	}
	if *datasetID != "" {
		cfg.BQDataset = *datasetID
	}
	if cfg.GCPProjectID == "" {
		log.Fatal().Msg("GCP project is required: set -project or GCP_PROJECT_ID")
	}

	dir, err := resolveDir(*migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to locate migrations")
	}
	migrations, err := readMigrations(dir, cfg.GCPProjectID, cfg.BQDataset, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	client, err := bigquery.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{client: client, project: cfg.GCPProjectID, dataset: cfg.BQDataset, appliedBy: *appliedBy, log: log}
	if err := m.run(ctx, app.BigQueryConfig(*cfg), migrations, *dryRun); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		client.Close()
		os.Exit(1)
	}
}

type migrator struct {
	client    *bigquery.Client
	project   string
	dataset   string
	appliedBy string
	log       zerolog.Logger
}

func (m *migrator) run(ctx context.Context, cfg infraBQ.Config, migrations []Migration, dryRun bool) error {
	m.log.Info().Str("project", m.project).Str("dataset", m.dataset).Msg("Connected to BigQuery")

	if err := infraBQ.EnsureDatasetWithClient(ctx, m.client, cfg); err != nil {
		return err
	}
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	m.log.Info().Int("count", len(applied)).Msg("Found applied migrations")

	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		m.log.Info().Msg("No new migrations to apply, dataset is up to date")
		return nil
	}

	for _, mig := range pending {
		if dryRun {
			m.log.Info().Str("migration", mig.Label()).Msg("Pending")
			continue
		}
		m.log.Info().Str("migration", mig.Label()).Msg("Applying")
		if err := m.exec(ctx, mig.SQL, nil); err != nil {
			return fmt.Errorf("executing %s: %w", mig.Label(), err)
		}
		if err := m.record(ctx, mig); err != nil {
			return fmt.Errorf("recording %s: %w", mig.Label(), err)
		}
	}
	if !dryRun {
		m.log.Info().Int("count", len(pending)).Msg("Applied migrations")
	}
	return nil
}

func (m *migrator) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", m.project, m.dataset)
}

func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	return m.exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)
	`, m.table()), nil)
}

func (m *migrator) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	q := m.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, m.table()))
	it, err := q.Read(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64                  `bigquery:"version"`
			Name      string                 `bigquery:"name"`
			AppliedAt bigquery.NullTimestamp `bigquery:"applied_at"`
			Checksum  bigquery.NullString    `bigquery:"checksum"`
			AppliedBy bigquery.NullString    `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt.Timestamp,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func (m *migrator) record(ctx context.Context, mig Migration) error {
	return m.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.table()), []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}

func (m *migrator) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := m.client.Query(sql)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
