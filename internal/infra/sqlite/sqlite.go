// Package sqlite is a local sink with the same load and check contracts as
// the BigQuery sink, for offline runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is what SQLite's date functions parse.
const timeLayout = "2006-01-02 15:04:05"

// Sink stores transactions in a SQLite file.
type Sink struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

var _ quality.Checker = (*Sink)(nil)

// Open opens (or creates) the database at path and applies the embedded
// migrations.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Sink, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s: %w", path, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return &Sink{db: db, log: log, now: time.Now}, nil
}

// Migrate applies pending migrations. It leaves db open.
func Migrate(db *sql.DB, log zerolog.Logger) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("Migrate: reading embedded migrations: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("Migrate: creating driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("Migrate: creating migrator: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug().Msg("No new database migrations to apply")
	case err != nil:
		return fmt.Errorf("Migrate: applying: %w", err)
	default:
		version, _, _ := m.Version()
		log.Info().Uint("version", version).Msg("Database migrations applied")
	}
	return nil
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Name identifies the sink in run summaries.
func (s *Sink) Name() string {
	return "sqlite"
}

// Ensure is a no-op: the schema is created by Open.
func (s *Sink) Ensure(ctx context.Context) error {
	return nil
}

// CreateViews is a no-op for the same reason; it reports the three views
// created by the migrations.
func (s *Sink) CreateViews(ctx context.Context) (int, error) {
	return 3, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}
