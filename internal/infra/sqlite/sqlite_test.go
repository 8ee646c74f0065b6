package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/artifact"
	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/fallback"
	"github.com/dvloznov/paypal-pipeline/internal/normalize"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/rs/zerolog"
)

var (
	testDay    = civil.Date{Year: 2025, Month: 7, Day: 30}
	testWindow = domain.Window{Start: testDay, End: testDay}
)

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func syntheticBatch(t *testing.T, w domain.Window, n int) []domain.Transaction {
	t.Helper()
	raws, err := fallback.Generate(w, n)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	res, err := normalize.New().Batch(context.Background(), raws)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	return res.Transactions
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), path, zerolog.Nop())
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		s.Close()
	}
}

func TestLoad_AndValidate(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	res, err := s.Load(ctx, domain.LoadRequest{
		Window:           testWindow,
		Transactions:     syntheticBatch(t, testWindow, 25),
		WriteDisposition: config.WriteAppend,
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.OutputRows != 25 || res.UpdatedRows != 25 || res.State != domain.LoadStateDone {
		t.Errorf("unexpected load result: %+v", res)
	}

	report := quality.Validate(ctx, s, &testDay, zerolog.Nop())
	if len(report.Errors) != 0 {
		t.Fatalf("checks failed: %v", report.Errors)
	}
	if report.TotalRows != 25 || report.UniqueTransactions != 25 || report.NullTransactionIDs != 0 {
		t.Errorf("counts = %d/%d/%d", report.TotalRows, report.UniqueTransactions, report.NullTransactionIDs)
	}
	if report.DataQuality.Total != 100 {
		t.Errorf("total score = %v, want 100", report.DataQuality.Total)
	}
	if report.DateRange.UniqueDates != 1 || report.DateRange.MinDate == nil {
		t.Errorf("date range = %+v", report.DateRange)
	}
	if len(report.StatusDistribution) != 1 || report.StatusDistribution[0].Status != "S" || report.StatusDistribution[0].Percentage != 100 {
		t.Errorf("status distribution = %+v", report.StatusDistribution)
	}
	if report.AmountSummary.TotalTransactions != 25 || report.AmountSummary.ZeroAmounts != 0 || report.AmountSummary.PositiveAmounts != 25 {
		t.Errorf("amount summary = %+v", report.AmountSummary)
	}
	if report.AmountSummary.MaxAmount != 312.5 || report.AmountSummary.MinAmount != 12.5 {
		t.Errorf("min/max amount = %v/%v", report.AmountSummary.MinAmount, report.AmountSummary.MaxAmount)
	}
}

func TestValidate_EmptyDateScoresZero(t *testing.T) {
	s := openTestSink(t)
	other := civil.Date{Year: 2020, Month: 1, Day: 1}

	report := quality.Validate(context.Background(), s, &other, zerolog.Nop())
	if len(report.Errors) != 0 {
		t.Fatalf("checks failed: %v", report.Errors)
	}
	if report.TotalRows != 0 || report.DataQuality.Total != 0 {
		t.Errorf("rows = %d, score = %v", report.TotalRows, report.DataQuality.Total)
	}
	if report.DateRange.MinDate != nil {
		t.Errorf("expected empty date range, got %+v", report.DateRange)
	}
}

func TestLoad_Duplicates(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()
	batch := syntheticBatch(t, testWindow, 4)

	for i := 0; i < 2; i++ {
		if _, err := s.Load(ctx, domain.LoadRequest{Window: testWindow, Transactions: batch, WriteDisposition: config.WriteAppend}); err != nil {
			t.Fatalf("Load #%d failed: %v", i+1, err)
		}
	}

	report := quality.Validate(ctx, s, &testDay, zerolog.Nop())
	if report.TotalRows != 8 || report.UniqueTransactions != 4 {
		t.Errorf("rows = %d, unique = %d", report.TotalRows, report.UniqueTransactions)
	}
	if report.DataQuality.Uniqueness != 50 || report.DataQuality.Total != 75 {
		t.Errorf("score = %+v", report.DataQuality)
	}
}

func TestLoad_WriteDispositions(t *testing.T) {
	ctx := context.Background()

	t.Run("truncate replaces only the window", func(t *testing.T) {
		s := openTestSink(t)
		nextDay := testDay.AddDays(1)
		next := domain.Window{Start: nextDay, End: nextDay}

		for _, w := range []domain.Window{testWindow, next} {
			if _, err := s.Load(ctx, domain.LoadRequest{Window: w, Transactions: syntheticBatch(t, w, 3), WriteDisposition: config.WriteAppend}); err != nil {
				t.Fatalf("Load failed: %v", err)
			}
		}
		if _, err := s.Load(ctx, domain.LoadRequest{Window: testWindow, Transactions: syntheticBatch(t, testWindow, 2), WriteDisposition: config.WriteTruncate}); err != nil {
			t.Fatalf("truncate Load failed: %v", err)
		}

		if n, _ := s.TotalRows(ctx, &testDay); n != 2 {
			t.Errorf("rows in window = %d, want 2", n)
		}
		if n, _ := s.TotalRows(ctx, &nextDay); n != 3 {
			t.Errorf("rows outside window = %d, want 3", n)
		}
	})

	t.Run("empty fails on a populated table", func(t *testing.T) {
		s := openTestSink(t)
		batch := syntheticBatch(t, testWindow, 1)
		if _, err := s.Load(ctx, domain.LoadRequest{Window: testWindow, Transactions: batch, WriteDisposition: config.WriteEmpty}); err != nil {
			t.Fatalf("first Load failed: %v", err)
		}
		_, err := s.Load(ctx, domain.LoadRequest{Window: testWindow, Transactions: batch, WriteDisposition: config.WriteEmpty})
		if !errors.Is(err, ErrTableNotEmpty) {
			t.Errorf("expected ErrTableNotEmpty, got %v", err)
		}
	})
}

func TestLoad_FromParsedFile(t *testing.T) {
	s := openTestSink(t)
	path := filepath.Join(t.TempDir(), "parsed.jsonl")
	if err := artifact.WriteParsed(path, syntheticBatch(t, testWindow, 5)); err != nil {
		t.Fatalf("WriteParsed failed: %v", err)
	}

	res, err := s.Load(context.Background(), domain.LoadRequest{Window: testWindow, LocalPath: path, WriteDisposition: config.WriteAppend})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.OutputRows != 5 || res.InputFiles != 1 || res.InputBytes == 0 {
		t.Errorf("unexpected load result: %+v", res)
	}
}

func TestLoad_NullDatesAndEmptyIDs(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()
	when := domain.NewTimestamp(time.Date(2025, 7, 30, 9, 0, 0, 0, time.UTC))
	txs := []domain.Transaction{
		{TransactionID: "A", Amount: -5, TransactionDate: &when, ParsedAt: when},
		{TransactionID: "", Amount: 5, TransactionDate: &when, ParsedAt: when},
		{TransactionID: "B", ParsedAt: when},
	}
	if _, err := s.Load(ctx, domain.LoadRequest{Window: testWindow, Transactions: txs, WriteDisposition: config.WriteAppend}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	report := quality.Validate(ctx, s, &testDay, zerolog.Nop())
	if report.TotalRows != 2 || report.NullTransactionIDs != 1 {
		t.Errorf("rows = %d, null ids = %d", report.TotalRows, report.NullTransactionIDs)
	}
	if report.DataQuality.Completeness != 50 {
		t.Errorf("completeness = %v, want 50", report.DataQuality.Completeness)
	}
	// The empty id is not a distinct transaction either.
	if report.UniqueTransactions != 1 || report.DataQuality.Uniqueness != 50 || report.DataQuality.Total != 50 {
		t.Errorf("unique = %d, score = %+v", report.UniqueTransactions, report.DataQuality)
	}
	if report.AmountSummary.NegativeAmounts != 1 {
		t.Errorf("negative amounts = %d", report.AmountSummary.NegativeAmounts)
	}

	whole := quality.Validate(ctx, s, nil, zerolog.Nop())
	if whole.TotalRows != 3 {
		t.Errorf("whole table rows = %d, want 3", whole.TotalRows)
	}
}

func TestRunHistory(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()
	score := 97.5
	rec := domain.RunRecord{
		RunID:         "20250731_020000",
		ExecutionDate: testDay.AddDays(1),
		Window:        testWindow,
		DataSource:    "synthetic",
		StartedAt:     time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC),
	}

	if err := s.StartRun(ctx, rec); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if status, _ := s.RunStatus(ctx, rec.RunID); status != "RUNNING" {
		t.Errorf("status = %q, want RUNNING", status)
	}

	rec.Status = "DONE"
	rec.QualityScore = &score
	rec.FinishedAt = rec.StartedAt.Add(time.Minute)
	if err := s.FinishRun(ctx, rec); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	if status, _ := s.RunStatus(ctx, rec.RunID); status != "DONE" {
		t.Errorf("status = %q, want DONE", status)
	}
}
