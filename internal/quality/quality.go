// Package quality scores the rows a run left in the sink.
package quality

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
)

// Check names, also used as keys in Report.Errors.
const (
	CheckTotalRows          = "total_rows"
	CheckUniqueTransactions = "unique_transactions"
	CheckNullIDs            = "null_transaction_ids"
	CheckDateRange          = "date_range"
	CheckStatusDistribution = "status_distribution"
	CheckAmountSummary      = "amount_summary"
)

// Checker runs the individual checks against a sink. A nil date checks the
// whole table; otherwise only rows whose transaction date falls on date.
type Checker interface {
	TotalRows(ctx context.Context, date *civil.Date) (int64, error)
	UniqueTransactions(ctx context.Context, date *civil.Date) (int64, error)
	NullTransactionIDs(ctx context.Context, date *civil.Date) (int64, error)
	DateRange(ctx context.Context, date *civil.Date) (DateRange, error)
	StatusDistribution(ctx context.Context, date *civil.Date) ([]StatusCount, error)
	AmountSummary(ctx context.Context, date *civil.Date) (AmountSummary, error)
}

// DateRange is the span of transaction dates.
type DateRange struct {
	MinDate     *time.Time `json:"min_date"`
	MaxDate     *time.Time `json:"max_date"`
	UniqueDates int64      `json:"unique_dates"`
}

// StatusCount is one row of the status distribution. A NULL status is
// reported as "NULL".
type StatusCount struct {
	Status     string  `json:"status"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AmountSummary describes the signed amounts; averages and sums are rounded
// to 2 decimals.
type AmountSummary struct {
	TotalTransactions int64   `json:"total_transactions"`
	PositiveAmounts   int64   `json:"positive_amounts"`
	ZeroAmounts       int64   `json:"zero_amounts"`
	NegativeAmounts   int64   `json:"negative_amounts"`
	AvgAmount         float64 `json:"avg_amount"`
	TotalAmount       float64 `json:"total_amount"`
	MinAmount         float64 `json:"min_amount"`
	MaxAmount         float64 `json:"max_amount"`
}

// Score is the composite quality score, each part in [0, 100].
type Score struct {
	Completeness float64 `json:"completeness_score"`
	Uniqueness   float64 `json:"uniqueness_score"`
	Total        float64 `json:"total_score"`
}

// Report holds every check result plus the score. A failed check leaves its
// zero value and an entry in Errors.
type Report struct {
	TotalRows          int64             `json:"total_rows"`
	UniqueTransactions int64             `json:"unique_transactions"`
	NullTransactionIDs int64             `json:"null_transaction_ids"`
	DateRange          DateRange         `json:"date_range"`
	StatusDistribution []StatusCount     `json:"status_distribution"`
	AmountSummary      AmountSummary     `json:"amount_summary"`
	Errors             map[string]string `json:"errors,omitempty"`
	DataQuality        Score             `json:"data_quality"`
}

// ComputeScore derives the composite score. Both parts are 0 when total is 0.
func ComputeScore(total, unique, nullIDs int64) Score {
	if total <= 0 {
		return Score{}
	}
	s := Score{
		Completeness: clamp((1 - float64(nullIDs)/float64(total)) * 100),
		Uniqueness:   clamp(float64(unique) / float64(total) * 100),
	}
	s.Total = (s.Completeness + s.Uniqueness) / 2
	return s
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Validate runs every check. Each check is isolated: a failure is recorded
// in Report.Errors and the remaining checks still run.
func Validate(ctx context.Context, c Checker, date *civil.Date, log zerolog.Logger) Report {
	r := Report{StatusDistribution: []StatusCount{}}

	record := func(name string, err error) {
		if err == nil {
			return
		}
		log.Error().Err(err).Str("check", name).Msg("Validation check failed")
		if r.Errors == nil {
			r.Errors = map[string]string{}
		}
		r.Errors[name] = err.Error()
	}

	var err error
	r.TotalRows, err = c.TotalRows(ctx, date)
	record(CheckTotalRows, err)

	r.UniqueTransactions, err = c.UniqueTransactions(ctx, date)
	record(CheckUniqueTransactions, err)

	r.NullTransactionIDs, err = c.NullTransactionIDs(ctx, date)
	record(CheckNullIDs, err)

	r.DateRange, err = c.DateRange(ctx, date)
	record(CheckDateRange, err)

	if dist, err := c.StatusDistribution(ctx, date); err != nil {
		record(CheckStatusDistribution, err)
	} else if dist != nil {
		r.StatusDistribution = dist
	}

	r.AmountSummary, err = c.AmountSummary(ctx, date)
	record(CheckAmountSummary, err)

	r.DataQuality = ComputeScore(r.TotalRows, r.UniqueTransactions, r.NullTransactionIDs)

	ev := log.Info().
		Int64("total_rows", r.TotalRows).
		Int64("unique_transactions", r.UniqueTransactions).
		Float64("total_score", r.DataQuality.Total).
		Int("failed_checks", len(r.Errors))
	if date != nil {
		ev = ev.Str("date", date.String())
	}
	ev.Msg("Validation complete")
	return r
}
