package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"google.golang.org/api/iterator"
)

// nullIDCondition treats an empty id like a missing one; the column is
// REQUIRED, so a load can only leave it empty.
const nullIDCondition = "(transaction_id IS NULL OR transaction_id = '')"

// whereClause builds the WHERE clause for a check. The date filter is a
// query parameter; extra conditions are ANDed after it.
func whereClause(date *civil.Date, extra ...string) (string, []bigquery.QueryParameter) {
	var conds []string
	var params []bigquery.QueryParameter
	if date != nil {
		conds = append(conds, "DATE(transaction_date) = @filter_date")
		params = append(params, bigquery.QueryParameter{Name: "filter_date", Value: *date})
	}
	conds = append(conds, extra...)
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), params
}

// CheckQuery returns the SQL and parameters of the named quality check.
func CheckQuery(cfg Config, check string, date *civil.Date) (string, []bigquery.QueryParameter, error) {
	table := cfg.TableRef()
	where, params := whereClause(date)

	var sql string
	switch check {
	case quality.CheckTotalRows:
		sql = fmt.Sprintf("SELECT COUNT(*) AS count FROM %s %s", table, where)
	case quality.CheckUniqueTransactions:
		sql = fmt.Sprintf("SELECT COUNT(DISTINCT NULLIF(transaction_id, '')) AS count FROM %s %s", table, where)
	case quality.CheckNullIDs:
		where, params = whereClause(date, nullIDCondition)
		sql = fmt.Sprintf("SELECT COUNT(*) AS count FROM %s %s", table, where)
	case quality.CheckDateRange:
		sql = fmt.Sprintf(`
			SELECT
				MIN(transaction_date) AS min_date,
				MAX(transaction_date) AS max_date,
				COUNT(DISTINCT DATE(transaction_date)) AS unique_dates
			FROM %s %s`, table, where)
	case quality.CheckStatusDistribution:
		sql = fmt.Sprintf(`
			SELECT
				COALESCE(transaction_status, 'NULL') AS status,
				COUNT(*) AS count,
				ROUND(COUNT(*) * 100.0 / SUM(COUNT(*)) OVER(), 2) AS percentage
			FROM %s %s
			GROUP BY transaction_status
			ORDER BY count DESC`, table, where)
	case quality.CheckAmountSummary:
		sql = fmt.Sprintf(`
			SELECT
				COUNT(*) AS total_transactions,
				COUNTIF(amount > 0) AS positive_amounts,
				COUNTIF(amount = 0) AS zero_amounts,
				COUNTIF(amount < 0) AS negative_amounts,
				ROUND(AVG(amount), 2) AS avg_amount,
				ROUND(SUM(amount), 2) AS total_amount,
				ROUND(MIN(amount), 2) AS min_amount,
				ROUND(MAX(amount), 2) AS max_amount
			FROM %s %s`, table, where)
	default:
		return "", nil, fmt.Errorf("CheckQuery: unknown check %q", check)
	}
	return sql, params, nil
}

func checkIterator(ctx context.Context, client *bigquery.Client, cfg Config, check string, date *civil.Date) (*bigquery.RowIterator, error) {
	sql, params, err := CheckQuery(cfg, check, date)
	if err != nil {
		return nil, err
	}
	q := client.Query(sql)
	q.Location = cfg.Location
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", check, err)
	}
	return it, nil
}

type countRow struct {
	Count int64 `bigquery:"count"`
}

func countWithClient(ctx context.Context, client *bigquery.Client, cfg Config, check string, date *civil.Date) (int64, error) {
	it, err := checkIterator(ctx, client, cfg, check, date)
	if err != nil {
		return 0, err
	}
	var row countRow
	err = it.Next(&row)
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: iter next: %w", check, err)
	}
	return row.Count, nil
}

// TotalRowsWithClient counts the rows.
func TotalRowsWithClient(ctx context.Context, client *bigquery.Client, cfg Config, date *civil.Date) (int64, error) {
	return countWithClient(ctx, client, cfg, quality.CheckTotalRows, date)
}

// UniqueTransactionsWithClient counts distinct transaction ids.
func UniqueTransactionsWithClient(ctx context.Context, client *bigquery.Client, cfg Config, date *civil.Date) (int64, error) {
	return countWithClient(ctx, client, cfg, quality.CheckUniqueTransactions, date)
}

// NullTransactionIDsWithClient counts rows without a transaction id.
func NullTransactionIDsWithClient(ctx context.Context, client *bigquery.Client, cfg Config, date *civil.Date) (int64, error) {
	return countWithClient(ctx, client, cfg, quality.CheckNullIDs, date)
}

type dateRangeRow struct {
	MinDate     bigquery.NullTimestamp `bigquery:"min_date"`
	MaxDate     bigquery.NullTimestamp `bigquery:"max_date"`
	UniqueDates int64                  `bigquery:"unique_dates"`
}

// DateRangeWithClient returns the span of transaction dates.
func DateRangeWithClient(ctx context.Context, client *bigquery.Client, cfg Config, date *civil.Date) (quality.DateRange, error) {
	it, err := checkIterator(ctx, client, cfg, quality.CheckDateRange, date)
	if err != nil {
		return quality.DateRange{}, err
	}
	var row dateRangeRow
	err = it.Next(&row)
	if err == iterator.Done {
		return quality.DateRange{}, nil
	}
	if err != nil {
		return quality.DateRange{}, fmt.Errorf("%s: iter next: %w", quality.CheckDateRange, err)
	}

	var out quality.DateRange
	if row.MinDate.Valid {
		t := row.MinDate.Timestamp.UTC()
		out.MinDate = &t
	}
	if row.MaxDate.Valid {
		t := row.MaxDate.Timestamp.UTC()
		out.MaxDate = &t
	}
	if out.MinDate != nil {
		out.UniqueDates = row.UniqueDates
	}
	return out, nil
}

type statusRow struct {
	Status     string  `bigquery:"status"`
	Count      int64   `bigquery:"count"`
	Percentage float64 `bigquery:"percentage"`
}

// StatusDistributionWithClient returns row counts per status, largest first.
func StatusDistributionWithClient(ctx context.Context, client *bigquery.Client, cfg Config, date *civil.Date) ([]quality.StatusCount, error) {
	it, err := checkIterator(ctx, client, cfg, quality.CheckStatusDistribution, date)
	if err != nil {
		return nil, err
	}

	out := []quality.StatusCount{}
	for {
		var r statusRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", quality.CheckStatusDistribution, err)
		}
		out = append(out, quality.StatusCount{Status: r.Status, Count: r.Count, Percentage: r.Percentage})
	}
	return out, nil
}

type amountRow struct {
	TotalTransactions int64                `bigquery:"total_transactions"`
	PositiveAmounts   int64                `bigquery:"positive_amounts"`
	ZeroAmounts       int64                `bigquery:"zero_amounts"`
	NegativeAmounts   int64                `bigquery:"negative_amounts"`
	AvgAmount         bigquery.NullFloat64 `bigquery:"avg_amount"`
	TotalAmount       bigquery.NullFloat64 `bigquery:"total_amount"`
	MinAmount         bigquery.NullFloat64 `bigquery:"min_amount"`
	MaxAmount         bigquery.NullFloat64 `bigquery:"max_amount"`
}

// AmountSummaryWithClient summarizes the signed amounts.
func AmountSummaryWithClient(ctx context.Context, client *bigquery.Client, cfg Config, date *civil.Date) (quality.AmountSummary, error) {
	it, err := checkIterator(ctx, client, cfg, quality.CheckAmountSummary, date)
	if err != nil {
		return quality.AmountSummary{}, err
	}
	var r amountRow
	err = it.Next(&r)
	if err == iterator.Done {
		return quality.AmountSummary{}, nil
	}
	if err != nil {
		return quality.AmountSummary{}, fmt.Errorf("%s: iter next: %w", quality.CheckAmountSummary, err)
	}
	return quality.AmountSummary{
		TotalTransactions: r.TotalTransactions,
		PositiveAmounts:   r.PositiveAmounts,
		ZeroAmounts:       r.ZeroAmounts,
		NegativeAmounts:   r.NegativeAmounts,
		AvgAmount:         r.AvgAmount.Float64,
		TotalAmount:       r.TotalAmount.Float64,
		MinAmount:         r.MinAmount.Float64,
		MaxAmount:         r.MaxAmount.Float64,
	}, nil
}
