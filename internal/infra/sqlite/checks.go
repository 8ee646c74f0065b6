package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
)

func whereClause(date *civil.Date, extra ...string) (string, []any) {
	var conds []string
	var args []any
	if date != nil {
		conds = append(conds, "DATE(transaction_date) = ?")
		args = append(args, date.String())
	}
	conds = append(conds, extra...)
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (s *Sink) count(ctx context.Context, check, expr string, date *civil.Date, extra ...string) (int64, error) {
	where, args := whereClause(date, extra...)
	var n int64
	q := fmt.Sprintf("SELECT %s FROM transactions %s", expr, where)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", check, err)
	}
	return n, nil
}

// TotalRows implements quality.Checker.
func (s *Sink) TotalRows(ctx context.Context, date *civil.Date) (int64, error) {
	return s.count(ctx, quality.CheckTotalRows, "COUNT(*)", date)
}

// UniqueTransactions implements quality.Checker.
func (s *Sink) UniqueTransactions(ctx context.Context, date *civil.Date) (int64, error) {
	return s.count(ctx, quality.CheckUniqueTransactions, "COUNT(DISTINCT NULLIF(transaction_id, ''))", date)
}

// NullTransactionIDs implements quality.Checker. Empty ids count as null
// since the column is NOT NULL.
func (s *Sink) NullTransactionIDs(ctx context.Context, date *civil.Date) (int64, error) {
	return s.count(ctx, quality.CheckNullIDs, "COUNT(*)", date, "(transaction_id IS NULL OR transaction_id = '')")
}

// DateRange implements quality.Checker.
func (s *Sink) DateRange(ctx context.Context, date *civil.Date) (quality.DateRange, error) {
	where, args := whereClause(date)
	q := fmt.Sprintf(`
		SELECT MIN(transaction_date), MAX(transaction_date), COUNT(DISTINCT DATE(transaction_date))
		FROM transactions %s`, where)

	var minDate, maxDate sql.NullString
	var unique int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&minDate, &maxDate, &unique); err != nil {
		return quality.DateRange{}, fmt.Errorf("%s: %w", quality.CheckDateRange, err)
	}

	var out quality.DateRange
	if !minDate.Valid {
		return out, nil
	}
	lo, err := parseTime(minDate.String)
	if err != nil {
		return out, fmt.Errorf("%s: min date: %w", quality.CheckDateRange, err)
	}
	hi, err := parseTime(maxDate.String)
	if err != nil {
		return out, fmt.Errorf("%s: max date: %w", quality.CheckDateRange, err)
	}
	out.MinDate, out.MaxDate, out.UniqueDates = &lo, &hi, unique
	return out, nil
}

// StatusDistribution implements quality.Checker.
func (s *Sink) StatusDistribution(ctx context.Context, date *civil.Date) ([]quality.StatusCount, error) {
	where, args := whereClause(date)
	q := fmt.Sprintf(`
		SELECT
			COALESCE(transaction_status, 'NULL') AS status,
			COUNT(*) AS count,
			ROUND(COUNT(*) * 100.0 / SUM(COUNT(*)) OVER (), 2) AS percentage
		FROM transactions %s
		GROUP BY transaction_status
		ORDER BY count DESC, status`, where)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", quality.CheckStatusDistribution, err)
	}
	defer rows.Close()

	out := []quality.StatusCount{}
	for rows.Next() {
		var sc quality.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.Percentage); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", quality.CheckStatusDistribution, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", quality.CheckStatusDistribution, err)
	}
	return out, nil
}

// AmountSummary implements quality.Checker.
func (s *Sink) AmountSummary(ctx context.Context, date *civil.Date) (quality.AmountSummary, error) {
	where, args := whereClause(date)
	q := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN amount > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount < 0 THEN 1 ELSE 0 END), 0),
			ROUND(AVG(amount), 2),
			ROUND(SUM(amount), 2),
			ROUND(MIN(amount), 2),
			ROUND(MAX(amount), 2)
		FROM transactions %s`, where)

	var out quality.AmountSummary
	var avg, total, lo, hi sql.NullFloat64
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&out.TotalTransactions, &out.PositiveAmounts, &out.ZeroAmounts, &out.NegativeAmounts,
		&avg, &total, &lo, &hi,
	)
	if err != nil {
		return quality.AmountSummary{}, fmt.Errorf("%s: %w", quality.CheckAmountSummary, err)
	}
	out.AvgAmount, out.TotalAmount, out.MinAmount, out.MaxAmount = avg.Float64, total.Float64, lo.Float64, hi.Float64
	return out, nil
}
