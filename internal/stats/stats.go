// Package stats summarizes a normalized batch.
package stats

import (
	"sort"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// UnknownStatus is the status bucket for records without a status.
const UnknownStatus = "UNKNOWN"

// Statistics is the batch summary reported by every run.
type Statistics struct {
	Summary                   Summary        `json:"summary"`
	StatusDistribution        map[string]int `json:"status_distribution"`
	CurrencyDistribution      map[string]int `json:"currency_distribution"`
	PaymentMethodDistribution map[string]int `json:"payment_method_distribution"`
	// DailySummary is sorted ascending by Date.
	DailySummary     []DailyTotals `json:"daily_summary"`
	AmountStatistics AmountStats   `json:"amount_statistics"`
}

// Summary holds the batch counts.
type Summary struct {
	TotalTransactions int     `json:"total_transactions"`
	ParsingErrors     int     `json:"parsing_errors"`
	ValidationErrors  int     `json:"validation_errors"`
	SuccessRate       float64 `json:"success_rate"`
}

// DailyTotals is the rollup for one transaction date.
type DailyTotals struct {
	Date        string  `json:"date"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
	TotalFee    float64 `json:"total_fee"`
	NetAmount   float64 `json:"net_amount"`
}

// AmountStats describes the strictly positive amounts.
type AmountStats struct {
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   int     `json:"count"`
}

// Summarize computes the statistics for a batch. parseFailures and
// validationFindings are the counts reported by the normalizer.
func Summarize(txs []domain.Transaction, parseFailures, validationFindings int) Statistics {
	s := Statistics{
		Summary: Summary{
			TotalTransactions: len(txs),
			ParsingErrors:     parseFailures,
			ValidationErrors:  validationFindings,
			SuccessRate:       SuccessRate(len(txs), parseFailures),
		},
		StatusDistribution:        map[string]int{},
		CurrencyDistribution:      map[string]int{},
		PaymentMethodDistribution: map[string]int{},
		DailySummary:              []DailyTotals{},
	}

	daily := map[string]*DailyTotals{}
	var amounts []float64

	for _, tx := range txs {
		status := tx.TransactionStatus
		if status == "" {
			status = UnknownStatus
		}
		s.StatusDistribution[status]++
		s.CurrencyDistribution[tx.CurrencyCode]++
		if tx.PaymentMethod != "" {
			s.PaymentMethodDistribution[tx.PaymentMethod]++
		}

		if key := tx.DateKey(); key != "" {
			d, ok := daily[key]
			if !ok {
				d = &DailyTotals{Date: key}
				daily[key] = d
			}
			d.Count++
			d.TotalAmount += tx.Amount
			d.TotalFee += tx.FeeAmount
			d.NetAmount += tx.NetAmount
		}

		if tx.Amount > 0 {
			amounts = append(amounts, tx.Amount)
		}
	}

	for _, d := range daily {
		s.DailySummary = append(s.DailySummary, *d)
	}
	sort.Slice(s.DailySummary, func(i, j int) bool {
		return s.DailySummary[i].Date < s.DailySummary[j].Date
	})

	s.AmountStatistics = amountStats(amounts)
	return s
}

// SuccessRate is parsed / (parsed + failed) * 100, or 0 when both are zero.
func SuccessRate(parsed, failed int) float64 {
	total := parsed + failed
	if total == 0 {
		return 0
	}
	return float64(parsed) / float64(total) * 100
}

// Day returns the rollup for date, if present.
func (s Statistics) Day(date string) (DailyTotals, bool) {
	for _, d := range s.DailySummary {
		if d.Date == date {
			return d, true
		}
	}
	return DailyTotals{}, false
}

func amountStats(amounts []float64) AmountStats {
	if len(amounts) == 0 {
		return AmountStats{}
	}
	sorted := append([]float64(nil), amounts...)
	sort.Float64s(sorted)

	var total float64
	for _, a := range sorted {
		total += a
	}
	return AmountStats{
		Total:   total,
		Average: total / float64(len(sorted)),
		Median:  sorted[len(sorted)/2],
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Count:   len(sorted),
	}
}
