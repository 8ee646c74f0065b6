// Package fallback produces deterministic synthetic transactions so a run can
// complete without upstream credentials or connectivity.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/paypal"
)

const (
	// DefaultCount is the batch size used when none is configured.
	DefaultCount = 25
	// SourceName identifies synthetic batches in summaries and artifacts.
	SourceName = "synthetic"

	amountStep = 12.50
	feeRate    = 0.02
)

// Generate builds n synthetic raw records for the window. The output depends
// only on window.Start and n; every record has the same nested shape the
// extractor returns.
func Generate(window domain.Window, n int) ([]json.RawMessage, error) {
	day := window.Start.String()
	compact := strings.ReplaceAll(day, "-", "")

	out := make([]json.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		b, err := json.Marshal(record(day, compact, i))
		if err != nil {
			return nil, fmt.Errorf("Generate: record %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func record(day, compact string, i int) paypal.RawTransaction {
	amount := float64(i) * amountStep
	total := usd(amount)

	return paypal.RawTransaction{
		TransactionInfo: &paypal.TransactionInfo{
			TransactionID:             paypal.NewText(fmt.Sprintf("MOCK%03d_%s", i, compact)),
			TransactionAmount:         total,
			FeeAmount:                 usd(amount * feeRate),
			TransactionStatus:         paypal.NewText("S"),
			TransactionInitiationDate: paypal.NewText(fmt.Sprintf("%sT%02d:30:00+00:00", day, 10+i%12)),
			InvoiceID:                 paypal.NewText(fmt.Sprintf("INV_%s_%03d", day, i)),
		},
		PayerInfo: &paypal.PayerInfo{
			EmailAddress: paypal.NewText(fmt.Sprintf("customer%d@example.com", i)),
			PayerName: &paypal.Name{
				GivenName: paypal.NewText(fmt.Sprintf("Customer%d", i)),
				Surname:   paypal.NewText("Test"),
			},
			CountryCode: paypal.NewText("US"),
		},
		CartInfo: &paypal.CartInfo{
			ItemDetails: []paypal.ItemDetail{{
				ItemName:     paypal.NewText(fmt.Sprintf("Product %d", i)),
				ItemQuantity: paypal.NewText("1"),
				ItemAmount:   total,
			}},
		},
	}
}

func usd(v float64) *paypal.Money {
	return &paypal.Money{CurrencyCode: paypal.NewText("USD"), Value: paypal.NewAmount(v)}
}

// Source is the synthetic DataSource.
type Source struct {
	Count int
}

// NewSource returns a Source producing count records per run; count <= 0
// means DefaultCount.
func NewSource(count int) *Source {
	if count <= 0 {
		count = DefaultCount
	}
	return &Source{Count: count}
}

// Name implements pipeline.DataSource.
func (s *Source) Name() string {
	return SourceName
}

// Probe always succeeds.
func (s *Source) Probe(ctx context.Context) error {
	return nil
}

// Fetch implements pipeline.DataSource.
func (s *Source) Fetch(ctx context.Context, window domain.Window) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Generate(window, s.Count)
}
