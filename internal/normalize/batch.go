package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/stats"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of normalizing one batch.
type Result struct {
	Transactions []domain.Transaction
	Failures     []domain.ParseFailure
	Findings     []domain.ValidationFinding
	Warnings     []string
}

// SuccessRate is parsed / (parsed + failed) as a percentage, 0 for an empty
// batch.
func (r Result) SuccessRate() float64 {
	return stats.SuccessRate(len(r.Transactions), len(r.Failures))
}

func defaultWorkers() int {
	return runtime.NumCPU()
}

// Batch normalizes raws concurrently. Each worker owns a contiguous slice of
// the input and its own result; results are merged in input order, so the
// output order matches raws.
func (n *Normalizer) Batch(ctx context.Context, raws []json.RawMessage) (Result, error) {
	if len(raws) == 0 {
		n.log.Warn().Msg("No transactions to normalize")
		return Result{Transactions: []domain.Transaction{}}, nil
	}

	workers := min(n.workers, len(raws))
	chunk := (len(raws) + workers - 1) / workers
	parts := make([]Result, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(raws))
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			part := &parts[w]
			for _, raw := range raws[lo:hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				n.normalizeInto(part, raw)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("Batch: %w", err)
	}

	out := Result{Transactions: make([]domain.Transaction, 0, len(raws))}
	for _, p := range parts {
		out.Transactions = append(out.Transactions, p.Transactions...)
		out.Failures = append(out.Failures, p.Failures...)
		out.Findings = append(out.Findings, p.Findings...)
		out.Warnings = append(out.Warnings, p.Warnings...)
	}

	n.log.Info().
		Int("input", len(raws)).
		Int("records", len(out.Transactions)).
		Int("parse_failures", len(out.Failures)).
		Int("validation_findings", len(out.Findings)).
		Float64("success_rate", out.SuccessRate()).
		Msg("Normalization complete")
	return out, nil
}

func (n *Normalizer) normalizeInto(part *Result, raw json.RawMessage) {
	tx, warnings, err := n.Normalize(raw)
	if err != nil {
		f := Failure(raw, err)
		n.log.Error().Err(err).Str("transaction_id", f.TransactionID).Msg("Failed to parse transaction")
		part.Failures = append(part.Failures, f)
		return
	}

	id := tx.TransactionID
	if id == "" {
		id = domain.UnknownTransactionID
	}
	for _, w := range warnings {
		n.log.Warn().Str("transaction_id", id).Msg(w)
		part.Warnings = append(part.Warnings, id+": "+w)
	}
	if errs := Validate(tx); len(errs) > 0 {
		n.log.Warn().Str("transaction_id", id).Strs("errors", errs).Msg("Validation failed")
		part.Findings = append(part.Findings, domain.ValidationFinding{TransactionID: id, Errors: errs})
	}
	part.Transactions = append(part.Transactions, tx)
}
