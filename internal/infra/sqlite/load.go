package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/paypal-pipeline/internal/artifact"
	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/google/uuid"
)

// ErrTableNotEmpty is returned by a WRITE_EMPTY load into a table with rows.
var ErrTableNotEmpty = errors.New("sqlite: table is not empty")

const insertTransaction = `
	INSERT INTO transactions (
		transaction_id, paypal_account_id, transaction_status, transaction_subject,
		transaction_note, invoice_id, amount, currency_code, fee_amount, net_amount,
		transaction_date, updated_date, payer_email, payer_name, payer_country, payer_id,
		payment_method, store_info, custom_field, shipping_method, shipping_name,
		shipping_address, item_count, items, parsed_at, loaded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`

// Load inserts the request's transactions, reading them from LocalPath when
// the request carries none, then stamps loaded_at. WRITE_TRUNCATE first
// deletes the rows dated inside the window; WRITE_EMPTY fails with
// ErrTableNotEmpty when any row exists.
func (s *Sink) Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error) {
	started := s.now()
	res := domain.LoadResult{
		JobID:     "sqlite_" + uuid.NewString(),
		CreatedAt: started,
		StartedAt: started,
	}

	txs := req.Transactions
	if len(txs) == 0 && req.LocalPath != "" {
		var err error
		if txs, err = artifact.ReadParsed(req.LocalPath); err != nil {
			return res, fmt.Errorf("Load: %w", err)
		}
		res.InputFiles = 1
		if fi, err := os.Stat(req.LocalPath); err == nil {
			res.InputBytes = fi.Size()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("Load: begin: %w", err)
	}
	defer tx.Rollback()

	switch req.WriteDisposition {
	case config.WriteEmpty:
		var n int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
			return res, fmt.Errorf("Load: counting rows: %w", err)
		}
		if n > 0 {
			return res, fmt.Errorf("Load: %w (%d rows)", ErrTableNotEmpty, n)
		}
	case config.WriteTruncate:
		deleted, err := tx.ExecContext(ctx,
			"DELETE FROM transactions WHERE DATE(transaction_date) BETWEEN ? AND ?",
			req.Window.Start.String(), req.Window.End.String())
		if err != nil {
			return res, fmt.Errorf("Load: clearing window %s: %w", req.Window, err)
		}
		n, _ := deleted.RowsAffected()
		s.log.Info().Int64("deleted_rows", n).Str("window", req.Window.Key()).Msg("Cleared window before load")
	}

	stmt, err := tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return res, fmt.Errorf("Load: prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		args, err := insertArgs(t)
		if err != nil {
			return res, fmt.Errorf("Load: %s: %w", t.TransactionID, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return res, fmt.Errorf("Load: inserting %s: %w", t.TransactionID, err)
		}
		res.OutputRows++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("Load: commit: %w", err)
	}

	updated, err := s.UpdateLoadedTimestamp(ctx)
	if err != nil {
		return res, err
	}
	res.UpdatedRows = updated
	res.State = domain.LoadStateDone
	res.EndedAt = s.now()

	s.log.Info().
		Str("job_id", res.JobID).
		Int64("output_rows", res.OutputRows).
		Int64("updated_rows", res.UpdatedRows).
		Msg("Load completed")
	return res, nil
}

// UpdateLoadedTimestamp stamps loaded_at on rows that have none.
func (s *Sink) UpdateLoadedTimestamp(ctx context.Context) (int64, error) {
	r, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET loaded_at = ? WHERE loaded_at IS NULL", formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("UpdateLoadedTimestamp: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("UpdateLoadedTimestamp: rows affected: %w", err)
	}
	return n, nil
}

func nullTime(ts *domain.Timestamp) sql.NullString {
	if ts == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(ts.Time), Valid: true}
}

func insertArgs(t domain.Transaction) ([]any, error) {
	items := t.Items
	if items == nil {
		items = []domain.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding items: %w", err)
	}
	return []any{
		t.TransactionID, t.PayPalAccountID, t.TransactionStatus, t.TransactionSubject,
		t.TransactionNote, t.InvoiceID, t.Amount, t.CurrencyCode, t.FeeAmount, t.NetAmount,
		nullTime(t.TransactionDate), nullTime(t.UpdatedDate),
		t.PayerEmail, t.PayerName, t.PayerCountry, t.PayerID,
		t.PaymentMethod, t.StoreID, t.CustomField, t.ShippingMethod, t.ShippingName,
		t.ShippingAddress, t.ItemCount, string(itemsJSON), formatTime(t.ParsedAt.Time),
	}, nil
}
