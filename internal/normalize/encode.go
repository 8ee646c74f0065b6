package normalize

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// Format is an output encoding for a normalized batch.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSONL, FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("ParseFormat: unknown format %q (want jsonl, json or csv)", s)
}

// Encode writes res in the given format.
func Encode(w io.Writer, format Format, res Result, now time.Time) error {
	switch format {
	case FormatJSONL:
		return WriteJSONL(w, res.Transactions)
	case FormatJSON:
		return WriteJSON(w, res, now)
	case FormatCSV:
		return WriteCSV(w, res.Transactions)
	}
	return fmt.Errorf("Encode: unknown format %q", format)
}

// WriteJSONL writes one record per line; this is the sink load format.
func WriteJSONL(w io.Writer, txs []domain.Transaction) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range txs {
		if err := enc.Encode(&txs[i]); err != nil {
			return fmt.Errorf("WriteJSONL: record %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("WriteJSONL: flush: %w", err)
	}
	return nil
}

// ReadJSONL reads records written by WriteJSONL. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]domain.Transaction, error) {
	dec := json.NewDecoder(r)
	var out []domain.Transaction
	for {
		var tx domain.Transaction
		err := dec.Decode(&tx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ReadJSONL: record %d: %w", len(out)+1, err)
		}
		out = append(out, tx)
	}
}

type jsonDocument struct {
	Metadata         jsonMetadata               `json:"metadata"`
	Transactions     []domain.Transaction       `json:"transactions"`
	ParsingErrors    []domain.ParseFailure      `json:"parsing_errors"`
	ValidationErrors []domain.ValidationFinding `json:"validation_errors"`
}

type jsonMetadata struct {
	ParsedAt          string `json:"parsed_at"`
	TotalTransactions int    `json:"total_transactions"`
	ParsingErrors     int    `json:"parsing_errors"`
	ValidationErrors  int    `json:"validation_errors"`
}

// WriteJSON writes the batch with its failures and findings as one
// indented document.
func WriteJSON(w io.Writer, res Result, now time.Time) error {
	doc := jsonDocument{
		Metadata: jsonMetadata{
			ParsedAt:          now.UTC().Format(time.RFC3339),
			TotalTransactions: len(res.Transactions),
			ParsingErrors:     len(res.Failures),
			ValidationErrors:  len(res.Findings),
		},
		Transactions:     nonNil(res.Transactions),
		ParsingErrors:    nonNil(res.Failures),
		ValidationErrors: nonNil(res.Findings),
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}
	return nil
}

// CSVHeader lists the flattened columns in output order.
var CSVHeader = []string{
	"transaction_id", "paypal_account_id", "transaction_status", "transaction_subject",
	"transaction_note", "invoice_id", "amount", "currency_code", "fee_amount", "net_amount",
	"transaction_date", "updated_date", "payer_email", "payer_name", "payer_country", "payer_id",
	"payment_method", "store_info", "custom_field", "shipping_method", "shipping_name",
	"shipping_address", "item_count", "parsed_at", "item_names", "total_item_amount",
}

// WriteCSV writes a flattened table: items are replaced by item_names and
// total_item_amount.
func WriteCSV(w io.Writer, txs []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	for i, tx := range txs {
		row := []string{
			tx.TransactionID, tx.PayPalAccountID, tx.TransactionStatus, tx.TransactionSubject,
			tx.TransactionNote, tx.InvoiceID, formatFloat(tx.Amount), tx.CurrencyCode,
			formatFloat(tx.FeeAmount), formatFloat(tx.NetAmount),
			timestampCell(tx.TransactionDate), timestampCell(tx.UpdatedDate),
			tx.PayerEmail, tx.PayerName, tx.PayerCountry, tx.PayerID,
			tx.PaymentMethod, tx.StoreID, tx.CustomField, tx.ShippingMethod, tx.ShippingName,
			tx.ShippingAddress, strconv.Itoa(tx.ItemCount), tx.ParsedAt.String(),
			tx.ItemNames(), formatFloat(tx.TotalItemAmount()),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("WriteCSV: row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func timestampCell(ts *domain.Timestamp) string {
	if ts == nil {
		return ""
	}
	return ts.String()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
