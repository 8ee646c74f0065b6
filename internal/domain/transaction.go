package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the warehouse-friendly UTC layout used for every
// serialized timestamp.
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// Transaction is one normalized payment transaction (the flat analytic row).
// It is built once by the normalizer and never mutated afterwards.
type Transaction struct {
	TransactionID      string `json:"transaction_id"`
	PayPalAccountID    string `json:"paypal_account_id"`
	TransactionStatus  string `json:"transaction_status"`
	TransactionSubject string `json:"transaction_subject"`
	TransactionNote    string `json:"transaction_note"`
	InvoiceID          string `json:"invoice_id"`

	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
	FeeAmount    float64 `json:"fee_amount"`
	NetAmount    float64 `json:"net_amount"`

	TransactionDate *Timestamp `json:"transaction_date"`
	UpdatedDate     *Timestamp `json:"updated_date"`

	PayerEmail   string `json:"payer_email"`
	PayerName    string `json:"payer_name"`
	PayerCountry string `json:"payer_country"`
	PayerID      string `json:"payer_id"`

	PaymentMethod string `json:"payment_method"`
	StoreID       string `json:"store_info"`
	CustomField   string `json:"custom_field"`

	ShippingMethod  string `json:"shipping_method"`
	ShippingName    string `json:"shipping_name"`
	ShippingAddress string `json:"shipping_address"`

	ItemCount int    `json:"item_count"`
	Items     []Item `json:"items"`

	ParsedAt Timestamp  `json:"parsed_at"`
	LoadedAt *Timestamp `json:"loaded_at,omitempty"`
}

// Item is one cart line of a transaction.
type Item struct {
	Name        string  `json:"item_name"`
	Quantity    string  `json:"item_quantity"`
	UnitPrice   float64 `json:"item_unit_price"`
	Amount      float64 `json:"item_amount"`
	Description string  `json:"item_description"`
	SKU         string  `json:"item_sku"`
	Category    string  `json:"item_category"`
}

// DateKey returns the YYYY-MM-DD part of the transaction date, or "" when
// the date is absent.
func (t Transaction) DateKey() string {
	if t.TransactionDate == nil {
		return ""
	}
	return t.TransactionDate.UTC().Format("2006-01-02")
}

// ItemNames joins the item names with "; " for flat exports.
func (t Transaction) ItemNames() string {
	names := make([]string, 0, len(t.Items))
	for _, it := range t.Items {
		names = append(names, it.Name)
	}
	return strings.Join(names, "; ")
}

// TotalItemAmount sums the line item amounts.
func (t Transaction) TotalItemAmount() float64 {
	var total float64
	for _, it := range t.Items {
		total += it.Amount
	}
	return total
}

// Timestamp is a UTC instant serialized with TimestampLayout.
type Timestamp struct {
	time.Time
}

// NewTimestamp converts t to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// String implements fmt.Stringer.
func (ts Timestamp) String() string {
	return ts.UTC().Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON accepts TimestampLayout and RFC3339.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("Timestamp: %w", err)
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("Timestamp: unrecognized format %q", s)
}
