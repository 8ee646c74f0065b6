package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// TransactionRow mirrors TransactionSchema for streaming inserts.
type TransactionRow struct {
	TransactionID      string `bigquery:"transaction_id"` // REQUIRED
	PayPalAccountID    string `bigquery:"paypal_account_id"`
	TransactionStatus  string `bigquery:"transaction_status"`
	TransactionSubject string `bigquery:"transaction_subject"`
	TransactionNote    string `bigquery:"transaction_note"`
	InvoiceID          string `bigquery:"invoice_id"`

	Amount       float64 `bigquery:"amount"`
	CurrencyCode string  `bigquery:"currency_code"`
	FeeAmount    float64 `bigquery:"fee_amount"`
	NetAmount    float64 `bigquery:"net_amount"`

	TransactionDate bigquery.NullTimestamp `bigquery:"transaction_date"` // partition column
	UpdatedDate     bigquery.NullTimestamp `bigquery:"updated_date"`

	PayerEmail   string `bigquery:"payer_email"`
	PayerName    string `bigquery:"payer_name"`
	PayerCountry string `bigquery:"payer_country"`
	PayerID      string `bigquery:"payer_id"`

	PaymentMethod string `bigquery:"payment_method"`
	StoreInfo     string `bigquery:"store_info"`
	CustomField   string `bigquery:"custom_field"`

	ShippingMethod  string `bigquery:"shipping_method"`
	ShippingName    string `bigquery:"shipping_name"`
	ShippingAddress string `bigquery:"shipping_address"`

	ItemCount int64     `bigquery:"item_count"`
	Items     []ItemRow `bigquery:"items"` // REPEATED RECORD

	ParsedAt time.Time              `bigquery:"parsed_at"`
	LoadedAt bigquery.NullTimestamp `bigquery:"loaded_at"`
}

// ItemRow is one element of the items column.
type ItemRow struct {
	Name        string  `bigquery:"item_name"`
	Quantity    string  `bigquery:"item_quantity"`
	UnitPrice   float64 `bigquery:"item_unit_price"`
	Amount      float64 `bigquery:"item_amount"`
	Description string  `bigquery:"item_description"`
	SKU         string  `bigquery:"item_sku"`
	Category    string  `bigquery:"item_category"`
}

func nullTimestamp(ts *domain.Timestamp) bigquery.NullTimestamp {
	if ts == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: ts.Time, Valid: true}
}

// NewTransactionRow converts a normalized transaction. loaded_at is stamped
// with now since a streamed row is loaded on insert.
func NewTransactionRow(tx domain.Transaction, now time.Time) *TransactionRow {
	items := make([]ItemRow, 0, len(tx.Items))
	for _, it := range tx.Items {
		items = append(items, ItemRow{
			Name:        it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      it.Amount,
			Description: it.Description,
			SKU:         it.SKU,
			Category:    it.Category,
		})
	}
	return &TransactionRow{
		TransactionID:      tx.TransactionID,
		PayPalAccountID:    tx.PayPalAccountID,
		TransactionStatus:  tx.TransactionStatus,
		TransactionSubject: tx.TransactionSubject,
		TransactionNote:    tx.TransactionNote,
		InvoiceID:          tx.InvoiceID,
		Amount:             tx.Amount,
		CurrencyCode:       tx.CurrencyCode,
		FeeAmount:          tx.FeeAmount,
		NetAmount:          tx.NetAmount,
		TransactionDate:    nullTimestamp(tx.TransactionDate),
		UpdatedDate:        nullTimestamp(tx.UpdatedDate),
		PayerEmail:         tx.PayerEmail,
		PayerName:          tx.PayerName,
		PayerCountry:       tx.PayerCountry,
		PayerID:            tx.PayerID,
		PaymentMethod:      tx.PaymentMethod,
		StoreInfo:          tx.StoreID,
		CustomField:        tx.CustomField,
		ShippingMethod:     tx.ShippingMethod,
		ShippingName:       tx.ShippingName,
		ShippingAddress:    tx.ShippingAddress,
		ItemCount:          int64(tx.ItemCount),
		Items:              items,
		ParsedAt:           tx.ParsedAt.Time,
		LoadedAt:           bigquery.NullTimestamp{Timestamp: now.UTC(), Valid: true},
	}
}
