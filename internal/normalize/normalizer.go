// Package normalize maps raw reporting records onto the flat transaction row.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/paypal"
	"github.com/rs/zerolog"
)

// DefaultCurrency is used when the amount group carries no currency.
const DefaultCurrency = "USD"

// timestampLayouts are tried in order for initiation and update dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock sets the source of parsed_at.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithLogger sets the normalizer logger.
func WithLogger(log zerolog.Logger) Option {
	return func(n *Normalizer) {
		n.log = log
	}
}

// WithWorkers bounds Batch concurrency.
func WithWorkers(workers int) Option {
	return func(n *Normalizer) {
		if workers > 0 {
			n.workers = workers
		}
	}
}

// Normalizer converts RawTransaction records. It holds no per-batch state
// and is safe for concurrent use.
type Normalizer struct {
	now     func() time.Time
	log     zerolog.Logger
	workers int
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:     time.Now,
		log:     zerolog.Nop(),
		workers: defaultWorkers(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps one raw record. Missing groups and fields take their
// defaults; the only error is a structurally broken record, which the caller
// records as a ParseFailure. Warnings list fields that were dropped, such as
// unparseable timestamps.
func (n *Normalizer) Normalize(raw json.RawMessage) (domain.Transaction, []string, error) {
	rt, err := paypal.DecodeRawTransaction(raw)
	if err != nil {
		return domain.Transaction{}, nil, err
	}

	info := rt.TransactionInfo
	if info == nil {
		info = &paypal.TransactionInfo{}
	}
	payer := rt.PayerInfo
	if payer == nil {
		payer = &paypal.PayerInfo{}
	}
	shipping := rt.ShippingInfo
	if shipping == nil {
		shipping = &paypal.ShippingInfo{}
	}

	var warnings []string
	amount, currency := moneyValue(info.TransactionAmount), DefaultCurrency
	if info.TransactionAmount != nil {
		currency = info.TransactionAmount.CurrencyCode.Or(DefaultCurrency)
	}
	fee := moneyValue(info.FeeAmount)

	tx := domain.Transaction{
		TransactionID:      info.TransactionID.Value,
		PayPalAccountID:    info.PayPalAccountID.Value,
		TransactionStatus:  info.TransactionStatus.Value,
		TransactionSubject: info.TransactionSubject.Value,
		TransactionNote:    info.TransactionNote.Value,
		InvoiceID:          info.InvoiceID.Value,

		Amount:       amount,
		CurrencyCode: currency,
		FeeAmount:    fee,
		NetAmount:    amount - fee,

		TransactionDate: parseTimestamp(info.TransactionInitiationDate, "transaction_initiation_date", &warnings),
		UpdatedDate:     parseTimestamp(info.TransactionUpdatedDate, "transaction_updated_date", &warnings),

		PayerEmail:   payer.EmailAddress.Value,
		PayerName:    fullName(payer.PayerName),
		PayerCountry: payer.CountryCode.Value,
		PayerID:      payer.PayerID.Value,

		PaymentMethod: paymentMethod(info.PaymentTrackingInfo),
		StoreID:       storeID(info.StoreInfo),
		CustomField:   info.CustomField.Value,

		ShippingMethod:  shipping.Method.Value,
		ShippingName:    fullName(shipping.Name),
		ShippingAddress: formatAddress(shipping.Address),

		Items:    []domain.Item{},
		ParsedAt: domain.NewTimestamp(n.now()),
	}

	if rt.CartInfo != nil {
		tx.Items = items(rt.CartInfo.ItemDetails)
	}
	tx.ItemCount = len(tx.Items)

	return tx, warnings, nil
}

// Failure builds the ParseFailure recorded for a rejected raw record.
func Failure(raw json.RawMessage, err error) domain.ParseFailure {
	id := paypal.PeekTransactionID(raw)
	if id == "" {
		id = domain.UnknownTransactionID
	}
	return domain.ParseFailure{TransactionID: id, Error: err.Error(), Raw: raw}
}

func moneyValue(m *paypal.Money) float64 {
	if m == nil {
		return 0
	}
	return m.Value.Float()
}

func parseTimestamp(t paypal.Text, field string, warnings *[]string) *domain.Timestamp {
	s := strings.TrimSpace(t.Value)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			ts := domain.NewTimestamp(parsed)
			return &ts
		}
	}
	*warnings = append(*warnings, fmt.Sprintf("Could not parse %s: %s", field, s))
	return nil
}

func fullName(name *paypal.Name) string {
	if name == nil {
		return ""
	}
	return joinPresent(" ", name.GivenName, name.Surname)
}

func formatAddress(addr *paypal.Address) string {
	if addr == nil {
		return ""
	}
	return joinPresent(", ",
		addr.AddressLine1,
		addr.AddressLine2,
		addr.AdminArea2,
		addr.AdminArea1,
		addr.PostalCode,
		addr.CountryCode,
	)
}

func joinPresent(sep string, parts ...paypal.Text) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p.Value); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

func paymentMethod(tracking paypal.TrackingList) string {
	if len(tracking) == 0 {
		return ""
	}
	return tracking[0].PaymentMethod.Value
}

func storeID(store *paypal.StoreInfo) string {
	if store == nil {
		return ""
	}
	return store.StoreID.Value
}

func items(details []paypal.ItemDetail) []domain.Item {
	out := make([]domain.Item, 0, len(details))
	for _, d := range details {
		out = append(out, domain.Item{
			Name:        strings.TrimSpace(d.ItemName.Value),
			Quantity:    d.ItemQuantity.Or("0"),
			UnitPrice:   moneyValue(d.ItemUnitPrice),
			Amount:      moneyValue(d.ItemAmount),
			Description: strings.TrimSpace(d.ItemDescription.Value),
			SKU:         strings.TrimSpace(d.SKU.Value),
			Category:    strings.TrimSpace(d.ItemCategory.Value),
		})
	}
	return out
}
