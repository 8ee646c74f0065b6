package paypal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawTransaction is one transaction_details entry from the reporting API.
// Every group and field is optional; the normalizer decides the defaults.
type RawTransaction struct {
	TransactionInfo *TransactionInfo `json:"transaction_info,omitempty"`
	PayerInfo       *PayerInfo       `json:"payer_info,omitempty"`
	ShippingInfo    *ShippingInfo    `json:"shipping_info,omitempty"`
	CartInfo        *CartInfo        `json:"cart_info,omitempty"`
}

// TransactionInfo holds the transaction facts group.
type TransactionInfo struct {
	TransactionID             Text         `json:"transaction_id,omitzero"`
	PayPalAccountID           Text         `json:"paypal_account_id,omitzero"`
	TransactionStatus         Text         `json:"transaction_status,omitzero"`
	TransactionSubject        Text         `json:"transaction_subject,omitzero"`
	TransactionNote           Text         `json:"transaction_note,omitzero"`
	InvoiceID                 Text         `json:"invoice_id,omitzero"`
	TransactionAmount         *Money       `json:"transaction_amount,omitempty"`
	FeeAmount                 *Money       `json:"fee_amount,omitempty"`
	TransactionInitiationDate Text         `json:"transaction_initiation_date,omitzero"`
	TransactionUpdatedDate    Text         `json:"transaction_updated_date,omitzero"`
	PaymentTrackingInfo       TrackingList `json:"payment_tracking_info,omitempty"`
	StoreInfo                 *StoreInfo   `json:"store_info,omitempty"`
	CustomField               Text         `json:"custom_field,omitzero"`
}

// Money is an amount with its currency.
type Money struct {
	CurrencyCode Text   `json:"currency_code,omitzero"`
	Value        Amount `json:"value,omitzero"`
}

// PaymentTracking is one payment_tracking_info entry.
type PaymentTracking struct {
	PaymentMethod Text `json:"payment_method,omitzero"`
}

// TrackingList is payment_tracking_info. A value that is not an array is
// treated as an empty list.
type TrackingList []PaymentTracking

// UnmarshalJSON implements json.Unmarshaler.
func (l *TrackingList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		*l = nil
		return nil
	}
	var items []PaymentTracking
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// StoreInfo identifies the merchant store.
type StoreInfo struct {
	StoreID Text `json:"store_id,omitzero"`
}

// PayerInfo holds the payer identity group.
type PayerInfo struct {
	EmailAddress Text  `json:"email_address,omitzero"`
	PayerName    *Name `json:"payer_name,omitempty"`
	CountryCode  Text  `json:"country_code,omitzero"`
	PayerID      Text  `json:"payer_id,omitzero"`
}

// Name is a given name / surname pair.
type Name struct {
	GivenName Text `json:"given_name,omitzero"`
	Surname   Text `json:"surname,omitzero"`
}

// ShippingInfo holds the shipping group.
type ShippingInfo struct {
	Method  Text     `json:"method,omitzero"`
	Name    *Name    `json:"name,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Address is a postal address.
type Address struct {
	AddressLine1 Text `json:"address_line_1,omitzero"`
	AddressLine2 Text `json:"address_line_2,omitzero"`
	AdminArea2   Text `json:"admin_area_2,omitzero"`
	AdminArea1   Text `json:"admin_area_1,omitzero"`
	PostalCode   Text `json:"postal_code,omitzero"`
	CountryCode  Text `json:"country_code,omitzero"`
}

// CartInfo holds the line items.
type CartInfo struct {
	ItemDetails []ItemDetail `json:"item_details,omitempty"`
}

// ItemDetail is one raw cart line.
type ItemDetail struct {
	ItemName        Text   `json:"item_name,omitzero"`
	ItemQuantity    Text   `json:"item_quantity,omitzero"`
	ItemUnitPrice   *Money `json:"item_unit_price,omitempty"`
	ItemAmount      *Money `json:"item_amount,omitempty"`
	ItemDescription Text   `json:"item_description,omitzero"`
	SKU             Text   `json:"sku,omitzero"`
	ItemCategory    Text   `json:"item_category,omitzero"`
}

// DecodeRawTransaction decodes one record. Structural mismatches (a group
// that is not an object, a text field holding an object) are errors, and so
// is a record that is null or not an object at all.
func DecodeRawTransaction(raw json.RawMessage) (RawTransaction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return RawTransaction{}, fmt.Errorf("DecodeRawTransaction: %w", ErrNotAnObject)
	}
	var rt RawTransaction
	if err := json.Unmarshal(raw, &rt); err != nil {
		return RawTransaction{}, fmt.Errorf("DecodeRawTransaction: %w", err)
	}
	return rt, nil
}

// PeekTransactionID reads transaction_info.transaction_id without decoding
// the rest of the record. It returns "" when absent or unreadable.
func PeekTransactionID(raw json.RawMessage) string {
	var probe struct {
		TransactionInfo struct {
			TransactionID json.RawMessage `json:"transaction_id"`
		} `json:"transaction_info"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	var t Text
	if err := t.UnmarshalJSON(probe.TransactionInfo.TransactionID); err != nil {
		return ""
	}
	return t.Value
}

// Text is an optional scalar field. Strings are kept as-is, numbers and
// booleans keep their literal text, null or absent is invalid.
type Text struct {
	Value string
	Valid bool
}

// NewText returns a present Text.
func NewText(s string) Text {
	return Text{Value: s, Valid: true}
}

// IsZero reports absence; used by omitzero.
func (t Text) IsZero() bool {
	return !t.Valid
}

// Or returns the value when present, otherwise def.
func (t Text) Or(def string) string {
	if !t.Valid {
		return def
	}
	return t.Value
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Text{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = NewText(s)
	case '{', '[':
		return fmt.Errorf("expected scalar, got %s", jsonKind(b[0]))
	default:
		*t = NewText(string(b))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}

// Amount is a monetary value as sent upstream (usually a decimal string).
// Decoding never fails: anything that is not a string or number is kept as
// an invalid amount and coerces to 0.
type Amount struct {
	Raw   string
	Valid bool
}

// NewAmount formats v with two decimals.
func NewAmount(v float64) Amount {
	return Amount{Raw: strconv.FormatFloat(v, 'f', 2, 64), Valid: true}
}

// IsZero reports absence; used by omitzero.
func (a Amount) IsZero() bool {
	return !a.Valid
}

// Float coerces the amount to a float64. Missing, non-numeric, NaN and
// infinite values become 0.
func (a Amount) Float() float64 {
	if !a.Valid {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(a.Raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*a = Amount{}
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*a = Amount{Raw: s, Valid: true}
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*a = Amount{Raw: string(b), Valid: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Raw)
}

func jsonKind(c byte) string {
	if c == '{' {
		return "object"
	}
	return "array"
}
