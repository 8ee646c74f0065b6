package normalize

import (
	"fmt"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// validStatuses accepts both the single-letter and full-word forms.
var validStatuses = map[string]bool{
	"P": true, "S": true, "D": true, "V": true, "F": true,
	"Pending": true, "Success": true, "Denied": true, "Reversed": true, "Failed": true,
}

// Validate applies the business rules to a normalized record. Violations are
// reported, never fatal; an empty result means the record is clean.
func Validate(tx domain.Transaction) []string {
	var errs []string
	if tx.TransactionID == "" {
		errs = append(errs, "Missing required field: transaction_id")
	}
	if tx.Amount < 0 {
		errs = append(errs, "Amount cannot be negative")
	}
	if tx.TransactionStatus != "" && !validStatuses[tx.TransactionStatus] {
		errs = append(errs, fmt.Sprintf("Invalid transaction status: %s", tx.TransactionStatus))
	}
	if tx.CurrencyCode != "" && len(tx.CurrencyCode) != 3 {
		errs = append(errs, "Currency code must be 3 characters")
	}
	return errs
}
