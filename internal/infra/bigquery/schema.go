package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

const (
	pipelineLabel    = "paypal-etl"
	tableDescription = "PayPal transaction data with comprehensive details"
	partitionField   = "transaction_date"
)

// ClusteringFields are the table's clustering columns, in order.
var ClusteringFields = []string{"transaction_status", "currency_code", "payment_method"}

// TransactionSchema is the default schema of the transactions table.
func TransactionSchema() bigquery.Schema {
	str := func(name string) *bigquery.FieldSchema {
		return &bigquery.FieldSchema{Name: name, Type: bigquery.StringFieldType}
	}
	float := func(name string) *bigquery.FieldSchema {
		return &bigquery.FieldSchema{Name: name, Type: bigquery.FloatFieldType}
	}
	ts := func(name string) *bigquery.FieldSchema {
		return &bigquery.FieldSchema{Name: name, Type: bigquery.TimestampFieldType}
	}

	return bigquery.Schema{
		{Name: "transaction_id", Type: bigquery.StringFieldType, Required: true},
		str("paypal_account_id"),
		str("transaction_status"),
		str("transaction_subject"),
		str("transaction_note"),
		str("invoice_id"),
		float("amount"),
		str("currency_code"),
		float("fee_amount"),
		float("net_amount"),
		ts("transaction_date"),
		ts("updated_date"),
		str("payer_email"),
		str("payer_name"),
		str("payer_country"),
		str("payer_id"),
		str("payment_method"),
		str("store_info"),
		str("custom_field"),
		str("shipping_method"),
		str("shipping_name"),
		str("shipping_address"),
		{Name: "item_count", Type: bigquery.IntegerFieldType},
		{
			Name:     "items",
			Type:     bigquery.RecordFieldType,
			Repeated: true,
			Schema: bigquery.Schema{
				str("item_name"),
				str("item_quantity"),
				float("item_unit_price"),
				float("item_amount"),
				str("item_description"),
				str("item_sku"),
				str("item_category"),
			},
		},
		ts("parsed_at"),
		ts("loaded_at"),
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func labels(cfg Config) map[string]string {
	return map[string]string{
		"pipeline":    pipelineLabel,
		"environment": cfg.Environment,
	}
}

// EnsureDatasetWithClient creates the dataset if it does not exist.
func EnsureDatasetWithClient(ctx context.Context, client *bigquery.Client, cfg Config) error {
	ds := client.DatasetInProject(cfg.ProjectID, cfg.Dataset)
	if _, err := ds.Metadata(ctx); err == nil {
		return nil
	} else if !isNotFound(err) {
		return fmt.Errorf("EnsureDataset: reading metadata: %w", err)
	}

	err := ds.Create(ctx, &bigquery.DatasetMetadata{
		Description: "PayPal transaction data",
		Location:    cfg.Location,
		Labels:      labels(cfg),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureDataset: creating %s: %w", cfg.Dataset, err)
	}
	return nil
}

// EnsureTableWithClient creates the transactions table, partitioned by day
// on transaction_date and clustered on ClusteringFields.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, cfg Config) error {
	t := client.DatasetInProject(cfg.ProjectID, cfg.Dataset).Table(cfg.Table)
	if _, err := t.Metadata(ctx); err == nil {
		return nil
	} else if !isNotFound(err) {
		return fmt.Errorf("EnsureTable: reading metadata: %w", err)
	}

	err := t.Create(ctx, transactionTableMetadata(cfg))
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTable: creating %s: %w", cfg.Table, err)
	}
	return nil
}

func transactionTableMetadata(cfg Config) *bigquery.TableMetadata {
	l := labels(cfg)
	l["team"] = "data-engineering"
	return &bigquery.TableMetadata{
		Description: tableDescription,
		Schema:      TransactionSchema(),
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: partitionField,
		},
		Clustering: &bigquery.Clustering{Fields: ClusteringFields},
		Labels:     l,
	}
}
