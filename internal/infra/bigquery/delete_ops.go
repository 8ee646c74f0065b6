package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// DeleteWindowWithClient deletes the rows whose transaction date falls in
// window and returns how many were removed.
func DeleteWindowWithClient(ctx context.Context, client *bigquery.Client, cfg Config, window domain.Window) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE DATE(transaction_date) BETWEEN @start_date AND @end_date
	`, cfg.TableRef()))
	q.Location = cfg.Location
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: window.Start},
		{Name: "end_date", Value: window.End},
	}

	status, err := runQuery(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("DeleteWindow: %s: %w", window, err)
	}
	return affectedRows(status), nil
}
