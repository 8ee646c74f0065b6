package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
)

// View is a named analytical view over the transactions table.
type View struct {
	Name string
	SQL  string
}

// Views returns the CREATE OR REPLACE statements, in creation order.
func Views(cfg Config) []View {
	table := cfg.TableRef()
	return []View{
		{
			Name: "daily_summary",
			SQL: fmt.Sprintf(`
				CREATE OR REPLACE VIEW %s AS
				SELECT
					DATE(transaction_date) AS date,
					transaction_status,
					currency_code,
					COUNT(*) AS transaction_count,
					ROUND(SUM(amount), 2) AS total_amount,
					ROUND(SUM(fee_amount), 2) AS total_fees,
					ROUND(SUM(net_amount), 2) AS total_net,
					ROUND(AVG(amount), 2) AS avg_amount
				FROM %s
				WHERE transaction_date IS NOT NULL
				GROUP BY date, transaction_status, currency_code
				ORDER BY date DESC, transaction_count DESC
			`, cfg.ref("daily_summary"), table),
		},
		{
			Name: "payer_summary",
			SQL: fmt.Sprintf(`
				CREATE OR REPLACE VIEW %s AS
				SELECT
					payer_email,
					payer_name,
					payer_country,
					COUNT(*) AS transaction_count,
					ROUND(SUM(amount), 2) AS total_amount,
					MIN(transaction_date) AS first_transaction,
					MAX(transaction_date) AS last_transaction,
					COUNT(DISTINCT DATE(transaction_date)) AS active_days
				FROM %s
				WHERE payer_email IS NOT NULL AND payer_email != ''
				GROUP BY payer_email, payer_name, payer_country
				HAVING transaction_count > 1
				ORDER BY total_amount DESC
			`, cfg.ref("payer_summary"), table),
		},
		{
			Name: "recent_transactions",
			SQL: fmt.Sprintf(`
				CREATE OR REPLACE VIEW %s AS
				SELECT *
				FROM %s
				WHERE transaction_date >= TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL 7 DAY)
				ORDER BY transaction_date DESC
			`, cfg.ref("recent_transactions"), table),
		},
	}
}

// CreateViewsWithClient creates every view. A failing view is logged and
// the rest are still attempted; the count of created views is returned
// with an error only when none succeeded.
func CreateViewsWithClient(ctx context.Context, client *bigquery.Client, cfg Config, log zerolog.Logger) (int, error) {
	views := Views(cfg)
	created := 0
	var lastErr error
	for _, v := range views {
		q := client.Query(v.SQL)
		q.Location = cfg.Location
		if _, err := runQuery(ctx, q); err != nil {
			log.Error().Err(err).Str("view", v.Name).Msg("Failed to create view")
			lastErr = err
			continue
		}
		created++
		log.Info().Str("view", v.Name).Msg("Created/updated view")
	}
	if created == 0 && lastErr != nil {
		return 0, fmt.Errorf("CreateViews: %w", lastErr)
	}
	return created, nil
}
