package bigquery

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/google/go-cmp/cmp"
)

var testConfig = Config{
	ProjectID:   "proj",
	Dataset:     "paypal_data",
	Table:       "transactions",
	Location:    "US",
	Environment: "dev",
}

func TestTransactionSchema(t *testing.T) {
	schema := TransactionSchema()

	var names []string
	for _, f := range schema {
		names = append(names, f.Name)
	}
	want := []string{
		"transaction_id", "paypal_account_id", "transaction_status", "transaction_subject",
		"transaction_note", "invoice_id", "amount", "currency_code", "fee_amount", "net_amount",
		"transaction_date", "updated_date", "payer_email", "payer_name", "payer_country", "payer_id",
		"payment_method", "store_info", "custom_field", "shipping_method", "shipping_name",
		"shipping_address", "item_count", "items", "parsed_at", "loaded_at",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("schema columns mismatch (-want +got):\n%s", diff)
	}

	if !schema[0].Required {
		t.Error("transaction_id should be REQUIRED")
	}
	items := schema[23]
	if items.Type != bigquery.RecordFieldType || !items.Repeated || len(items.Schema) != 7 {
		t.Errorf("items = %+v", items)
	}
}

func TestTransactionTableMetadata(t *testing.T) {
	md := transactionTableMetadata(testConfig)
	if md.TimePartitioning == nil || md.TimePartitioning.Field != "transaction_date" || md.TimePartitioning.Type != bigquery.DayPartitioningType {
		t.Errorf("partitioning = %+v", md.TimePartitioning)
	}
	if diff := cmp.Diff(ClusteringFields, md.Clustering.Fields); diff != "" {
		t.Errorf("clustering mismatch (-want +got):\n%s", diff)
	}
	if md.Labels["pipeline"] != "paypal-etl" || md.Labels["environment"] != "dev" {
		t.Errorf("labels = %v", md.Labels)
	}
}

func TestCheckQuery(t *testing.T) {
	date := civil.Date{Year: 2025, Month: 7, Day: 30}

	tests := []struct {
		name       string
		check      string
		date       *civil.Date
		wantWhere  string
		wantParams int
	}{
		{"total rows filtered", quality.CheckTotalRows, &date, "WHERE DATE(transaction_date) = @filter_date", 1},
		{"total rows whole table", quality.CheckTotalRows, nil, "", 0},
		{"null ids filtered", quality.CheckNullIDs, &date, "WHERE DATE(transaction_date) = @filter_date AND " + nullIDCondition, 1},
		{"null ids whole table", quality.CheckNullIDs, nil, "WHERE " + nullIDCondition, 0},
		{"status distribution", quality.CheckStatusDistribution, &date, "WHERE DATE(transaction_date) = @filter_date", 1},
		{"unique ids skip empty", quality.CheckUniqueTransactions, nil, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := CheckQuery(testConfig, tt.check, tt.date)
			if err != nil {
				t.Fatalf("CheckQuery failed: %v", err)
			}
			if !strings.Contains(sql, "`proj.paypal_data.transactions`") {
				t.Errorf("query does not reference the table: %s", sql)
			}
			if tt.wantWhere != "" && !strings.Contains(sql, tt.wantWhere) {
				t.Errorf("query missing %q: %s", tt.wantWhere, sql)
			}
			if tt.wantWhere == "" && strings.Contains(sql, "WHERE") {
				t.Errorf("unexpected WHERE: %s", sql)
			}
			if tt.check == quality.CheckUniqueTransactions && !strings.Contains(sql, "COUNT(DISTINCT NULLIF(transaction_id, ''))") {
				t.Errorf("unique count includes empty ids: %s", sql)
			}
			if len(params) != tt.wantParams {
				t.Fatalf("params = %v", params)
			}
			if tt.wantParams == 1 && (params[0].Name != "filter_date" || params[0].Value != date) {
				t.Errorf("param = %+v", params[0])
			}
		})
	}

	if _, _, err := CheckQuery(testConfig, "bogus", nil); err == nil {
		t.Error("expected error for unknown check")
	}
}

func TestViews(t *testing.T) {
	views := Views(testConfig)
	var names []string
	for _, v := range views {
		names = append(names, v.Name)
		if !strings.Contains(v.SQL, "CREATE OR REPLACE VIEW `proj.paypal_data."+v.Name+"`") {
			t.Errorf("view %s has unexpected SQL: %s", v.Name, v.SQL)
		}
	}
	if diff := cmp.Diff([]string{"daily_summary", "payer_summary", "recent_transactions"}, names); diff != "" {
		t.Errorf("views mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadJobLabels(t *testing.T) {
	got := LoadJobLabels(testConfig, time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC))
	want := map[string]string{"pipeline": "paypal-etl", "environment": "dev", "date": "2025-07-31"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadResult(t *testing.T) {
	created := time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC)
	status := &bigquery.JobStatus{
		State: bigquery.Done,
		Statistics: &bigquery.JobStatistics{
			CreationTime: created,
			StartTime:    created.Add(time.Second),
			EndTime:      created.Add(5 * time.Second),
			Details: &bigquery.LoadStatistics{
				InputFiles:     1,
				InputFileBytes: 2048,
				OutputBytes:    4096,
				OutputRows:     25,
			},
		},
		Errors: []*bigquery.Error{
			{Reason: "invalid", Message: "bad row"},
			{Reason: "invalid", Message: "bad amount"},
		},
	}

	res := loadResult("job-1", status)
	if res.JobID != "job-1" || res.State != domain.LoadStateDone {
		t.Errorf("job = %s, state = %s", res.JobID, res.State)
	}
	if res.OutputRows != 25 || res.BadRecords != 2 || res.InputBytes != 2048 || res.InputFiles != 1 {
		t.Errorf("unexpected statistics: %+v", res)
	}
	if !res.EndedAt.Equal(created.Add(5 * time.Second)) {
		t.Errorf("ended = %v", res.EndedAt)
	}
	if len(res.Errors) != 2 {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestNewTransactionRow(t *testing.T) {
	when := domain.NewTimestamp(time.Date(2025, 7, 30, 10, 30, 0, 0, time.UTC))
	tx := domain.Transaction{
		TransactionID:   "T1",
		Amount:          100,
		FeeAmount:       2,
		NetAmount:       98,
		StoreID:         "store-1",
		TransactionDate: &when,
		ItemCount:       1,
		Items:           []domain.Item{{Name: "Widget", Quantity: "1", Amount: 100}},
		ParsedAt:        when,
	}
	now := time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC)

	row := NewTransactionRow(tx, now)
	if row.StoreInfo != "store-1" || row.ItemCount != 1 || len(row.Items) != 1 {
		t.Errorf("unexpected row: %+v", row)
	}
	if !row.TransactionDate.Valid || !row.TransactionDate.Timestamp.Equal(when.Time) {
		t.Errorf("transaction_date = %+v", row.TransactionDate)
	}
	if row.UpdatedDate.Valid {
		t.Error("updated_date should be NULL")
	}
	if !row.LoadedAt.Valid || !row.LoadedAt.Timestamp.Equal(now) {
		t.Errorf("loaded_at = %+v", row.LoadedAt)
	}
}

func TestErrorMessage(t *testing.T) {
	if got := ErrorMessage([]string{"a", "b"}); got != "a; b" {
		t.Errorf("ErrorMessage = %q", got)
	}
	long := ErrorMessage([]string{strings.Repeat("x", 3000)})
	if len(long) != maxErrorLen {
		t.Errorf("len = %d, want %d", len(long), maxErrorLen)
	}
}

func TestRunRowSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(RunRow{})
	if err != nil {
		t.Fatalf("InferSchema failed: %v", err)
	}
	if len(schema) != 13 {
		t.Errorf("columns = %d, want 13", len(schema))
	}
}
