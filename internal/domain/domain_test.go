package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestTimestamp_JSON(t *testing.T) {
	loc := time.FixedZone("PDT", -7*3600)
	ts := NewTimestamp(time.Date(2025, 7, 15, 10, 23, 0, 0, loc))

	b, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `"2025-07-15 17:23:00 UTC"` {
		t.Errorf("Marshal = %s", b)
	}

	var back Timestamp
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.Equal(ts.Time) {
		t.Errorf("round trip = %v, want %v", back, ts)
	}

	if err := json.Unmarshal([]byte(`"2025-07-15T17:23:00Z"`), &back); err != nil {
		t.Errorf("RFC3339 input rejected: %v", err)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &back); err == nil {
		t.Error("expected error for unrecognized timestamp")
	}
}

func TestTransaction_NullDatesSerializeAsNull(t *testing.T) {
	b, err := json.Marshal(Transaction{TransactionID: "T1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"transaction_date":null`) {
		t.Errorf("expected null transaction_date, got %s", s)
	}
	if strings.Contains(s, "loaded_at") {
		t.Errorf("loaded_at should be omitted before load, got %s", s)
	}
}

func TestTransaction_Helpers(t *testing.T) {
	ts := NewTimestamp(time.Date(2025, 7, 30, 23, 59, 0, 0, time.UTC))
	tx := Transaction{
		TransactionDate: &ts,
		Items: []Item{
			{Name: "Widget", Amount: 10},
			{Name: "Gadget", Amount: 2.5},
		},
	}

	if got := tx.DateKey(); got != "2025-07-30" {
		t.Errorf("DateKey() = %q", got)
	}
	if got := tx.ItemNames(); got != "Widget; Gadget" {
		t.Errorf("ItemNames() = %q", got)
	}
	if got := tx.TotalItemAmount(); got != 12.5 {
		t.Errorf("TotalItemAmount() = %v", got)
	}
	if got := (Transaction{}).DateKey(); got != "" {
		t.Errorf("DateKey() on empty = %q", got)
	}
}

func TestWindow(t *testing.T) {
	exec := time.Date(2025, 7, 31, 2, 0, 0, 0, time.UTC)
	w := DayBefore(exec)
	want := civil.Date{Year: 2025, Month: 7, Day: 30}
	if w.Start != want || w.End != want {
		t.Errorf("DayBefore = %v", w)
	}
	if w.Key() != "2025-07-30_to_2025-07-30" {
		t.Errorf("Key() = %q", w.Key())
	}

	w, err := ParseWindow("2025-07-29", "2025-07-31")
	if err != nil {
		t.Fatalf("ParseWindow failed: %v", err)
	}
	if len(w.Dates()) != 3 {
		t.Errorf("Dates() = %v", w.Dates())
	}
	if !w.Contains(civil.Date{Year: 2025, Month: 7, Day: 30}) {
		t.Error("expected window to contain 2025-07-30")
	}

	if _, err := ParseWindow("2025-07-31", "2025-07-29"); err == nil {
		t.Error("expected error for inverted window")
	}
	if _, err := ParseWindow("31/07/2025", ""); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestDegradedLoadResult(t *testing.T) {
	res := DegradedLoadResult(25, errTest("load job failed"))
	if !res.Degraded || res.OutputRows != 25 || res.State != LoadStateDegraded {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "load job failed" {
		t.Errorf("errors = %v", res.Errors)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
