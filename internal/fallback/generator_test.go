package fallback

import (
	"context"
	"testing"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/paypal"
	"github.com/google/go-cmp/cmp"
)

func mustWindow(t *testing.T, start string) domain.Window {
	t.Helper()
	w, err := domain.ParseWindow(start, "")
	if err != nil {
		t.Fatalf("ParseWindow failed: %v", err)
	}
	return w
}

func TestGenerate_Shape(t *testing.T) {
	recs, err := Generate(mustWindow(t, "2025-07-30"), DefaultCount)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(recs) != 25 {
		t.Fatalf("expected 25 records, got %d", len(recs))
	}

	first, err := paypal.DecodeRawTransaction(recs[0])
	if err != nil {
		t.Fatalf("DecodeRawTransaction failed: %v", err)
	}
	info := first.TransactionInfo
	if info == nil || first.PayerInfo == nil || first.CartInfo == nil {
		t.Fatalf("missing groups in %s", recs[0])
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"id", info.TransactionID.Value, "MOCK001_20250730"},
		{"amount", info.TransactionAmount.Value.Raw, "12.50"},
		{"fee", info.FeeAmount.Value.Raw, "0.25"},
		{"status", info.TransactionStatus.Value, "S"},
		{"date", info.TransactionInitiationDate.Value, "2025-07-30T11:30:00+00:00"},
		{"invoice", info.InvoiceID.Value, "INV_2025-07-30_001"},
		{"email", first.PayerInfo.EmailAddress.Value, "customer1@example.com"},
		{"given name", first.PayerInfo.PayerName.GivenName.Value, "Customer1"},
		{"item", first.CartInfo.ItemDetails[0].ItemName.Value, "Product 1"},
		{"item amount", first.CartInfo.ItemDetails[0].ItemAmount.Value.Raw, "12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	last, err := paypal.DecodeRawTransaction(recs[24])
	if err != nil {
		t.Fatalf("DecodeRawTransaction failed: %v", err)
	}
	if got := last.TransactionInfo.TransactionAmount.Value.Raw; got != "312.50" {
		t.Errorf("last amount = %q, want 312.50", got)
	}
	if got := last.TransactionInfo.TransactionID.Value; got != "MOCK025_20250730" {
		t.Errorf("last id = %q", got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, _ := Generate(mustWindow(t, "2025-07-30"), 5)
	b, _ := Generate(mustWindow(t, "2025-07-30"), 5)

	as := make([]string, len(a))
	bs := make([]string, len(b))
	for i := range a {
		as[i] = string(a[i])
		bs[i] = string(b[i])
	}
	if diff := cmp.Diff(as, bs); diff != "" {
		t.Errorf("Generate not deterministic (-first +second):\n%s", diff)
	}
}

func TestSource(t *testing.T) {
	s := NewSource(0)
	if s.Count != DefaultCount || s.Name() != SourceName {
		t.Errorf("unexpected source %+v", s)
	}
	if err := s.Probe(context.Background()); err != nil {
		t.Errorf("Probe failed: %v", err)
	}

	recs, err := NewSource(3).Fetch(context.Background(), mustWindow(t, "2025-01-02"))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("expected 3 records, got %d", len(recs))
	}
	if id := paypal.PeekTransactionID(recs[2]); id != "MOCK003_20250102" {
		t.Errorf("third id = %q", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Fetch(ctx, mustWindow(t, "2025-01-02")); err == nil {
		t.Error("expected error for cancelled context")
	}
}
