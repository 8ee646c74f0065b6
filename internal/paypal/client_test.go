package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/retry"
)

type tokenServer struct {
	exchanges atomic.Int32
	failFirst int32
	expiresIn int
	dataCalls atomic.Int32
	dataCode  atomic.Int32
	lastAuth  atomic.Value
}

func (s *tokenServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		n := s.exchanges.Add(1)
		if n <= s.failFirst {
			http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
			return
		}
		if user, _, ok := r.BasicAuth(); !ok || user != "client-id" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, s.expiresIn)
	})
	mux.HandleFunc("/v1/reporting/transactions", func(w http.ResponseWriter, r *http.Request) {
		s.dataCalls.Add(1)
		s.lastAuth.Store(r.Header.Get("Authorization"))
		code := int(s.dataCode.Load())
		if code == 0 {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprint(w, `{"transaction_details":[]}`)
	})
	return mux
}

type fakeClock struct {
	waits []time.Duration
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return ctx.Err()
}

func newTestClient(t *testing.T, ts *tokenServer, clock *fakeClock) *Client {
	t.Helper()
	srv := httptest.NewServer(ts.handler())
	t.Cleanup(srv.Close)

	policy := retry.Default()
	policy.Sleep = clock.Sleep
	return NewClient(ClientConfig{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "secret",
	}, WithRetryPolicy(policy))
}

func TestClient_TokenIsCached(t *testing.T) {
	ts := &tokenServer{expiresIn: 3600}
	c := newTestClient(t, ts, &fakeClock{})
	ctx := context.Background()

	first, err := c.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	second, err := c.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if first.AccessToken != second.AccessToken {
		t.Errorf("expected cached token, got %q then %q", first.AccessToken, second.AccessToken)
	}
	if got := ts.exchanges.Load(); got != 1 {
		t.Errorf("expected 1 exchange, got %d", got)
	}
}

func TestClient_TokenWithinSafetyMarginIsNotReused(t *testing.T) {
	ts := &tokenServer{expiresIn: 30}
	c := newTestClient(t, ts, &fakeClock{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Token(ctx); err != nil {
			t.Fatalf("Token failed: %v", err)
		}
	}
	if got := ts.exchanges.Load(); got != 2 {
		t.Errorf("expected 2 exchanges, got %d", got)
	}
}

func TestClient_TokenRetriesWithBackoff(t *testing.T) {
	tests := []struct {
		name          string
		failFirst     int32
		wantErr       bool
		wantExchanges int32
		wantWaits     []time.Duration
	}{
		{
			name:          "succeeds on third attempt",
			failFirst:     2,
			wantExchanges: 3,
			wantWaits:     []time.Duration{5 * time.Second, 10 * time.Second},
		},
		{
			name:          "gives up after three attempts",
			failFirst:     3,
			wantErr:       true,
			wantExchanges: 3,
			wantWaits:     []time.Duration{5 * time.Second, 10 * time.Second},
		},
		{
			name:          "first attempt succeeds",
			wantExchanges: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := &tokenServer{expiresIn: 3600, failFirst: tt.failFirst}
			clock := &fakeClock{}
			c := newTestClient(t, ts, clock)

			_, err := c.Token(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Token() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var serr *StatusError
				if !errors.As(err, &serr) || serr.StatusCode != http.StatusInternalServerError {
					t.Errorf("expected last StatusError 500, got %v", err)
				}
			}
			if got := ts.exchanges.Load(); got != tt.wantExchanges {
				t.Errorf("exchanges = %d, want %d", got, tt.wantExchanges)
			}
			if len(clock.waits) != len(tt.wantWaits) {
				t.Fatalf("waits = %v, want %v", clock.waits, tt.wantWaits)
			}
			for i := range tt.wantWaits {
				if clock.waits[i] != tt.wantWaits[i] {
					t.Errorf("wait[%d] = %v, want %v", i, clock.waits[i], tt.wantWaits[i])
				}
			}
		})
	}
}

func TestClient_NoCredentials(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.Token(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if err := c.Probe(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Probe: expected ErrNoCredentials, got %v", err)
	}
}

func TestClient_DoSendsBearerToken(t *testing.T) {
	ts := &tokenServer{expiresIn: 3600}
	c := newTestClient(t, ts, &fakeClock{})

	resp, err := c.Do(context.Background(), http.MethodGet, transactionsPath, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := ts.lastAuth.Load(); got != "Bearer tok-1" {
		t.Errorf("Authorization = %v", got)
	}
}

func TestClient_UnauthorizedInvalidatesToken(t *testing.T) {
	ts := &tokenServer{expiresIn: 3600}
	ts.dataCode.Store(http.StatusUnauthorized)
	c := newTestClient(t, ts, &fakeClock{})
	ctx := context.Background()

	_, err := c.Do(ctx, http.MethodGet, transactionsPath, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	ts.dataCode.Store(http.StatusOK)
	if _, err := c.Do(ctx, http.MethodGet, transactionsPath, nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := ts.exchanges.Load(); got != 2 {
		t.Errorf("expected a fresh exchange after 401, got %d exchanges", got)
	}
	if got := ts.lastAuth.Load(); got != "Bearer tok-2" {
		t.Errorf("Authorization = %v", got)
	}
}

func TestStatusError_Is(t *testing.T) {
	tests := []struct {
		code        int
		unauth      bool
		rateLimited bool
	}{
		{http.StatusUnauthorized, true, false},
		{http.StatusForbidden, true, false},
		{http.StatusTooManyRequests, false, true},
		{http.StatusInternalServerError, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &StatusError{StatusCode: tt.code})
			if errors.Is(err, ErrUnauthorized) != tt.unauth {
				t.Errorf("Is(ErrUnauthorized) = %v", !tt.unauth)
			}
			if errors.Is(err, ErrRateLimited) != tt.rateLimited {
				t.Errorf("Is(ErrRateLimited) = %v", !tt.rateLimited)
			}
		})
	}
}
