package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	waits []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	return ctx.Err()
}

func TestPolicy_Do(t *testing.T) {
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		failures  []error
		retryable func(error) bool
		wantCalls int
		wantErr   error
		wantWaits []time.Duration
	}{
		{
			name:      "succeeds first time",
			wantCalls: 1,
		},
		{
			name:      "succeeds on third attempt",
			failures:  []error{errTransient, errTransient},
			wantCalls: 3,
			wantWaits: []time.Duration{5 * time.Second, 10 * time.Second},
		},
		{
			name:      "exhausts attempts and returns last error unchanged",
			failures:  []error{errTransient, errTransient, errFatal},
			wantCalls: 3,
			wantErr:   errFatal,
			wantWaits: []time.Duration{5 * time.Second, 10 * time.Second},
		},
		{
			name:      "non retryable error stops immediately",
			failures:  []error{errFatal},
			retryable: func(err error) bool { return !errors.Is(err, errFatal) },
			wantCalls: 1,
			wantErr:   errFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{}
			p := Default()
			p.Sleep = clock.Sleep
			p.Retryable = tt.retryable

			calls := 0
			err := p.Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			if err != tt.wantErr {
				t.Errorf("Do() error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
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

func TestPolicy_DoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Default()
	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	if err == nil || calls != 1 {
		t.Errorf("expected a single failed attempt, got calls=%d err=%v", calls, err)
	}
}

func TestPolicy_Delays(t *testing.T) {
	got := Default().Delays()
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Delays() = %v, want %v", got, want)
	}
}
