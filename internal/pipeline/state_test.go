package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/rs/zerolog"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to pipeline.State
		want     bool
	}{
		{pipeline.StateExtract, pipeline.StateNormalize, true},
		{pipeline.StateExtract, pipeline.StateExtractFailed, true},
		{pipeline.StateExtractFailed, pipeline.StateFallback, true},
		{pipeline.StateFallback, pipeline.StateNormalize, true},
		{pipeline.StateNormalize, pipeline.StateLoad, true},
		{pipeline.StateLoad, pipeline.StateLoadFailed, true},
		{pipeline.StateLoadFailed, pipeline.StateDegradedReport, true},
		{pipeline.StateDegradedReport, pipeline.StateDone, true},
		{pipeline.StateValidate, pipeline.StateDone, true},
		{pipeline.StateNormalize, pipeline.StateAborted, true},
		{pipeline.StateExtract, pipeline.StateLoad, false},
		{pipeline.StateLoadFailed, pipeline.StateValidate, false},
		{pipeline.StateFallback, pipeline.StateExtract, false},
		{pipeline.StateDone, pipeline.StateAborted, false},
		{pipeline.StateAborted, pipeline.StateExtract, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := pipeline.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMachine_Run(t *testing.T) {
	next := func(s pipeline.State) pipeline.PipelineStep {
		return pipeline.StepFunc(func(ctx context.Context, st *pipeline.RunState) (pipeline.State, error) {
			return s, nil
		})
	}

	t.Run("reaches a terminal state", func(t *testing.T) {
		m := pipeline.NewMachine(map[pipeline.State]pipeline.PipelineStep{
			pipeline.StateExtract:   next(pipeline.StateNormalize),
			pipeline.StateNormalize: next(pipeline.StateLoad),
			pipeline.StateLoad:      next(pipeline.StateDone),
		}, zerolog.Nop())
		st := &pipeline.RunState{}

		if err := m.Run(context.Background(), st, pipeline.StateExtract); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		assertTrail(t, st.Trail, trail(pipeline.StateExtract, pipeline.StateNormalize, pipeline.StateLoad, pipeline.StateDone))
	})

	t.Run("step error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		m := pipeline.NewMachine(map[pipeline.State]pipeline.PipelineStep{
			pipeline.StateExtract: pipeline.StepFunc(func(ctx context.Context, st *pipeline.RunState) (pipeline.State, error) {
				return pipeline.StateAborted, boom
			}),
		}, zerolog.Nop())
		st := &pipeline.RunState{}

		if err := m.Run(context.Background(), st, pipeline.StateExtract); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		assertTrail(t, st.Trail, trail(pipeline.StateExtract, pipeline.StateAborted))
	})

	t.Run("invalid transition aborts", func(t *testing.T) {
		m := pipeline.NewMachine(map[pipeline.State]pipeline.PipelineStep{
			pipeline.StateExtract: next(pipeline.StateValidate),
		}, zerolog.Nop())
		st := &pipeline.RunState{}

		if err := m.Run(context.Background(), st, pipeline.StateExtract); err == nil {
			t.Fatal("expected an error")
		}
		assertTrail(t, st.Trail, trail(pipeline.StateExtract, pipeline.StateAborted))
	})

	t.Run("missing step aborts", func(t *testing.T) {
		m := pipeline.NewMachine(map[pipeline.State]pipeline.PipelineStep{
			pipeline.StateExtract: next(pipeline.StateNormalize),
		}, zerolog.Nop())

		if err := m.Run(context.Background(), &pipeline.RunState{}, pipeline.StateExtract); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := pipeline.NewMachine(map[pipeline.State]pipeline.PipelineStep{
			pipeline.StateExtract: next(pipeline.StateNormalize),
		}, zerolog.Nop())

		if err := m.Run(ctx, &pipeline.RunState{}, pipeline.StateExtract); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestSelectSource(t *testing.T) {
	probeErr := errors.New("invalid_client")
	healthy := &MockSource{NameValue: "paypal_api"}
	broken := &MockSource{NameValue: "paypal_api", ProbeFunc: func(ctx context.Context) error { return probeErr }}
	synthetic := &MockSource{NameValue: "synthetic"}

	tests := []struct {
		name         string
		mode         string
		sources      pipeline.Sources
		wantName     string
		wantFallback bool
		wantErr      error
	}{
		{"auto healthy remote", config.SourceAuto, pipeline.Sources{Remote: healthy, Synthetic: synthetic}, "paypal_api", true, nil},
		{"auto broken remote", config.SourceAuto, pipeline.Sources{Remote: broken, Synthetic: synthetic}, "synthetic", false, nil},
		{"auto without credentials", config.SourceAuto, pipeline.Sources{Synthetic: synthetic}, "synthetic", false, nil},
		{"auto with nothing usable", config.SourceAuto, pipeline.Sources{Remote: broken}, "", false, pipeline.ErrSourceUnavailable},
		{"remote healthy", config.SourceRemote, pipeline.Sources{Remote: healthy, Synthetic: synthetic}, "paypal_api", false, nil},
		{"remote broken", config.SourceRemote, pipeline.Sources{Remote: broken, Synthetic: synthetic}, "", false, pipeline.ErrSourceUnavailable},
		{"remote missing", config.SourceRemote, pipeline.Sources{Synthetic: synthetic}, "", false, pipeline.ErrSourceUnavailable},
		{"synthetic", config.SourceSynthetic, pipeline.Sources{Remote: healthy, Synthetic: synthetic}, "synthetic", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, fallback, err := pipeline.SelectSource(context.Background(), tt.mode, tt.sources, zerolog.Nop())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectSource failed: %v", err)
			}
			if src.Name() != tt.wantName || fallback != tt.wantFallback {
				t.Errorf("got %s (fallback %v), want %s (fallback %v)", src.Name(), fallback, tt.wantName, tt.wantFallback)
			}
		})
	}

	t.Run("remote probe error is wrapped", func(t *testing.T) {
		_, _, err := pipeline.SelectSource(context.Background(), config.SourceRemote, pipeline.Sources{Remote: broken}, zerolog.Nop())
		if !errors.Is(err, probeErr) {
			t.Errorf("probe error lost: %v", err)
		}
	})
}

func TestWindowLocks(t *testing.T) {
	locks := pipeline.NewWindowLocks()
	day := func(d int) civil.Date { return civil.Date{Year: 2025, Month: 7, Day: d} }
	first := domain.Window{Start: day(1), End: day(3)}
	overlapping := domain.Window{Start: day(3), End: day(5)}
	disjoint := domain.Window{Start: day(4), End: day(5)}

	if !locks.TryLock(first) {
		t.Fatal("first lock failed")
	}
	if locks.TryLock(overlapping) {
		t.Error("overlapping window locked")
	}
	if !locks.TryLock(disjoint) {
		t.Error("disjoint window not locked")
	}
	locks.Unlock(first)
	locks.Unlock(disjoint)
	if !locks.TryLock(overlapping) {
		t.Error("overlapping window not locked after unlock")
	}
}

func TestValidationDate(t *testing.T) {
	single := domain.Window{Start: targetDay, End: targetDay}
	if d := pipeline.ValidationDate(single); d == nil || *d != targetDay {
		t.Errorf("single-day date = %v", d)
	}
	multi := domain.Window{Start: targetDay.AddDays(-2), End: targetDay}
	if d := pipeline.ValidationDate(multi); d != nil {
		t.Errorf("multi-day date = %v, want nil", d)
	}
}
