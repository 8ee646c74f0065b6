package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PipelineStep runs one state and returns the next one. Returning an error
// aborts the run.
type PipelineStep interface {
	Execute(ctx context.Context, st *RunState) (State, error)
}

// StepFunc adapts a function to PipelineStep.
type StepFunc func(ctx context.Context, st *RunState) (State, error)

// Execute implements PipelineStep.
func (f StepFunc) Execute(ctx context.Context, st *RunState) (State, error) {
	return f(ctx, st)
}

// Machine drives a RunState from a start state to a terminal state.
type Machine struct {
	steps map[State]PipelineStep
	log   zerolog.Logger
}

// NewMachine creates a machine over the given steps.
func NewMachine(steps map[State]PipelineStep, log zerolog.Logger) *Machine {
	return &Machine{steps: steps, log: log}
}

// Run executes steps until a terminal state is reached. Every visited state,
// the terminal one included, is appended to st.Trail. The returned error is
// the reason for ABORTED.
func (m *Machine) Run(ctx context.Context, st *RunState, start State) error {
	cur := start
	for !cur.Terminal() {
		st.Trail = append(st.Trail, cur)

		if err := ctx.Err(); err != nil {
			return m.abort(st, cur, err)
		}
		step, ok := m.steps[cur]
		if !ok {
			return m.abort(st, cur, fmt.Errorf("Machine.Run: no step for state %s", cur))
		}

		next, err := step.Execute(ctx, st)
		if err != nil {
			return m.abort(st, cur, err)
		}
		if !CanTransition(cur, next) {
			return m.abort(st, cur, fmt.Errorf("Machine.Run: invalid transition %s -> %s", cur, next))
		}

		m.log.Debug().Str("from", string(cur)).Str("to", string(next)).Msg("State transition")
		cur = next
	}
	st.Trail = append(st.Trail, cur)
	return nil
}

func (m *Machine) abort(st *RunState, at State, err error) error {
	m.log.Error().Err(err).Str("state", string(at)).Msg("Run aborted")
	st.Trail = append(st.Trail, StateAborted)
	return err
}
