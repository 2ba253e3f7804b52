package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/richvergo/subtract-sub005/internal/engine/script"
	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/log"
)

type (
	// Interpreter walks a workflow's step tree for one run. Steps execute
	// strictly one at a time in declaration order; conditional branches are
	// spliced in place and loops run their body once per element
	Interpreter struct {
		rc      *RunContext
		exec    *StepExecutor
		scripts *script.Registry
		clock   Clock
		onStep  func(*api.StepResult)
		state   State
	}
)

// NewInterpreter creates an idle interpreter. onStep, when not nil, is
// called after each step result is recorded
func NewInterpreter(
	rc *RunContext, exec *StepExecutor, scripts *script.Registry,
	clock Clock, onStep func(*api.StepResult),
) *Interpreter {
	return &Interpreter{
		rc:      rc,
		exec:    exec,
		scripts: scripts,
		clock:   clock,
		onStep:  onStep,
		state:   StateIdle,
	}
}

// State returns the interpreter's lifecycle state
func (i *Interpreter) State() State {
	return i.state
}

// Run executes every top-level step. It returns nil when the workflow
// completes and the fatal error otherwise
func (i *Interpreter) Run(ctx context.Context) error {
	if err := i.transition(StateRunning); err != nil {
		return err
	}

	err := i.runSteps(ctx, i.rc.Workflow().Steps)
	if err != nil {
		_ = i.transition(StateFailed)
		return err
	}
	return i.transition(StateCompleted)
}

// Abort moves an idle or running interpreter to the failed state without
// executing anything further
func (i *Interpreter) Abort() {
	_ = i.transition(StateFailed)
}

func (i *Interpreter) transition(to State) error {
	if !stateTransitions.CanTransition(i.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.state, to)
	}
	i.state = to
	return nil
}

func (i *Interpreter) runSteps(ctx context.Context, steps []*api.Step) error {
	for _, step := range steps {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: before step %s: %w",
				ErrCancelled, step.ID, context.Cause(ctx))
		}
		if err := i.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interpreter) runStep(ctx context.Context, step *api.Step) error {
	switch step.Kind {
	case api.ActionConditional:
		return i.runConditional(ctx, step)
	case api.ActionLoop:
		return i.runLoop(ctx, step)
	default:
		return i.runAction(ctx, step)
	}
}

func (i *Interpreter) runAction(ctx context.Context, step *api.Step) error {
	res, err := i.exec.Execute(ctx, i.rc, step)
	i.record(res)
	return i.checkFailure(step, err)
}

func (i *Interpreter) record(res *api.StepResult) {
	i.rc.Append(res)
	if i.onStep != nil {
		i.onStep(res)
	}
}

// checkFailure applies the failure policy: cancellation always stops the
// run, other failures stop it unless the step is optional
func (i *Interpreter) checkFailure(step *api.Step, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) || !step.Optional {
		return err
	}
	slog.Info("Optional step failed, continuing",
		log.RunID(i.rc.RunID()),
		log.StepID(step.ID),
		log.Error(err))
	return nil
}

func (i *Interpreter) newResult(step *api.Step) *api.StepResult {
	return &api.StepResult{
		StepID:    step.ID,
		Kind:      step.Kind,
		StartedAt: i.clock(),
		Metadata:  api.Metadata{},
	}
}

func (i *Interpreter) finish(
	res *api.StepResult, step *api.Step, err error,
) *api.StepResult {
	res.CompletedAt = i.clock()
	switch {
	case err == nil:
		res.Status = api.StepSuccess
	case step.Optional && errors.Is(err, ErrVariableUnresolved):
		res.Status = api.StepSkipped
		res.Error = err.Error()
	default:
		res.Status = api.StepFailure
		res.Error = err.Error()
	}
	return res
}
