package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/richvergo/subtract-sub005/internal/artifact"
	"github.com/richvergo/subtract-sub005/internal/retry"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/log"
)

type (
	// StepExecutor performs atomic actions against a run's target. Every
	// action is retried under the run's retry policy, with each attempt
	// bounded by the step timeout
	StepExecutor struct {
		target    target.Target
		artifacts artifact.Store
		policy    retry.Policy
		settings  Settings
		clock     Clock
	}

	action func(ctx context.Context, sel, value string) (any, error)
)

const screenshotTimeout = 10 * time.Second

// NewStepExecutor creates an executor bound to a single run's target
func NewStepExecutor(
	t target.Target, artifacts artifact.Store, policy retry.Policy,
	settings Settings, clock Clock,
) *StepExecutor {
	return &StepExecutor{
		target:    t,
		artifacts: artifacts,
		policy:    policy,
		settings:  settings,
		clock:     clock,
	}
}

// Execute renders the step's templates against rc, performs the action,
// and returns the resulting StepResult. The returned error is nil on
// success and otherwise wraps ErrVariableUnresolved, ErrStepExecution, or
// ErrCancelled
func (x *StepExecutor) Execute(
	ctx context.Context, rc *RunContext, step *api.Step,
) (*api.StepResult, error) {
	res := &api.StepResult{
		StepID:    step.ID,
		Kind:      step.Kind,
		StartedAt: x.clock(),
		Metadata:  api.Metadata{},
	}

	sel, value, err := x.render(rc, step)
	if err != nil {
		return x.fail(res, step, err), err
	}
	if sel != "" {
		res.Metadata[api.MetaTarget] = sel
	}

	act, err := x.actionFor(step)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStepExecution, step.ID, err)
		return x.fail(res, step, err), err
	}

	timeout := x.settings.StepTimeoutFor(step)
	res.Metadata[api.MetaTimeout] = timeout.Milliseconds()

	out := retry.ExecuteWithErrorHandling(ctx, x.policy,
		func(ctx context.Context) (any, error) {
			if !boundedAction(step, sel) {
				return act(ctx, sel, value)
			}
			actx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return act(actx, sel, value)
		},
		func(err error, _ int) bool {
			return target.IsTransient(err)
		},
		x.settings.RetryAttempts,
	)
	res.Attempts = out.Attempts

	if out.Success {
		res.Status = api.StepSuccess
		res.Output = out.Result
		res.CompletedAt = x.clock()
		if step.Kind == api.ActionExtract {
			rc.Capture(step.ID, out.Result)
		}
		return res, nil
	}

	if out.IsCancelled() || ctx.Err() != nil {
		err = fmt.Errorf("%w: step %s: %w", ErrCancelled, step.ID, out.Err)
		return x.fail(res, step, err), err
	}

	err = fmt.Errorf("%w: %s: %w", ErrStepExecution, step.ID, out.Err)
	if x.settings.ScreenshotOnError {
		res.Artifact = x.screenshot(ctx, rc.RunID(), step.ID)
	}
	slog.Warn("Step failed",
		log.RunID(rc.RunID()),
		log.StepID(step.ID),
		log.Attempts(out.Attempts),
		log.Error(out.Err))
	return x.fail(res, step, err), err
}

func (x *StepExecutor) render(
	rc *RunContext, step *api.Step,
) (string, string, error) {
	sel, err := rc.Render(step.Target)
	if err != nil {
		return "", "", err
	}
	value, err := rc.Render(step.Value)
	if err != nil {
		return "", "", err
	}
	return sel, value, nil
}

func (x *StepExecutor) actionFor(step *api.Step) (action, error) {
	t := x.target
	switch step.Kind {
	case api.ActionNavigate:
		return func(ctx context.Context, url, _ string) (any, error) {
			return nil, t.Navigate(ctx, url)
		}, nil
	case api.ActionClick:
		return func(ctx context.Context, sel, _ string) (any, error) {
			return nil, t.Click(ctx, sel)
		}, nil
	case api.ActionType:
		return func(ctx context.Context, sel, value string) (any, error) {
			return nil, t.Type(ctx, sel, value)
		}, nil
	case api.ActionExtract:
		return func(ctx context.Context, sel, _ string) (any, error) {
			return t.Extract(ctx, sel)
		}, nil
	case api.ActionWait:
		if step.Target != "" {
			return func(ctx context.Context, sel, _ string) (any, error) {
				return nil, t.WaitFor(ctx, sel)
			}, nil
		}
		return sleepAction, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, step.Kind)
	}
}

// screenshot captures and stores a single image of the target after the
// last failed attempt. Capture problems are logged, never propagated
func (x *StepExecutor) screenshot(
	ctx context.Context, runID api.RunID, stepID api.StepID,
) string {
	if x.artifacts == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	data, err := x.target.Screenshot(ctx)
	if err != nil {
		slog.Warn("Screenshot capture failed",
			log.RunID(runID),
			log.StepID(stepID),
			log.Error(err))
		return ""
	}
	ref, err := x.artifacts.Put(ctx, runID, stepID, data)
	if err != nil {
		slog.Warn("Screenshot upload failed",
			log.RunID(runID),
			log.StepID(stepID),
			log.Error(err))
		return ""
	}
	return ref
}

func (x *StepExecutor) fail(
	res *api.StepResult, step *api.Step, err error,
) *api.StepResult {
	res.Status = api.StepFailure
	if step.Optional && errors.Is(err, ErrVariableUnresolved) {
		res.Status = api.StepSkipped
	}
	res.Error = err.Error()
	res.CompletedAt = x.clock()
	return res
}

// boundedAction reports whether attempts of the step run under the step
// timeout. Plain sleeps are bounded only by the run
func boundedAction(step *api.Step, sel string) bool {
	return step.Kind != api.ActionWait || sel != ""
}

func sleepAction(ctx context.Context, _, value string) (any, error) {
	d, err := parseWait(value)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// parseWait reads a wait value as milliseconds, or as a Go duration
// string such as "1.5s"
func parseWait(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
		return millis(ms), nil
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWait, value)
}
