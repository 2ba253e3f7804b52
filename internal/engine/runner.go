package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/richvergo/subtract-sub005/internal/events"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/log"
)

const finishTimeout = 10 * time.Second

// Run loads a workflow definition and executes it. Workflow-level failures,
// including invalid definitions and panics, are reported through a failed
// RunResult; the returned error is reserved for definition lookup problems
// and for ErrResourceAcquisition when no target could be acquired
func (e *Engine) Run(
	ctx context.Context, id api.WorkflowID, cfg api.RunConfig,
) (*api.RunResult, error) {
	def, err := e.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.RunDefinition(ctx, def, cfg)
}

// RunDefinition executes a definition that did not come from the engine's
// workflow source
func (e *Engine) RunDefinition(
	ctx context.Context, def *api.WorkflowDefinition, cfg api.RunConfig,
) (*api.RunResult, error) {
	runID := e.newID()
	started := e.clock()

	settings, err := e.prepare(def, cfg)
	if err != nil {
		return e.reject(ctx, runID, def, started, err), nil
	}

	tgt, err := e.targets.Acquire(ctx, target.Options{
		Label:    string(runID),
		Headless: settings.Headless,
	})
	if err != nil {
		slog.Error("Failed to acquire automation target",
			log.RunID(runID),
			log.WorkflowID(def.ID),
			log.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrResourceAcquisition, err)
	}
	defer release(runID, tgt)

	e.start(ctx, store.NewRunRecord(runID, def.ID, started))

	runCtx := ctx
	if settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, settings.RunTimeout)
		defer cancel()
	}

	rc := NewRunContext(runID, def, cfg.Variables)
	res := e.execute(runCtx, rc, tgt, settings)
	res.StartedAt = started
	res.Duration = res.CompletedAt.Sub(started).Milliseconds()
	e.finish(ctx, res)
	return res, nil
}

func (e *Engine) prepare(
	def *api.WorkflowDefinition, cfg api.RunConfig,
) (Settings, error) {
	if err := def.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	settings, err := e.ResolveSettings(def, cfg.Settings)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return settings, nil
}

// reject records a run that stopped before any target was acquired because
// its definition could not be executed
func (e *Engine) reject(
	ctx context.Context, runID api.RunID, def *api.WorkflowDefinition,
	started time.Time, err error,
) *api.RunResult {
	slog.Warn("Workflow definition rejected",
		log.RunID(runID),
		log.WorkflowID(def.ID),
		log.Error(err))

	e.start(ctx, store.NewRunRecord(runID, def.ID, started))
	res := &api.RunResult{
		RunID:       runID,
		WorkflowID:  def.ID,
		Status:      api.RunFailure,
		Reason:      FailureReason(err),
		Steps:       []*api.StepResult{},
		Metadata:    api.NewRunMetadata(),
		StartedAt:   started,
		CompletedAt: started,
	}
	res.Summary = summarize(res, err)
	e.finish(ctx, res)
	return res
}

func (e *Engine) start(ctx context.Context, rec *api.RunRecord) {
	if err := e.runs.CreateRun(ctx, rec); err != nil {
		slog.Error("Failed to create run record",
			log.RunID(rec.RunID),
			log.Error(err))
	}
	e.events.Publish(events.RunStarted(rec))
	slog.Info("Run started",
		log.RunID(rec.RunID),
		log.WorkflowID(rec.WorkflowID))
}

// execute authenticates when the workflow requires it and interprets the
// step tree. Any panic is recovered into a failed result
func (e *Engine) execute(
	ctx context.Context, rc *RunContext, tgt target.Target, settings Settings,
) (res *api.RunResult) {
	def := rc.Workflow()
	exec := NewStepExecutor(
		tgt, e.artifacts, e.config.Retry, settings, e.clock,
	)
	interp := NewInterpreter(rc, exec, e.scripts, e.clock,
		func(step *api.StepResult) {
			e.events.Publish(events.StepCompleted(rc.RunID(), def.ID, step))
		},
	)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Run panicked",
				log.RunID(rc.RunID()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			interp.Abort()
			res = e.buildResult(rc, fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()

	if def.Login != nil {
		session := NewSession(e.creds,
			e.config.Retry.WithMaxAttempts(settings.RetryAttempts),
			settings.StepTimeout,
		)
		if err := session.authenticate(ctx, tgt, def.Login); err != nil {
			slog.Warn("Session authentication failed",
				log.RunID(rc.RunID()),
				log.Error(err))
			interp.Abort()
			return e.buildResult(rc, err)
		}
	}

	return e.buildResult(rc, interp.Run(ctx))
}

func (e *Engine) finish(ctx context.Context, res *api.RunResult) {
	ctx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), finishTimeout,
	)
	defer cancel()

	if err := e.runs.FinishRun(ctx, res.RunID, res); err != nil {
		slog.Error("Failed to finish run record",
			log.RunID(res.RunID),
			log.Error(err))
	}
	e.events.Publish(events.RunFinished(res))
	slog.Info("Run finished",
		log.RunID(res.RunID),
		log.WorkflowID(res.WorkflowID),
		log.Status(res.Status))
}

// release closes the run's target. It is deferred immediately after the
// target is acquired, so it runs exactly once on every exit path
func release(runID api.RunID, t target.Target) {
	if err := t.Close(); err != nil {
		slog.Warn("Failed to release automation target",
			log.RunID(runID),
			log.Error(err))
	}
}
