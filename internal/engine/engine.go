package engine

import (
	"context"
	"errors"

	"github.com/richvergo/subtract-sub005/internal/artifact"
	"github.com/richvergo/subtract-sub005/internal/config"
	"github.com/richvergo/subtract-sub005/internal/engine/script"
	"github.com/richvergo/subtract-sub005/internal/events"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// Engine runs workflow definitions. It holds no per-run state, so a
	// single Engine may execute any number of runs concurrently
	Engine struct {
		workflows store.WorkflowSource
		runs      store.RunStore
		creds     store.CredentialStore
		artifacts artifact.Store
		targets   target.Provider
		events    events.Publisher
		scripts   *script.Registry
		config    *config.Config
		clock     Clock
		newID     IDGenerator
	}

	// Dependencies are the collaborators an Engine drives. Workflows, Runs,
	// and Targets are required; Credentials are needed only by workflows
	// that require a login, and Artifacts only for screenshots on error
	Dependencies struct {
		Workflows   store.WorkflowSource
		Runs        store.RunStore
		Credentials store.CredentialStore
		Artifacts   artifact.Store
		Targets     target.Provider
		Events      events.Publisher
	}

	// Option customizes an Engine
	Option func(*Engine)
)

var (
	ErrVariableUnresolved  = errors.New("variable unresolved")
	ErrStepExecution       = errors.New("step execution failed")
	ErrSessionAuth         = errors.New("session authentication failed")
	ErrResourceAcquisition = errors.New("automation target unavailable")
	ErrCancelled           = errors.New("run cancelled")
	ErrInternal            = errors.New("internal engine error")
	ErrInvalidDefinition   = errors.New("invalid workflow definition")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrUnsupportedAction   = errors.New("unsupported action kind")
	ErrInvalidWait         = errors.New("invalid wait duration")
)

// New creates an Engine over the given configuration and collaborators
func New(cfg *config.Config, deps Dependencies, opts ...Option) *Engine {
	e := &Engine{
		workflows: deps.Workflows,
		runs:      deps.Runs,
		creds:     deps.Credentials,
		artifacts: deps.Artifacts,
		targets:   deps.Targets,
		events:    deps.Events,
		scripts:   script.NewRegistry(cfg.RuleCacheSize),
		config:    cfg,
		clock:     defaultClock,
		newID:     NewRunID,
	}
	if e.events == nil {
		e.events = events.Discard
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithClock replaces the wall clock used for timestamps
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithIDGenerator replaces the run ID generator
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// GetWorkflow returns the stored definition for a workflow
func (e *Engine) GetWorkflow(
	ctx context.Context, id api.WorkflowID,
) (*api.WorkflowDefinition, error) {
	return e.workflows.GetWorkflow(ctx, id)
}

// ListWorkflows returns the IDs of every stored definition
func (e *Engine) ListWorkflows(ctx context.Context) ([]api.WorkflowID, error) {
	return e.workflows.ListWorkflows(ctx)
}

// GetRun returns a persisted run record
func (e *Engine) GetRun(
	ctx context.Context, id api.RunID,
) (*api.RunRecord, error) {
	return e.runs.GetRun(ctx, id)
}

// ListRuns returns persisted run records, newest first. An empty workflow
// ID lists the runs of every workflow
func (e *Engine) ListRuns(
	ctx context.Context, id api.WorkflowID,
) ([]*api.RunRecord, error) {
	return e.runs.ListRuns(ctx, id)
}

// ValidateRules compiles every conditional rule in the definition so
// syntax errors surface before a run starts
func (e *Engine) ValidateRules(def *api.WorkflowDefinition) error {
	return validateRules(e.scripts, def.Steps)
}

func validateRules(reg *script.Registry, steps []*api.Step) error {
	for _, step := range steps {
		if step.Kind == api.ActionConditional && step.Rule != nil {
			if err := reg.Validate(step.Rule); err != nil {
				return err
			}
		}
		for _, children := range step.Children() {
			if err := validateRules(reg, children); err != nil {
				return err
			}
		}
	}
	return nil
}
