package helpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/artifact"
	"github.com/richvergo/subtract-sub005/internal/config"
	"github.com/richvergo/subtract-sub005/internal/engine"
	"github.com/richvergo/subtract-sub005/internal/events"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

// TestEngineEnv holds all the components needed for engine testing
type TestEngineEnv struct {
	Engine      *engine.Engine
	Store       *store.MemoryStore
	Target      *MockTarget
	Provider    *MockProvider
	Artifacts   *artifact.BlobStore
	Credentials store.StaticCredentials
	EventHub    *events.Hub
	Config      *config.Config
	Cleanup     func()
}

// NewTestEngine creates an engine over in-memory stores, a memory blob
// bucket, and a scripted mock target
func NewTestEngine(t *testing.T, opts ...engine.Option) *TestEngineEnv {
	t.Helper()
	return NewTestEngineWithConfig(t, NewTestConfig(), opts...)
}

// NewTestEngineWithConfig creates a test engine environment using the
// provided configuration
func NewTestEngineWithConfig(
	t *testing.T, cfg *config.Config, opts ...engine.Option,
) *TestEngineEnv {
	t.Helper()

	artifacts, err := artifact.NewBlobStore(
		context.Background(), "mem://", "https://artifacts.test",
	)
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	tgt := NewMockTarget()
	prov := NewMockProvider(tgt)
	creds := store.StaticCredentials{}
	hub := events.NewHub()

	eng := engine.New(cfg, engine.Dependencies{
		Workflows:   mem,
		Runs:        mem,
		Credentials: creds,
		Artifacts:   artifacts,
		Targets:     prov,
		Events:      hub,
	}, opts...)

	return &TestEngineEnv{
		Engine:      eng,
		Store:       mem,
		Target:      tgt,
		Provider:    prov,
		Artifacts:   artifacts,
		Credentials: creds,
		EventHub:    hub,
		Config:      cfg,
		Cleanup: func() {
			hub.Close()
			_ = artifacts.Close()
		},
	}
}

// WithTestEnv creates a test environment, runs fn, and cleans up
func WithTestEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	env := NewTestEngine(t)
	defer env.Cleanup()
	fn(env)
}

// AddWorkflow stores a workflow definition, failing the test on error
func (env *TestEngineEnv) AddWorkflow(
	t *testing.T, def *api.WorkflowDefinition,
) {
	t.Helper()
	require.NoError(t, env.Store.PutWorkflow(context.Background(), def))
}

// RunWorkflow stores def and runs it with the given variables
func (env *TestEngineEnv) RunWorkflow(
	t *testing.T, def *api.WorkflowDefinition, vars api.Args,
) *api.RunResult {
	t.Helper()
	env.AddWorkflow(t, def)
	res, err := env.Engine.Run(context.Background(), def.ID, api.RunConfig{
		Variables: vars,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}
