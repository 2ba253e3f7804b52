package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

func testWorkflow(id api.WorkflowID) *api.WorkflowDefinition {
	return &api.WorkflowDefinition{
		ID:   id,
		Name: "Test " + string(id),
		Steps: []*api.Step{
			{
				ID:     "open",
				Kind:   api.ActionNavigate,
				Target: "https://example.com/{{page}}",
			},
		},
		Variables: []*api.VariableSpec{
			{Name: "page", Value: "home"},
		},
		Settings: api.Settings{Timeout: 5000, RetryAttempts: 2},
	}
}

func testRunStore(t *testing.T, s store.RunStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := store.NewRunRecord("run-1", "wf-a", base)
	second := store.NewRunRecord("run-2", "wf-a", base.Add(time.Minute))
	other := store.NewRunRecord("run-3", "wf-b", base.Add(2*time.Minute))

	require.NoError(t, s.CreateRun(ctx, first))
	require.NoError(t, s.CreateRun(ctx, second))
	require.NoError(t, s.CreateRun(ctx, other))

	t.Run("create duplicate", func(t *testing.T) {
		err := s.CreateRun(ctx, first)
		assert.ErrorIs(t, err, store.ErrRunExists)
	})

	t.Run("get running", func(t *testing.T) {
		rec, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, api.RecordRunning, rec.Status)
		assert.Equal(t, api.WorkflowID("wf-a"), rec.WorkflowID)
		assert.True(t, base.Equal(rec.StartedAt))
		assert.Nil(t, rec.Result)
		assert.False(t, rec.IsTerminal())
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := s.GetRun(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrRunNotFound)
	})

	t.Run("finish", func(t *testing.T) {
		res := &api.RunResult{
			RunID:       "run-1",
			WorkflowID:  "wf-a",
			Status:      api.RunPartial,
			Reason:      api.ReasonStepFailed,
			Summary:     "1 of 2 steps succeeded",
			CompletedAt: base.Add(30 * time.Second),
			Steps: []*api.StepResult{
				{StepID: "open", Kind: api.ActionNavigate,
					Status: api.StepSuccess},
			},
			Metadata: api.NewRunMetadata(),
		}
		require.NoError(t, s.FinishRun(ctx, "run-1", res))

		rec, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, api.RecordFailed, rec.Status)
		assert.True(t, rec.IsTerminal())
		require.NotNil(t, rec.Result)
		assert.Equal(t, api.RunPartial, rec.Result.Status)
		assert.Len(t, rec.Result.Steps, 1)
		assert.True(t, res.CompletedAt.Equal(rec.CompletedAt))

		err = s.FinishRun(ctx, "run-1", res)
		assert.ErrorIs(t, err, store.ErrRunFinished)
	})

	t.Run("finish success", func(t *testing.T) {
		res := &api.RunResult{RunID: "run-2", Status: api.RunSuccess}
		require.NoError(t, s.FinishRun(ctx, "run-2", res))

		rec, err := s.GetRun(ctx, "run-2")
		require.NoError(t, err)
		assert.Equal(t, api.RecordSuccess, rec.Status)
		assert.False(t, rec.CompletedAt.IsZero())
	})

	t.Run("finish missing", func(t *testing.T) {
		err := s.FinishRun(ctx, "nope", &api.RunResult{})
		assert.ErrorIs(t, err, store.ErrRunNotFound)
	})

	t.Run("list by workflow newest first", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, "wf-a")
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, api.RunID("run-2"), runs[0].RunID)
		assert.Equal(t, api.RunID("run-1"), runs[1].RunID)
	})

	t.Run("list all", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, "")
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, api.RunID("run-3"), runs[0].RunID)
	})

	t.Run("list unknown workflow", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, "wf-z")
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func testWorkflowStore(
	t *testing.T, s interface {
		store.WorkflowSource
		store.WorkflowWriter
	},
) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.PutWorkflow(ctx, testWorkflow("wf-b")))
	require.NoError(t, s.PutWorkflow(ctx, testWorkflow("wf-a")))

	def, err := s.GetWorkflow(ctx, "wf-a")
	require.NoError(t, err)
	assert.Equal(t, "Test wf-a", def.Name)
	require.Len(t, def.Steps, 1)
	assert.Equal(t, api.ActionNavigate, def.Steps[0].Kind)
	assert.Equal(t, int64(5000), def.Settings.Timeout)

	ids, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []api.WorkflowID{"wf-a", "wf-b"}, ids)

	_, err = s.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrWorkflowNotFound)

	err = s.PutWorkflow(ctx, &api.WorkflowDefinition{ID: "empty"})
	assert.ErrorIs(t, err, store.ErrInvalidWorkflow)
}

func TestMemoryStore(t *testing.T) {
	t.Run("runs", func(t *testing.T) {
		testRunStore(t, store.NewMemoryStore())
	})
	t.Run("workflows", func(t *testing.T) {
		testWorkflowStore(t, store.NewMemoryStore())
	})
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	rec := store.NewRunRecord("run-1", "wf", time.Now())
	require.NoError(t, s.CreateRun(ctx, rec))
	rec.Status = api.RecordSuccess

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, api.RecordRunning, got.Status)
}

func TestStaticCredentials(t *testing.T) {
	creds := store.StaticCredentials{
		"acme": {Username: "ada", Password: "pw"},
	}

	c, err := creds.GetCredentials(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "ada", c.Username)

	_, err = creds.GetCredentials(context.Background(), "other")
	assert.ErrorIs(t, err, store.ErrCredentialsNotFound)
}
