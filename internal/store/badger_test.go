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

func TestBadgerRunStore(t *testing.T) {
	s, err := store.NewBadgerRunStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	testRunStore(t, s)
}

func TestBadgerRunStorePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.NewBadgerRunStore(dir)
	require.NoError(t, err)
	rec := store.NewRunRecord("run-1", "wf", time.Now())
	require.NoError(t, s.CreateRun(ctx, rec))
	require.NoError(t, s.FinishRun(ctx, "run-1", &api.RunResult{
		RunID:  "run-1",
		Status: api.RunSuccess,
	}))
	require.NoError(t, s.Close())

	s, err = store.NewBadgerRunStore(dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, api.RecordSuccess, got.Status)
}
