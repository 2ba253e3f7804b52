package helpers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/assert/helpers"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

func TestNewTestConfig(t *testing.T) {
	cfg := helpers.NewTestConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, helpers.TestRetryPolicy, cfg.Retry)
}

func TestMockTargetRecordsCalls(t *testing.T) {
	ctx := context.Background()
	m := helpers.NewMockTarget()
	m.SetText("#title", "Hello")

	require.NoError(t, m.Navigate(ctx, "https://x"))
	require.NoError(t, m.Type(ctx, "#q", "go"))
	text, err := m.Extract(ctx, "#title")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	_, err = m.Extract(ctx, "#missing")
	assert.ErrorIs(t, err, target.ErrElementNotFound)

	assert.Equal(t, []helpers.Call{
		{Action: helpers.ActionNavigate, Selector: "https://x"},
		{Action: helpers.ActionType, Selector: "#q", Value: "go"},
		{Action: helpers.ActionExtract, Selector: "#title"},
		{Action: helpers.ActionExtract, Selector: "#missing"},
	}, m.Calls())
	assert.Len(t, m.CallsFor(helpers.ActionExtract), 2)
}

func TestMockTargetFailTimes(t *testing.T) {
	ctx := context.Background()
	m := helpers.NewMockTarget()
	boom := errors.New("boom")
	m.FailTimes(helpers.ActionClick, "#go", 2, boom)

	assert.ErrorIs(t, m.Click(ctx, "#go"), boom)
	assert.ErrorIs(t, m.Click(ctx, "#go"), boom)
	assert.NoError(t, m.Click(ctx, "#go"))
	assert.NoError(t, m.Click(ctx, "#other"))
}

func TestMockTargetBlock(t *testing.T) {
	m := helpers.NewMockTarget()
	m.Block(helpers.ActionWaitFor, "#never")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := m.WaitFor(ctx, "#never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockTargetPanic(t *testing.T) {
	m := helpers.NewMockTarget()
	m.PanicOn(helpers.ActionClick, "#bad")
	assert.Panics(t, func() {
		_ = m.Click(context.Background(), "#bad")
	})
}

func TestMockTargetExistsAndScreenshot(t *testing.T) {
	ctx := context.Background()
	m := helpers.NewMockTarget()
	m.SetPresent("#ok")

	ok, err := m.Exists(ctx, "#ok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Exists(ctx, "#no")
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := m.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, helpers.PNG, data)
	assert.Equal(t, 1, m.Screenshots())

	assert.NoError(t, m.Close())
	assert.Equal(t, 1, m.CloseCount())
}

func TestMockProvider(t *testing.T) {
	m := helpers.NewMockTarget()
	p := helpers.NewMockProvider(m)

	got, err := p.Acquire(context.Background(), target.Options{Label: "r1"})
	require.NoError(t, err)
	assert.Same(t, m, got)
	assert.Equal(t, 1, p.Acquired())
	assert.Equal(t, "r1", p.Options()[0].Label)

	p.SetError(target.ErrUnreachable)
	_, err = p.Acquire(context.Background(), target.Options{})
	assert.ErrorIs(t, err, target.ErrUnreachable)
	assert.Equal(t, 1, p.Acquired())
}

func TestStepBuilders(t *testing.T) {
	def := helpers.NewTestWorkflow("wf",
		helpers.Navigate("open", "https://x"),
		helpers.If("check", helpers.Compare("n", ">", 1),
			[]*api.Step{helpers.Click("yes", "#yes")},
			[]*api.Step{helpers.Optional(helpers.Click("no", "#no"))},
		),
		helpers.Loop("each", "items", "item",
			helpers.Type("fill", "#f", "{{item}}"),
		),
		helpers.Extract("read", "#out", "out"),
		helpers.Wait("pause", "", "5"),
	)
	require.NoError(t, def.Validate())
	assert.Equal(t, 8, def.StepCount())
	assert.True(t, def.GetStep("no").Optional)
}

func TestWithTestEnv(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		res := env.RunWorkflow(t,
			helpers.NewTestWorkflow("wf", helpers.Navigate("open", "https://x")),
			nil,
		)
		assert.Equal(t, api.RunSuccess, res.Status)
		assert.Equal(t, 1, env.Target.CloseCount())
	})
}
