package engine_test

import (
	"errors"
	"testing"
	"time"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/assert/helpers"
	"github.com/richvergo/subtract-sub005/internal/engine"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

var errFlaky = errors.New("flaky")

func TestResolveSettingsDefaults(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf", helpers.Click("c", "#c"))

		s, err := env.Engine.ResolveSettings(def, api.RunSettings{})
		require.NoError(t, err)

		testify.Equal(t, 2*time.Second, s.StepTimeout)
		testify.Equal(t, 30*time.Second, s.RunTimeout)
		testify.Equal(t, helpers.TestRetryPolicy.MaxAttempts, s.RetryAttempts)
		testify.False(t, s.ScreenshotOnError)
		testify.True(t, s.Headless)
	})
}

func TestResolveSettingsLayering(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf", helpers.Click("c", "#c"))
		def.Settings = api.Settings{
			Timeout:           5000,
			RetryAttempts:     7,
			ScreenshotOnError: true,
		}

		s, err := env.Engine.ResolveSettings(def, api.RunSettings{})
		require.NoError(t, err)
		testify.Equal(t, 5*time.Second, s.StepTimeout)
		testify.Equal(t, 7, s.RetryAttempts)
		testify.True(t, s.ScreenshotOnError)

		attempts := 1
		screenshots := false
		headless := false
		timeout := int64(250)
		s, err = env.Engine.ResolveSettings(def, api.RunSettings{
			Timeout:           &timeout,
			RetryAttempts:     &attempts,
			ScreenshotOnError: &screenshots,
			Headless:          &headless,
		})
		require.NoError(t, err)
		testify.Equal(t, 250*time.Millisecond, s.StepTimeout)
		testify.Equal(t, 1, s.RetryAttempts)
		testify.False(t, s.ScreenshotOnError)
		testify.False(t, s.Headless)
		testify.Equal(t, 30*time.Second, s.RunTimeout)

		testify.Equal(t, int64(5000), def.Settings.Timeout)
	})
}

func TestResolveSettingsMinimumAttempts(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf", helpers.Click("c", "#c"))
		zero := 0

		s, err := env.Engine.ResolveSettings(def, api.RunSettings{
			RetryAttempts: &zero,
		})
		require.NoError(t, err)
		testify.Equal(t, 1, s.RetryAttempts)
	})
}

func TestRetryAttemptsOverride(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.Target.FailTimes(helpers.ActionClick, "#flaky", 1,
			errFlaky,
		)
		def := helpers.NewTestWorkflow("wf-once",
			helpers.Click("flaky", "#flaky"),
		)
		env.AddWorkflow(t, def)

		once := 1
		res, err := env.Engine.Run(t.Context(), def.ID, api.RunConfig{
			Settings: api.RunSettings{RetryAttempts: &once},
		})
		require.NoError(t, err)

		testify.Equal(t, api.RunFailure, res.Status)
		testify.Equal(t, 1, res.Steps[0].Attempts)
	})
}

func TestStepTimeoutFor(t *testing.T) {
	s := engine.Settings{StepTimeout: time.Second}

	testify.Equal(t, time.Second, s.StepTimeoutFor(&api.Step{}))
	testify.Equal(t, 50*time.Millisecond,
		s.StepTimeoutFor(&api.Step{Timeout: 50}),
	)
}
