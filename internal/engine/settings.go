package engine

import (
	"time"

	"dario.cat/mergo"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// Settings are the effective execution settings of one run
type Settings struct {
	StepTimeout       time.Duration
	RunTimeout        time.Duration
	RetryAttempts     int
	ScreenshotOnError bool
	Headless          bool
}

// ResolveSettings layers the run's overrides over the workflow's settings
// over the engine defaults. Unset run fields and zero workflow fields fall
// through to the next layer
func (e *Engine) ResolveSettings(
	def *api.WorkflowDefinition, run api.RunSettings,
) (Settings, error) {
	res := defaultLayer(e.config.DefaultSettings(), e.config.RunTimeout)
	for _, layer := range []api.RunSettings{settingsLayer(def.Settings), run} {
		err := mergo.Merge(&res, layer,
			mergo.WithOverride, mergo.WithoutDereference,
		)
		if err != nil {
			return Settings{}, err
		}
	}

	return Settings{
		StepTimeout:       millis(deref(res.Timeout)),
		RunTimeout:        millis(deref(res.RunTimeout)),
		RetryAttempts:     max(deref(res.RetryAttempts), 1),
		ScreenshotOnError: deref(res.ScreenshotOnError),
		Headless:          deref(res.Headless),
	}, nil
}

// StepTimeoutFor returns the per-attempt timeout of a step, preferring the
// step's own timeout over the run's
func (s Settings) StepTimeoutFor(step *api.Step) time.Duration {
	if step.Timeout > 0 {
		return millis(step.Timeout)
	}
	return s.StepTimeout
}

func defaultLayer(s api.Settings, runTimeout int64) api.RunSettings {
	return api.RunSettings{
		Timeout:           &s.Timeout,
		RetryAttempts:     &s.RetryAttempts,
		ScreenshotOnError: &s.ScreenshotOnError,
		Headless:          &s.Headless,
		RunTimeout:        &runTimeout,
	}
}

func settingsLayer(s api.Settings) api.RunSettings {
	var res api.RunSettings
	if s.Timeout > 0 {
		res.Timeout = &s.Timeout
	}
	if s.RetryAttempts > 0 {
		res.RetryAttempts = &s.RetryAttempts
	}
	if s.ScreenshotOnError {
		res.ScreenshotOnError = &s.ScreenshotOnError
	}
	if s.Headless {
		res.Headless = &s.Headless
	}
	return res
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
