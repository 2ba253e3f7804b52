package helpers

import (
	"time"

	"github.com/richvergo/subtract-sub005/internal/config"
	"github.com/richvergo/subtract-sub005/internal/retry"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

// TestRetryPolicy retries three times with millisecond backoff
var TestRetryPolicy = retry.Policy{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
	Multiplier:  2,
}

// NewTestConfig creates a default configuration with debug logging and
// fast retries
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Retry = TestRetryPolicy
	cfg.StepTimeout = 2 * api.Second
	cfg.RunTimeout = 30 * api.Second
	cfg.RuleCacheSize = 64
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// NewTestWorkflow creates a workflow definition with the given steps
func NewTestWorkflow(id api.WorkflowID, steps ...*api.Step) *api.WorkflowDefinition {
	return &api.WorkflowDefinition{
		ID:    id,
		Name:  "Test " + string(id),
		Steps: steps,
	}
}
