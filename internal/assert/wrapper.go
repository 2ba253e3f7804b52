package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/richvergo/subtract-sub005/internal/config"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

// Wrapper wraps testify assertions with workflow-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
	Require *assert.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus workflow-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    assert.New(t),
	}
}

// StepValid asserts that a step is valid
func (w *Wrapper) StepValid(s *api.Step) {
	w.Helper()
	w.NoError(s.Validate())
	w.NotEmpty(s.ID)

	switch s.Kind {
	case api.ActionConditional:
		w.NotNil(s.Rule, "conditional steps should have a rule")
	case api.ActionLoop:
		w.NotNil(s.Loop, "loop steps should have a loop spec")
	case api.ActionWait:
		w.True(s.Target != "" || s.Value != "")
	default:
		w.NotEmpty(s.Target)
	}
}

// StepInvalid asserts that a step is invalid and returns the validation error
func (w *Wrapper) StepInvalid(s *api.Step, expectedErrorContains string) error {
	w.Helper()
	err := s.Validate()
	w.Error(err)
	if err != nil && expectedErrorContains != "" {
		w.Contains(err.Error(), expectedErrorContains)
	}
	return err
}

// WorkflowValid asserts that a workflow definition is valid
func (w *Wrapper) WorkflowValid(def *api.WorkflowDefinition) {
	w.Helper()
	w.NoError(def.Validate())
	w.NotEmpty(def.ID)
	w.NotEmpty(def.Steps)
}

// WorkflowInvalid asserts that a workflow definition fails validation with
// the expected error
func (w *Wrapper) WorkflowInvalid(def *api.WorkflowDefinition, expected error) {
	w.Helper()
	w.ErrorIs(def.Validate(), expected)
}

// RunStatus asserts the status of a run result
func (w *Wrapper) RunStatus(res *api.RunResult, expected api.RunStatus) {
	w.Helper()
	if w.NotNil(res) {
		w.Equal(expected, res.Status, "summary: %s", res.Summary)
	}
}

// StepStatuses asserts the exact sequence of step IDs and statuses recorded
// on a run, ignoring loop markers
func (w *Wrapper) StepStatuses(res *api.RunResult, expected ...StepOutcome) {
	w.Helper()
	var got []StepOutcome
	for _, s := range res.Steps {
		if s.Kind == api.ActionLoopEnter || s.Kind == api.ActionLoopExit {
			continue
		}
		got = append(got, StepOutcome{ID: s.StepID, Status: s.Status})
	}
	w.Equal(expected, got)
}

// StepOutcome pairs a step ID with its recorded status
type StepOutcome struct {
	ID     api.StepID
	Status api.StepStatus
}

// Succeeded is shorthand for a successful StepOutcome
func Succeeded(id api.StepID) StepOutcome {
	return StepOutcome{ID: id, Status: api.StepSuccess}
}

// Failed is shorthand for a failed StepOutcome
func Failed(id api.StepID) StepOutcome {
	return StepOutcome{ID: id, Status: api.StepFailure}
}

// Skipped is shorthand for a skipped StepOutcome
func Skipped(id api.StepID) StepOutcome {
	return StepOutcome{ID: id, Status: api.StepSkipped}
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.StepTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
