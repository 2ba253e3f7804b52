package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/richvergo/subtract-sub005/internal/retry"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

var reasons = []struct {
	err    error
	reason api.FailureReason
}{
	{ErrCancelled, api.ReasonCancelled},
	{retry.ErrCancelled, api.ReasonCancelled},
	{ErrSessionAuth, api.ReasonSessionAuth},
	{ErrVariableUnresolved, api.ReasonVariableUnresolved},
	{ErrStepExecution, api.ReasonStepFailed},
	{ErrInvalidDefinition, api.ReasonInvalidDefinition},
}

// buildResult reduces a run's recorded steps and its fatal error, if any,
// into the terminal RunResult
func (e *Engine) buildResult(rc *RunContext, runErr error) *api.RunResult {
	steps := rc.Results()
	now := e.clock()
	res := &api.RunResult{
		RunID:       rc.RunID(),
		WorkflowID:  rc.Workflow().ID,
		Status:      api.RunSuccess,
		Steps:       steps,
		Metadata:    rc.Metadata(),
		CompletedAt: now,
	}

	if runErr != nil {
		res.Reason = FailureReason(runErr)
		res.Status = api.RunFailure
		if countSucceeded(steps) > 0 {
			res.Status = api.RunPartial
		}
	}
	res.Summary = summarize(res, runErr)
	return res
}

// FailureReason classifies a fatal run error
func FailureReason(err error) api.FailureReason {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return api.ReasonInternal
}

func countSucceeded(steps []*api.StepResult) int {
	res := 0
	for _, s := range steps {
		if s.Status == api.StepSuccess && !isMarker(s.Kind) {
			res++
		}
	}
	return res
}

func isMarker(kind api.ActionKind) bool {
	return kind == api.ActionLoopEnter || kind == api.ActionLoopExit
}

func summarize(res *api.RunResult, runErr error) string {
	var ok, failed, skipped int
	for _, s := range res.Steps {
		if isMarker(s.Kind) {
			continue
		}
		switch s.Status {
		case api.StepSuccess:
			ok++
		case api.StepFailure:
			failed++
		case api.StepSkipped:
			skipped++
		}
	}
	counts := fmt.Sprintf("%d succeeded, %d failed, %d skipped",
		ok, failed, skipped)

	if runErr == nil {
		return fmt.Sprintf("Workflow %s completed: %s", res.WorkflowID, counts)
	}

	var sb strings.Builder
	switch res.Reason {
	case api.ReasonSessionAuth:
		sb.WriteString("Session authentication failed before any step ran")
	case api.ReasonCancelled:
		sb.WriteString("Run cancelled")
	case api.ReasonInvalidDefinition:
		fmt.Fprintf(&sb, "Workflow %s rejected", res.WorkflowID)
	default:
		fmt.Fprintf(&sb, "Workflow %s stopped", res.WorkflowID)
	}
	if last := lastFailure(res.Steps); last != nil {
		fmt.Fprintf(&sb, " at step %s", last.StepID)
	}
	fmt.Fprintf(&sb, ": %s (%s)", runErr.Error(), counts)
	return sb.String()
}

func lastFailure(steps []*api.StepResult) *api.StepResult {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.Status == api.StepFailure && !isMarker(s.Kind) {
			return s
		}
	}
	return nil
}
