package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

func TestRunResultStatus(t *testing.T) {
	res := &api.RunResult{Status: api.RunSuccess}
	assert.True(t, res.Succeeded())
	assert.Equal(t, api.RecordSuccess, res.RecordStatus())

	for _, st := range []api.RunStatus{api.RunPartial, api.RunFailure} {
		res.Status = st
		assert.False(t, res.Succeeded())
		assert.Equal(t, api.RecordFailed, res.RecordStatus())
	}
}

func TestRunRecordTerminal(t *testing.T) {
	rec := &api.RunRecord{Status: api.RecordRunning}
	assert.False(t, rec.IsTerminal())

	rec.Status = api.RecordFailed
	assert.True(t, rec.IsTerminal())
}

func TestStepResultDuration(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &api.StepResult{
		StartedAt:   start,
		CompletedAt: start.Add(1500 * time.Millisecond),
	}
	assert.Equal(t, 1500*time.Millisecond, s.Duration())
}

func TestNewRunMetadata(t *testing.T) {
	md := api.NewRunMetadata()
	assert.NotNil(t, md.EvaluatedRules)
	assert.NotNil(t, md.LoopContexts)
	assert.Empty(t, md.EvaluatedRules)
	assert.Empty(t, md.LoopContexts)
}

func TestSubscriptionMatches(t *testing.T) {
	ev := &api.RunEvent{
		Type:       api.EventTypeStepCompleted,
		RunID:      "run-1",
		WorkflowID: "wf",
	}

	tests := []struct {
		name string
		sub  api.ClientSubscription
		want bool
	}{
		{"empty", api.ClientSubscription{}, true},
		{"workflow", api.ClientSubscription{WorkflowID: "wf"}, true},
		{"other workflow", api.ClientSubscription{WorkflowID: "x"}, false},
		{"run", api.ClientSubscription{RunID: "run-1"}, true},
		{"other run", api.ClientSubscription{RunID: "run-2"}, false},
		{
			"type",
			api.ClientSubscription{EventTypes: []api.EventType{
				api.EventTypeRunStarted, api.EventTypeStepCompleted,
			}},
			true,
		},
		{
			"other type",
			api.ClientSubscription{EventTypes: []api.EventType{
				api.EventTypeRunFinished,
			}},
			false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.sub.Matches(ev))
		})
	}
}
