package api

import "time"

type (
	// EventType identifies the kind of run event published to observers
	EventType string

	// RunEvent is published as a run progresses
	RunEvent struct {
		Timestamp  time.Time    `json:"timestamp"`
		Step       *StepResult  `json:"step,omitempty"`
		Result     *RunResult   `json:"result,omitempty"`
		Type       EventType    `json:"type"`
		RunID      RunID        `json:"run_id"`
		WorkflowID WorkflowID   `json:"workflow_id"`
		Status     RecordStatus `json:"status,omitempty"`
	}
)

const (
	EventTypeRunStarted    EventType = "run_started"
	EventTypeStepCompleted EventType = "step_completed"
	EventTypeRunFinished   EventType = "run_finished"
)
