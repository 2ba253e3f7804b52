package api

import "time"

type (
	// RunStatus is the terminal outcome reported on a RunResult
	RunStatus string

	// RecordStatus is the lifecycle status of a persisted run record
	RecordStatus string

	// StepStatus is the outcome of a single executed step
	StepStatus string

	// FailureReason classifies why a run stopped before completing
	FailureReason string

	// RunConfig carries the per-run variables and setting overrides
	RunConfig struct {
		Variables Args        `json:"variables,omitempty"`
		Settings  RunSettings `json:"settings"`
	}

	// RunSettings overrides workflow settings for a single run. Nil fields
	// fall back to the workflow's settings and then to engine defaults
	RunSettings struct {
		Timeout           *int64 `json:"timeout,omitempty"`
		RetryAttempts     *int   `json:"retry_attempts,omitempty"`
		ScreenshotOnError *bool  `json:"screenshot_on_error,omitempty"`
		Headless          *bool  `json:"headless,omitempty"`
		RunTimeout        *int64 `json:"run_timeout,omitempty"`
	}

	// StepResult records one executed step. It is immutable once appended
	// to a run
	StepResult struct {
		StartedAt   time.Time  `json:"start_time"`
		CompletedAt time.Time  `json:"end_time"`
		Output      any        `json:"output,omitempty"`
		Metadata    Metadata   `json:"metadata,omitempty"`
		StepID      StepID     `json:"step_id"`
		Kind        ActionKind `json:"action_id"`
		Status      StepStatus `json:"status"`
		Error       string     `json:"error,omitempty"`
		Artifact    string     `json:"artifact,omitempty"`
		Attempts    int        `json:"attempts,omitempty"`
	}

	// RunResult is the terminal aggregate produced once per run
	RunResult struct {
		StartedAt   time.Time     `json:"started_at"`
		CompletedAt time.Time     `json:"completed_at"`
		Metadata    *RunMetadata  `json:"metadata"`
		RunID       RunID         `json:"run_id"`
		WorkflowID  WorkflowID    `json:"workflow_id"`
		Status      RunStatus     `json:"status"`
		Reason      FailureReason `json:"reason,omitempty"`
		Summary     string        `json:"summary"`
		Steps       []*StepResult `json:"steps"`
		Duration    int64         `json:"duration"`
	}

	// RunMetadata captures the auditable control-flow decisions of a run
	RunMetadata struct {
		EvaluatedRules []*EvaluatedRule `json:"evaluated_rules"`
		LoopContexts   []*LoopContext   `json:"loop_contexts"`
	}

	// EvaluatedRule records a conditional rule and its boolean result
	EvaluatedRule struct {
		EvaluatedAt time.Time `json:"evaluated_at"`
		StepID      StepID    `json:"step_id"`
		Rule        string    `json:"rule"`
		Result      bool      `json:"result"`
	}

	// LoopContext records one loop traversal
	LoopContext struct {
		StepID     StepID `json:"step_id"`
		Variable   Name   `json:"variable"`
		Source     Name   `json:"source"`
		Count      int    `json:"count"`
		Iterations int    `json:"iterations"`
		Completed  bool   `json:"completed"`
	}

	// RunRecord is the persisted form of a run
	RunRecord struct {
		StartedAt   time.Time    `json:"started_at"`
		CompletedAt time.Time    `json:"completed_at,omitempty"`
		Result      *RunResult   `json:"result,omitempty"`
		RunID       RunID        `json:"run_id"`
		WorkflowID  WorkflowID   `json:"workflow_id"`
		Status      RecordStatus `json:"status"`
	}
)

const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
	RunPartial RunStatus = "partial"

	RecordRunning RecordStatus = "running"
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"

	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped"

	ReasonVariableUnresolved FailureReason = "variable_unresolved"
	ReasonStepFailed         FailureReason = "step_failed"
	ReasonSessionAuth        FailureReason = "session_auth_failed"
	ReasonCancelled          FailureReason = "cancelled"
	ReasonInternal           FailureReason = "internal_error"
	ReasonInvalidDefinition  FailureReason = "invalid_definition"
)

// NewRunMetadata creates empty run metadata
func NewRunMetadata() *RunMetadata {
	return &RunMetadata{
		EvaluatedRules: []*EvaluatedRule{},
		LoopContexts:   []*LoopContext{},
	}
}

// Duration returns the wall-clock time spent on the step
func (r *StepResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run completed without a fatal failure
func (r *RunResult) Succeeded() bool {
	return r.Status == RunSuccess
}

// RecordStatus maps the run outcome onto the persisted record status
func (r *RunResult) RecordStatus() RecordStatus {
	if r.Status == RunSuccess {
		return RecordSuccess
	}
	return RecordFailed
}

// IsTerminal reports whether the record has left the running state
func (r *RunRecord) IsTerminal() bool {
	return r.Status != RecordRunning
}
