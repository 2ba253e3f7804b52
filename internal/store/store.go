// Package store persists workflow definitions, run records, and sealed
// credentials. Redis and Badger back the service; YAML directories and
// in-memory maps serve local runs and tests
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// WorkflowSource fetches workflow definitions by ID
	WorkflowSource interface {
		GetWorkflow(
			ctx context.Context, id api.WorkflowID,
		) (*api.WorkflowDefinition, error)
		ListWorkflows(ctx context.Context) ([]api.WorkflowID, error)
	}

	// WorkflowWriter stores workflow definitions
	WorkflowWriter interface {
		PutWorkflow(ctx context.Context, def *api.WorkflowDefinition) error
	}

	// RunStore persists run records. CreateRun records a run in the running
	// state; FinishRun attaches the terminal result exactly once
	RunStore interface {
		CreateRun(ctx context.Context, rec *api.RunRecord) error
		FinishRun(
			ctx context.Context, id api.RunID, res *api.RunResult,
		) error
		GetRun(ctx context.Context, id api.RunID) (*api.RunRecord, error)
		ListRuns(
			ctx context.Context, id api.WorkflowID,
		) ([]*api.RunRecord, error)
	}

	// CredentialStore resolves a credentials reference into a username and
	// password
	CredentialStore interface {
		GetCredentials(ctx context.Context, ref string) (*Credentials, error)
	}

	// Credentials are the decrypted login secrets for a target site
	Credentials struct {
		Username string `json:"username" yaml:"username"`
		Password string `json:"password" yaml:"password"`
	}

	// StaticCredentials serves credentials from memory
	StaticCredentials map[string]Credentials
)

var (
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrRunNotFound         = errors.New("run not found")
	ErrRunExists           = errors.New("run already exists")
	ErrRunFinished         = errors.New("run already finished")
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidWorkflow     = errors.New("invalid workflow definition")
)

// GetCredentials returns a copy of the credentials stored under ref
func (s StaticCredentials) GetCredentials(
	_ context.Context, ref string,
) (*Credentials, error) {
	c, ok := s[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, ref)
	}
	return &c, nil
}

// NewRunRecord creates the running record for a freshly started run
func NewRunRecord(
	runID api.RunID, workflowID api.WorkflowID, startedAt time.Time,
) *api.RunRecord {
	return &api.RunRecord{
		RunID:      runID,
		WorkflowID: workflowID,
		Status:     api.RecordRunning,
		StartedAt:  startedAt,
	}
}

func finishRecord(rec *api.RunRecord, res *api.RunResult) error {
	if rec.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunFinished, rec.RunID)
	}
	rec.Result = res
	rec.Status = res.RecordStatus()
	rec.CompletedAt = res.CompletedAt
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	return nil
}

func validateWorkflow(def *api.WorkflowDefinition) error {
	if def == nil {
		return ErrInvalidWorkflow
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}
	return nil
}

func sortRunsNewestFirst(runs []*api.RunRecord) {
	slices.SortStableFunc(runs, func(a, b *api.RunRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode[T any](data []byte) (*T, error) {
	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
