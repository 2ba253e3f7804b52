package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// MemoryStore keeps workflows and runs in process memory. Records are
// copied in and out so callers never share state with the store
type MemoryStore struct {
	workflows map[api.WorkflowID]*api.WorkflowDefinition
	runs      map[api.RunID]*api.RunRecord
	mu        sync.RWMutex
}

var (
	_ WorkflowSource = (*MemoryStore)(nil)
	_ WorkflowWriter = (*MemoryStore)(nil)
	_ RunStore       = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store, optionally seeded with workflows
func NewMemoryStore(defs ...*api.WorkflowDefinition) *MemoryStore {
	s := &MemoryStore{
		workflows: map[api.WorkflowID]*api.WorkflowDefinition{},
		runs:      map[api.RunID]*api.RunRecord{},
	}
	for _, def := range defs {
		s.workflows[def.ID] = def
	}
	return s
}

func (s *MemoryStore) GetWorkflow(
	_ context.Context, id api.WorkflowID,
) (*api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return def, nil
}

func (s *MemoryStore) ListWorkflows(
	context.Context,
) ([]api.WorkflowID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.workflows)), nil
}

func (s *MemoryStore) PutWorkflow(
	_ context.Context, def *api.WorkflowDefinition,
) error {
	if err := validateWorkflow(def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[def.ID] = def
	return nil
}

func (s *MemoryStore) CreateRun(
	_ context.Context, rec *api.RunRecord,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[rec.RunID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, rec.RunID)
	}
	cpy := *rec
	s.runs[rec.RunID] = &cpy
	return nil
}

func (s *MemoryStore) FinishRun(
	_ context.Context, id api.RunID, res *api.RunResult,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	cpy := *rec
	if err := finishRecord(&cpy, res); err != nil {
		return err
	}
	s.runs[id] = &cpy
	return nil
}

func (s *MemoryStore) GetRun(
	_ context.Context, id api.RunID,
) (*api.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	cpy := *rec
	return &cpy, nil
}

func (s *MemoryStore) ListRuns(
	_ context.Context, id api.WorkflowID,
) ([]*api.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := []*api.RunRecord{}
	for _, rec := range s.runs {
		if id == "" || rec.WorkflowID == id {
			cpy := *rec
			res = append(res, &cpy)
		}
	}
	sortRunsNewestFirst(res)
	return res, nil
}
