package engine

import (
	"github.com/richvergo/subtract-sub005/pkg/util"
)

type (
	// StateTransitions maps states to their set of valid next states
	StateTransitions[T comparable] map[T]util.Set[T]

	// State is the lifecycle state of an interpreter walking a workflow
	State string
)

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var stateTransitions = StateTransitions[State]{
	StateIdle: util.SetOf(
		StateRunning,
		StateFailed,
	),
	StateRunning: util.SetOf(
		StateCompleted,
		StateFailed,
	),
	StateCompleted: {},
	StateFailed:    {},
}

// CanTransition returns whether transition from one state to another is valid
func (t StateTransitions[T]) CanTransition(from, to T) bool {
	allowed, ok := t[from]
	if !ok {
		return false
	}
	return allowed.Contains(to)
}

// IsTerminal returns true if the state has no valid transitions
func (t StateTransitions[T]) IsTerminal(state T) bool {
	allowed, ok := t[state]
	return ok && len(allowed) == 0
}
