package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// Clock provides the current time for run and step timestamps
	Clock func() time.Time

	// IDGenerator produces identifiers for new runs
	IDGenerator func() api.RunID
)

var defaultClock Clock = time.Now

// Now returns the current wall time from the Engine's configured clock
func (e *Engine) Now() time.Time {
	return e.clock()
}

// NewRunID generates a random run identifier
func NewRunID() api.RunID {
	return api.RunID(uuid.New().String())
}
