// Package events broadcasts run progress to observers. Every consumer of a
// Hub sees each event published after the consumer was created
package events

import (
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// Publisher receives run events
	Publisher interface {
		Publish(ev *api.RunEvent)
	}

	// Hub fans run events out to any number of consumers
	Hub struct {
		topic  topic.Topic[*api.RunEvent]
		prod   topic.Producer[*api.RunEvent]
		mu     sync.RWMutex
		closed bool
	}

	// Filter selects the events a consumer cares about
	Filter func(*api.RunEvent) bool

	// PublisherFunc adapts a function into a Publisher
	PublisherFunc func(ev *api.RunEvent)

	discard struct{}
)

// Discard drops every event
var Discard Publisher = discard{}

var _ Publisher = (*Hub)(nil)

// NewHub creates an empty event hub
func NewHub() *Hub {
	t := caravan.NewTopic[*api.RunEvent]()
	return &Hub{
		topic: t,
		prod:  t.NewProducer(),
	}
}

// Publish sends the event to every consumer. Publishing to a closed hub is
// a no-op
func (h *Hub) Publish(ev *api.RunEvent) {
	if ev == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	message.Send(h.prod, ev)
}

// NewConsumer creates a consumer positioned after the latest event
func (h *Hub) NewConsumer() topic.Consumer[*api.RunEvent] {
	return h.topic.NewConsumer()
}

// Close stops accepting new events
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.prod.Close()
	}
}

// Publish calls the wrapped function
func (f PublisherFunc) Publish(ev *api.RunEvent) {
	f(ev)
}

func (discard) Publish(*api.RunEvent) {}

// RunStarted builds the event announcing a freshly created run record
func RunStarted(rec *api.RunRecord) *api.RunEvent {
	return &api.RunEvent{
		Type:       api.EventTypeRunStarted,
		RunID:      rec.RunID,
		WorkflowID: rec.WorkflowID,
		Status:     rec.Status,
		Timestamp:  rec.StartedAt,
	}
}

// StepCompleted builds the event announcing a recorded step result
func StepCompleted(
	runID api.RunID, workflowID api.WorkflowID, step *api.StepResult,
) *api.RunEvent {
	return &api.RunEvent{
		Type:       api.EventTypeStepCompleted,
		RunID:      runID,
		WorkflowID: workflowID,
		Status:     api.RecordRunning,
		Step:       step,
		Timestamp:  step.CompletedAt,
	}
}

// RunFinished builds the event announcing a terminal run result
func RunFinished(res *api.RunResult) *api.RunEvent {
	return &api.RunEvent{
		Type:       api.EventTypeRunFinished,
		RunID:      res.RunID,
		WorkflowID: res.WorkflowID,
		Status:     res.RecordStatus(),
		Result:     res,
		Timestamp:  res.CompletedAt,
	}
}
