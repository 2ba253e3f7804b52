package events

import (
	"context"
	"errors"

	"github.com/kode4food/caravan/topic"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// ErrConsumerClosed is returned when a consumer closes before a match
var ErrConsumerClosed = errors.New("event consumer closed")

// WaitFor blocks until the consumer yields an event accepted by filter. The
// consumer must be created before the awaited event is published
func WaitFor(
	ctx context.Context, cons topic.Consumer[*api.RunEvent], filter Filter,
) (*api.RunEvent, error) {
	for {
		select {
		case ev, ok := <-cons.Receive():
			if !ok {
				return nil, ErrConsumerClosed
			}
			if filter(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitForRun blocks until the given run finishes and returns its result
func WaitForRun(
	ctx context.Context, cons topic.Consumer[*api.RunEvent], id api.RunID,
) (*api.RunResult, error) {
	ev, err := WaitFor(ctx, cons, AndFilters(
		FilterRun(id), FilterTypes(api.EventTypeRunFinished),
	))
	if err != nil {
		return nil, err
	}
	return ev.Result, nil
}
