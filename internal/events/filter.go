package events

import (
	"slices"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// FilterTypes matches events of any of the given types
func FilterTypes(types ...api.EventType) Filter {
	return func(ev *api.RunEvent) bool {
		return ev != nil && slices.Contains(types, ev.Type)
	}
}

// FilterRun matches events for a single run
func FilterRun(id api.RunID) Filter {
	return func(ev *api.RunEvent) bool {
		return ev != nil && ev.RunID == id
	}
}

// FilterWorkflow matches events for runs of a single workflow
func FilterWorkflow(id api.WorkflowID) Filter {
	return func(ev *api.RunEvent) bool {
		return ev != nil && ev.WorkflowID == id
	}
}

func AndFilters(filters ...Filter) Filter {
	return func(ev *api.RunEvent) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

func OrFilters(filters ...Filter) Filter {
	return func(ev *api.RunEvent) bool {
		for _, filter := range filters {
			if filter(ev) {
				return true
			}
		}
		return false
	}
}

// FromSubscription builds a filter from a client subscription. A nil
// subscription matches nothing
func FromSubscription(sub *api.ClientSubscription) Filter {
	if sub == nil {
		return func(*api.RunEvent) bool { return false }
	}
	return func(ev *api.RunEvent) bool {
		return ev != nil && sub.Matches(ev)
	}
}
