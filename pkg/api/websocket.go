package api

type (
	// SubscribeRequest is sent by clients to narrow the run event stream
	SubscribeRequest struct {
		Type string             `json:"type"`
		Data ClientSubscription `json:"data"`
	}

	// ClientSubscription configures which run events a WebSocket client
	// receives. Empty fields match everything
	ClientSubscription struct {
		WorkflowID WorkflowID  `json:"workflow_id,omitempty"`
		RunID      RunID       `json:"run_id,omitempty"`
		EventTypes []EventType `json:"event_types,omitempty"`
	}

	// SubscribedResult acknowledges a subscription. When the subscription
	// names a run, Record carries its current persisted state
	SubscribedResult struct {
		Type   string     `json:"type"`
		Record *RunRecord `json:"record,omitempty"`
	}
)

// Matches reports whether the event passes the subscription filter
func (s *ClientSubscription) Matches(ev *RunEvent) bool {
	if s.WorkflowID != "" && s.WorkflowID != ev.WorkflowID {
		return false
	}
	if s.RunID != "" && s.RunID != ev.RunID {
		return false
	}
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == ev.Type {
			return true
		}
	}
	return false
}
