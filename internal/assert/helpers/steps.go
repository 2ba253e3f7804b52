package helpers

import "github.com/richvergo/subtract-sub005/pkg/api"

// Navigate creates a navigate step
func Navigate(id api.StepID, url string) *api.Step {
	return &api.Step{ID: id, Kind: api.ActionNavigate, Target: url}
}

// Click creates a click step
func Click(id api.StepID, sel string) *api.Step {
	return &api.Step{ID: id, Kind: api.ActionClick, Target: sel}
}

// Type creates a type step
func Type(id api.StepID, sel, value string) *api.Step {
	return &api.Step{ID: id, Kind: api.ActionType, Target: sel, Value: value}
}

// Extract creates an extract step capturing into the named variable
func Extract(id api.StepID, sel string, capture api.Name) *api.Step {
	return &api.Step{
		ID: id, Kind: api.ActionExtract, Target: sel, Capture: capture,
	}
}

// Wait creates a wait step. An empty selector sleeps for value
// milliseconds
func Wait(id api.StepID, sel, value string) *api.Step {
	return &api.Step{ID: id, Kind: api.ActionWait, Target: sel, Value: value}
}

// If creates a conditional step
func If(id api.StepID, rule *api.Rule, then, els []*api.Step) *api.Step {
	return &api.Step{
		ID:   id,
		Kind: api.ActionConditional,
		Rule: rule,
		Then: then,
		Else: els,
	}
}

// Compare creates a compare rule
func Compare(variable api.Name, op string, value any) *api.Rule {
	return &api.Rule{Variable: variable, Operator: op, Value: value}
}

// Loop creates a loop step over source binding each element to as
func Loop(id api.StepID, source, as api.Name, body ...*api.Step) *api.Step {
	return &api.Step{
		ID:   id,
		Kind: api.ActionLoop,
		Loop: &api.LoopSpec{Source: source, As: as, Body: body},
	}
}

// Optional marks a step optional and returns it
func Optional(step *api.Step) *api.Step {
	step.Optional = true
	return step
}
