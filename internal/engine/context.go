package engine

import (
	"maps"
	"slices"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// RunContext is the mutable state of a single run: bound variables, the
	// active loop frames, values captured by executed steps, and the
	// append-only sequence of step results. A RunContext is owned by exactly
	// one run and is not safe for concurrent use
	RunContext struct {
		runID    api.RunID
		workflow *api.WorkflowDefinition
		static   api.Args
		dynamic  map[api.Name]api.StepID
		captured map[api.StepID]any
		loops    []*LoopFrame
		results  []*api.StepResult
		metadata *api.RunMetadata
	}

	// LoopFrame is the activation record of one loop iteration
	LoopFrame struct {
		Value    any
		StepID   api.StepID
		Variable api.Name
		Index    int
		Count    int
	}
)

// NewRunContext binds the definition's static variables, layers the run's
// variables over them, and registers every dynamic variable with the step
// that produces it
func NewRunContext(
	runID api.RunID, def *api.WorkflowDefinition, vars api.Args,
) *RunContext {
	rc := &RunContext{
		runID:    runID,
		workflow: def,
		static:   api.Args{},
		dynamic:  map[api.Name]api.StepID{},
		captured: map[api.StepID]any{},
		metadata: api.NewRunMetadata(),
	}

	registerCaptures(rc.dynamic, def.Steps)
	for _, v := range def.Variables {
		if v.Dynamic {
			rc.dynamic[v.Name] = v.Source
			continue
		}
		rc.static[v.Name] = v.Value
	}
	maps.Copy(rc.static, vars)
	return rc
}

// RunID returns the ID of the run that owns this context
func (c *RunContext) RunID() api.RunID {
	return c.runID
}

// Workflow returns the definition being executed
func (c *RunContext) Workflow() *api.WorkflowDefinition {
	return c.workflow
}

// PushLoop activates a loop frame
func (c *RunContext) PushLoop(f *LoopFrame) {
	c.loops = append(c.loops, f)
}

// PopLoop deactivates and returns the innermost loop frame
func (c *RunContext) PopLoop() *LoopFrame {
	n := len(c.loops)
	if n == 0 {
		return nil
	}
	f := c.loops[n-1]
	c.loops[n-1] = nil
	c.loops = c.loops[:n-1]
	return f
}

// LoopDepth returns the number of active loop frames
func (c *RunContext) LoopDepth() int {
	return len(c.loops)
}

// Capture stores the output of an executed step for dynamic variables
func (c *RunContext) Capture(id api.StepID, value any) {
	c.captured[id] = value
}

// ScopeCaptures forgets the values captured by the given steps and returns
// a function that restores them
func (c *RunContext) ScopeCaptures(ids []api.StepID) func() {
	saved := make(map[api.StepID]any, len(ids))
	for _, id := range ids {
		if v, ok := c.captured[id]; ok {
			saved[id] = v
			delete(c.captured, id)
		}
	}
	return func() {
		for _, id := range ids {
			delete(c.captured, id)
		}
		maps.Copy(c.captured, saved)
	}
}

// Append records a step result
func (c *RunContext) Append(res *api.StepResult) {
	c.results = append(c.results, res)
}

// Results returns the recorded step results in execution order
func (c *RunContext) Results() []*api.StepResult {
	return slices.Clone(c.results)
}

// Metadata returns the run's control-flow metadata
func (c *RunContext) Metadata() *api.RunMetadata {
	return c.metadata
}

// Variables returns a snapshot of every currently resolvable variable,
// applying the same priority as Lookup
func (c *RunContext) Variables() api.Args {
	res := maps.Clone(c.static)
	for name, src := range c.dynamic {
		if v, ok := c.captured[src]; ok {
			res[name] = v
		}
	}
	for _, f := range c.loops {
		res[f.Variable] = f.Value
	}
	return res
}

// Lookup resolves a variable by name. The innermost loop frame binding the
// name wins, then a value captured by the variable's source step once that
// step has run, then the static or run-supplied value
func (c *RunContext) Lookup(name api.Name) (any, bool) {
	for i := len(c.loops) - 1; i >= 0; i-- {
		if f := c.loops[i]; f.Variable == name {
			return f.Value, true
		}
	}
	if src, ok := c.dynamic[name]; ok {
		if v, ok := c.captured[src]; ok {
			return v, true
		}
	}
	v, ok := c.static[name]
	return v, ok
}

func registerCaptures(dst map[api.Name]api.StepID, steps []*api.Step) {
	for _, step := range steps {
		if step.Capture != "" {
			dst[step.Capture] = step.ID
		}
		for _, children := range step.Children() {
			registerCaptures(dst, children)
		}
	}
}
