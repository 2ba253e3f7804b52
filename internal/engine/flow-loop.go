package engine

import (
	"context"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// runLoop resolves the loop source once, then runs the body once per
// element with the element bound to the loop variable. An empty source
// runs nothing
func (i *Interpreter) runLoop(ctx context.Context, step *api.Step) error {
	spec := step.Loop
	items, err := i.rc.LoopSource(spec.Source)
	if err != nil {
		res := i.newResult(step)
		i.record(i.finish(res, step, err))
		return i.checkFailure(step, err)
	}

	lc := &api.LoopContext{
		StepID:   step.ID,
		Variable: spec.As,
		Source:   spec.Source,
		Count:    len(items),
	}
	meta := i.rc.Metadata()
	meta.LoopContexts = append(meta.LoopContexts, lc)

	for idx, item := range items {
		if err := i.runIteration(ctx, step, lc, idx, item); err != nil {
			return i.checkFailure(step, err)
		}
	}
	lc.Completed = true
	return nil
}

// runIteration pushes one loop frame, runs the body, and pops the frame on
// every exit path. Values captured inside the body are visible only to the
// iteration that captured them
func (i *Interpreter) runIteration(
	ctx context.Context, step *api.Step, lc *api.LoopContext, idx int,
	item any,
) (err error) {
	frame := &LoopFrame{
		StepID:   step.ID,
		Variable: step.Loop.As,
		Value:    item,
		Index:    idx,
		Count:    lc.Count,
	}
	i.rc.PushLoop(frame)
	restore := i.rc.ScopeCaptures(stepIDs(step.Loop.Body))
	i.record(i.marker(step, api.ActionLoopEnter, frame, nil))

	defer func() {
		restore()
		i.rc.PopLoop()
		i.record(i.marker(step, api.ActionLoopExit, frame, err))
	}()

	lc.Iterations++
	return i.runSteps(ctx, step.Loop.Body)
}

func (i *Interpreter) marker(
	step *api.Step, kind api.ActionKind, f *LoopFrame, err error,
) *api.StepResult {
	now := i.clock()
	res := &api.StepResult{
		StepID:      step.ID,
		Kind:        kind,
		Status:      api.StepSuccess,
		StartedAt:   now,
		CompletedAt: now,
		Metadata: api.Metadata{
			api.MetaLoopIndex: f.Index,
			api.MetaLoopVar:   string(f.Variable),
			api.MetaLoopCount: f.Count,
		},
	}
	if err != nil {
		res.Status = api.StepFailure
		res.Error = err.Error()
	}
	return res
}

func stepIDs(steps []*api.Step) []api.StepID {
	var res []api.StepID
	for _, s := range steps {
		res = append(res, s.ID)
		for _, branch := range s.Children() {
			res = append(res, stepIDs(branch)...)
		}
	}
	return res
}
