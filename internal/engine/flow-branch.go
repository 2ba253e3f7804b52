package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/richvergo/subtract-sub005/internal/engine/script"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

// runConditional evaluates the step's rule against the current variables,
// records the decision, and runs the matching branch
func (i *Interpreter) runConditional(ctx context.Context, step *api.Step) error {
	res := i.newResult(step)
	rule := step.Rule.String()
	res.Metadata[api.MetaRule] = rule

	ok, err := i.scripts.Evaluate(step.Rule, i.rc.Variables())
	if err != nil {
		err = ruleError(step, err)
		i.record(i.finish(res, step, err))
		return i.checkFailure(step, err)
	}

	now := i.clock()
	i.rc.Metadata().EvaluatedRules = append(i.rc.Metadata().EvaluatedRules,
		&api.EvaluatedRule{
			StepID:      step.ID,
			Rule:        rule,
			Result:      ok,
			EvaluatedAt: now,
		},
	)
	res.Output = ok
	res.Metadata[api.MetaRuleResult] = ok
	i.record(i.finish(res, step, nil))

	if ok {
		return i.runSteps(ctx, step.Then)
	}
	return i.runSteps(ctx, step.Else)
}

func ruleError(step *api.Step, err error) error {
	if errors.Is(err, script.ErrVariableNotFound) {
		return fmt.Errorf("%w: step %s: %w", ErrVariableUnresolved, step.ID, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStepExecution, step.ID, err)
}
