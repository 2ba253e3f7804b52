package engine_test

import (
	"testing"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/assert"
	"github.com/richvergo/subtract-sub005/internal/assert/helpers"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

func TestLoopIterations(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		def := helpers.NewTestWorkflow("wf-loop",
			helpers.Loop("each", "emails", "email",
				helpers.Type("fill", "#email", "{{email}}"),
			),
			helpers.Optional(helpers.Type("after", "#email", "{{email}}")),
		)

		res := env.RunWorkflow(t, def, api.Args{
			"emails": []any{"a@x.test", "b@x.test", "c@x.test"},
		})

		as.RunStatus(res, api.RunSuccess)

		var typed []string
		for _, c := range env.Target.CallsFor(helpers.ActionType) {
			typed = append(typed, c.Value)
		}
		as.Equal([]string{"a@x.test", "b@x.test", "c@x.test"}, typed)

		var enters, exits int
		for _, s := range res.Steps {
			switch s.Kind {
			case api.ActionLoopEnter:
				enters++
				as.Equal(api.StepID("each"), s.StepID)
			case api.ActionLoopExit:
				exits++
			}
		}
		as.Equal(3, enters)
		as.Equal(3, exits)

		as.Equal(api.ActionLoopEnter, res.Steps[0].Kind)
		as.Equal(0, res.Steps[0].Metadata[api.MetaLoopIndex])
		as.Equal(api.ActionLoopExit, res.Steps[2].Kind)

		as.StepStatuses(res,
			assert.Succeeded("fill"), assert.Succeeded("fill"),
			assert.Succeeded("fill"), assert.Skipped("after"),
		)

		require.Len(t, res.Metadata.LoopContexts, 1)
		lc := res.Metadata.LoopContexts[0]
		as.Equal(3, lc.Count)
		as.Equal(3, lc.Iterations)
		as.True(lc.Completed)
		as.Equal(api.Name("email"), lc.Variable)
	})
}

func TestNestedLoopShadowing(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-nested",
			helpers.Loop("outer", "rows", "item",
				helpers.Type("row", "#row", "{{item}}"),
				helpers.Loop("inner", "cols", "item",
					helpers.Type("col", "#col", "{{item}}"),
				),
				helpers.Type("row-again", "#row", "{{item}}"),
			),
		)

		res := env.RunWorkflow(t, def, api.Args{
			"rows": []any{"r1", "r2"},
			"cols": []any{"c1", "c2"},
		})

		testify.Equal(t, api.RunSuccess, res.Status)
		var typed []string
		for _, c := range env.Target.CallsFor(helpers.ActionType) {
			typed = append(typed, c.Value)
		}
		testify.Equal(t, []string{
			"r1", "c1", "c2", "r1",
			"r2", "c1", "c2", "r2",
		}, typed)
		testify.Len(t, res.Metadata.LoopContexts, 3)
	})
}

func TestLoopCapturesScopedToIteration(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		env.Target.SetText("#out-a", "A")
		env.Target.SetText("#out-b", "B")
		def := helpers.NewTestWorkflow("wf-loop-capture",
			helpers.Loop("each", "items", "item",
				helpers.Optional(helpers.Type("use", "#in", "{{last}}")),
				helpers.Extract("grab", "#out-{{item}}", "last"),
				helpers.Type("echo", "#echo", "{{last}}"),
			),
			helpers.Optional(helpers.Type("after", "#in", "{{last}}")),
		)

		res := env.RunWorkflow(t, def, api.Args{
			"items": []any{"a", "b"},
		})

		as.RunStatus(res, api.RunSuccess)
		as.StepStatuses(res,
			assert.Skipped("use"), assert.Succeeded("grab"),
			assert.Succeeded("echo"),
			assert.Skipped("use"), assert.Succeeded("grab"),
			assert.Succeeded("echo"),
			assert.Skipped("after"),
		)

		var typed []string
		for _, c := range env.Target.CallsFor(helpers.ActionType) {
			typed = append(typed, c.Selector+"="+c.Value)
		}
		as.Equal([]string{"#echo=A", "#echo=B"}, typed)
	})
}

func TestLoopOverJSONString(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-json-loop",
			helpers.Loop("each", "ids", "id",
				helpers.Click("open", "#row-{{id}}"),
			),
		)

		res := env.RunWorkflow(t, def, api.Args{"ids": "[1, 2]"})

		testify.Equal(t, api.RunSuccess, res.Status)
		clicks := env.Target.CallsFor(helpers.ActionClick)
		require.Len(t, clicks, 2)
		testify.Equal(t, "#row-1", clicks[0].Selector)
		testify.Equal(t, "#row-2", clicks[1].Selector)
	})
}

func TestLoopSourceMissing(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-missing",
			helpers.Loop("each", "nothing", "x",
				helpers.Click("open", "#open"),
			),
		)

		res := env.RunWorkflow(t, def, nil)

		testify.Equal(t, api.RunFailure, res.Status)
		testify.Equal(t, api.ReasonVariableUnresolved, res.Reason)
		require.Len(t, res.Steps, 1)
		testify.Equal(t, api.ActionLoop, res.Steps[0].Kind)
		testify.Empty(t, res.Metadata.LoopContexts)
	})
}

func TestLoopBodyFailure(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-loop-fail",
			helpers.Loop("each", "items", "item",
				helpers.Type("fill", "#f", "{{item.name}}"),
			),
		)

		res := env.RunWorkflow(t, def, api.Args{
			"items": []any{
				map[string]any{"name": "ok"},
				map[string]any{"other": true},
				map[string]any{"name": "never"},
			},
		})

		testify.Equal(t, api.RunPartial, res.Status)
		testify.Equal(t, api.ReasonVariableUnresolved, res.Reason)
		testify.Len(t, env.Target.CallsFor(helpers.ActionType), 1)

		last := res.Steps[len(res.Steps)-1]
		testify.Equal(t, api.ActionLoopExit, last.Kind)
		testify.Equal(t, api.StepFailure, last.Status)

		lc := res.Metadata.LoopContexts[0]
		testify.Equal(t, 2, lc.Iterations)
		testify.False(t, lc.Completed)
	})
}

func TestConditionalBranches(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		def := helpers.NewTestWorkflow("wf-if",
			helpers.If("check", helpers.Compare("count", ">", 0),
				[]*api.Step{helpers.Click("then", "#then")},
				[]*api.Step{helpers.Click("else", "#else")},
			),
		)

		res := env.RunWorkflow(t, def, api.Args{"count": 0})

		as.RunStatus(res, api.RunSuccess)
		as.StepStatuses(res,
			assert.Succeeded("check"), assert.Succeeded("else"),
		)
		as.Equal(false, res.Steps[0].Output)

		clicks := env.Target.CallsFor(helpers.ActionClick)
		as.Len(clicks, 1)
		as.Equal("#else", clicks[0].Selector)

		as.Require.Len(res.Metadata.EvaluatedRules, 1)
		rule := res.Metadata.EvaluatedRules[0]
		as.Equal("count > 0", rule.Rule)
		as.False(rule.Result)
		as.Equal(api.StepID("check"), rule.StepID)
	})
}

func TestConditionalWithoutElse(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-if",
			helpers.If("check", helpers.Compare("flag", "==", true),
				[]*api.Step{helpers.Click("then", "#then")}, nil,
			),
			helpers.Click("after", "#after"),
		)

		res := env.RunWorkflow(t, def, api.Args{"flag": false})

		testify.Equal(t, api.RunSuccess, res.Status)
		clicks := env.Target.CallsFor(helpers.ActionClick)
		require.Len(t, clicks, 1)
		testify.Equal(t, "#after", clicks[0].Selector)
	})
}

func TestConditionalScriptRules(t *testing.T) {
	tests := []struct {
		name string
		rule *api.Rule
	}{
		{
			name: "expr",
			rule: &api.Rule{
				Language: api.RuleLangExpr,
				Script:   `status == "open" && total > 100`,
			},
		},
		{
			name: "lua",
			rule: &api.Rule{
				Language: api.RuleLangLua,
				Script:   `status == "open" and total > 100`,
			},
		},
		{
			name: "ale",
			rule: &api.Rule{
				Language: api.RuleLangAle,
				Script:   `(> total 100)`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
				def := helpers.NewTestWorkflow("wf-"+api.WorkflowID(tt.name),
					helpers.If("check", tt.rule,
						[]*api.Step{helpers.Click("approve", "#approve")},
						[]*api.Step{helpers.Click("reject", "#reject")},
					),
				)

				res := env.RunWorkflow(t, def, api.Args{
					"status": "open", "total": 250,
				})

				testify.Equal(t, api.RunSuccess, res.Status)
				require.Len(t, res.Metadata.EvaluatedRules, 1)
				testify.True(t, res.Metadata.EvaluatedRules[0].Result)
				clicks := env.Target.CallsFor(helpers.ActionClick)
				require.Len(t, clicks, 1)
				testify.Equal(t, "#approve", clicks[0].Selector)
			})
		})
	}
}

func TestConditionalInvalidScript(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-bad-rule",
			helpers.If("check",
				&api.Rule{Language: api.RuleLangExpr, Script: "total >"},
				[]*api.Step{helpers.Click("then", "#then")}, nil,
			),
		)

		res := env.RunWorkflow(t, def, api.Args{"total": 1})

		testify.Equal(t, api.RunFailure, res.Status)
		testify.Equal(t, api.ReasonStepFailed, res.Reason)
		testify.Empty(t, res.Metadata.EvaluatedRules)
	})
}

func TestConditionalMissingVariable(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-if-missing",
			helpers.If("check", helpers.Compare("missing", "==", 1),
				[]*api.Step{helpers.Click("then", "#then")}, nil,
			),
		)

		res := env.RunWorkflow(t, def, nil)

		testify.Equal(t, api.RunFailure, res.Status)
		testify.Equal(t, api.ReasonVariableUnresolved, res.Reason)
	})
}

func TestCompareExtractedJSON(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.Target.SetText("#invoice", `{"total": 120.5, "number": "INV-7"}`)
		def := helpers.NewTestWorkflow("wf-invoice",
			helpers.Extract("read", "#invoice", "invoice"),
			helpers.If("big", helpers.Compare("invoice.total", ">", 100),
				[]*api.Step{
					helpers.Type("note", "#note", "{{invoice.number}}"),
				},
				nil,
			),
		)

		res := env.RunWorkflow(t, def, nil)

		testify.Equal(t, api.RunSuccess, res.Status)
		testify.Equal(t, `{"total": 120.5, "number": "INV-7"}`,
			res.Steps[0].Output,
		)
		typed := env.Target.CallsFor(helpers.ActionType)
		require.Len(t, typed, 1)
		testify.Equal(t, "INV-7", typed[0].Value)
	})
}

func TestDynamicVariablePriority(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.Target.SetText("#total", "42")
		def := helpers.NewTestWorkflow("wf-dynamic",
			helpers.Type("before", "#out", "{{total}}"),
			helpers.Extract("read", "#total", "total"),
			helpers.Type("after", "#out", "{{total}}"),
		)

		res := env.RunWorkflow(t, def, api.Args{"total": 10})

		testify.Equal(t, api.RunSuccess, res.Status)
		typed := env.Target.CallsFor(helpers.ActionType)
		require.Len(t, typed, 2)
		testify.Equal(t, "10", typed[0].Value)
		testify.Equal(t, "42", typed[1].Value)
	})
}

func TestDeclaredDynamicVariable(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.Target.SetText("#user", "ada")
		def := helpers.NewTestWorkflow("wf-declared",
			helpers.Extract("whoami", "#user", ""),
			helpers.Type("greet", "#greeting", "hello {{user}} from {{site}}"),
		)
		def.Variables = []*api.VariableSpec{
			{Name: "site", Value: "acme"},
			{Name: "user", Dynamic: true, Source: "whoami"},
		}

		res := env.RunWorkflow(t, def, nil)

		testify.Equal(t, api.RunSuccess, res.Status)
		typed := env.Target.CallsFor(helpers.ActionType)
		require.Len(t, typed, 1)
		testify.Equal(t, "hello ada from acme", typed[0].Value)
	})
}

func TestTimedWait(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-wait",
			helpers.Wait("pause", "", "5"),
			helpers.Wait("marker", "#ready", ""),
		)

		res := env.RunWorkflow(t, def, nil)

		testify.Equal(t, api.RunSuccess, res.Status)
		testify.Len(t, env.Target.CallsFor(helpers.ActionWaitFor), 1)
	})
}

func TestInvalidWaitIsNotRetried(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewTestWorkflow("wf-wait",
			helpers.Wait("pause", "", "soon"),
		)

		res := env.RunWorkflow(t, def, nil)

		testify.Equal(t, api.RunFailure, res.Status)
		testify.Equal(t, 1, res.Steps[0].Attempts)
	})
}
