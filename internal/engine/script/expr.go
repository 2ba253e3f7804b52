package script

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// ExprEnv evaluates rules written in the expr language
type ExprEnv struct {
	*compiler[*vm.Program]
}

var (
	ErrExprCompile     = errors.New("expr compile error")
	ErrExprExecution   = errors.New("expr execution error")
	ErrExprNotBool     = errors.New("expr rule did not return a boolean")
	ErrBadCompiledExpr = errors.New("expected *vm.Program")
)

// NewExprEnv creates an expr environment caching up to cacheSize programs
func NewExprEnv(cacheSize int) *ExprEnv {
	return &ExprEnv{
		compiler: newCompiler(cacheSize,
			func(rule *api.Rule) (*vm.Program, error) {
				prog, err := expr.Compile(rule.Script,
					expr.AsBool(), expr.AllowUndefinedVariables(),
				)
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrExprCompile, err)
				}
				return prog, nil
			},
		),
	}
}

// Evaluate runs a compiled expr program with the variables in scope
func (e *ExprEnv) Evaluate(
	c Compiled, _ *api.Rule, vars api.Args,
) (bool, error) {
	prog, ok := c.(*vm.Program)
	if !ok {
		return false, fmt.Errorf("%w, got %T", ErrBadCompiledExpr, c)
	}

	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[string(k)] = v
	}

	out, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrExprExecution, err)
	}
	res, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %T", ErrExprNotBool, out)
	}
	return res, nil
}
