package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"
	"github.com/kode4food/lru"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// AleEnv evaluates rules written in Ale, a Lisp dialect. Each variable
	// in scope is bound to a lambda parameter of the same name
	AleEnv struct {
		env   *env.Environment
		procs *lru.Cache[data.Procedure]
	}

	aleRule struct {
		script string
	}
)

const (
	aleLambdaTemplate = "(lambda (%s) %s)"
	aleQuoteTemplate  = "(lambda () (quote %s))"
)

var (
	ErrAleCompile         = errors.New("ale compile error")
	ErrAleCall            = errors.New("ale call error")
	ErrAleNotProcedure    = errors.New("not a procedure")
	ErrAleBadCompiledType = errors.New("expected compiled ale rule")
)

var aleSymbol = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-?!*]*$`)

// NewAleEnv creates an Ale rule environment caching up to cacheSize
// procedures
func NewAleEnv(cacheSize int) *AleEnv {
	e := env.NewEnvironment()
	bootstrap.Into(e)
	return &AleEnv{
		env:   e,
		procs: lru.NewCache[data.Procedure](cacheSize),
	}
}

// Validate checks that the rule's script reads as a single Ale form
func (e *AleEnv) Validate(rule *api.Rule) error {
	_, err := e.Compile(rule)
	return err
}

// Compile reads the script without resolving its symbols. The procedure
// that actually runs is compiled lazily per set of variable names in scope
func (e *AleEnv) Compile(rule *api.Rule) (Compiled, error) {
	if rule == nil || strings.TrimSpace(rule.Script) == "" {
		return nil, api.ErrRuleScriptEmpty
	}
	if _, err := e.compile(aleQuoteTemplate, rule.Script); err != nil {
		return nil, err
	}
	return &aleRule{script: rule.Script}, nil
}

// Evaluate calls the rule's procedure with the variables in scope. Any
// result other than false or nil is true
func (e *AleEnv) Evaluate(
	c Compiled, _ *api.Rule, vars api.Args,
) (bool, error) {
	r, ok := c.(*aleRule)
	if !ok {
		return false, fmt.Errorf("%w, got %T", ErrAleBadCompiledType, c)
	}

	names := aleArgNames(vars)
	proc, err := e.procs.Get(hashScript(r.script, names...),
		func() (data.Procedure, error) {
			return e.compile(aleLambdaTemplate,
				strings.Join(names, " "), r.script,
			)
		},
	)
	if err != nil {
		return false, err
	}

	args := make(data.Vector, 0, len(names))
	for _, name := range names {
		args = append(args, jsonToAle(vars[api.Name(name)]))
	}

	result, err := catchPanic(ErrAleCall, func() (ale.Value, error) {
		return proc.Call(args...), nil
	})
	if err != nil {
		return false, err
	}
	return result != data.False && result != data.Null, nil
}

func (e *AleEnv) compile(
	template string, parts ...any,
) (data.Procedure, error) {
	src := fmt.Sprintf(template, parts...)
	return catchPanic(ErrAleCompile, func() (data.Procedure, error) {
		ns := e.env.GetAnonymous()
		res, err := eval.String(ns, data.String(src))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAleCompile, err)
		}
		proc, ok := res.(data.Procedure)
		if !ok {
			return nil, fmt.Errorf("%w, got: %T", ErrAleNotProcedure, res)
		}
		return proc, nil
	})
}

func aleArgNames(vars api.Args) []string {
	res := make([]string, 0, len(vars))
	for _, name := range sortedNames(vars) {
		if aleSymbol.MatchString(name) {
			res = append(res, name)
		}
	}
	return res
}

func jsonToAle(value any) ale.Value {
	switch v := value.(type) {
	case string:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case int:
		return data.Integer(v)
	case int64:
		return data.Integer(v)
	case float64:
		return data.Float(v)
	case []any:
		vec := make(data.Vector, len(v))
		for i, item := range v {
			vec[i] = jsonToAle(item)
		}
		return vec
	case map[string]any:
		obj := data.NewObject()
		for k, item := range v {
			pair := data.NewCons(data.Keyword(k), jsonToAle(item))
			obj = obj.Put(pair).(*data.Object)
		}
		return obj
	case nil:
		return data.Null
	default:
		return data.String(fmt.Sprintf("%v", v))
	}
}

func catchPanic[T any](baseErr error, fn func() (T, error)) (res T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = fmt.Errorf("%w: %w", baseErr, e)
			return
		}
		err = fmt.Errorf("%w: %v", baseErr, r)
	}()
	return fn()
}
