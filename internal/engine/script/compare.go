package script

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/util"
)

// CompareEnv evaluates rules of the form "variable operator value"
type CompareEnv struct{}

const (
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpContains     = "contains"
	OpExists       = "exists"
	OpNotExists    = "not_exists"
)

var (
	ErrVariableNotFound = errors.New("rule variable not found")
	ErrBadCompiledRule  = errors.New("expected *api.Rule")
)

// NewCompareEnv creates the environment for compare rules
func NewCompareEnv() *CompareEnv {
	return &CompareEnv{}
}

// Validate checks the variable and operator of the rule
func (e *CompareEnv) Validate(rule *api.Rule) error {
	return rule.Validate()
}

// Compile validates the rule. Compare rules need no compiled form, so the
// rule itself is returned
func (e *CompareEnv) Compile(rule *api.Rule) (Compiled, error) {
	if err := e.Validate(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Evaluate looks up the rule's variable, following any dotted path, and
// applies the operator to it and the rule's value
func (e *CompareEnv) Evaluate(
	c Compiled, _ *api.Rule, vars api.Args,
) (bool, error) {
	rule, ok := c.(*api.Rule)
	if !ok {
		return false, fmt.Errorf("%w, got %T", ErrBadCompiledRule, c)
	}

	actual, found := lookup(vars, string(rule.Variable))
	switch rule.Operator {
	case OpExists:
		return found && actual != nil, nil
	case OpNotExists:
		return !found || actual == nil, nil
	}

	if !found {
		return false, fmt.Errorf("%w: %s", ErrVariableNotFound, rule.Variable)
	}
	return compare(rule.Operator, actual, rule.Value)
}

func lookup(vars api.Args, ref string) (any, bool) {
	name, path := util.SplitRef(ref)
	val, ok := vars[api.Name(name)]
	if !ok {
		return nil, false
	}
	return util.LookupPath(val, path)
}

func compare(op string, actual, expected any) (bool, error) {
	switch op {
	case OpEqual:
		return equal(actual, expected), nil
	case OpNotEqual:
		return !equal(actual, expected), nil
	case OpContains:
		return contains(actual, expected), nil
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		return order(op, actual, expected), nil
	default:
		return false, fmt.Errorf("%w: %s", api.ErrInvalidRuleOperator, op)
	}
}

func equal(a, b any) bool {
	if af, ok := toNumber(a); ok {
		if bf, ok := toNumber(b); ok {
			return af == bf
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := toBool(b); ok {
			return ab == bb
		}
	}
	return toString(a) == toString(b)
}

func order(op string, a, b any) bool {
	var cmp int
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if aok && bok {
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(toString(a), toString(b))
	}

	switch op {
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	default:
		return cmp <= 0
	}
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toString(needle))
	case map[string]any:
		_, ok := h[toString(needle)]
		return ok
	}

	rv := reflect.ValueOf(haystack)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := range rv.Len() {
		if equal(rv.Index(i).Interface(), needle) {
			return true
		}
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		res, err := strconv.ParseBool(b)
		return res, err == nil
	default:
		return false, false
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
