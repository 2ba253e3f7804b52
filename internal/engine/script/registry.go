// Package script evaluates the boolean rules attached to conditional steps
package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/kode4food/lru"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// Registry manages rule environments for different languages
	Registry struct {
		envs map[api.RuleLanguage]Environment
	}

	// Environment defines the interface for rule environments
	Environment interface {
		// Validate checks if a rule is syntactically valid
		Validate(rule *api.Rule) error

		// Compile compiles a rule and returns the compiled form
		Compile(rule *api.Rule) (Compiled, error)

		// Evaluate runs a compiled rule against the variables in scope
		Evaluate(c Compiled, rule *api.Rule, vars api.Args) (bool, error)
	}

	// Compiled represents a compiled rule for any supported language
	Compiled any

	compileFunc[T any] func(rule *api.Rule) (T, error)

	compiler[T any] struct {
		cache *lru.Cache[T]
		build compileFunc[T]
	}
)

// DefaultCacheSize bounds each language's compiled rule cache
const DefaultCacheSize = 4096

var ErrUnsupportedLanguage = api.ErrInvalidRuleLanguage

// NewRegistry creates a registry holding the compare, expr, Lua, and Ale
// rule environments. Compiled scripts are cached up to cacheSize per language
func NewRegistry(cacheSize int) *Registry {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Registry{
		envs: map[api.RuleLanguage]Environment{
			api.RuleLangCompare: NewCompareEnv(),
			api.RuleLangExpr:    NewExprEnv(cacheSize),
			api.RuleLangLua:     NewLuaEnv(cacheSize),
			api.RuleLangAle:     NewAleEnv(cacheSize),
		},
	}
}

// Register adds or replaces the environment for a language
func (r *Registry) Register(language api.RuleLanguage, env Environment) {
	r.envs[language] = env
}

// Get returns the rule environment for the given language
func (r *Registry) Get(language api.RuleLanguage) (Environment, error) {
	env, ok := r.envs[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return env, nil
}

// Validate checks a rule with the environment of its language
func (r *Registry) Validate(rule *api.Rule) error {
	env, err := r.Get(rule.EffectiveLanguage())
	if err != nil {
		return err
	}
	return env.Validate(rule)
}

// Evaluate compiles (or fetches from cache) and runs a rule
func (r *Registry) Evaluate(rule *api.Rule, vars api.Args) (bool, error) {
	env, err := r.Get(rule.EffectiveLanguage())
	if err != nil {
		return false, err
	}
	c, err := env.Compile(rule)
	if err != nil {
		return false, err
	}
	return env.Evaluate(c, rule, vars)
}

func newCompiler[T any](size int, build compileFunc[T]) *compiler[T] {
	return &compiler[T]{
		cache: lru.NewCache[T](size),
		build: build,
	}
}

func (c *compiler[T]) Validate(rule *api.Rule) error {
	_, err := c.Compile(rule)
	return err
}

func (c *compiler[T]) Compile(rule *api.Rule) (Compiled, error) {
	if rule == nil || rule.Script == "" {
		return nil, api.ErrRuleScriptEmpty
	}

	return c.cache.Get(hashScript(rule.Script), func() (T, error) {
		return c.build(rule)
	})
}

func hashScript(script string, argNames ...string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(script))

	for _, arg := range argNames {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(arg))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func sortedNames(vars api.Args) []string {
	res := make([]string, 0, len(vars))
	for name := range vars {
		res = append(res, string(name))
	}
	slices.Sort(res)
	return res
}
