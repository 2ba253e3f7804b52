package script

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/kode4food/lru"

	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/util"
)

type (
	// LuaEnv evaluates Lua rules in a sandbox with state pooling
	LuaEnv struct {
		programs  *lru.Cache[*CompiledLua]
		statePool chan *lua.State
	}

	// CompiledLua represents a compiled Lua chunk. Each variable in scope
	// is bound to a local of the same name
	CompiledLua struct {
		bytecode []byte
		argNames []string
	}

	luaRule struct {
		script string
	}
)

const (
	luaStatePoolSize    = 10
	luaGlobalTableIndex = -2
	luaArrayTableIndex  = -3
	luaMapTableIndex    = -3
	luaArgLocalTemplate = "local %s = select(%d, ...)"
	luaGlobalTableName  = "_G"
	luaSeparator        = "\n"
)

var (
	ErrLuaLoad        = errors.New("lua load error")
	ErrLuaExecution   = errors.New("lua execution error")
	ErrBadCompiledLua = errors.New("expected compiled lua rule")
)

var (
	luaIdentifier    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	luaReservedWords = util.SetOf(
		"and", "break", "do", "else", "elseif", "end", "false", "for",
		"function", "goto", "if", "in", "local", "nil", "not", "or",
		"repeat", "return", "then", "true", "until", "while",
	)
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaEnv creates a Lua rule environment caching up to cacheSize chunks
func NewLuaEnv(cacheSize int) *LuaEnv {
	return &LuaEnv{
		programs:  lru.NewCache[*CompiledLua](cacheSize),
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
}

// Validate checks that the rule's script is syntactically valid Lua
func (e *LuaEnv) Validate(rule *api.Rule) error {
	_, err := e.Compile(rule)
	return err
}

// Compile checks the script's syntax. The chunk that actually runs is
// compiled lazily per set of variable names in scope
func (e *LuaEnv) Compile(rule *api.Rule) (Compiled, error) {
	if rule == nil || strings.TrimSpace(rule.Script) == "" {
		return nil, api.ErrRuleScriptEmpty
	}
	if _, err := e.program(rule.Script, nil); err != nil {
		return nil, err
	}
	return &luaRule{script: rule.Script}, nil
}

// Evaluate runs the rule with every variable in scope bound as a local and
// returns the truthiness of its result
func (e *LuaEnv) Evaluate(
	c Compiled, _ *api.Rule, vars api.Args,
) (bool, error) {
	r, ok := c.(*luaRule)
	if !ok {
		return false, fmt.Errorf("%w, got %T", ErrBadCompiledLua, c)
	}

	proc, err := e.program(r.script, luaArgNames(vars))
	if err != nil {
		return false, err
	}

	result := false
	err = e.withCompiledResult(proc, vars,
		func(L *lua.State) {
			result = L.ToBoolean(-1)
			L.Pop(1)
		},
	)
	return result, err
}

func (e *LuaEnv) program(
	script string, argNames []string,
) (*CompiledLua, error) {
	key := hashScript(script, argNames...)
	return e.programs.Get(key, func() (*CompiledLua, error) {
		return e.compile(e.wrapSource(script, argNames), argNames)
	})
}

func (e *LuaEnv) wrapSource(script string, argNames []string) string {
	argLocals := make([]string, len(argNames))
	for i, name := range argNames {
		argLocals[i] = fmt.Sprintf(luaArgLocalTemplate, name, i+1)
	}
	return strings.Join([]string{
		strings.Join(argLocals, luaSeparator), wrapExpression(script),
	}, luaSeparator)
}

func (e *LuaEnv) compile(src string, argNames []string) (*CompiledLua, error) {
	L := lua.NewState()

	e.setupSandbox(L)

	if err := lua.LoadString(L, src); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	return &CompiledLua{
		bytecode: buf.Bytes(),
		argNames: argNames,
	}, nil
}

func (e *LuaEnv) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (e *LuaEnv) withCompiledResult(
	proc *CompiledLua, vars api.Args, onResult func(*lua.State),
) error {
	L := e.getState()
	defer e.returnState(L)

	e.setupSandbox(L)
	if err := L.Load(bytes.NewReader(proc.bytecode), "chunk", "b"); err != nil {
		return fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	for _, name := range proc.argNames {
		pushLuaArg(L, vars, name)
	}

	if err := L.ProtectedCall(len(proc.argNames), 1, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	onResult(L)
	return nil
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)

	select {
	case e.statePool <- L:
	default:
	}
}

// wrapExpression lets a rule be written either as a bare expression such as
// "count > 3" or as a chunk with an explicit return
func wrapExpression(script string) string {
	trimmed := strings.TrimSpace(script)
	if strings.Contains(trimmed, "return") || strings.Contains(trimmed, "\n") {
		return trimmed
	}
	return "return " + trimmed
}

func luaArgNames(vars api.Args) []string {
	res := make([]string, 0, len(vars))
	for _, name := range sortedNames(vars) {
		if luaIdentifier.MatchString(name) && !luaReservedWords.Contains(name) {
			res = append(res, name)
		}
	}
	return res
}

func pushLuaArg(L *lua.State, vars api.Args, argName string) {
	if value, ok := vars[api.Name(argName)]; ok {
		goToLua(L, value)
		return
	}
	L.PushNil()
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushLuaArray(L, v)
	case map[string]any:
		pushLuaMap(L, v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushLuaArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaArrayTableIndex)
	}
}

func pushLuaMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, val := range m {
		L.PushString(k)
		goToLua(L, val)
		L.SetTable(luaMapTableIndex)
	}
}
