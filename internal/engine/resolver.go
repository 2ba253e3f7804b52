package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/util"
)

var templateRef = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Resolve returns the value of a variable reference such as "user" or
// "user.address.city". Dotted paths are followed into the variable's JSON
// form
func (c *RunContext) Resolve(ref string) (any, error) {
	name, path := util.SplitRef(ref)
	if name == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrVariableUnresolved)
	}
	v, ok := c.Lookup(api.Name(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVariableUnresolved, name)
	}
	res, ok := util.LookupPath(v, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVariableUnresolved, ref)
	}
	return res, nil
}

// Render substitutes every {{ref}} in the template with the formatted value
// of the reference. The first unresolved reference fails the whole render
func (c *RunContext) Render(tmpl string) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	var err error
	res := templateRef.ReplaceAllStringFunc(tmpl, func(m string) string {
		if err != nil {
			return m
		}
		ref := templateRef.FindStringSubmatch(m)[1]
		v, e := c.Resolve(ref)
		if e != nil {
			err = e
			return m
		}
		return formatValue(v)
	})
	if err != nil {
		return "", err
	}
	return res, nil
}

// References returns the variable names a template refers to
func References(tmpl string) []api.Name {
	var res []api.Name
	for _, m := range templateRef.FindAllStringSubmatch(tmpl, -1) {
		name, _ := util.SplitRef(m[1])
		res = append(res, api.Name(name))
	}
	return res
}

// LoopSource resolves a loop's source variable into the ordered sequence
// the loop iterates. It is called once, at loop entry
func (c *RunContext) LoopSource(source api.Name) ([]any, error) {
	v, err := c.Resolve(string(source))
	if err != nil {
		return nil, err
	}
	items, err := util.ToList(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrVariableUnresolved, source, err)
	}
	return items, nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}
