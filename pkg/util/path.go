package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

const pathSeparator = "."

var ErrNotAList = errors.New("value is not a list")

// SplitRef splits a variable reference like "user.address.city" into the
// variable name and the remaining path
func SplitRef(ref string) (string, string) {
	ref = strings.TrimSpace(ref)
	name, path, _ := strings.Cut(ref, pathSeparator)
	return name, path
}

// LookupPath resolves a gjson path inside value. Strings holding a JSON
// document are queried directly, other values are encoded to JSON first. An
// empty path returns the value itself
func LookupPath(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}

	var res gjson.Result
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		if !gjson.Valid(v) {
			return nil, false
		}
		res = gjson.Get(v, path)
	case []byte:
		if !gjson.ValidBytes(v) {
			return nil, false
		}
		res = gjson.GetBytes(v, path)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		res = gjson.GetBytes(data, path)
	}

	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// ToList coerces a value into a list. Slices and arrays of any element type
// are accepted, as are strings holding a JSON array or a comma-separated
// list of items
func ToList(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrNotAList)
	case []any:
		return v, nil
	case []string:
		res := make([]any, len(v))
		for i, s := range v {
			res[i] = s
		}
		return res, nil
	case string:
		return stringToList(v), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		res := make([]any, rv.Len())
		for i := range res {
			res[i] = rv.Index(i).Interface()
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotAList, value)
	}
}

func stringToList(s string) []any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return []any{}
	}
	if strings.HasPrefix(trimmed, "[") && gjson.Valid(trimmed) {
		if arr, ok := gjson.Parse(trimmed).Value().([]any); ok {
			return arr
		}
	}

	parts := strings.Split(trimmed, ",")
	res := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
