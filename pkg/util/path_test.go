package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richvergo/subtract-sub005/pkg/util"
)

func TestSplitRef(t *testing.T) {
	name, path := util.SplitRef("user.address.city")
	assert.Equal(t, "user", name)
	assert.Equal(t, "address.city", path)

	name, path = util.SplitRef(" email ")
	assert.Equal(t, "email", name)
	assert.Empty(t, path)
}

func TestLookupPath(t *testing.T) {
	doc := map[string]any{
		"name": "Ada",
		"tags": []any{"x", "y"},
		"address": map[string]any{
			"city": "London",
		},
	}

	v, ok := util.LookupPath(doc, "address.city")
	assert.True(t, ok)
	assert.Equal(t, "London", v)

	v, ok = util.LookupPath(doc, "tags.1")
	assert.True(t, ok)
	assert.Equal(t, "y", v)

	v, ok = util.LookupPath(doc, "tags.#")
	assert.True(t, ok)
	assert.Equal(t, float64(2), v)

	_, ok = util.LookupPath(doc, "address.zip")
	assert.False(t, ok)

	v, ok = util.LookupPath(doc, "")
	assert.True(t, ok)
	assert.Equal(t, doc, v)
}

func TestLookupPathJSONString(t *testing.T) {
	v, ok := util.LookupPath(`{"total":42,"items":[{"id":"a"}]}`, "total")
	assert.True(t, ok)
	assert.Equal(t, float64(42), v)

	v, ok = util.LookupPath(`{"items":[{"id":"a"}]}`, "items.0.id")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = util.LookupPath("plain text", "anything")
	assert.False(t, ok)

	_, ok = util.LookupPath(nil, "anything")
	assert.False(t, ok)
}

func TestToList(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected []any
	}{
		{
			name:     "any_slice",
			input:    []any{1, "two"},
			expected: []any{1, "two"},
		},
		{
			name:     "string_slice",
			input:    []string{"a", "b"},
			expected: []any{"a", "b"},
		},
		{
			name:     "int_slice",
			input:    []int{1, 2, 3},
			expected: []any{1, 2, 3},
		},
		{
			name:     "json_array",
			input:    `["a@x.com", "b@x.com"]`,
			expected: []any{"a@x.com", "b@x.com"},
		},
		{
			name:     "comma_separated",
			input:    "red, green ,blue",
			expected: []any{"red", "green", "blue"},
		},
		{
			name:     "single_item",
			input:    "solo",
			expected: []any{"solo"},
		},
		{
			name:     "empty_string",
			input:    "  ",
			expected: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := util.ToList(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, res)
		})
	}
}

func TestToListRejectsScalars(t *testing.T) {
	_, err := util.ToList(42)
	assert.ErrorIs(t, err, util.ErrNotAList)

	_, err = util.ToList(nil)
	assert.ErrorIs(t, err, util.ErrNotAList)

	_, err = util.ToList(map[string]any{"a": 1})
	assert.ErrorIs(t, err, util.ErrNotAList)
}
