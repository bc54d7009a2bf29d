package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordsOrder(t *testing.T) {
	s := map[string]any{
		"required":   []any{"a"},
		"type":       "object",
		"properties": map[string]any{},
		"x-custom":   true,
		"maxLength":  3,
	}
	assert.Equal(t, []Keyword{KeywordType, KeywordProperties, KeywordMaxLength, KeywordRequired}, Keywords(s))
}

func TestParseKeyword(t *testing.T) {
	k, ok := ParseKeyword("additionalProperties")
	require.True(t, ok)
	assert.Equal(t, KeywordAdditionalProperties, k)
	assert.Equal(t, "additionalProperties", k.String())

	_, ok = ParseKeyword("nullable")
	assert.False(t, ok)
}

func TestTypes(t *testing.T) {
	tests := []struct {
		name     string
		node     any
		expected []string
	}{
		{"true schema", true, AllTypes},
		{"false schema", false, nil},
		{"single", map[string]any{"type": "string"}, []string{"string"}},
		{"list", map[string]any{"type": []any{"integer", "null"}}, []string{"integer", "null"}},
		{"missing", map[string]any{"minimum": 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Types(tt.node))
		})
	}
}

func TestKeyKeepsJSONTypes(t *testing.T) {
	assert.NotEqual(t, Key(5), Key(5.0))
	assert.Equal(t, Key(5), Key(int64(5)))
	assert.Equal(t, Key(5.0), Key(json.Number("5.0")))
	assert.Equal(t, Key(5), Key(json.Number("5")))
	assert.Equal(t, Key(map[string]any{"b": 1, "a": 2}), Key(map[string]any{"a": 2, "b": 1}))
	assert.NotEqual(t, Key("5"), Key(5))
	assert.NotEqual(t, Key(true), Key(1))
	assert.NotEqual(t, Key(nil), Key("null"))
	assert.Equal(t, "number:1.5", Key(1.5))
	assert.Equal(t, "array:[1,1.0]", Key([]any{1, 1.0}))

	seen := KeySet{}
	assert.True(t, seen.Add(map[string]any{"k": 1}))
	assert.True(t, seen.Add(map[string]any{"k": 1.0}))
	assert.False(t, seen.Add(map[string]any{"k": 1}))
	assert.True(t, seen.Add(map[string]any{"k": 2}))
}

func TestValueEquality(t *testing.T) {
	assert.True(t, Equal(5, 5.0))
	assert.True(t, Equal(map[string]any{"k": 1}, map[string]any{"k": 1.0}))
	assert.False(t, Equal("5", 5))

	enum := ValueSet{}
	enum.Add(1.0)
	assert.True(t, enum.Has(1))
	assert.False(t, enum.Has(2))
}

func TestNormalizeUsesJSONNumbers(t *testing.T) {
	out, err := Normalize(map[string]any{"n": 3, "f": 2.5, "list": []int{1}})
	require.NoError(t, err)
	object := out.(map[string]any)
	assert.Equal(t, json.Number("3"), object["n"])
	assert.Equal(t, json.Number("2.5"), object["f"])
	assert.Equal(t, []any{json.Number("1")}, object["list"])

	v := NewValidator()
	assert.True(t, v.IsValid(map[string]any{"type": "integer", "maximum": 3}, 3))
	assert.False(t, v.IsValid(map[string]any{"type": "integer"}, 2.5))
}

func TestCloneIsDeep(t *testing.T) {
	original := map[string]any{"nested": map[string]any{"list": []any{1, 2}}}
	clone := CloneMap(original)
	clone["nested"].(map[string]any)["list"].([]any)[0] = 42
	assert.Equal(t, 1, original["nested"].(map[string]any)["list"].([]any)[0])
}

func TestCanonicalize(t *testing.T) {
	merged, err := Canonicalize(map[string]any{
		"allOf": []any{
			map[string]any{"type": "number", "minimum": 1, "required": []any{"a"}},
			map[string]any{"type": "integer", "minimum": 3, "maximum": 10, "required": []any{"b"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "integer", merged["type"])
	assert.Equal(t, 3, merged["minimum"])
	assert.Equal(t, 10, merged["maximum"])
	assert.Equal(t, []any{"a", "b"}, merged["required"])
	_, hasAllOf := merged["allOf"]
	assert.False(t, hasAllOf)
}

func TestCanonicalizeContradictions(t *testing.T) {
	tests := []struct {
		name string
		node map[string]any
	}{
		{"disjoint types", map[string]any{"allOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "integer"},
		}}},
		{"crossed bounds", map[string]any{"allOf": []any{
			map[string]any{"minimum": 10},
			map[string]any{"maximum": 5},
		}}},
		{"disjoint enums", map[string]any{"allOf": []any{
			map[string]any{"enum": []any{1, 2}},
			map[string]any{"enum": []any{3}},
		}}},
		{"different patterns", map[string]any{"allOf": []any{
			map[string]any{"pattern": "^a"},
			map[string]any{"pattern": "^b"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.node)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCanonicalize))
			assert.True(t, IsUnfixable(err))
		})
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	s := map[string]any{
		"type":       "object",
		"required":   []any{"id"},
		"properties": map[string]any{"id": map[string]any{"type": "integer", "minimum": 1}},
	}
	assert.True(t, v.IsValid(s, map[string]any{"id": 3}))
	assert.False(t, v.IsValid(s, map[string]any{"id": 0}))
	assert.False(t, v.IsValid(s, map[string]any{}))
	assert.Error(t, v.Validate(s, map[string]any{"id": "x"}))

	assert.True(t, v.IsValid(map[string]any{"type": "string", "format": "ipv4"}, "127.0.0.1"))
	assert.False(t, v.IsValid(map[string]any{"type": "string", "format": "ipv4"}, "nope"))
}

func TestFormatConforms(t *testing.T) {
	assert.False(t, FormatConforms("hostname", ""))
	assert.True(t, FormatConforms("hostname", "example.com"))
	assert.False(t, FormatConforms("email", "not-an-email"))
	assert.True(t, FormatConforms("x-unknown-format", "anything"))
}

func TestHeaderHelpers(t *testing.T) {
	assert.True(t, IsLatin1("café"))
	assert.False(t, IsLatin1("日本"))
	assert.True(t, HasInvalidHeaderChars("a\r\nb"))
	assert.True(t, HasInvalidHeaderChars(" leading"))
	assert.False(t, HasInvalidHeaderChars("fine value"))
	assert.False(t, HasInvalidHeaderChars(""))
}
