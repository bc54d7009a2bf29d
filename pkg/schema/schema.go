// Package schema holds helpers for JSON-Schema-shaped values decoded into
// generic Go values (map[string]any, []any, string, float64, bool, nil).
package schema

import (
	"encoding/json"
	"math"
	"sort"
)

// Keyword is one of the schema keywords the generators understand.
// Keywords are always visited in the order they are declared here.
type Keyword int

const (
	KeywordType Keyword = iota
	KeywordEnum
	KeywordConst
	KeywordProperties
	KeywordPatternProperties
	KeywordItems
	KeywordPattern
	KeywordFormat
	KeywordMaximum
	KeywordMinimum
	KeywordExclusiveMaximum
	KeywordExclusiveMinimum
	KeywordMultipleOf
	KeywordMinLength
	KeywordMaxLength
	KeywordMinItems
	KeywordMaxItems
	KeywordUniqueItems
	KeywordRequired
	KeywordAdditionalProperties
	KeywordAllOf
	KeywordAnyOf
	KeywordOneOf
	KeywordNot
)

var keywordNames = [...]string{
	KeywordType:                 "type",
	KeywordEnum:                 "enum",
	KeywordConst:                "const",
	KeywordProperties:           "properties",
	KeywordPatternProperties:    "patternProperties",
	KeywordItems:                "items",
	KeywordPattern:              "pattern",
	KeywordFormat:               "format",
	KeywordMaximum:              "maximum",
	KeywordMinimum:              "minimum",
	KeywordExclusiveMaximum:     "exclusiveMaximum",
	KeywordExclusiveMinimum:     "exclusiveMinimum",
	KeywordMultipleOf:           "multipleOf",
	KeywordMinLength:            "minLength",
	KeywordMaxLength:            "maxLength",
	KeywordMinItems:             "minItems",
	KeywordMaxItems:             "maxItems",
	KeywordUniqueItems:          "uniqueItems",
	KeywordRequired:             "required",
	KeywordAdditionalProperties: "additionalProperties",
	KeywordAllOf:                "allOf",
	KeywordAnyOf:                "anyOf",
	KeywordOneOf:                "oneOf",
	KeywordNot:                  "not",
}

func (k Keyword) String() string {
	if k < 0 || int(k) >= len(keywordNames) {
		return "unknown"
	}
	return keywordNames[k]
}

// ParseKeyword maps a raw schema key to a Keyword.
func ParseKeyword(name string) (Keyword, bool) {
	for i, n := range keywordNames {
		if n == name {
			return Keyword(i), true
		}
	}
	return 0, false
}

// Keywords returns the known keywords present in s, in declaration order.
func Keywords(s map[string]any) []Keyword {
	var out []Keyword
	for i, name := range keywordNames {
		if _, ok := s[name]; ok {
			out = append(out, Keyword(i))
		}
	}
	return out
}

// AllTypes is what a `true` schema expands to.
var AllTypes = []string{"null", "boolean", "string", "number", "array", "object"}

// Types normalizes the type keyword of a node into a list.
func Types(node any) []string {
	switch n := node.(type) {
	case bool:
		if n {
			return append([]string(nil), AllTypes...)
		}
		return nil
	case map[string]any:
		switch t := n["type"].(type) {
		case string:
			return []string{t}
		case []string:
			return append([]string(nil), t...)
		case []any:
			out := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}

// AsMap returns the node as a keyword mapping. A `true` node is an empty mapping.
func AsMap(node any) (map[string]any, bool) {
	switch n := node.(type) {
	case map[string]any:
		return n, true
	case bool:
		if n {
			return map[string]any{}, true
		}
	}
	return nil, false
}

// ToFloat converts any numeric JSON value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// IsNumber reports whether v is a JSON number (booleans excluded).
func IsNumber(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// IsInteger reports whether v is a number with no fractional part.
func IsInteger(v any) bool {
	f, ok := ToFloat(v)
	return ok && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func Number(s map[string]any, key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	if _, isBool := v.(bool); isBool {
		return 0, false
	}
	return ToFloat(v)
}

func Int(s map[string]any, key string) (int, bool) {
	f, ok := Number(s, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func String(s map[string]any, key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

func Bool(s map[string]any, key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}

func List(s map[string]any, key string) ([]any, bool) {
	switch v := s[key].(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

func Strings(s map[string]any, key string) []string {
	items, _ := List(s, key)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Properties returns the properties mapping and its names sorted.
func Properties(s map[string]any) (map[string]any, []string) {
	props, _ := s["properties"].(map[string]any)
	return props, SortedKeys(props)
}

func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep copies a JSON value.
func Clone(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = Clone(item)
		}
		return out
	case []string:
		return append([]string(nil), n...)
	}
	return v
}

func CloneMap(s map[string]any) map[string]any {
	if s == nil {
		return nil
	}
	return Clone(s).(map[string]any)
}

// Without returns a shallow copy of s minus the given keys.
func Without(s map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// With returns a shallow copy of s with key set to value.
func With(s map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[key] = value
	return out
}

func Contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
