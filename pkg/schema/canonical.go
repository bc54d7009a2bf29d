package schema

import (
	"fmt"
	"math"
)

// Canonicalize merges a multi-member allOf into a single schema. It fails with
// ErrCanonicalize when the members contradict each other or when two members
// constrain the same keyword in ways that can not be merged.
func Canonicalize(node any) (map[string]any, error) {
	s, ok := AsMap(node)
	if !ok {
		return nil, fmt.Errorf("%w: false schema", ErrCanonicalize)
	}
	members, hasAllOf := List(s, "allOf")
	merged := Without(s, "allOf")
	if hasAllOf {
		for _, member := range members {
			m, ok := AsMap(member)
			if !ok {
				return nil, fmt.Errorf("%w: false schema in allOf", ErrCanonicalize)
			}
			if _, nested := m["allOf"]; nested {
				var err error
				if m, err = Canonicalize(m); err != nil {
					return nil, err
				}
			}
			var err error
			if merged, err = mergeSchemas(merged, m); err != nil {
				return nil, err
			}
		}
	}
	if err := checkConsistency(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func mergeSchemas(a, b map[string]any) (map[string]any, error) {
	out := Without(a)
	for key, bv := range b {
		av, exists := out[key]
		if !exists {
			out[key] = bv
			continue
		}
		merged, err := mergeKeyword(key, av, bv)
		if err != nil {
			return nil, err
		}
		out[key] = merged
	}
	return out, nil
}

func mergeKeyword(key string, a, b any) (any, error) {
	switch key {
	case "type":
		ta, tb := Types(map[string]any{"type": a}), Types(map[string]any{"type": b})
		types := intersectTypes(ta, tb)
		if len(types) == 0 {
			return nil, fmt.Errorf("%w: no common type between %v and %v", ErrCanonicalize, ta, tb)
		}
		if len(types) == 1 {
			return types[0], nil
		}
		return toAnyList(types), nil
	case "minimum", "minLength", "minItems", "minProperties", "exclusiveMinimum":
		return pickNumber(a, b, math.Max)
	case "maximum", "maxLength", "maxItems", "maxProperties", "exclusiveMaximum":
		return pickNumber(a, b, math.Min)
	case "multipleOf":
		fa, okA := ToFloat(a)
		fb, okB := ToFloat(b)
		if !okA || !okB {
			return nil, fmt.Errorf("%w: multipleOf", ErrInvalidSchema)
		}
		hi, lo := math.Max(fa, fb), math.Min(fa, fb)
		if lo != 0 && math.Mod(hi, lo) == 0 {
			return hi, nil
		}
		return nil, fmt.Errorf("%w: incompatible multipleOf %v and %v", ErrCanonicalize, fa, fb)
	case "uniqueItems":
		ba, _ := a.(bool)
		bb, _ := b.(bool)
		return ba || bb, nil
	case "required":
		seen := KeySet{}
		var out []any
		for _, list := range []any{a, b} {
			items, _ := List(map[string]any{"r": list}, "r")
			for _, item := range items {
				if seen.Add(item) {
					out = append(out, item)
				}
			}
		}
		return out, nil
	case "enum":
		ea, _ := List(map[string]any{"e": a}, "e")
		eb, _ := List(map[string]any{"e": b}, "e")
		other := ValueSet{}
		for _, item := range eb {
			other.Add(item)
		}
		var out []any
		for _, item := range ea {
			if other.Has(item) {
				out = append(out, item)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: disjoint enums", ErrCanonicalize)
		}
		return out, nil
	case "properties":
		pa, okA := a.(map[string]any)
		pb, okB := b.(map[string]any)
		if !okA || !okB {
			return nil, fmt.Errorf("%w: properties", ErrInvalidSchema)
		}
		out := Without(pa)
		for name, sb := range pb {
			sa, exists := out[name]
			if !exists {
				out[name] = sb
				continue
			}
			merged, err := Canonicalize(map[string]any{"allOf": []any{sa, sb}})
			if err != nil {
				return nil, err
			}
			out[name] = merged
		}
		return out, nil
	case "items", "additionalProperties":
		if ba, ok := a.(bool); ok && !ba {
			return false, nil
		}
		if bb, ok := b.(bool); ok && !bb {
			return false, nil
		}
		return Canonicalize(map[string]any{"allOf": []any{a, b}})
	case "description", "title", "example", "examples", "default", "$comment":
		return a, nil
	}
	if Equal(a, b) {
		return a, nil
	}
	return nil, fmt.Errorf("%w: conflicting %q", ErrCanonicalize, key)
}

func pickNumber(a, b any, pick func(float64, float64) float64) (any, error) {
	fa, okA := ToFloat(a)
	fb, okB := ToFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("%w: expected numbers, got %v and %v", ErrInvalidSchema, a, b)
	}
	if pick(fa, fb) == fa {
		return a, nil
	}
	return b, nil
}

func intersectTypes(a, b []string) []string {
	var out []string
	for _, t := range a {
		switch {
		case Contains(b, t):
			out = append(out, t)
		case t == "number" && Contains(b, "integer"):
			out = append(out, "integer")
		case t == "integer" && Contains(b, "number"):
			out = append(out, "integer")
		}
	}
	return out
}

func toAnyList(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func checkConsistency(s map[string]any) error {
	if _, ok := s["type"]; ok && len(Types(s)) == 0 {
		return fmt.Errorf("%w: empty type list", ErrCanonicalize)
	}
	pairs := [][2]string{
		{"minimum", "maximum"},
		{"minLength", "maxLength"},
		{"minItems", "maxItems"},
		{"minProperties", "maxProperties"},
	}
	for _, pair := range pairs {
		lo, okLo := Number(s, pair[0])
		hi, okHi := Number(s, pair[1])
		if okLo && okHi && lo > hi {
			return fmt.Errorf("%w: %s %v is greater than %s %v", ErrCanonicalize, pair[0], lo, pair[1], hi)
		}
	}
	if enum, ok := List(s, "enum"); ok && len(enum) == 0 {
		return fmt.Errorf("%w: empty enum", ErrCanonicalize)
	}
	return nil
}
