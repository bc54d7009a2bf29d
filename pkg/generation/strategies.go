package generation

import (
	"fmt"
	"math"
	"regexp"

	"github.com/pyneda/kensa/pkg/schema"
	"pgregory.net/rapid"
)

const (
	// BufferSize caps generated string and array lengths.
	BufferSize = 8 * 1024

	maxSchemaDepth   = 16
	defaultSpan      = 1 << 20
	defaultFloatSpan = 1e6
	defaultExtraLen  = 16
	defaultExtraSize = 3
)

const textAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.~"

var textRune = rapid.RuneFrom([]rune(textAlphabet))

func toAny[V any](g *rapid.Generator[V]) *rapid.Generator[any] {
	return rapid.Map(g, func(v V) any { return v })
}

// Text draws strings of textAlphabet runes.
func Text(minLen, maxLen int) *rapid.Generator[string] {
	if maxLen < 0 {
		maxLen = minLen + defaultExtraLen
	}
	return rapid.StringOfN(textRune, minLen, maxLen, -1)
}

// Integers draws ints in [lo, hi].
func Integers(lo, hi int) *rapid.Generator[any] {
	return rapid.Map(rapid.IntRange(lo, hi), func(v int) any { return v })
}

// Floats draws finite non-zero floats in [lo, hi].
func Floats(lo, hi float64) *rapid.Generator[any] {
	return rapid.Map(rapid.Float64Range(lo, hi), func(v float64) any {
		if v == 0 {
			return 0.0
		}
		return v
	})
}

func numbers() *rapid.Generator[any] {
	return rapid.OneOf(Integers(math.MinInt32, math.MaxInt32), Floats(-defaultFloatSpan, defaultFloatSpan))
}

func jsonScalar() *rapid.Generator[any] {
	return rapid.OneOf(
		rapid.Just[any](nil),
		toAny(rapid.Bool()),
		numbers(),
		toAny(Text(0, -1)),
	)
}

// AnyJSON draws arbitrary JSON values with a bounded nesting depth.
func AnyJSON(depth int) *rapid.Generator[any] {
	if depth <= 0 {
		return jsonScalar()
	}
	inner := AnyJSON(depth - 1)
	return rapid.OneOf(
		jsonScalar(),
		rapid.Map(rapid.SliceOfN(inner, 0, defaultExtraSize), func(v []any) any { return v }),
		rapid.Map(rapid.MapOfN(Text(0, 8), inner, 0, defaultExtraSize), func(v map[string]any) any { return v }),
	)
}

// TypeStrategies mirrors the plain per-type generators used when only the
// type of a value matters.
func TypeStrategies() map[string]*rapid.Generator[any] {
	return map[string]*rapid.Generator[any]{
		"integer": Integers(math.MinInt32, math.MaxInt32),
		"number":  numbers(),
		"boolean": toAny(rapid.Bool()),
		"null":    rapid.Just[any](nil),
		"string":  toAny(Text(0, -1)),
		"array":   rapid.Map(rapid.SliceOfN(AnyJSON(1), 2, 2+defaultExtraSize), func(v []any) any { return v }),
		"object":  rapid.Map(rapid.MapOfN(Text(0, 8), AnyJSON(1), 0, defaultExtraSize), func(v map[string]any) any { return v }),
	}
}

// TypeOrder is the order TypeStrategies entries are visited in.
var TypeOrder = []string{"integer", "number", "boolean", "null", "string", "array", "object"}

// NonIntegerFloats draws floats with a fractional part.
func NonIntegerFloats() *rapid.Generator[any] {
	return Floats(-defaultFloatSpan, defaultFloatSpan).Filter(func(v any) bool {
		return !schema.IsInteger(v)
	})
}

// FromSchema builds a generator of values conforming to node. Every drawn
// value is checked against the validator.
func FromSchema(node any, validator *schema.Validator) (gen *rapid.Generator[any], err error) {
	defer func() {
		if r := recover(); r != nil {
			gen, err = nil, fmt.Errorf("%w: %v", schema.ErrUnsatisfiable, r)
		}
	}()
	gen, err = fromSchema(node, 0)
	if err != nil {
		return nil, err
	}
	if validator == nil {
		return gen, nil
	}
	if _, cerr := validator.Compile(node); cerr != nil {
		return gen, nil
	}
	return gen.Filter(func(v any) bool { return validator.IsValid(node, v) }), nil
}

func fromSchema(node any, depth int) (*rapid.Generator[any], error) {
	if depth > maxSchemaDepth {
		return AnyJSON(1), nil
	}
	if b, ok := node.(bool); ok {
		if !b {
			return nil, fmt.Errorf("%w: false schema", schema.ErrUnsatisfiable)
		}
		return AnyJSON(2), nil
	}
	s, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected schema node %T", schema.ErrInvalidSchema, node)
	}
	if ref, ok := s["$ref"]; ok {
		return nil, fmt.Errorf("%w: %v", schema.ErrUnresolvedReference, ref)
	}
	if c, ok := s["const"]; ok {
		return rapid.Just(schema.Clone(c)), nil
	}
	if enum, ok := schema.List(s, "enum"); ok {
		if len(enum) == 0 {
			return nil, fmt.Errorf("%w: empty enum", schema.ErrUnsatisfiable)
		}
		return rapid.Map(rapid.SampledFrom(enum), schema.Clone), nil
	}
	if _, ok := s["allOf"]; ok {
		merged, err := schema.Canonicalize(s)
		if err != nil {
			return nil, err
		}
		return fromSchema(merged, depth+1)
	}
	if gen, ok, err := fromBranches(s, depth); ok {
		return gen, err
	}

	types := schema.Types(s)
	if len(types) == 0 {
		types = impliedTypes(s)
	}
	if len(types) == 0 {
		return AnyJSON(2), nil
	}
	var gens []*rapid.Generator[any]
	var lastErr error
	for _, ty := range types {
		gen, err := fromType(s, ty, depth)
		if err != nil {
			lastErr = err
			continue
		}
		gens = append(gens, gen)
	}
	if len(gens) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("%w: no usable type in %v", schema.ErrUnsatisfiable, types)
		}
		return nil, lastErr
	}
	if len(gens) == 1 {
		return gens[0], nil
	}
	return rapid.OneOf(gens...), nil
}

func fromBranches(s map[string]any, depth int) (*rapid.Generator[any], bool, error) {
	var branches []any
	for _, key := range []string{"anyOf", "oneOf"} {
		if list, ok := schema.List(s, key); ok {
			branches = append(branches, list...)
		}
	}
	if branches == nil {
		return nil, false, nil
	}
	base := schema.Without(s, "anyOf", "oneOf")
	var gens []*rapid.Generator[any]
	for _, branch := range branches {
		merged, err := schema.Canonicalize(map[string]any{"allOf": []any{base, branch}})
		if err != nil {
			continue
		}
		gen, err := fromSchema(merged, depth+1)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}
	if len(gens) == 0 {
		return nil, true, fmt.Errorf("%w: no satisfiable branch", schema.ErrUnsatisfiable)
	}
	return rapid.OneOf(gens...), true, nil
}

func impliedTypes(s map[string]any) []string {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := s[k]; ok {
				return true
			}
		}
		return false
	}
	switch {
	case has("properties", "required", "additionalProperties", "patternProperties", "minProperties", "maxProperties"):
		return []string{"object"}
	case has("items", "minItems", "maxItems", "uniqueItems"):
		return []string{"array"}
	case has("pattern", "minLength", "maxLength", "format"):
		return []string{"string"}
	case has("minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "multipleOf"):
		return []string{"number"}
	}
	return nil
}

func fromType(s map[string]any, ty string, depth int) (*rapid.Generator[any], error) {
	switch ty {
	case "null":
		return rapid.Just[any](nil), nil
	case "boolean":
		return toAny(rapid.Bool()), nil
	case "integer":
		return integerStrategy(s)
	case "number":
		return numberStrategy(s)
	case "string", "file":
		return stringStrategy(s)
	case "array":
		return arrayStrategy(s, depth)
	case "object":
		return objectStrategy(s, depth)
	}
	return nil, fmt.Errorf("%w: unknown type %q", schema.ErrInvalidSchema, ty)
}

// integerBounds returns the inclusive integer range allowed by s.
func integerBounds(s map[string]any) (int, int, error) {
	lo, hi := math.MinInt32, math.MaxInt32
	minV, hasMin := schema.Number(s, "minimum")
	maxV, hasMax := schema.Number(s, "maximum")
	if exMin, ok := schema.Number(s, "exclusiveMinimum"); ok {
		candidate := math.Floor(exMin) + 1
		if !hasMin || candidate > minV {
			minV, hasMin = candidate, true
		}
	}
	if exMax, ok := schema.Number(s, "exclusiveMaximum"); ok {
		candidate := math.Ceil(exMax) - 1
		if !hasMax || candidate < maxV {
			maxV, hasMax = candidate, true
		}
	}
	switch {
	case hasMin && hasMax:
		lo, hi = int(math.Ceil(minV)), int(math.Floor(maxV))
	case hasMin:
		lo = int(math.Ceil(minV))
		hi = lo + defaultSpan
	case hasMax:
		hi = int(math.Floor(maxV))
		lo = hi - defaultSpan
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: empty integer range [%d, %d]", schema.ErrUnsatisfiable, lo, hi)
	}
	return lo, hi, nil
}

func integerStrategy(s map[string]any) (*rapid.Generator[any], error) {
	lo, hi, err := integerBounds(s)
	if err != nil {
		return nil, err
	}
	if m, ok := schema.Number(s, "multipleOf"); ok && m > 0 && m == math.Trunc(m) {
		step := int(m)
		kLo := int(math.Ceil(float64(lo) / m))
		kHi := int(math.Floor(float64(hi) / m))
		if kLo > kHi {
			return nil, fmt.Errorf("%w: no multiple of %v in range", schema.ErrUnsatisfiable, m)
		}
		return rapid.Map(rapid.IntRange(kLo, kHi), func(k int) any { return k * step }), nil
	}
	return Integers(lo, hi), nil
}

func numberStrategy(s map[string]any) (*rapid.Generator[any], error) {
	lo, hi := -defaultFloatSpan, defaultFloatSpan
	minV, hasMin := schema.Number(s, "minimum")
	maxV, hasMax := schema.Number(s, "maximum")
	exMin, hasExMin := schema.Number(s, "exclusiveMinimum")
	exMax, hasExMax := schema.Number(s, "exclusiveMaximum")
	if hasExMin && (!hasMin || exMin >= minV) {
		minV, hasMin = exMin, true
	}
	if hasExMax && (!hasMax || exMax <= maxV) {
		maxV, hasMax = exMax, true
	}
	switch {
	case hasMin && hasMax:
		lo, hi = minV, maxV
	case hasMin:
		lo, hi = minV, minV+defaultFloatSpan
	case hasMax:
		lo, hi = maxV-defaultFloatSpan, maxV
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: empty number range [%v, %v]", schema.ErrUnsatisfiable, lo, hi)
	}
	if m, ok := schema.Number(s, "multipleOf"); ok && m > 0 {
		kLo, kHi := math.Ceil(lo/m), math.Floor(hi/m)
		if kLo > kHi || kHi-kLo > math.MaxInt32 {
			return nil, fmt.Errorf("%w: no multiple of %v in range", schema.ErrUnsatisfiable, m)
		}
		return rapid.Map(rapid.IntRange(int(kLo), int(kHi)), func(k int) any {
			v := float64(k) * m
			if v == math.Trunc(v) && math.Abs(v) < math.MaxInt32 {
				return int(v)
			}
			return v
		}), nil
	}
	gens := []*rapid.Generator[any]{Floats(lo, hi)}
	if iLo, iHi := math.Ceil(lo), math.Floor(hi); iLo <= iHi && iHi-iLo < math.MaxInt32 && math.Abs(iLo) < math.MaxInt32 {
		gens = append([]*rapid.Generator[any]{Integers(int(iLo), int(iHi))}, gens...)
	}
	gen := rapid.OneOf(gens...)
	if hasExMin || hasExMax {
		gen = gen.Filter(func(v any) bool {
			f, _ := schema.ToFloat(v)
			return (!hasExMin || f > exMin) && (!hasExMax || f < exMax)
		})
	}
	return gen, nil
}

func lengthBounds(s map[string]any, minKey, maxKey string, extra int) (int, int, error) {
	lo, _ := schema.Int(s, minKey)
	if lo < 0 {
		lo = 0
	}
	hi, hasMax := schema.Int(s, maxKey)
	if !hasMax {
		hi = lo + extra
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: %s %d is greater than %s %d", schema.ErrUnsatisfiable, minKey, lo, maxKey, hi)
	}
	return lo, hi, nil
}

func stringStrategy(s map[string]any) (*rapid.Generator[any], error) {
	lo, hi, err := lengthBounds(s, "minLength", "maxLength", defaultExtraLen)
	if err != nil {
		return nil, err
	}
	if pattern, ok := schema.String(s, "pattern"); ok {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", schema.ErrInvalidRegex, pattern, err)
		}
		return toAny(rapid.StringMatching(pattern)), nil
	}
	if format, ok := schema.String(s, "format"); ok {
		if gen, ok := FormatStrategy(format); ok {
			return toAny(gen), nil
		}
	}
	return toAny(Text(lo, hi)), nil
}

func arrayStrategy(s map[string]any, depth int) (*rapid.Generator[any], error) {
	lo, hi, err := lengthBounds(s, "minItems", "maxItems", defaultExtraSize)
	if err != nil {
		return nil, err
	}
	if hi > BufferSize {
		hi = BufferSize
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: array too large", schema.ErrUnsatisfiable)
	}
	var elem *rapid.Generator[any]
	switch items := s["items"].(type) {
	case nil:
		elem = AnyJSON(1)
	case []any:
		return tupleStrategy(items, depth)
	default:
		if b, ok := items.(bool); ok && !b {
			if lo > 0 {
				return nil, fmt.Errorf("%w: items are forbidden but minItems is %d", schema.ErrUnsatisfiable, lo)
			}
			return rapid.Just[any]([]any{}), nil
		}
		if elem, err = fromSchema(items, depth+1); err != nil {
			if lo == 0 && schema.IsUnfixable(err) {
				return rapid.Just[any]([]any{}), nil
			}
			return nil, err
		}
	}
	if unique, _ := schema.Bool(s, "uniqueItems"); unique {
		return rapid.Map(rapid.SliceOfNDistinct(elem, lo, hi, schema.Key), func(v []any) any { return v }), nil
	}
	return rapid.Map(rapid.SliceOfN(elem, lo, hi), func(v []any) any { return v }), nil
}

func tupleStrategy(items []any, depth int) (*rapid.Generator[any], error) {
	gens := make([]*rapid.Generator[any], len(items))
	for i, item := range items {
		gen, err := fromSchema(item, depth+1)
		if err != nil {
			return nil, err
		}
		gens[i] = gen
	}
	return rapid.Custom(func(t *rapid.T) any {
		out := make([]any, len(gens))
		for i, gen := range gens {
			out[i] = gen.Draw(t, fmt.Sprintf("item_%d", i))
		}
		return out
	}), nil
}

func objectStrategy(s map[string]any, depth int) (*rapid.Generator[any], error) {
	props, names := schema.Properties(s)
	required := schema.Strings(s, "required")
	gens := make(map[string]*rapid.Generator[any], len(names))
	for _, name := range names {
		gen, err := fromSchema(props[name], depth+1)
		if err != nil {
			if schema.Contains(required, name) {
				return nil, err
			}
			continue
		}
		gens[name] = gen
	}
	var extra []string
	for _, name := range required {
		if _, declared := props[name]; declared || schema.Contains(extra, name) {
			continue
		}
		extra = append(extra, name)
	}
	additional := AnyJSON(1)
	switch ap := s["additionalProperties"].(type) {
	case bool:
		if !ap && len(extra) > 0 {
			return nil, fmt.Errorf("%w: required %v are not declared and additional properties are forbidden", schema.ErrUnsatisfiable, extra)
		}
	case map[string]any:
		gen, err := fromSchema(ap, depth+1)
		if err != nil && len(extra) > 0 {
			return nil, err
		}
		if err == nil {
			additional = gen
		}
	}
	return rapid.Custom(func(t *rapid.T) any {
		out := make(map[string]any, len(names)+len(extra))
		for _, name := range names {
			gen, ok := gens[name]
			if !ok {
				continue
			}
			if schema.Contains(required, name) || rapid.Bool().Draw(t, "include_"+name) {
				out[name] = gen.Draw(t, name)
			}
		}
		for _, name := range extra {
			out[name] = additional.Draw(t, name)
		}
		return out
	}), nil
}
