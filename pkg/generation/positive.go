package generation

import (
	"fmt"
	"math"

	"github.com/pyneda/kensa/pkg/schema"
)

// present returns a keyword value unless it is missing or null.
func present(s map[string]any, key string) (any, bool) {
	v, ok := s[key]
	return v, ok && v != nil
}

// emitExamples emits example, examples and default, skipping a default that
// repeats one of the examples. It reports whether any of them is declared.
func emitExamples(ctx *Context, s map[string]any, filter bool, emit emitFunc) (bool, error) {
	example, hasExample := present(s, "example")
	examples, _ := schema.List(s, "examples")
	def, hasDefault := present(s, "default")
	if !hasExample && len(examples) == 0 && !hasDefault {
		return false, nil
	}
	valid := func(v any) bool { return !filter || ctx.IsValidForLocation(v) }
	if hasExample && valid(example) {
		if err := emit(positiveValue(example, "Example value")); err != nil {
			return true, err
		}
	}
	for _, item := range examples {
		if valid(item) {
			if err := emit(positiveValue(item, "Example value")); err != nil {
				return true, err
			}
		}
	}
	if hasDefault && !(hasExample && schema.Equal(def, example)) && !containsValue(examples, def) && valid(def) {
		if err := emit(positiveValue(def, "Default value")); err != nil {
			return true, err
		}
	}
	return true, nil
}

func positiveString(ctx *Context, s map[string]any, emit emitFunc) error {
	minLen, hasMin := schema.Int(s, "minLength")
	if hasMin && minLen == 0 {
		hasMin = false
	}
	maxLen, hasMax := schema.Int(s, "maxLength")

	hasExamples, err := emitExamples(ctx, s, true, emit)
	if err != nil {
		return err
	}
	_, hasPattern := s["pattern"]
	switch {
	case hasExamples:
	case !hasMin && !hasMax:
		value, err := ctx.draw(s)
		if err != nil {
			return err
		}
		return emit(positiveValue(value, "Valid string"))
	case hasPattern:
		// Length bounds are not merged into the pattern, so only one valid
		// value is produced.
		value, err := ctx.draw(s)
		if err != nil {
			return err
		}
		return emit(positiveValue(value, "Valid string"))
	}

	seen := map[int]bool{}
	drawLength := func(variant map[string]any, description string) error {
		value, err := ctx.draw(variant)
		if err != nil {
			return err
		}
		return emit(positiveValue(value, description))
	}
	if hasMin && minLen < BufferSize {
		if err := drawLength(schema.With(s, "maxLength", minLen), "Minimum length string"); err != nil {
			return err
		}
		seen[minLen] = true

		larger := minLen + 1
		if larger < BufferSize && !seen[larger] && (!hasMax || larger <= maxLen) {
			variant := schema.With(schema.With(s, "minLength", larger), "maxLength", larger)
			if err := drawLength(variant, "Near-boundary length string"); err != nil {
				return err
			}
			seen[larger] = true
		}
	}
	if hasMax {
		if maxLen < BufferSize && !seen[maxLen] {
			if err := drawLength(schema.With(s, "minLength", maxLen), "Maximum length string"); err != nil {
				return err
			}
			seen[maxLen] = true
		}
		smaller := maxLen - 1
		if smaller < BufferSize && !seen[smaller] && smaller > 0 && (!hasMin || smaller >= minLen) {
			variant := schema.With(schema.With(s, "minLength", smaller), "maxLength", smaller)
			if err := drawLength(variant, "Near-boundary length string"); err != nil {
				return err
			}
			seen[smaller] = true
		}
	}
	return nil
}

// numberValue renders integral floats as ints.
func numberValue(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

// pyMod is the modulo with the sign of the divisor.
func pyMod(x, m float64) float64 {
	return x - m*math.Floor(x/m)
}

// closestMultipleGreaterThan returns the smallest multiple of m that is >= y.
func closestMultipleGreaterThan(y, m float64) float64 {
	q := math.Floor(y / m)
	if y-q*m == 0 {
		return y
	}
	return m * (q + 1)
}

func positiveNumber(ctx *Context, s map[string]any, integer bool, emit emitFunc) error {
	minV, hasMin := schema.Number(s, "minimum")
	maxV, hasMax := schema.Number(s, "maximum")
	if exMin, ok := schema.Number(s, "exclusiveMinimum"); ok {
		minV, hasMin = exMin+1, true
	}
	if exMax, ok := schema.Number(s, "exclusiveMaximum"); ok {
		maxV, hasMax = exMax-1, true
	}
	if integer {
		minV, maxV = math.Ceil(minV), math.Floor(maxV)
	}
	multipleOf, hasMultiple := schema.Number(s, "multipleOf")
	if hasMultiple && multipleOf <= 0 {
		return fmt.Errorf("%w: multipleOf must be positive, got %v", schema.ErrInvalidSchema, multipleOf)
	}

	hasExamples, err := emitExamples(ctx, s, false, emit)
	if err != nil {
		return err
	}
	if !hasExamples && !hasMin && !hasMax {
		value, err := ctx.draw(s)
		if err != nil {
			return err
		}
		if err := emit(positiveValue(value, "Valid number")); err != nil {
			return err
		}
	}

	seen := schema.KeySet{}
	inRange := func(v float64) bool {
		return (!hasMin || v >= minV) && (!hasMax || v <= maxV)
	}
	if hasMin {
		smallest := minV
		if hasMultiple {
			smallest = closestMultipleGreaterThan(minV, multipleOf)
		}
		if inRange(smallest) {
			seen.Add(numberValue(smallest))
			if err := emit(positiveValue(numberValue(smallest), "Minimum value")); err != nil {
				return err
			}
		}
		larger := minV + 1
		if hasMultiple {
			larger = smallest + multipleOf
		}
		if !seen.Has(numberValue(larger)) && (!hasMax || larger <= maxV) {
			seen.Add(numberValue(larger))
			if err := emit(positiveValue(numberValue(larger), "Near-boundary number")); err != nil {
				return err
			}
		}
	}
	if hasMax {
		largest := maxV
		if hasMultiple {
			largest = maxV - pyMod(maxV, multipleOf)
		}
		if inRange(largest) && seen.Add(numberValue(largest)) {
			if err := emit(positiveValue(numberValue(largest), "Maximum value")); err != nil {
				return err
			}
		}
		smaller := maxV - 1
		if hasMultiple {
			smaller = largest - multipleOf
		}
		if !seen.Has(numberValue(smaller)) && smaller > 0 && (!hasMin || smaller >= minV) {
			seen.Add(numberValue(smaller))
			if err := emit(positiveValue(numberValue(smaller), "Near-boundary number")); err != nil {
				return err
			}
		}
	}
	return nil
}

func positiveArray(ctx *Context, s map[string]any, template []any, emit emitFunc) error {
	hasExamples, err := emitExamples(ctx, s, false, emit)
	if err != nil {
		return err
	}
	if !hasExamples {
		if template == nil {
			template = []any{}
		}
		if err := emit(positiveValue(template, "Valid array")); err != nil {
			return err
		}
	}
	seen := map[int]bool{len(template): true}

	minItems, hasMin := schema.Int(s, "minItems")
	maxItems, hasMax := schema.Int(s, "maxItems")
	drawSize := func(variant map[string]any, description string) error {
		value, err := ctx.draw(variant)
		if err != nil {
			return err
		}
		return emit(positiveValue(value, description))
	}
	// An array of exactly minItems is already covered by the template.
	if hasMin {
		larger := minItems + 1
		if !seen[larger] && (!hasMax || larger <= maxItems) {
			variant := schema.With(schema.With(s, "minItems", larger), "maxItems", larger)
			if err := drawSize(variant, "Near-boundary items array"); err != nil {
				return err
			}
			seen[larger] = true
		}
	}
	if hasMax {
		if maxItems < BufferSize && !seen[maxItems] {
			if err := drawSize(schema.With(s, "minItems", maxItems), "Maximum items array"); err != nil {
				return err
			}
			seen[maxItems] = true
		}
		smaller := maxItems - 1
		if smaller < BufferSize && smaller > 0 && !seen[smaller] && (!hasMin || smaller >= minItems) {
			variant := schema.With(schema.With(s, "minItems", smaller), "maxItems", smaller)
			if err := drawSize(variant, "Near-boundary items array"); err != nil {
				return err
			}
			seen[smaller] = true
		}
	}
	return nil
}

// subset copies the entries of template whose key passes keep.
func subset(template map[string]any, keep func(string) bool) map[string]any {
	out := make(map[string]any, len(template))
	for k, v := range template {
		if keep(k) {
			out[k] = v
		}
	}
	return out
}

// SelectCombinations yields the first combination of each size from 2 to
// len(optional)-1.
func SelectCombinations(optional []string) [][]string {
	var out [][]string
	for size := 2; size < len(optional); size++ {
		out = append(out, optional[:size])
	}
	return out
}

func positiveObject(ctx *Context, s map[string]any, template map[string]any, emit emitFunc) error {
	hasExamples, err := emitExamples(ctx, s, false, emit)
	if err != nil {
		return err
	}
	if template == nil {
		template = map[string]any{}
	}
	if !hasExamples {
		if err := emit(positiveValue(template, "Valid object")); err != nil {
			return err
		}
	}

	props, names := schema.Properties(s)
	required := schema.Strings(s, "required")
	isRequired := func(name string) bool { return schema.Contains(required, name) }
	var optional []string
	for _, name := range names {
		if !isRequired(name) {
			optional = append(optional, name)
		}
	}

	for _, name := range optional {
		combo := subset(template, func(k string) bool { return isRequired(k) || k == name })
		if !schema.Equal(combo, template) {
			description := fmt.Sprintf("Object with all required properties and '%s'", name)
			if err := emit(positiveValue(combo, description)); err != nil {
				return err
			}
		}
	}
	for _, selection := range SelectCombinations(optional) {
		combo := subset(template, func(k string) bool { return isRequired(k) || schema.Contains(selection, k) })
		if err := emit(positiveValue(combo, "Object with all required and a subset of optional properties")); err != nil {
			return err
		}
	}
	if len(optional) > 0 {
		onlyRequired := subset(template, isRequired)
		if err := emit(positiveValue(onlyRequired, "Object with only required properties")); err != nil {
			return err
		}
	}

	for _, name := range names {
		seen := schema.KeySet{}
		seen.Add(template[name])
		err := coverSchema(ctx, props[name], schema.KeySet{}, func(v GeneratedValue) error {
			if !seen.Add(v.Value) {
				return nil
			}
			description := fmt.Sprintf("Object with valid '%s' value: %s", name, v.Description)
			return emit(positiveValue(schema.With(template, name, v.Value), description))
		})
		if err != nil {
			return err
		}
	}
	return nil
}
