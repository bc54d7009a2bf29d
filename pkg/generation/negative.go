package generation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pyneda/kensa/pkg/schema"
	"pgregory.net/rapid"
)

// negativeWalk holds the state shared by the keyword handlers of one node.
type negativeWalk struct {
	ctx      *Context
	s        map[string]any
	types    []string
	seen     schema.KeySet
	emit     emitFunc
	template map[string]any
}

func coverNegative(ctx *Context, s map[string]any, types []string, seen schema.KeySet, emit emitFunc) error {
	w := &negativeWalk{ctx: ctx, s: s, types: types, seen: seen, emit: emit}
	for _, keyword := range schema.Keywords(s) {
		kctx := ctx.At(keyword.String())
		if err := ignoreUnfixable(kctx, w.keyword(kctx, keyword, s[keyword.String()])); err != nil {
			return err
		}
	}
	return nil
}

func (w *negativeWalk) objectTemplate() (map[string]any, error) {
	if w.template != nil {
		return w.template, nil
	}
	value, err := BuildTemplate(w.ctx.Drawer, w.s, TemplateObject)
	if err != nil {
		return nil, err
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: object template is %T", schema.ErrUnsatisfiable, value)
	}
	w.template = object
	return object, nil
}

// emitUnseen emits v unless an equal value was already produced for this node.
func (w *negativeWalk) emitUnseen(v GeneratedValue) error {
	if !w.seen.Add(v.Value) {
		return nil
	}
	return w.emit(v)
}

func (w *negativeWalk) keyword(ctx *Context, keyword schema.Keyword, value any) error {
	switch keyword {
	case schema.KeywordEnum:
		enum, _ := schema.List(w.s, "enum")
		return w.negativeEnum(ctx, enum)
	case schema.KeywordConst:
		return w.negativeEnum(ctx, []any{value})
	case schema.KeywordType:
		return w.negativeType(ctx)
	case schema.KeywordProperties:
		props, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		return w.negativeProperties(ctx, props)
	case schema.KeywordPatternProperties:
		patterns, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		return w.negativePatternProperties(ctx, patterns)
	case schema.KeywordItems:
		items, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		nctx := ctx.WithNegative()
		return coverSchema(nctx, items, schema.KeySet{}, func(v GeneratedValue) error {
			return w.emit(negativeValue([]any{v.Value}, "Array with invalid items: "+v.Description, nctx.CurrentPath()))
		})
	case schema.KeywordPattern:
		pattern, ok := value.(string)
		if !ok {
			return nil
		}
		return w.negativePattern(ctx, pattern)
	case schema.KeywordFormat:
		format, ok := value.(string)
		if !ok || (len(w.types) > 0 && !schema.Contains(w.types, "string")) {
			return nil
		}
		return w.negativeFormat(ctx, format)
	case schema.KeywordMaximum:
		if limit, ok := schema.Number(w.s, "maximum"); ok {
			return w.emitUnseen(negativeValue(numberValue(limit+1), "Value greater than maximum", ctx.CurrentPath()))
		}
	case schema.KeywordMinimum:
		if limit, ok := schema.Number(w.s, "minimum"); ok {
			return w.emitUnseen(negativeValue(numberValue(limit-1), "Value smaller than minimum", ctx.CurrentPath()))
		}
	case schema.KeywordExclusiveMaximum:
		if limit, ok := schema.Number(w.s, "exclusiveMaximum"); ok {
			return w.emitUnseen(negativeValue(numberValue(limit), "Value greater than maximum", ctx.CurrentPath()))
		}
	case schema.KeywordExclusiveMinimum:
		if limit, ok := schema.Number(w.s, "exclusiveMinimum"); ok {
			return w.emitUnseen(negativeValue(numberValue(limit), "Value smaller than minimum", ctx.CurrentPath()))
		}
	case schema.KeywordMultipleOf:
		return w.negativeMultipleOf(ctx)
	case schema.KeywordMinLength:
		if limit, ok := schema.Int(w.s, "minLength"); ok && limit > 0 && limit < BufferSize {
			return w.negativeLength(ctx, limit-1, "String smaller than minLength")
		}
	case schema.KeywordMaxLength:
		if limit, ok := schema.Int(w.s, "maxLength"); ok && limit < BufferSize {
			return w.negativeLength(ctx, limit+1, "String larger than maxLength")
		}
	case schema.KeywordUniqueItems:
		if unique, _ := value.(bool); unique {
			return w.negativeUniqueItems(ctx)
		}
	case schema.KeywordRequired:
		return w.negativeRequired(ctx, schema.Strings(w.s, "required"))
	case schema.KeywordAdditionalProperties:
		if allowed, ok := value.(bool); ok && !allowed {
			if _, hasPatterns := w.s["patternProperties"]; hasPatterns {
				return nil
			}
			template, err := w.objectTemplate()
			if err != nil {
				return err
			}
			extended := schema.With(template, UnknownPropertyKey, UnknownPropertyValue)
			return w.emit(negativeValue(extended, "Object with unexpected properties", ctx.CurrentPath()))
		}
	case schema.KeywordAllOf:
		members, _ := schema.List(w.s, "allOf")
		nctx := ctx.WithNegative()
		if len(members) == 1 {
			return coverSchema(nctx.AtIndex(0), members[0], w.seen, w.emit)
		}
		canonical, err := schema.Canonicalize(w.s)
		if err != nil {
			return err
		}
		return coverSchema(nctx, canonical, w.seen, w.emit)
	case schema.KeywordAnyOf, schema.KeywordOneOf:
		// Every branch is negated on its own; a value may still be valid
		// against one of the sibling branches.
		branches, _ := schema.List(w.s, keyword.String())
		nctx := ctx.WithNegative()
		for idx, branch := range branches {
			if err := coverSchema(nctx.AtIndex(idx), branch, w.seen, w.emit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *negativeWalk) negativeEnum(ctx *Context, enum []any) error {
	excluded := schema.ValueSet{}
	for _, item := range enum {
		excluded.Add(item)
	}
	gen := jsonScalar().Filter(func(v any) bool {
		return !excluded.Has(v) && !w.seen.Has(v)
	})
	value, err := ctx.Drawer.DrawFrom("negative-enum:"+schema.Key(enum), gen)
	if err != nil {
		return err
	}
	w.seen.Add(value)
	return w.emit(negativeValue(value, "Invalid enum value", ctx.CurrentPath()))
}

func (w *negativeWalk) negativeType(ctx *Context) error {
	strategies := TypeStrategies()
	for _, ty := range w.types {
		delete(strategies, ty)
	}
	if schema.Contains(w.types, "number") {
		delete(strategies, "integer")
	}
	if schema.Contains(w.types, "integer") && !schema.Contains(w.types, "number") {
		strategies["number"] = NonIntegerFloats()
	}
	for _, ty := range TypeOrder {
		gen, ok := strategies[ty]
		if !ok {
			continue
		}
		value, err := ctx.Drawer.DrawFrom("negative-type:"+ty, gen)
		if err != nil {
			return err
		}
		if err := w.emitUnseen(negativeValue(value, "Incorrect type", ctx.CurrentPath())); err != nil {
			return err
		}
	}
	return nil
}

func (w *negativeWalk) negativeProperties(ctx *Context, props map[string]any) error {
	template, err := w.objectTemplate()
	if err != nil {
		return err
	}
	nctx := ctx.WithNegative()
	for _, name := range schema.SortedKeys(props) {
		pctx := nctx.At(name)
		err := coverSchema(pctx, props[name], schema.KeySet{}, func(v GeneratedValue) error {
			out := negativeValue(
				schema.With(template, name, v.Value),
				fmt.Sprintf("Object with invalid '%s' value: %s", name, v.Description),
				pctx.CurrentPath(),
			)
			out.Parameter = name
			return w.emit(out)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *negativeWalk) negativePatternProperties(ctx *Context, patterns map[string]any) error {
	template, err := w.objectTemplate()
	if err != nil {
		return err
	}
	nctx := ctx.WithNegative()
	for _, pattern := range schema.SortedKeys(patterns) {
		if _, err := regexp.Compile(pattern); err != nil {
			continue
		}
		drawn, err := ctx.Drawer.DrawFrom("pattern-key:"+pattern, toAny(rapid.StringMatching(pattern)))
		if err != nil {
			continue
		}
		key := drawn.(string)
		pctx := nctx.At(pattern)
		err = coverSchema(pctx, patterns[pattern], schema.KeySet{}, func(v GeneratedValue) error {
			description := fmt.Sprintf("Object with invalid pattern key '%s' ('%s') value: %s", key, pattern, v.Description)
			return w.emit(negativeValue(schema.With(template, key, v.Value), description, pctx.CurrentPath()))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *negativeWalk) negativePattern(ctx *Context, pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	minLen, _ := schema.Int(w.s, "minLength")
	maxLen, hasMax := schema.Int(w.s, "maxLength")
	if !hasMax {
		maxLen = -1
	}
	if maxLen >= 0 && minLen > maxLen {
		return fmt.Errorf("%w: minLength is greater than maxLength", schema.ErrUnsatisfiable)
	}
	gen := toAny(Text(minLen, maxLen)).Filter(func(v any) bool {
		return !compiled.MatchString(v.(string))
	})
	value, err := ctx.Drawer.DrawFrom(fmt.Sprintf("negative-pattern:%s:%d:%d", pattern, minLen, maxLen), gen)
	if err != nil {
		return err
	}
	return w.emit(negativeValue(value, fmt.Sprintf("Value not matching the '%s' pattern", pattern), ctx.CurrentPath()))
}

func (w *negativeWalk) negativeFormat(ctx *Context, format string) error {
	if !schema.KnownFormat(format) && format != "hostname" {
		return nil
	}
	withoutFormat := schema.Without(w.s, "format")
	if _, ok := withoutFormat["type"]; !ok {
		withoutFormat["type"] = "string"
	}
	base, err := FromSchema(withoutFormat, schema.DefaultValidator)
	if err != nil {
		return err
	}
	gen := base.Filter(func(v any) bool { return !schema.FormatConforms(format, v) })
	value, err := ctx.Drawer.DrawFrom("negative-format:"+format+":"+schema.Key(withoutFormat), gen)
	if err != nil {
		return err
	}
	return w.emit(negativeValue(value, fmt.Sprintf("Value not matching the '%s' format", format), ctx.CurrentPath()))
}

func (w *negativeWalk) negativeMultipleOf(ctx *Context) error {
	multipleOf, ok := schema.Number(w.s, "multipleOf")
	if !ok {
		return nil
	}
	negated := map[string]any{"allOf": []any{
		schema.Without(w.s, "multipleOf"),
		map[string]any{"not": map[string]any{"multipleOf": w.s["multipleOf"]}},
	}}
	value, err := ctx.draw(negated)
	if err != nil {
		return err
	}
	description := "Non-multiple of " + strconv.FormatFloat(multipleOf, 'f', -1, 64)
	return w.emitUnseen(negativeValue(value, description, ctx.CurrentPath()))
}

// negativeLength draws a string of exactly length runes. With a pattern the
// lengths can not be expressed in the draw, so a valid value is truncated or
// padded instead.
func (w *negativeWalk) negativeLength(ctx *Context, length int, description string) error {
	variant := schema.With(schema.With(w.s, "minLength", length), "maxLength", length)
	if _, ok := variant["type"]; !ok {
		variant["type"] = "string"
	}
	var value any
	if _, hasPattern := variant["pattern"]; hasPattern {
		drawn, err := ctx.draw(schema.Without(variant, "minLength", "maxLength"))
		if err != nil {
			return err
		}
		str, ok := drawn.(string)
		if !ok {
			return fmt.Errorf("%w: expected a string, got %T", schema.ErrUnsatisfiable, drawn)
		}
		value = fitLength(str, length)
	} else {
		drawn, err := ctx.draw(variant)
		if err != nil {
			return err
		}
		value = drawn
	}
	return w.emitUnseen(negativeValue(value, description, ctx.CurrentPath()))
}

func fitLength(s string, length int) string {
	if n := utf8.RuneCountInString(s); n < length {
		return s + strings.Repeat("0", length-n)
	}
	return string([]rune(s)[:length])
}

func (w *negativeWalk) negativeUniqueItems(ctx *Context) error {
	variant := schema.With(schema.With(schema.With(w.s, "type", "array"), "minItems", 1), "maxItems", 1)
	drawn, err := ctx.draw(variant)
	if err != nil {
		return err
	}
	items, ok := drawn.([]any)
	if !ok || len(items) == 0 {
		return fmt.Errorf("%w: could not draw an array item", schema.ErrUnsatisfiable)
	}
	duplicated := []any{items[0], schema.Clone(items[0])}
	return w.emit(negativeValue(duplicated, "Non-unique items", ctx.CurrentPath()))
}

func (w *negativeWalk) negativeRequired(ctx *Context, required []string) error {
	template, err := w.objectTemplate()
	if err != nil {
		return err
	}
	for _, name := range required {
		without := subset(template, func(k string) bool { return k != name })
		out := negativeValue(without, "Missing required property: "+name, ctx.CurrentPath())
		out.Parameter = name
		if err := w.emit(out); err != nil {
			return err
		}
	}
	return nil
}
