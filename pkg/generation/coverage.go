package generation

import (
	"errors"
	"fmt"
	"iter"

	"github.com/pyneda/kensa/pkg/schema"
	"github.com/rs/zerolog/log"
)

const (
	// UnknownPropertyKey is the property added to objects that forbid
	// additional properties.
	UnknownPropertyKey   = "x-schemathesis-unknown-property"
	UnknownPropertyValue = 42
)

var errStop = errors.New("generation stopped by consumer")

type emitFunc func(GeneratedValue) error

// Cover walks node and lazily yields boundary, near-boundary and negative
// values for the modes requested by ctx. The sequence is finite and can be
// consumed only once; stopping early stops the walk. Schema conditions that
// make a single branch impossible to generate are skipped, any other error is
// yielded as the last element.
func Cover(ctx *Context, node any) iter.Seq2[GeneratedValue, error] {
	return func(yield func(GeneratedValue, error) bool) {
		err := coverSchema(ctx, node, schema.KeySet{}, func(v GeneratedValue) error {
			if !yield(v, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(GeneratedValue{}, err)
		}
	}
}

// CoverAll collects every value yielded by Cover.
func CoverAll(ctx *Context, node any) ([]GeneratedValue, error) {
	var out []GeneratedValue
	for value, err := range Cover(ctx, node) {
		if err != nil {
			return out, err
		}
		out = append(out, value)
	}
	return out, nil
}

// ignoreUnfixable swallows errors that only invalidate the current branch.
func ignoreUnfixable(ctx *Context, err error) error {
	if err == nil || errors.Is(err, errStop) {
		return err
	}
	if schema.IsUnfixable(err) {
		log.Debug().Err(err).Str("path", ctx.CurrentPath()).Str("location", ctx.Location).Msg("Skipping schema branch")
		return nil
	}
	return err
}

func coverSchema(ctx *Context, node any, seen schema.KeySet, emit emitFunc) error {
	var s map[string]any
	switch n := node.(type) {
	case bool:
		s = map[string]any{}
		if !n {
			return nil
		}
	case map[string]any:
		s = PushExamplesToProperties(n)
	default:
		return ignoreUnfixable(ctx, fmt.Errorf("%w: unexpected schema node %T", schema.ErrInvalidSchema, node))
	}
	types := schema.Types(node)

	if len(types) == 0 {
		if err := ignoreUnfixable(ctx, coverPositiveForType(ctx, s, "", emit)); err != nil {
			return err
		}
	}
	for _, ty := range types {
		if err := ignoreUnfixable(ctx, coverPositiveForType(ctx, s, ty, emit)); err != nil {
			return err
		}
	}
	if ctx.IsNegative() {
		return coverNegative(ctx, s, types, seen, emit)
	}
	return nil
}

func coverPositiveForType(ctx *Context, s map[string]any, ty string, emit emitFunc) error {
	var template any
	if ty == "object" || ty == "array" {
		var err error
		if template, err = BuildTemplate(ctx.Drawer, s, TemplateKind(ty)); err != nil {
			return err
		}
	}
	if !ctx.IsPositive() {
		return nil
	}
	ctx = ctx.WithPositive()

	for _, key := range []string{"anyOf", "oneOf"} {
		branches, _ := schema.List(s, key)
		for _, branch := range branches {
			if err := coverSchema(ctx, branch, schema.KeySet{}, emit); err != nil {
				return err
			}
		}
	}
	if members, ok := schema.List(s, "allOf"); ok {
		if len(members) == 1 {
			if err := coverSchema(ctx, members[0], schema.KeySet{}, emit); err != nil {
				return err
			}
		} else if canonical, err := schema.Canonicalize(s); err == nil {
			if err := coverSchema(ctx, canonical, schema.KeySet{}, emit); err != nil {
				return err
			}
		} else {
			log.Debug().Err(err).Str("path", ctx.CurrentPath()).Msg("Skipping non-canonical allOf")
		}
	}

	if enum, ok := schema.List(s, "enum"); ok {
		for _, value := range enum {
			if err := emit(positiveValue(value, "Enum value")); err != nil {
				return err
			}
		}
		return nil
	}
	if c, ok := s["const"]; ok {
		return emit(positiveValue(c, "Const value"))
	}
	switch ty {
	case "null":
		return emit(positiveValue(nil, "Value null value"))
	case "boolean":
		if err := emit(positiveValue(true, "Valid boolean value")); err != nil {
			return err
		}
		return emit(positiveValue(false, "Valid boolean value"))
	case "string":
		return positiveString(ctx, s, emit)
	case "integer", "number":
		return positiveNumber(ctx, s, ty == "integer", emit)
	case "array":
		items, _ := template.([]any)
		return positiveArray(ctx, s, items, emit)
	case "object":
		object, _ := template.(map[string]any)
		return positiveObject(ctx, s, object, emit)
	}
	return nil
}
