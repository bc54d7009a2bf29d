package generation

import (
	"github.com/pyneda/kensa/pkg/schema"
)

// TemplateKind selects which baseline BuildTemplate produces.
type TemplateKind string

const (
	TemplateObject TemplateKind = "object"
	TemplateArray  TemplateKind = "array"
)

// TemplateSchema rewrites s so that a single draw produces a fully populated
// baseline value. For objects every declared property becomes required and
// property sub-schemas prefer their examples and defaults.
func TemplateSchema(s map[string]any, kind TemplateKind) map[string]any {
	if kind == TemplateObject {
		if props, names := schema.Properties(s); props != nil {
			rewritten := make(map[string]any, len(props))
			required := make([]any, 0, len(names))
			for _, name := range names {
				rewritten[name] = templateProperty(props[name])
				required = append(required, name)
			}
			out := schema.With(s, "type", string(kind))
			out["required"] = required
			out["properties"] = rewritten
			return out
		}
	}
	return schema.With(s, "type", string(kind))
}

func templateProperty(node any) any {
	s, ok := node.(map[string]any)
	if !ok {
		return node
	}
	if example, ok := s["example"]; ok {
		return map[string]any{"const": example}
	}
	if def, ok := s["default"]; ok {
		return map[string]any{"const": def}
	}
	if examples, ok := schema.List(s, "examples"); ok && len(examples) > 0 {
		return map[string]any{"enum": examples}
	}
	if ty, _ := s["type"].(string); ty == "object" {
		return TemplateSchema(s, TemplateObject)
	}
	return s
}

// BuildTemplate draws one baseline value of the given kind. An unsatisfiable
// schema is reported as an error wrapping schema.ErrUnsatisfiable.
func BuildTemplate(d Drawer, s map[string]any, kind TemplateKind) (any, error) {
	return d.Draw(TemplateSchema(s, kind))
}

// PushExamplesToProperties copies object-level examples down into the
// examples of the matching properties. The input is left untouched.
func PushExamplesToProperties(s map[string]any) map[string]any {
	examples, hasExamples := schema.List(s, "examples")
	props, names := schema.Properties(s)
	if !hasExamples || props == nil {
		return s
	}
	updated := make(map[string]any, len(props))
	for name, sub := range props {
		updated[name] = sub
	}
	changed := false
	for _, example := range examples {
		object, ok := example.(map[string]any)
		if !ok {
			continue
		}
		for _, name := range names {
			value, present := object[name]
			if !present {
				continue
			}
			sub, ok := updated[name].(map[string]any)
			if !ok {
				continue
			}
			existing, _ := schema.List(sub, "examples")
			if containsValue(existing, value) {
				continue
			}
			merged := append(append([]any(nil), existing...), value)
			updated[name] = schema.With(sub, "examples", merged)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return schema.With(s, "properties", updated)
}

func containsValue(list []any, value any) bool {
	for _, item := range list {
		if schema.Equal(item, value) {
			return true
		}
	}
	return false
}
