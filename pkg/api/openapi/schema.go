package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

const maxSchemaDepth = 32

// schemaConverter turns resolved kin-openapi schemas into plain JSON Schema
// maps. OpenAPI 3.0 specifics are rewritten on the way: nullable becomes a
// "null" type, boolean exclusive bounds become numeric ones and, for
// request schemas, readOnly properties are dropped.
type schemaConverter struct {
	request  bool
	visiting map[*openapi3.Schema]bool
}

func newSchemaConverter(request bool) *schemaConverter {
	return &schemaConverter{request: request, visiting: make(map[*openapi3.Schema]bool)}
}

func (c *schemaConverter) convertRef(ref *openapi3.SchemaRef, depth int) map[string]any {
	if ref == nil || ref.Value == nil {
		return map[string]any{}
	}
	return c.convert(ref.Value, depth)
}

func (c *schemaConverter) convert(s *openapi3.Schema, depth int) map[string]any {
	// Recursive references are cut to an unconstrained schema.
	if depth > maxSchemaDepth || c.visiting[s] {
		return map[string]any{}
	}
	c.visiting[s] = true
	defer delete(c.visiting, s)

	out := make(map[string]any)
	if s.Type != nil {
		types := append([]string(nil), s.Type.Slice()...)
		if s.Nullable && len(types) > 0 {
			types = append(types, "null")
		}
		switch len(types) {
		case 0:
		case 1:
			out["type"] = types[0]
		default:
			list := make([]any, len(types))
			for i, t := range types {
				list[i] = t
			}
			out["type"] = list
		}
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if len(s.Enum) > 0 {
		enum := append([]any(nil), s.Enum...)
		if s.Nullable && !containsNil(enum) {
			enum = append(enum, nil)
		}
		out["enum"] = enum
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if s.Example != nil {
		out["example"] = s.Example
	}

	if s.Min != nil {
		if s.ExclusiveMin {
			out["exclusiveMinimum"] = *s.Min
		} else {
			out["minimum"] = *s.Min
		}
	}
	if s.Max != nil {
		if s.ExclusiveMax {
			out["exclusiveMaximum"] = *s.Max
		} else {
			out["maximum"] = *s.Max
		}
	}
	if s.MultipleOf != nil {
		out["multipleOf"] = *s.MultipleOf
	}

	if s.MinLength != 0 {
		out["minLength"] = int(s.MinLength)
	}
	if s.MaxLength != nil {
		out["maxLength"] = int(*s.MaxLength)
	}

	if s.MinItems != 0 {
		out["minItems"] = int(s.MinItems)
	}
	if s.MaxItems != nil {
		out["maxItems"] = int(*s.MaxItems)
	}
	if s.UniqueItems {
		out["uniqueItems"] = true
	}
	if s.Items != nil {
		out["items"] = c.convertRef(s.Items, depth+1)
	}

	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, ref := range s.Properties {
			if c.request && ref != nil && ref.Value != nil && ref.Value.ReadOnly {
				continue
			}
			props[name] = c.convertRef(ref, depth+1)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		props, _ := out["properties"].(map[string]any)
		required := make([]any, 0, len(s.Required))
		for _, name := range s.Required {
			if c.request && s.Properties[name] != nil && props[name] == nil {
				continue
			}
			required = append(required, name)
		}
		if len(required) > 0 {
			out["required"] = required
		}
	}
	if s.MinProps != 0 {
		out["minProperties"] = int(s.MinProps)
	}
	if s.MaxProps != nil {
		out["maxProperties"] = int(*s.MaxProps)
	}
	if s.AdditionalProperties.Has != nil && !*s.AdditionalProperties.Has {
		out["additionalProperties"] = false
	} else if s.AdditionalProperties.Schema != nil {
		out["additionalProperties"] = c.convertRef(s.AdditionalProperties.Schema, depth+1)
	}

	for keyword, refs := range map[string]openapi3.SchemaRefs{"allOf": s.AllOf, "anyOf": s.AnyOf, "oneOf": s.OneOf} {
		if len(refs) == 0 {
			continue
		}
		branches := make([]any, len(refs))
		for i, ref := range refs {
			branches[i] = c.convertRef(ref, depth+1)
		}
		out[keyword] = branches
	}
	if s.Not != nil {
		out["not"] = c.convertRef(s.Not, depth+1)
	}
	return out
}

func containsNil(values []any) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}

// ConvertSchema converts one resolved schema into a JSON Schema map.
func ConvertSchema(ref *openapi3.SchemaRef, request bool) map[string]any {
	return newSchemaConverter(request).convertRef(ref, 0)
}
