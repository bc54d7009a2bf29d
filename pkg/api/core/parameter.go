package core

import (
	"fmt"

	"github.com/pyneda/kensa/pkg/schema"
)

// Parameter is a single named input of an operation. Schema is a JSON
// Schema with every reference already inlined.
type Parameter struct {
	Name        string            `json:"name"`
	Location    ParameterLocation `json:"location"`
	Required    bool              `json:"required"`
	Schema      map[string]any    `json:"schema"`
	Description string            `json:"description,omitempty"`
	Deprecated  bool              `json:"deprecated,omitempty"`
	Style       string            `json:"style,omitempty"`
	Explode     *bool             `json:"explode,omitempty"`
	Examples    []any             `json:"examples,omitempty"`
}

func (p Parameter) String() string {
	required := ""
	if p.Required {
		required = " (required)"
	}
	return fmt.Sprintf("%s [%s]%s", p.Name, p.Location, required)
}

// JSONSchema returns a copy of the parameter schema with declared examples
// merged into its "examples" keyword.
func (p Parameter) JSONSchema() map[string]any {
	out := schema.CloneMap(p.Schema)
	if out == nil {
		out = map[string]any{}
	}
	if len(p.Examples) == 0 {
		return out
	}
	existing, _ := schema.List(out, "examples")
	merged := append([]any(nil), existing...)
	for _, example := range p.Examples {
		merged = append(merged, schema.Clone(example))
	}
	out["examples"] = merged
	return out
}

func (p Parameter) IsPathParam() bool {
	return p.Location == ParameterLocationPath
}

func (p Parameter) IsQueryParam() bool {
	return p.Location == ParameterLocationQuery
}

func (p Parameter) IsHeaderParam() bool {
	return p.Location == ParameterLocationHeader
}

func (p Parameter) IsCookieParam() bool {
	return p.Location == ParameterLocationCookie
}

type ParameterSet struct {
	Parameters []Parameter
}

func NewParameterSet(params ...Parameter) *ParameterSet {
	return &ParameterSet{Parameters: params}
}

func (ps *ParameterSet) Add(param Parameter) {
	ps.Parameters = append(ps.Parameters, param)
}

func (ps *ParameterSet) Len() int {
	return len(ps.Parameters)
}

func (ps *ParameterSet) GetByName(name string) *Parameter {
	for i := range ps.Parameters {
		if ps.Parameters[i].Name == name {
			return &ps.Parameters[i]
		}
	}
	return nil
}

func (ps *ParameterSet) GetByLocation(location ParameterLocation) []Parameter {
	var result []Parameter
	for _, p := range ps.Parameters {
		if p.Location == location {
			result = append(result, p)
		}
	}
	return result
}

func (ps *ParameterSet) GetRequired() []Parameter {
	var result []Parameter
	for _, p := range ps.Parameters {
		if p.Required {
			result = append(result, p)
		}
	}
	return result
}

// ObjectSchema describes a whole container of parameters as one object
// schema, restricted to the names accepted by include.
func (ps *ParameterSet) ObjectSchema(include func(Parameter) bool) map[string]any {
	properties := make(map[string]any)
	required := []any{}
	for _, p := range ps.Parameters {
		if include != nil && !include(p) {
			continue
		}
		properties[p.Name] = p.JSONSchema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}
