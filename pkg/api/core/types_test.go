package core

import (
	"testing"
)

func TestParameterLocation_Container(t *testing.T) {
	tests := []struct {
		location ParameterLocation
		want     string
	}{
		{ParameterLocationPath, "path_parameters"},
		{ParameterLocationQuery, "query"},
		{ParameterLocationHeader, "headers"},
		{ParameterLocationCookie, "cookies"},
		{ParameterLocationBody, "body"},
	}
	for _, tt := range tests {
		t.Run(string(tt.location), func(t *testing.T) {
			if got := tt.location.Container(); got != tt.want {
				t.Errorf("ParameterLocation(%q).Container() = %q, want %q", tt.location, got, tt.want)
			}
			back, ok := LocationFromContainer(tt.want)
			if !ok || back != tt.location {
				t.Errorf("LocationFromContainer(%q) = %q, %v", tt.want, back, ok)
			}
		})
	}
	if ParameterLocation("matrix").IsValid() {
		t.Error("unexpected valid location")
	}
}

func TestParameter_JSONSchema(t *testing.T) {
	p := Parameter{
		Name:     "limit",
		Location: ParameterLocationQuery,
		Schema:   map[string]any{"type": "integer", "examples": []any{1}},
		Examples: []any{10},
	}
	got := p.JSONSchema()
	examples, ok := got["examples"].([]any)
	if !ok || len(examples) != 2 {
		t.Fatalf("examples = %#v, want two entries", got["examples"])
	}
	if original := p.Schema["examples"].([]any); len(original) != 1 {
		t.Errorf("parameter schema was modified: %#v", p.Schema)
	}

	empty := Parameter{Name: "x"}.JSONSchema()
	if empty == nil || len(empty) != 0 {
		t.Errorf("JSONSchema() of schemaless parameter = %#v, want empty map", empty)
	}
}

func TestParameterSet_ObjectSchema(t *testing.T) {
	set := NewParameterSet(
		Parameter{Name: "a", Location: ParameterLocationQuery, Required: true, Schema: map[string]any{"type": "string"}},
		Parameter{Name: "b", Location: ParameterLocationQuery, Schema: map[string]any{"type": "integer"}},
		Parameter{Name: "c", Location: ParameterLocationQuery, Schema: map[string]any{"type": "boolean"}},
	)
	got := set.ObjectSchema(func(p Parameter) bool { return p.Name != "c" })

	props := got["properties"].(map[string]any)
	if len(props) != 2 {
		t.Errorf("properties = %v, want a and b", props)
	}
	required := got["required"].([]any)
	if len(required) != 1 || required[0] != "a" {
		t.Errorf("required = %v, want [a]", required)
	}
	if got["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", got["additionalProperties"])
	}
}

func TestOperation_Label(t *testing.T) {
	op := Operation{Method: "get", Path: "/users/{id}", BaseURL: "https://api.example.com/"}
	if got := op.Label(); got != "GET /users/{id}" {
		t.Errorf("Label() = %q", got)
	}
	if got := op.FullURL(); got != "https://api.example.com/users/{id}" {
		t.Errorf("FullURL() = %q", got)
	}
}

func TestOperation_ResponseFor(t *testing.T) {
	op := Operation{Responses: []Response{
		{Status: "default"},
		{Status: "2XX"},
		{Status: "201"},
	}}
	tests := []struct {
		status int
		want   string
	}{
		{201, "201"},
		{200, "2XX"},
		{404, "default"},
	}
	for _, tt := range tests {
		got := op.ResponseFor(tt.status)
		if got == nil || got.Status != tt.want {
			t.Errorf("ResponseFor(%d) = %v, want %s", tt.status, got, tt.want)
		}
	}
	if (Operation{}).ResponseFor(200) != nil {
		t.Error("expected no response for an operation without responses")
	}
}

func TestOperationSet_GetByReference(t *testing.T) {
	set := NewOperationSet(APITypeOpenAPI, "")
	set.Add(Operation{Method: "post", Path: "/users", OperationID: "createUser"})
	set.Add(Operation{Method: "get", Path: "/users/{id}", Links: []Link{{Name: "self"}}})

	if op := set.GetByReference("createUser"); op == nil || op.Path != "/users" {
		t.Errorf("GetByReference(createUser) = %v", op)
	}
	if op := set.GetByReference("GET /users/{id}"); op == nil || op.Method != "get" {
		t.Errorf("GetByReference(label) = %v", op)
	}
	if op := set.GetByReference("missing"); op != nil {
		t.Errorf("GetByReference(missing) = %v, want nil", op)
	}
	if n := len(set.Links()); n != 1 {
		t.Errorf("Links() returned %d links, want 1", n)
	}
}
