package engine

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userOperations() *core.OperationSet {
	set := core.NewOperationSet(core.APITypeOpenAPI, "http://localhost")
	set.Add(core.Operation{
		Method: "post",
		Path:   "/users",
		Responses: []core.Response{{
			Status: "201",
			Content: map[string]map[string]any{
				"application/json": {"type": "object", "properties": map[string]any{"id": map[string]any{"type": "integer"}}},
			},
		}},
	})
	set.Add(core.Operation{
		Method:      "get",
		Path:        "/users/{userId}",
		OperationID: "getUser",
		Parameters:  []core.Parameter{{Name: "userId", Location: core.ParameterLocationPath, Required: true}},
	})
	set.Add(core.Operation{
		Method:     "get",
		Path:       "/orders/{order_id}",
		Parameters: []core.Parameter{{Name: "order_id", Location: core.ParameterLocationPath, Required: true}},
	})
	return set
}

func TestInferLinks(t *testing.T) {
	set := userOperations()
	assert.Equal(t, 1, InferLinks(set))

	links := set.Links()
	require.Len(t, links, 1)
	assert.Equal(t, "POST /users", links[0].Source)
	assert.Equal(t, "getUser", links[0].Target)
	assert.Equal(t, "201", links[0].Status)
	assert.Equal(t, map[string]string{"userId": "$response.body#/id"}, links[0].Parameters)
	assert.True(t, links[0].Inferred)

	assert.Equal(t, 0, InferLinks(set), "links are not inferred twice")
}

func TestInferLinksKeepsDeclaredLinks(t *testing.T) {
	set := userOperations()
	set.Operations[0].Links = []core.Link{{Name: "GetUser", Status: "201", Source: "POST /users", Target: "getUser"}}
	assert.Equal(t, 0, InferLinks(set))
	assert.Len(t, set.Links(), 1)
}

func TestResourceNames(t *testing.T) {
	tests := []struct {
		parameter string
		path      string
		want      string
	}{
		{"userId", "/users/{userId}", "user"},
		{"order_id", "/orders/{order_id}", "order"},
		{"id", "/categories/{id}", "category"},
		{"id", "/addresses/{id}", "address"},
		{"id", "/people/{id}", "person"},
		{"name", "/users/{name}", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resourceFromParameter(tt.parameter, tt.path), tt.parameter+" "+tt.path)
	}
}

func TestEvaluateExpressions(t *testing.T) {
	c := &cases.Case{
		Method:         "post",
		Path:           "/users/{id}",
		PathParameters: map[string]any{"id": "5"},
		Query:          map[string]any{"q": "x"},
		Headers:        map[string]any{"X-Trace": "abc"},
		Body:           map[string]any{"name": "alice"},
		HasBody:        true,
	}
	resp := &transport.Response{
		StatusCode: http.StatusCreated,
		Headers:    http.Header{"Location": []string{"/users/42"}},
		Body:       []byte(`{"id": 42, "items": [{"name": "a"}], "a/b": true}`),
		Request:    &transport.Request{URL: "http://localhost/users/5"},
	}
	ctx := ExpressionContext{Case: c, Response: resp}

	tests := []struct {
		expression string
		want       any
	}{
		{"$response.body#/id", json.Number("42")},
		{"$response.body#/items/0/name", "a"},
		{"$response.body#/a~1b", true},
		{"$response.header.Location", "/users/42"},
		{"$request.path.id", "5"},
		{"$request.query.q", "x"},
		{"$request.header.x-trace", "abc"},
		{"$request.body#/name", "alice"},
		{"$method", "POST"},
		{"$statusCode", 201},
		{"$url", "http://localhost/users/5"},
		{"literal", "literal"},
		{"user-{$response.body#/id}", "user-42"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := ctx.Evaluate(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"$response.body#/missing", "$response.header.X-Missing", "$request.cookie.session", "$unknown"} {
		_, err := ctx.Evaluate(bad)
		assert.Error(t, err, bad)
	}
}

func TestStatusMatches(t *testing.T) {
	assert.True(t, statusMatches("201", 201))
	assert.True(t, statusMatches("2XX", 204))
	assert.True(t, statusMatches("default", 500))
	assert.False(t, statusMatches("201", 200))
	assert.False(t, statusMatches("4XX", 200))
}

func TestParseOperationRef(t *testing.T) {
	path, method, ok := parseOperationRef("#/paths/~1users~1{userId}/get")
	require.True(t, ok)
	assert.Equal(t, "/users/{userId}", path)
	assert.Equal(t, "get", method)

	_, _, ok = parseOperationRef("getUser")
	assert.False(t, ok)
}
