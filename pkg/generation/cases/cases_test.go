package cases

import (
	"strings"
	"testing"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listOperation() *core.Operation {
	return &core.Operation{
		Method:      "get",
		Path:        "/items",
		PathMethods: []string{"get", "delete"},
		Parameters: []core.Parameter{
			{Name: "limit", Location: core.ParameterLocationQuery, Required: true, Schema: map[string]any{"type": "integer", "minimum": 1, "maximum": 10}},
			{Name: "q", Location: core.ParameterLocationQuery, Schema: map[string]any{"type": "string"}},
			{Name: "sort", Location: core.ParameterLocationQuery, Schema: map[string]any{"enum": []any{"asc", "desc"}}},
			{Name: "tag", Location: core.ParameterLocationQuery, Schema: map[string]any{"type": "string", "maxLength": 5}},
		},
	}
}

func collectCases(t *testing.T, op *core.Operation, modes generation.Modes) []*Case {
	t.Helper()
	var out []*Case
	for c, err := range CoverageCases(op, modes, generation.NewRapidDrawer(5)) {
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func described(all []*Case, prefix string) []*Case {
	var out []*Case
	for _, c := range all {
		if strings.HasPrefix(c.Meta.Description(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

func TestCoverageCasesDefaultPositive(t *testing.T) {
	all := collectCases(t, listOperation(), generation.AllModes())
	require.NotEmpty(t, all)

	first := all[0]
	assert.Equal(t, "Default positive test case", first.Meta.Description())
	assert.Equal(t, generation.Positive, first.Meta.Generation.Mode)
	assert.Equal(t, PhaseCoverage, first.Meta.Phase.Name)
	assert.Equal(t, "GET", first.Method)
	assert.Equal(t, "1", first.Query["limit"])
	assert.Len(t, first.Query, 4)
	for _, c := range all {
		for name, value := range c.Query {
			switch value.(type) {
			case string, []any:
			default:
				t.Errorf("case %q: query %s has unserialized value %#v", c.Meta.Description(), name, value)
			}
		}
	}
}

func TestCoverageCasesParameterVariants(t *testing.T) {
	all := collectCases(t, listOperation(), generation.AllModes())

	maximum := described(all, "Maximum value")
	require.Len(t, maximum, 1)
	assert.Equal(t, "10", maximum[0].Query["limit"])
	assert.Equal(t, "limit", maximum[0].Meta.Phase.Data.Parameter)
	assert.Equal(t, core.ParameterLocationQuery, maximum[0].Meta.Phase.Data.ParameterLocation)

	greater := described(all, "Value greater than maximum")
	require.Len(t, greater, 1)
	assert.Equal(t, "11", greater[0].Query["limit"])
	assert.Equal(t, generation.Negative, greater[0].Meta.Components[core.ParameterLocationQuery].Mode)
}

func TestCoverageCasesNegativeRequests(t *testing.T) {
	all := collectCases(t, listOperation(), generation.AllModes())

	methods := described(all, "Unspecified HTTP method")
	var got []string
	for _, c := range methods {
		got = append(got, c.Method)
	}
	assert.Equal(t, []string{"OPTIONS", "PATCH", "POST", "PUT", "TRACE"}, got)

	duplicated := described(all, "Duplicate `limit` query parameter")
	require.Len(t, duplicated, 1)
	assert.Equal(t, []any{"1", "1"}, duplicated[0].Query["limit"])

	missing := described(all, "Missing `limit` at query")
	require.Len(t, missing, 1)
	assert.NotContains(t, missing[0].Query, "limit")
	assert.Equal(t, generation.Negative, missing[0].Meta.Generation.Mode)
	assert.Empty(t, described(all, "Missing `q`"))
}

func TestCoverageCasesCombinations(t *testing.T) {
	all := collectCases(t, listOperation(), generation.AllModes())

	only := described(all, "Only required properties")
	require.Len(t, only, 1)
	assert.Equal(t, map[string]any{"limit": "1"}, only[0].Query)

	single := described(all, "All required properties and optional")
	require.Len(t, single, 3)
	assert.Len(t, single[0].Query, 2)
	assert.Contains(t, single[0].Query, "q")

	pairs := described(all, "All required and 2 optional properties")
	assert.Len(t, pairs, 3)
	for _, c := range pairs {
		assert.Len(t, c.Query, 3)
	}

	unexpected := described(all, "Object with unexpected properties")
	require.NotEmpty(t, unexpected)
	for _, c := range unexpected {
		assert.Contains(t, c.Query, generation.UnknownPropertyKey)
		assert.Equal(t, generation.Negative, c.Meta.Generation.Mode)
	}
	assert.Empty(t, described(all, "Missing required property"))
}

func TestCoverageCasesPositiveOnly(t *testing.T) {
	all := collectCases(t, listOperation(), generation.Modes{generation.Positive})
	for _, c := range all {
		assert.Equal(t, generation.Positive, c.Meta.Generation.Mode, c.Meta.Description())
	}
	assert.Empty(t, described(all, "Unspecified HTTP method"))
}

func TestCoverageCasesBody(t *testing.T) {
	op := &core.Operation{
		Method: "post",
		Path:   "/items/{id}",
		Parameters: []core.Parameter{
			{Name: "id", Location: core.ParameterLocationPath, Required: true, Schema: map[string]any{"type": "integer", "minimum": 1, "maximum": 1}},
		},
		Body: []core.Body{{
			MediaType: "application/json",
			Schema: map[string]any{
				"type":                 "object",
				"required":             []any{"name"},
				"properties":           map[string]any{"name": map[string]any{"type": "string", "minLength": 1, "maxLength": 3}},
				"additionalProperties": false,
			},
		}},
	}
	all := collectCases(t, op, generation.AllModes())
	require.NotEmpty(t, all)

	first := all[0]
	assert.Equal(t, "Valid object", first.Meta.Description())
	assert.True(t, first.HasBody)
	assert.Equal(t, "application/json", first.MediaType)
	assert.Equal(t, "application/json", first.Meta.Phase.Data.Parameter)
	assert.Equal(t, "/items/1", first.FormattedPath())
	assert.Empty(t, described(all, "Default positive test case"))

	missing := described(all, "Missing required property: name")
	require.Len(t, missing, 1)
	assert.Equal(t, map[string]any{}, missing[0].Body)
	assert.Equal(t, generation.Negative, missing[0].Meta.Components[core.ParameterLocationBody].Mode)
	assert.Equal(t, generation.Positive, missing[0].Meta.Components[core.ParameterLocationPath].Mode)
}

func TestCoverageCasesStopEarly(t *testing.T) {
	count := 0
	for _, err := range CoverageCases(listOperation(), generation.AllModes(), generation.NewRapidDrawer(5)) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestCoverageCasesAreDeterministic(t *testing.T) {
	first := collectCases(t, listOperation(), generation.AllModes())
	second := collectCases(t, listOperation(), generation.AllModes())
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Meta.Description(), second[i].Meta.Description())
		assert.Equal(t, first[i].Query, second[i].Query)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		location core.ParameterLocation
		want     any
	}{
		{"null", nil, core.ParameterLocationHeader, "null"},
		{"true", true, core.ParameterLocationQuery, "true"},
		{"false", false, core.ParameterLocationCookie, "false"},
		{"int", 42, core.ParameterLocationPath, "42"},
		{"integral float", 3.0, core.ParameterLocationQuery, "3"},
		{"float", 1.5, core.ParameterLocationQuery, "1.5"},
		{"string", "x", core.ParameterLocationHeader, "x"},
		{"query list", []any{1, "a", nil}, core.ParameterLocationQuery, []any{"1", "a", "null"}},
		{"header list", []any{1, 2}, core.ParameterLocationHeader, "1,2"},
		{"nested query list", []any{1, []any{true, nil}}, core.ParameterLocationQuery, []any{"1", "true", "null"}},
		{"nested header list", []any{1, []any{true, nil}}, core.ParameterLocationHeader, "1,true,null"},
		{"object", map[string]any{"b": 1, "a": []any{true}}, core.ParameterLocationQuery, `{"a":[true],"b":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.value, tt.location))
		})
	}
}

func TestTemplateIsNotModified(t *testing.T) {
	template := NewTemplate()
	template.AddParameter(core.ParameterLocationQuery, "a", generation.GeneratedValue{Value: 1, Mode: generation.Positive})
	template.AddParameter(core.ParameterLocationQuery, "b", generation.GeneratedValue{Value: "x", Mode: generation.Positive})

	changed := template.WithParameter(core.ParameterLocationQuery, "a", generation.GeneratedValue{Value: 2, Mode: generation.Negative})
	assert.Equal(t, "2", changed.Containers[core.ParameterLocationQuery]["a"])
	assert.Equal(t, generation.Negative, changed.Components[core.ParameterLocationQuery].Mode)

	base := template.Unmodified()
	assert.Equal(t, map[string]any{"a": "1", "b": "x"}, base.Containers[core.ParameterLocationQuery])
	assert.Equal(t, generation.Positive, base.Components[core.ParameterLocationQuery].Mode)

	negative := NewTemplate()
	negative.AddParameter(core.ParameterLocationHeader, "x", generation.GeneratedValue{Value: 1, Mode: generation.Negative})
	negative.AddParameter(core.ParameterLocationHeader, "y", generation.GeneratedValue{Value: 1, Mode: generation.Positive})
	assert.Equal(t, generation.Negative, negative.Unmodified().Components[core.ParameterLocationHeader].Mode)
}

func TestCaseRevalidate(t *testing.T) {
	op := listOperation()
	var c *Case
	for item, err := range CoverageCases(op, generation.Modes{generation.Positive}, generation.NewRapidDrawer(5)) {
		require.NoError(t, err)
		c = item
		break
	}
	require.NotNil(t, c)
	validator := schema.NewValidator()

	c.SetParameter(core.ParameterLocationQuery, "limit", 100, validator)
	assert.Equal(t, "100", c.Query["limit"])
	assert.Equal(t, generation.Negative, c.Meta.Components[core.ParameterLocationQuery].Mode)
	assert.Equal(t, generation.Negative, c.Meta.Generation.Mode)

	c.SetParameter(core.ParameterLocationQuery, "limit", 5, validator)
	assert.Equal(t, generation.Positive, c.Meta.Components[core.ParameterLocationQuery].Mode)
	assert.Equal(t, generation.Positive, c.Meta.Generation.Mode)

	c.RemoveParameter(core.ParameterLocationQuery, "limit", validator)
	assert.Equal(t, generation.Negative, c.Meta.Generation.Mode)
}

func TestCaseURL(t *testing.T) {
	c := &Case{
		Path:           "/users/{id}/posts",
		PathParameters: map[string]any{"id": "a b"},
		Query:          map[string]any{"tag": []any{"x", "y"}, "limit": "2"},
	}
	assert.Equal(t, "https://api.example.com/users/a%20b/posts?limit=2&tag=x&tag=y", c.URL("https://api.example.com/"))
}

func TestCaseCloneIsIndependent(t *testing.T) {
	c := &Case{
		ID:      "abc",
		Headers: map[string]any{"X": "1"},
		Body:    map[string]any{"k": []any{1}},
		Meta:    &CaseMetadata{Components: map[core.ParameterLocation]ComponentInfo{core.ParameterLocationBody: {Mode: generation.Positive}}},
	}
	clone := c.Clone()
	clone.Headers["X"] = "2"
	clone.Body.(map[string]any)["k"] = nil
	clone.Meta.Components[core.ParameterLocationBody] = ComponentInfo{Mode: generation.Negative}

	assert.NotEqual(t, c.ID, clone.ID)
	assert.Equal(t, "1", c.Headers["X"])
	assert.Equal(t, []any{1}, c.Body.(map[string]any)["k"])
	assert.Equal(t, generation.Positive, c.Meta.Components[core.ParameterLocationBody].Mode)
}

func TestChoose(t *testing.T) {
	var got [][]string
	for selection := range choose([]string{"a", "b", "c", "d"}, 2) {
		got = append(got, selection)
	}
	assert.Equal(t, [][]string{{"a", "b"}, {"a", "c"}, {"a", "d"}, {"b", "c"}, {"b", "d"}, {"c", "d"}}, got)
}

func TestExampleCases(t *testing.T) {
	op := &core.Operation{
		Method: "post",
		Path:   "/users",
		Parameters: []core.Parameter{
			{Name: "X-Request", Location: core.ParameterLocationHeader, Required: true, Schema: map[string]any{"type": "string", "example": "req-1"}},
			{Name: "debug", Location: core.ParameterLocationQuery, Schema: map[string]any{"type": "boolean"}},
		},
		Body: []core.Body{{
			MediaType: "application/json",
			Schema:    map[string]any{"type": "object"},
			Examples:  []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
		}},
	}
	got, err := ExampleCases(op, generation.NewRapidDrawer(1))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, map[string]any{"name": "a"}, got[0].Body)
	assert.Equal(t, map[string]any{"name": "b"}, got[1].Body)
	for _, c := range got {
		assert.Equal(t, "req-1", c.Headers["X-Request"])
		assert.NotContains(t, c.Query, "debug")
		assert.Equal(t, PhaseExamples, c.Meta.Phase.Name)
	}

	none, err := ExampleCases(listOperation(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFuzzCases(t *testing.T) {
	op := listOperation()
	run := func() []*Case {
		var out []*Case
		for c, err := range FuzzCases(op, generation.AllModes(), 7, 6, nil) {
			require.NoError(t, err)
			out = append(out, c)
		}
		return out
	}
	first := run()
	require.NotEmpty(t, first)
	assert.LessOrEqual(t, len(first), 6)

	var positives, negatives int
	for _, c := range first {
		assert.Equal(t, PhaseFuzzing, c.Meta.Phase.Name)
		switch c.Meta.Generation.Mode {
		case generation.Positive:
			positives++
		case generation.Negative:
			negatives++
		}
	}
	assert.Positive(t, positives)
	assert.Positive(t, negatives)

	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Query, second[i].Query)
	}
}
