package checks

import (
	"net/http"
	"testing"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userOperation() *core.Operation {
	return &core.Operation{
		Method: "get",
		Path:   "/users/{id}",
		Responses: []core.Response{
			{
				Status: "200",
				Content: map[string]map[string]any{
					"application/json": {
						"type":     "object",
						"required": []any{"id"},
						"properties": map[string]any{
							"id":   map[string]any{"type": "integer"},
							"name": map[string]any{"type": "string"},
						},
					},
				},
			},
			{Status: "4XX"},
		},
	}
}

func caseWithMode(mode generation.Mode) *cases.Case {
	return &cases.Case{
		ID:        "c1",
		Operation: userOperation(),
		Method:    "GET",
		Path:      "/users/{id}",
		Meta: &cases.CaseMetadata{
			Generation: cases.GenerationInfo{Mode: mode},
			Phase:      cases.PhaseInfo{Name: cases.PhaseCoverage, Data: &cases.PhaseData{Description: "Value greater than maximum"}},
		},
	}
}

func response(status int, contentType, body string) *transport.Response {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	return &transport.Response{StatusCode: status, Message: http.StatusText(status), Headers: headers, Body: []byte(body)}
}

func runOne(t *testing.T, name string, c *cases.Case, resp *transport.Response) *Failure {
	t.Helper()
	checks, err := Get([]string{name})
	require.NoError(t, err)
	failures := Run(NewContext(), c, resp, checks, nil, nil)
	if len(failures) == 0 {
		return nil
	}
	require.Len(t, failures, 1)
	assert.Equal(t, name, failures[0].Check)
	return failures[0]
}

func TestNotAServerError(t *testing.T) {
	c := caseWithMode(generation.Positive)
	assert.Nil(t, runOne(t, NotAServerError, c, response(404, "", "")))

	failure := runOne(t, NotAServerError, c, response(503, "", ""))
	require.NotNil(t, failure)
	assert.Equal(t, "Server error", failure.Title)
	assert.Equal(t, "503", failure.Context["status_code"])
}

func TestStatusCodeConformance(t *testing.T) {
	c := caseWithMode(generation.Positive)
	assert.Nil(t, runOne(t, StatusCodeConformance, c, response(200, "", "")))
	assert.Nil(t, runOne(t, StatusCodeConformance, c, response(422, "", "")))

	failure := runOne(t, StatusCodeConformance, c, response(301, "", ""))
	require.NotNil(t, failure)
	assert.Equal(t, "Undocumented HTTP status code", failure.Title)
	assert.Equal(t, "200,4XX", failure.Context["defined"])
}

func TestContentTypeConformance(t *testing.T) {
	c := caseWithMode(generation.Positive)
	assert.Nil(t, runOne(t, ContentTypeConformance, c, response(200, "application/json; charset=utf-8", "{}")))
	assert.Nil(t, runOne(t, ContentTypeConformance, c, response(404, "text/html", "")))

	failure := runOne(t, ContentTypeConformance, c, response(200, "text/html", ""))
	require.NotNil(t, failure)
	assert.Equal(t, "Undocumented Content-Type", failure.Title)

	missing := runOne(t, ContentTypeConformance, c, response(200, "", ""))
	require.NotNil(t, missing)
	assert.Equal(t, "Missing Content-Type header", missing.Title)
}

func TestResponseSchemaConformance(t *testing.T) {
	c := caseWithMode(generation.Positive)
	assert.Nil(t, runOne(t, ResponseSchemaConformance, c, response(200, "application/json", `{"id": 1, "name": "a"}`)))

	failure := runOne(t, ResponseSchemaConformance, c, response(200, "application/json", `{"id": "1"}`))
	require.NotNil(t, failure)
	assert.Equal(t, "Response violates schema", failure.Title)
	assert.Equal(t, "/id", failure.Context["instance_path"])

	broken := runOne(t, ResponseSchemaConformance, c, response(200, "application/json", `{"id":`))
	require.NotNil(t, broken)
	assert.Equal(t, "JSON deserialization error", broken.Title)

	assert.Nil(t, runOne(t, ResponseSchemaConformance, c, response(200, "text/plain", `not json`)))
}

func TestNegativeDataRejection(t *testing.T) {
	negative := caseWithMode(generation.Negative)
	assert.Nil(t, runOne(t, NegativeDataRejection, negative, response(422, "", "")))
	assert.Nil(t, runOne(t, NegativeDataRejection, negative, response(500, "", "")))

	failure := runOne(t, NegativeDataRejection, negative, response(200, "", ""))
	require.NotNil(t, failure)
	assert.Equal(t, "API accepted schema-violating request", failure.Title)
	assert.Equal(t, "Value greater than maximum", failure.Context["description"])

	assert.Nil(t, runOne(t, NegativeDataRejection, caseWithMode(generation.Positive), response(200, "", "")))
}

func TestPositiveDataAcceptance(t *testing.T) {
	positive := caseWithMode(generation.Positive)
	assert.Nil(t, runOne(t, PositiveDataAcceptance, positive, response(201, "", "")))
	assert.Nil(t, runOne(t, PositiveDataAcceptance, positive, response(404, "", "")))

	failure := runOne(t, PositiveDataAcceptance, positive, response(400, "", ""))
	require.NotNil(t, failure)
	assert.Equal(t, "API rejected schema-compliant request", failure.Title)

	assert.Nil(t, runOne(t, PositiveDataAcceptance, caseWithMode(generation.Negative), response(400, "", "")))
}

func TestGetAndRun(t *testing.T) {
	all, err := Get(nil)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	_, err = Get([]string{"nope"})
	assert.Error(t, err)

	var succeeded, failed []string
	failures := Run(NewContext(), caseWithMode(generation.Positive), response(500, "application/json", `{}`), all,
		func(name string) { succeeded = append(succeeded, name) },
		func(name string, _ *Failure) { failed = append(failed, name) },
	)
	assert.Len(t, failures, 2)
	assert.ElementsMatch(t, []string{NotAServerError, StatusCodeConformance}, failed)
	assert.Len(t, succeeded, 4)
}

func TestStatusMatches(t *testing.T) {
	assert.True(t, statusMatches([]string{"2XX"}, 204))
	assert.True(t, statusMatches([]string{"404"}, 404))
	assert.True(t, statusMatches([]string{"5xx"}, 502))
	assert.False(t, statusMatches([]string{"4XX", "200"}, 201))
}
