package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pyneda/kensa/lib"
	"github.com/pyneda/kensa/pkg/checks"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/pyneda/kensa/pkg/scan/recorder"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	color.NoColor = true
}

func failingRecorder(label string) *recorder.ScenarioRecorder {
	rec := recorder.New(label)
	c := &cases.Case{
		ID:     "case1",
		Method: "get",
		Path:   "/items",
		Meta: &cases.CaseMetadata{
			Generation: cases.GenerationInfo{Mode: generation.Negative},
			Phase: cases.PhaseInfo{
				Name: cases.PhaseCoverage,
				Data: &cases.PhaseData{Description: "Value below minimum", Location: "/minimum", Parameter: "limit"},
			},
		},
	}
	rec.RecordCase("", nil, c)
	rec.RecordResponse(c.ID, &transport.Response{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal Server Error",
		Headers:    http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte("boom"),
		Elapsed:    20 * time.Millisecond,
		Request:    &transport.Request{Method: http.MethodGet, URL: "http://localhost/items?limit=0", Headers: http.Header{}},
	})
	failure := &checks.Failure{Check: checks.NotAServerError, Title: "Server error", Message: "Received 500"}
	rec.RecordCheckFailure(checks.NotAServerError, c.ID, "curl -X GET 'http://localhost/items?limit=0'", failure)
	rec.RecordCheckSuccess(checks.StatusCodeConformance, c.ID)
	return rec
}

func phaseEvents(name events.PhaseName, status events.Status, payload any) []events.Event {
	phase := events.NewPhase(name, true, true)
	if status == events.StatusSkip {
		phase.Skip(events.SkipNothingToTest)
	}
	return []events.Event{
		&events.PhaseStarted{Base: events.NewBase(), Phase: phase},
		&events.PhaseFinished{Base: events.NewBase(), Phase: phase, Status: status, Payload: payload},
	}
}

func sampleRun() []events.Event {
	stream := []events.Event{&events.EngineStarted{Base: events.NewBase()}}
	stream = append(stream, phaseEvents(events.PhaseProbing, events.StatusSuccess, &events.ProbePayload{
		Probes: []events.ProbeResult{{Name: events.NullByteInHeaderProbe, Outcome: events.ProbeFailure}},
	})...)
	stream = append(stream, phaseEvents(events.PhaseExamples, events.StatusSkip, nil)...)
	stream = append(stream,
		&events.ScenarioFinished{Base: events.NewBase(), Phase: events.PhaseCoverage, Label: "GET /items", Status: events.StatusFailure, Recorder: failingRecorder("GET /items")},
		&events.ScenarioFinished{Base: events.NewBase(), Phase: events.PhaseFuzzing, Label: "GET /items", Status: events.StatusFailure, Recorder: failingRecorder("GET /items")},
		&events.ScenarioFinished{Base: events.NewBase(), Phase: events.PhaseCoverage, Label: "GET /tags", Status: events.StatusSuccess, Recorder: recorder.New("GET /tags")},
		&events.NonFatalError{Base: events.NewBase(), Label: "POST /users", Err: errors.New("invalid regex")},
		&events.NonFatalError{Base: events.NewBase(), Label: "GET /users", Err: errors.New("bad pattern")},
		&events.NonFatalError{Base: events.NewBase(), Label: "POST /users", Err: errors.New("again")},
	)
	stream = append(stream, phaseEvents(events.PhaseCoverage, events.StatusFailure, nil)...)
	return append(stream, &events.EngineFinished{Base: events.NewBase(), RunningTime: 1500 * time.Millisecond})
}

func collect(stream []events.Event) *Report {
	return NewCollector("test").Consume(slices.Values(stream))
}

func TestCollector(t *testing.T) {
	report := collect(sampleRun())

	require.Len(t, report.Phases, 3)
	assert.Equal(t, events.PhaseProbing, report.Phases[0].Name)
	assert.Equal(t, "null_byte_in_header=failure", report.Phases[0].Details)
	assert.Equal(t, events.StatusSkip, report.Phases[1].Status)
	assert.Equal(t, string(events.SkipNothingToTest), report.Phases[1].SkipReason)
	assert.Equal(t, events.StatusFailure, report.Phases[2].Status)

	assert.Equal(t, 3, report.Scenarios.Total)
	assert.Equal(t, 2, report.Scenarios.Failure)
	assert.Equal(t, 1, report.Scenarios.Success)

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.Equal(t, "GET /items", failure.Label)
	assert.Equal(t, 2, failure.Occurrences)
	assert.Equal(t, "curl -X GET 'http://localhost/items?limit=0'", failure.CodeSample)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "Runtime Error", report.Errors[0].Title)
	assert.Equal(t, 3, report.Errors[0].Count)
	assert.Equal(t, []string{"GET /users", "POST /users"}, report.Errors[0].Labels)
	assert.Equal(t, "invalid regex", report.Errors[0].Message)

	assert.Equal(t, 1500*time.Millisecond, report.RunningTime)
	assert.False(t, report.Interrupted)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitFailures, collect(sampleRun()).ExitCode())

	errored := []events.Event{
		&events.NonFatalError{Base: events.NewBase(), Label: "GET /a", Err: errors.New("x")},
		&events.EngineFinished{Base: events.NewBase()},
	}
	assert.Equal(t, ExitErrors, collect(errored).ExitCode())

	fatal := []events.Event{&events.FatalError{Base: events.NewBase(), Err: errors.New("worker crashed")}}
	assert.Equal(t, ExitErrors, collect(fatal).ExitCode())

	clean := append(phaseEvents(events.PhaseCoverage, events.StatusSuccess, nil), &events.EngineFinished{Base: events.NewBase()})
	assert.Equal(t, ExitClean, collect(clean).ExitCode())
}

func TestHandlersSeeEveryEvent(t *testing.T) {
	var seen int
	collector := NewCollector("test").OnEvent(func(events.Event) { seen++ })
	stream := sampleRun()
	collector.Consume(slices.Values(stream))
	assert.Equal(t, len(stream), seen)
}

func TestRender(t *testing.T) {
	report := collect(sampleRun())

	tests := []struct {
		format lib.FormatType
		check  func(t *testing.T, out string)
	}{
		{lib.Pretty, func(t *testing.T, out string) {
			assert.Contains(t, out, "Phases")
			assert.Contains(t, out, "Reproduce with:")
			assert.Contains(t, out, "3 scenarios, 1 passed, 2 failed in 1.5s")
		}},
		{lib.Table, func(t *testing.T, out string) {
			assert.Contains(t, out, "OCCURRENCES")
			assert.Contains(t, out, "Runtime Error")
		}},
		{lib.JSON, func(t *testing.T, out string) {
			var decoded map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &decoded))
			assert.Equal(t, "test", decoded["title"])
			assert.Len(t, decoded["failures"], 1)
		}},
		{lib.YAML, func(t *testing.T, out string) {
			var decoded map[string]any
			require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
			phases := decoded["phases"].([]any)
			assert.Equal(t, "success", phases[0].(map[string]any)["status"])
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, report.Render(&buf, tt.format))
			tt.check(t, buf.String())
		})
	}

	assert.Error(t, report.Render(&bytes.Buffer{}, lib.FormatType("html")))
}

func TestWriteReproductions(t *testing.T) {
	report := collect(sampleRun())
	dir := filepath.Join(t.TempDir(), "repro")

	paths, err := report.WriteReproductions(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "get-items.sh")}, paths)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "#!/bin/sh\n# GET /items\n"))
	assert.Contains(t, string(content), "# Server error [not_a_server_error]")
	assert.Contains(t, string(content), "curl -X GET 'http://localhost/items?limit=0'")

	empty := &Report{}
	paths, err = empty.WriteReproductions(dir)
	assert.NoError(t, err)
	assert.Empty(t, paths)
}

func TestReproductionFileName(t *testing.T) {
	assert.Equal(t, "post-users-userid-orders.sh", ReproductionFileName("POST /users/{userId}/orders"))
	assert.Equal(t, "operation.sh", ReproductionFileName("///"))
}

func TestCassette(t *testing.T) {
	var buf bytes.Buffer
	cassette := NewCassetteWriter(&buf, "kensa run openapi.yaml", 42)
	NewCollector("test").OnEvent(cassette.Handle).Consume(slices.Values(sampleRun()))
	require.NoError(t, cassette.Close())

	var decoded struct {
		Command      string                `yaml:"command"`
		RecordedWith string                `yaml:"recorded_with"`
		Interactions []CassetteInteraction `yaml:"http_interactions"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "kensa run openapi.yaml", decoded.Command)
	assert.Equal(t, "kensa", decoded.RecordedWith)
	require.Len(t, decoded.Interactions, 2)

	first := decoded.Interactions[0]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, decoded.Interactions[1].ID)
	assert.Equal(t, "FAILURE", first.Status)
	assert.Equal(t, int64(42), first.Seed)
	assert.Equal(t, "negative", first.Mode)
	assert.Equal(t, "coverage", first.Phase)
	assert.Equal(t, "limit", first.Meta.Parameter)
	assert.Equal(t, "0.020", first.Elapsed)
	require.Len(t, first.Checks, 2)
	assert.Equal(t, "FAILURE", first.Checks[0].Status)
	assert.Equal(t, "Received 500", first.Checks[0].Message)
	assert.Equal(t, "http://localhost/items?limit=0", first.Request.URI)
	require.NotNil(t, first.Response)
	assert.Equal(t, 500, first.Response.Status.Code)
	assert.Equal(t, "boom", first.Response.Body.String)
	assert.Equal(t, "utf-8", first.Response.Body.Encoding)
}

func TestCassetteBody(t *testing.T) {
	assert.Nil(t, cassetteBody(nil))
	assert.Equal(t, &CassetteBody{Encoding: "utf-8", String: "{}"}, cassetteBody([]byte("{}")))
	assert.Equal(t, &CassetteBody{Encoding: "base64", String: "AP8="}, cassetteBody([]byte{0x00, 0xff}))
}
