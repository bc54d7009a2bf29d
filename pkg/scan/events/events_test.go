package events

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pyneda/kensa/pkg/schema"
	"github.com/pyneda/kensa/pkg/transport"
)

func TestStatusWorse(t *testing.T) {
	tests := []struct {
		a, b, want Status
	}{
		{StatusSuccess, StatusFailure, StatusFailure},
		{StatusFailure, StatusSuccess, StatusFailure},
		{StatusFailure, StatusError, StatusError},
		{StatusError, StatusInterrupted, StatusInterrupted},
		{StatusInterrupted, StatusSkip, StatusSkip},
		{StatusSuccess, StatusSuccess, StatusSuccess},
	}
	for _, tt := range tests {
		if got := tt.a.Worse(tt.b); got != tt.want {
			t.Errorf("%s.Worse(%s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, status := range []Status{StatusSuccess, StatusFailure, StatusError, StatusInterrupted, StatusSkip} {
		parsed, ok := ParseStatus(status.String())
		if !ok || parsed != status {
			t.Errorf("ParseStatus(%q) = %v, %v", status.String(), parsed, ok)
		}
	}
	if _, ok := ParseStatus("passed"); ok {
		t.Error("expected unknown status to fail")
	}
	if Status(42).String() != "unknown" {
		t.Errorf("unexpected name for out of range status: %s", Status(42))
	}
}

func TestPhase(t *testing.T) {
	phase := NewPhase(PhaseCoverage, true, false)
	if phase.ShouldExecute() || phase.SkipReason != SkipDisabled {
		t.Fatalf("disabled phase: %+v", phase)
	}
	phase.Enable()
	if !phase.ShouldExecute() || phase.SkipReason != "" {
		t.Fatalf("enabled phase: %+v", phase)
	}
	phase.Skip(SkipFailureLimitReached)
	if phase.ShouldExecute() || phase.SkipReason != SkipFailureLimitReached {
		t.Fatalf("skipped phase: %+v", phase)
	}

	unsupported := NewPhase(PhaseStateful, false, true)
	unsupported.Enable()
	if unsupported.ShouldExecute() || unsupported.SkipReason != SkipNotSupported {
		t.Fatalf("unsupported phase: %+v", unsupported)
	}

	if name, ok := ParsePhaseName("Coverage"); !ok || name != PhaseCoverage {
		t.Errorf("ParsePhaseName(Coverage) = %q, %v", name, ok)
	}
}

func TestErrorTitle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"schema", fmt.Errorf("drawing: %w", schema.ErrUnsatisfiable), "Schema Error"},
		{"timeout", &transport.RequestError{Err: context.DeadlineExceeded}, "Timeout Error"},
		{"network", &transport.RequestError{Err: errors.New("connection refused")}, "Network Error"},
		{"other", errors.New("boom"), "Runtime Error"},
		{"nil", nil, "Unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTitle(tt.err); got != tt.want {
				t.Errorf("ErrorTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbePayload(t *testing.T) {
	var missing *ProbePayload
	if !missing.SupportsNullByteInHeaders() {
		t.Error("no probes should count as supported")
	}
	rejected := &ProbePayload{Probes: []ProbeResult{{Name: NullByteInHeaderProbe, Outcome: ProbeFailure}}}
	if rejected.SupportsNullByteInHeaders() {
		t.Error("rejected probe should count as unsupported")
	}
}

func TestTerminalEvents(t *testing.T) {
	if (&EngineStarted{Base: NewBase()}).IsTerminal() {
		t.Error("EngineStarted is not terminal")
	}
	if !(&EngineFinished{Base: NewBase()}).IsTerminal() {
		t.Error("EngineFinished is terminal")
	}
	a, b := NewBase(), NewBase()
	if a.ID == b.ID {
		t.Error("event ids must be unique")
	}
}
