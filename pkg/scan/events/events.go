// Package events defines what the engine reports while it runs. Every event
// has a unique id and a timestamp; scenario and step events also carry the
// ids of the suite and scenario they belong to.
package events

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/schema"
	"github.com/pyneda/kensa/pkg/scan/recorder"
	"github.com/pyneda/kensa/pkg/transport"
)

type Event interface {
	EventID() uuid.UUID
	EventTime() time.Time
	// IsTerminal reports whether nothing follows the event.
	IsTerminal() bool
}

type Base struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBase() Base {
	return Base{ID: uuid.New(), Timestamp: time.Now()}
}

func (b Base) EventID() uuid.UUID   { return b.ID }
func (b Base) EventTime() time.Time { return b.Timestamp }
func (b Base) IsTerminal() bool     { return false }

type EngineStarted struct {
	Base
}

type PhaseStarted struct {
	Base
	Phase *Phase
}

// PhaseFinished closes a phase. Payload is phase specific: a *ProbePayload
// for probing, an *AnalysisPayload for schema analysis.
type PhaseFinished struct {
	Base
	Phase   *Phase
	Status  Status
	Payload any
}

type SuiteStarted struct {
	Base
	Phase PhaseName
}

// SuiteFinished reuses the id of its SuiteStarted event.
type SuiteFinished struct {
	Base
	Phase  PhaseName
	Status Status
}

type ScenarioStarted struct {
	Base
	Phase   PhaseName
	SuiteID uuid.UUID
	Label   string
	// IsFinal is set for scenarios that end with their last step, like
	// stateful runs.
	IsFinal bool
}

// ScenarioFinished reuses the id of its ScenarioStarted event.
type ScenarioFinished struct {
	Base
	Phase      PhaseName
	SuiteID    uuid.UUID
	Label      string
	Status     Status
	Recorder   *recorder.ScenarioRecorder
	Elapsed    time.Duration
	SkipReason string
}

type StepStarted struct {
	Base
	Phase      PhaseName
	SuiteID    uuid.UUID
	ScenarioID uuid.UUID
}

type StepFinished struct {
	Base
	Phase      PhaseName
	SuiteID    uuid.UUID
	ScenarioID uuid.UUID
	Status     Status
	CaseID     string
	Response   *transport.Response
	Transition *core.Link
}

// NonFatalError is an error tied to one operation or scenario. The run goes on.
type NonFatalError struct {
	Base
	Phase              PhaseName
	Label              string
	Err                error
	RelatedToOperation bool
}

// Title groups errors of the same kind in reports.
func (e *NonFatalError) Title() string {
	return ErrorTitle(e.Err)
}

// FatalError is an engine level error. The engine stops after the current
// phase and still reports EngineFinished.
type FatalError struct {
	Base
	Err error
}

// Interrupted is emitted when the run was stopped from the outside.
type Interrupted struct {
	Base
	Phase PhaseName
}

type EngineFinished struct {
	Base
	RunningTime time.Duration
}

func (e *EngineFinished) IsTerminal() bool { return true }

// ProbeOutcome is the result of one probe.
type ProbeOutcome int

const (
	ProbeSuccess ProbeOutcome = iota
	ProbeFailure
	ProbeError
)

type ProbeResult struct {
	Name    string
	Outcome ProbeOutcome
	Err     error
}

type ProbePayload struct {
	Probes []ProbeResult
}

// SupportsNullByteInHeaders reports whether the server accepted a null byte
// in a header value. Unknown results count as supported.
func (p *ProbePayload) SupportsNullByteInHeaders() bool {
	if p == nil {
		return true
	}
	for _, probe := range p.Probes {
		if probe.Name == NullByteInHeaderProbe && probe.Outcome == ProbeFailure {
			return false
		}
	}
	return true
}

const NullByteInHeaderProbe = "null_byte_in_header"

type AnalysisPayload struct {
	InferredLinks int
}

// ErrorTitle classifies an error for grouping.
func ErrorTitle(err error) string {
	var requestErr *transport.RequestError
	var netErr net.Error
	switch {
	case err == nil:
		return "Unknown error"
	case schema.IsUnfixable(err):
		return "Schema Error"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "Timeout Error"
	case errors.As(err, &requestErr):
		return "Network Error"
	}
	return "Runtime Error"
}
