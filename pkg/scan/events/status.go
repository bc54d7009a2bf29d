package events

import "strings"

// Status is the outcome of a scenario, suite or phase. Statuses are ordered
// by severity so a roll-up keeps the worst one.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusError
	StatusInterrupted
	StatusSkip
)

var statusNames = [...]string{
	StatusSuccess:     "success",
	StatusFailure:     "failure",
	StatusError:       "error",
	StatusInterrupted: "interrupted",
	StatusSkip:        "skip",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worse returns the more severe of two statuses.
func (s Status) Worse(other Status) Status {
	if other > s {
		return other
	}
	return s
}

func ParseStatus(value string) (Status, bool) {
	for i, name := range statusNames {
		if strings.EqualFold(name, value) {
			return Status(i), true
		}
	}
	return 0, false
}

type PhaseName string

const (
	PhaseProbing        PhaseName = "probing"
	PhaseSchemaAnalysis PhaseName = "schema_analysis"
	PhaseExamples       PhaseName = "examples"
	PhaseCoverage       PhaseName = "coverage"
	PhaseFuzzing        PhaseName = "fuzzing"
	PhaseStateful       PhaseName = "stateful"
)

// PhaseNames lists every phase in execution order.
var PhaseNames = []PhaseName{
	PhaseProbing,
	PhaseSchemaAnalysis,
	PhaseExamples,
	PhaseCoverage,
	PhaseFuzzing,
	PhaseStateful,
}

func (p PhaseName) Title() string {
	switch p {
	case PhaseProbing:
		return "API probing"
	case PhaseSchemaAnalysis:
		return "Schema analysis"
	case PhaseExamples:
		return "Examples"
	case PhaseCoverage:
		return "Coverage"
	case PhaseFuzzing:
		return "Fuzzing"
	case PhaseStateful:
		return "Stateful"
	}
	return string(p)
}

func ParsePhaseName(value string) (PhaseName, bool) {
	for _, name := range PhaseNames {
		if strings.EqualFold(string(name), value) {
			return name, true
		}
	}
	return "", false
}

type PhaseSkipReason string

const (
	SkipDisabled            PhaseSkipReason = "disabled"
	SkipNotSupported        PhaseSkipReason = "not_supported"
	SkipNotApplicable       PhaseSkipReason = "not_applicable"
	SkipFailureLimitReached PhaseSkipReason = "failure_limit_reached"
	SkipNothingToTest       PhaseSkipReason = "nothing_to_test"
)

// Phase is one step of the execution plan.
type Phase struct {
	Name        PhaseName       `json:"name"`
	IsSupported bool            `json:"is_supported"`
	IsEnabled   bool            `json:"is_enabled"`
	SkipReason  PhaseSkipReason `json:"skip_reason,omitempty"`
}

func NewPhase(name PhaseName, supported, enabled bool) *Phase {
	p := &Phase{Name: name, IsSupported: supported, IsEnabled: enabled}
	switch {
	case !supported:
		p.SkipReason = SkipNotSupported
	case !enabled:
		p.SkipReason = SkipDisabled
	}
	return p
}

// Enable turns a phase on when the definition supports it.
func (p *Phase) Enable() {
	if !p.IsSupported {
		return
	}
	p.IsEnabled = true
	p.SkipReason = ""
}

func (p *Phase) Skip(reason PhaseSkipReason) {
	p.IsEnabled = false
	p.SkipReason = reason
}

func (p *Phase) ShouldExecute() bool {
	return p.IsSupported && p.IsEnabled
}
