package engine

import (
	"time"

	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/scan/events"
)

// Config controls a run.
type Config struct {
	Workers int `json:"workers" validate:"min=1,max=64"`
	// MaxFailures stops the run after that many failed or errored
	// scenarios. Zero means no limit.
	MaxFailures int   `json:"max_failures" validate:"min=0"`
	Seed        int64 `json:"seed"`
	// Phases holds the enabled phases.
	Phases            []events.PhaseName `json:"phases" validate:"dive,oneof=probing schema_analysis examples coverage fuzzing stateful"`
	Modes             generation.Modes   `json:"modes" validate:"dive,oneof=positive negative"`
	Checks            []string           `json:"checks"`
	ContinueOnFailure bool               `json:"continue_on_failure"`
	// InferLinks derives links from matching names during schema analysis.
	InferLinks         bool              `json:"infer_links"`
	FuzzingMaxExamples int               `json:"fuzzing_max_examples" validate:"min=1"`
	StatefulMaxSteps   int               `json:"stateful_max_steps" validate:"min=1"`
	BaseURL            string            `json:"base_url" validate:"omitempty,url"`
	Headers            map[string]string `json:"headers"`
	ProbeTimeout       time.Duration     `json:"probe_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Workers:            1,
		Phases:             []events.PhaseName{events.PhaseProbing, events.PhaseExamples, events.PhaseCoverage, events.PhaseFuzzing, events.PhaseStateful},
		Modes:              generation.AllModes(),
		InferLinks:         true,
		FuzzingMaxExamples: 100,
		StatefulMaxSteps:   1,
		ProbeTimeout:       10 * time.Second,
	}
}

func (c Config) phaseEnabled(name events.PhaseName) bool {
	for _, phase := range c.Phases {
		if phase == name {
			return true
		}
	}
	return false
}
