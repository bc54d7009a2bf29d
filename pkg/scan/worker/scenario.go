package worker

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/checks"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/scan/control"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/pyneda/kensa/pkg/scan/recorder"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/rs/zerolog/log"
)

// NoCasesReason is the skip reason of a scenario that generated nothing.
const NoCasesReason = "No test cases were generated"

// CaseSource generates the cases of one operation for a phase.
type CaseSource func(op *core.Operation) iter.Seq2[*cases.Case, error]

// Runner sends cases and checks the responses.
type Runner struct {
	Transport    transport.Transport
	Checks       []checks.Check
	CheckContext *checks.Context
	Control      *control.ExecutionControl
	// ContinueOnFailure keeps running the cases of a scenario after a
	// failed check.
	ContinueOnFailure bool
	// SkipNullBytes drops cases that carry a NUL byte in a header value.
	SkipNullBytes bool
}

// Task adapts the runner to a pool.
func (r *Runner) Task(phase events.PhaseName, suiteID uuid.UUID, source CaseSource) TaskFunc {
	return func(task Task, emit func(events.Event)) {
		r.RunOperation(phase, suiteID, task.Operation, source, emit)
	}
}

// RunOperation runs every case source yields for op as one scenario.
func (r *Runner) RunOperation(phase events.PhaseName, suiteID uuid.UUID, op *core.Operation, source CaseSource, emit func(events.Event)) events.Status {
	label := op.Label()
	logger := log.With().Str("phase", string(phase)).Str("operation", label).Logger()
	start := time.Now()
	scenario := &events.ScenarioStarted{Base: events.NewBase(), Phase: phase, SuiteID: suiteID, Label: label}
	emit(scenario)

	rec := recorder.New(label)
	status := events.StatusSuccess
	executed := 0
	ctx := r.Control.Context()

	for c, err := range source(op) {
		if err != nil {
			logger.Debug().Err(err).Msg("Case generation failed")
			emit(&events.NonFatalError{Base: events.NewBase(), Phase: phase, Label: label, Err: err, RelatedToOperation: true})
			status = status.Worse(events.StatusError)
			break
		}
		if !r.Control.Checkpoint() {
			if r.Control.IsInterrupted() {
				status = status.Worse(events.StatusInterrupted)
			}
			break
		}
		if r.SkipNullBytes && hasNullByteHeader(c) {
			continue
		}
		executed++

		step := &events.StepStarted{Base: events.NewBase(), Phase: phase, SuiteID: suiteID, ScenarioID: scenario.ID}
		emit(step)
		resp, failures, err := r.ExecuteCase(ctx, rec, "", nil, c)
		stepStatus := events.StatusSuccess
		switch {
		case err != nil:
			stepStatus = events.StatusError
		case len(failures) > 0:
			stepStatus = events.StatusFailure
		}
		emit(&events.StepFinished{
			Base:       events.Base{ID: step.ID, Timestamp: time.Now()},
			Phase:      phase,
			SuiteID:    suiteID,
			ScenarioID: scenario.ID,
			Status:     stepStatus,
			CaseID:     c.ID,
			Response:   resp,
		})

		if err != nil {
			if ctx.Err() != nil && r.Control.IsInterrupted() {
				status = status.Worse(events.StatusInterrupted)
				break
			}
			emit(&events.NonFatalError{Base: events.NewBase(), Phase: phase, Label: label, Err: err, RelatedToOperation: true})
			status = status.Worse(events.StatusError)
			break
		}
		if len(failures) > 0 {
			status = status.Worse(events.StatusFailure)
			if !r.ContinueOnFailure {
				break
			}
		}
	}

	skipReason := ""
	if executed == 0 && status == events.StatusSuccess {
		status = events.StatusSkip
		skipReason = NoCasesReason
	}
	switch status {
	case events.StatusFailure, events.StatusError:
		r.Control.CountFailure(label, status.String())
	case events.StatusSuccess:
		r.Control.CountSuccess(label)
	}
	logger.Debug().Str("status", status.String()).Int("cases", executed).Msg("Scenario finished")

	emit(&events.ScenarioFinished{
		Base:       events.Base{ID: scenario.ID, Timestamp: time.Now()},
		Phase:      phase,
		SuiteID:    suiteID,
		Label:      label,
		Status:     status,
		Recorder:   rec,
		Elapsed:    time.Since(start),
		SkipReason: skipReason,
	})
	return status
}

// ExecuteCase sends one case, records the exchange under parentID and runs
// the checks on the response.
func (r *Runner) ExecuteCase(ctx context.Context, rec *recorder.ScenarioRecorder, parentID string, transition *core.Link, c *cases.Case) (*transport.Response, []*checks.Failure, error) {
	rec.RecordCase(parentID, transition, c)
	resp, err := r.Transport.Call(ctx, c)
	if err != nil {
		var requestErr *transport.RequestError
		if errors.As(err, &requestErr) && requestErr.Request != nil {
			rec.RecordRequest(c.ID, requestErr.Request)
		}
		return nil, nil, err
	}
	rec.RecordResponse(c.ID, resp)

	checkCtx := r.CheckContext
	if checkCtx == nil {
		checkCtx = checks.NewContext()
	}
	failures := checks.Run(checkCtx, c, resp, r.Checks,
		func(name string) {
			rec.RecordCheckSuccess(name, c.ID)
		},
		func(name string, failure *checks.Failure) {
			sample := ""
			if data, err := rec.FindFailureData(c.ID, failure); err == nil {
				sample = rec.CodeSample(data.Case.ID)
			}
			rec.RecordCheckFailure(name, c.ID, sample, failure)
		},
	)
	return resp, failures, nil
}

func hasNullByteHeader(c *cases.Case) bool {
	for _, pair := range c.HeaderValues() {
		if strings.ContainsRune(pair[1], 0) {
			return true
		}
	}
	return false
}
