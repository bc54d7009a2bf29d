package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/schema"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/pyneda/kensa/pkg/scan/recorder"
	"github.com/pyneda/kensa/pkg/scan/worker"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/rs/zerolog/log"
)

// statefulTask follows one link per task: a source case is sent, the linked
// values are taken from its response and fed into a target case.
func (e *Engine) statefulTask(runner *worker.Runner, suite events.Base) worker.TaskFunc {
	return func(task worker.Task, emit func(events.Event)) {
		e.runLink(runner, suite, task, emit)
	}
}

type stepOutcome struct {
	status events.Status
	// stop ends the scenario after the step.
	stop bool
}

func (e *Engine) runLink(runner *worker.Runner, suite events.Base, task worker.Task, emit func(events.Event)) {
	label := task.Label()
	start := time.Now()
	scenario := &events.ScenarioStarted{Base: events.NewBase(), Phase: events.PhaseStateful, SuiteID: suite.ID, Label: label, IsFinal: true}
	emit(scenario)
	rec := recorder.New(label)
	status := events.StatusSuccess
	executed := 0
	skipReason := ""

	source, target, err := e.resolveLink(task.Link)
	if err != nil {
		emit(&events.NonFatalError{Base: events.NewBase(), Phase: events.PhaseStateful, Label: label, Err: err})
		status = events.StatusError
	}

	for step := 0; err == nil && step < e.config.StatefulMaxSteps; step++ {
		if !runner.Control.Checkpoint() {
			if runner.Control.IsInterrupted() {
				status = status.Worse(events.StatusInterrupted)
			}
			break
		}
		seed := e.config.Seed + int64(step)*2
		sourceCase, genErr := e.positiveCase(source, seed)
		if genErr != nil || sourceCase == nil {
			if genErr != nil {
				emit(&events.NonFatalError{Base: events.NewBase(), Phase: events.PhaseStateful, Label: label, Err: genErr, RelatedToOperation: true})
				status = status.Worse(events.StatusError)
			}
			break
		}
		outcome := e.runStep(runner, rec, scenario, suite, "", nil, sourceCase, label, emit)
		executed++
		status = status.Worse(outcome.status)
		if outcome.stop {
			break
		}

		resp := rec.FindResponse(sourceCase.ID)
		if resp == nil || !statusMatches(task.Link.Status, resp.StatusCode) {
			if resp != nil {
				skipReason = fmt.Sprintf("%s returned %d, the link expects %s", source.Label(), resp.StatusCode, task.Link.Status)
			}
			continue
		}
		targetCase, linkErr := e.linkedCase(task.Link, target, sourceCase, resp, seed+1)
		if linkErr != nil {
			log.Debug().Err(linkErr).Str("link", label).Msg("Could not apply link")
			skipReason = linkErr.Error()
			continue
		}
		outcome = e.runStep(runner, rec, scenario, suite, sourceCase.ID, task.Link, targetCase, label, emit)
		executed++
		status = status.Worse(outcome.status)
		if outcome.stop {
			break
		}
	}

	if executed == 0 && status == events.StatusSuccess {
		status = events.StatusSkip
		if skipReason == "" {
			skipReason = worker.NoCasesReason
		}
	}
	switch status {
	case events.StatusFailure, events.StatusError:
		runner.Control.CountFailure(label, status.String())
	case events.StatusSuccess:
		runner.Control.CountSuccess(label)
	}
	emit(&events.ScenarioFinished{
		Base:       events.Base{ID: scenario.ID, Timestamp: time.Now()},
		Phase:      events.PhaseStateful,
		SuiteID:    suite.ID,
		Label:      label,
		Status:     status,
		Recorder:   rec,
		Elapsed:    time.Since(start),
		SkipReason: skipReason,
	})
}

func (e *Engine) runStep(runner *worker.Runner, rec *recorder.ScenarioRecorder, scenario *events.ScenarioStarted, suite events.Base, parentID string, transition *core.Link, c *cases.Case, label string, emit func(events.Event)) stepOutcome {
	step := &events.StepStarted{Base: events.NewBase(), Phase: events.PhaseStateful, SuiteID: suite.ID, ScenarioID: scenario.ID}
	emit(step)
	resp, failures, err := runner.ExecuteCase(runner.Control.Context(), rec, parentID, transition, c)

	outcome := stepOutcome{status: events.StatusSuccess}
	switch {
	case err != nil:
		outcome = stepOutcome{status: events.StatusError, stop: true}
		if runner.Control.IsInterrupted() {
			outcome.status = events.StatusInterrupted
		}
	case len(failures) > 0:
		outcome = stepOutcome{status: events.StatusFailure, stop: !runner.ContinueOnFailure}
	}
	emit(&events.StepFinished{
		Base:       events.Base{ID: step.ID, Timestamp: time.Now()},
		Phase:      events.PhaseStateful,
		SuiteID:    suite.ID,
		ScenarioID: scenario.ID,
		Status:     outcome.status,
		CaseID:     c.ID,
		Response:   resp,
		Transition: transition,
	})
	if outcome.status == events.StatusError {
		emit(&events.NonFatalError{Base: events.NewBase(), Phase: events.PhaseStateful, Label: label, Err: err, RelatedToOperation: true})
	}
	return outcome
}

// positiveCase draws one positive case for op.
func (e *Engine) positiveCase(op *core.Operation, seed int64) (*cases.Case, error) {
	for c, err := range cases.FuzzCases(op, generation.Modes{generation.Positive}, seed, 1, e.validator) {
		if err != nil {
			return nil, err
		}
		c.Meta.Phase.Name = cases.PhaseStateful
		return c, nil
	}
	return nil, nil
}

// linkedCase draws a target case and overrides the linked parameters with
// values taken from the source case and its response.
func (e *Engine) linkedCase(link *core.Link, target *core.Operation, sourceCase *cases.Case, resp *transport.Response, seed int64) (*cases.Case, error) {
	c, err := e.positiveCase(target, seed)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("no case could be generated for %s", target.Label())
	}
	expressions := ExpressionContext{Case: sourceCase, Response: resp}
	for _, name := range schema.SortedKeys(link.Parameters) {
		location, param, ok := parameterTarget(target, name)
		if !ok {
			return nil, fmt.Errorf("link %s: %s has no parameter %q", link.Name, target.Label(), name)
		}
		value, err := expressions.Evaluate(link.Parameters[name])
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", link.Name, err)
		}
		c.SetParameter(location, param, value, e.validator)
	}
	return c, nil
}

// resolveLink finds the operations at both ends of a link. Targets are
// referenced by operationId, by label, or by an operationRef such as
// "#/paths/~1users~1{id}/get".
func (e *Engine) resolveLink(link *core.Link) (*core.Operation, *core.Operation, error) {
	set := e.spec.Operations
	source := set.GetByReference(link.Source)
	if source == nil {
		return nil, nil, fmt.Errorf("link %s: source operation %q not found", link.Name, link.Source)
	}
	target := set.GetByReference(link.Target)
	if target == nil {
		if path, method, ok := parseOperationRef(link.Target); ok {
			target = set.GetByPathAndMethod(path, method)
		}
	}
	if target == nil {
		return nil, nil, fmt.Errorf("link %s: target operation %q not found", link.Name, link.Target)
	}
	return source, target, nil
}

func parseOperationRef(ref string) (string, string, bool) {
	_, fragment, ok := strings.Cut(ref, "#/paths/")
	if !ok {
		return "", "", false
	}
	idx := strings.LastIndex(fragment, "/")
	if idx < 0 {
		return "", "", false
	}
	path := strings.ReplaceAll(strings.ReplaceAll(fragment[:idx], "~1", "/"), "~0", "~")
	return path, fragment[idx+1:], true
}

// parameterTarget splits a link parameter name such as "path.id" into its
// location and name. Unqualified names are looked up on the operation.
func parameterTarget(op *core.Operation, name string) (core.ParameterLocation, string, bool) {
	if prefix, rest, ok := strings.Cut(name, "."); ok {
		location := core.ParameterLocation(prefix)
		if location.IsValid() && location != core.ParameterLocationBody {
			return location, rest, true
		}
	}
	for _, param := range op.Parameters {
		if param.Name == name {
			return param.Location, param.Name, true
		}
	}
	return "", "", false
}
