// Package engine runs the test phases of a loaded API definition and
// reports progress as a stream of events.
package engine

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/api/openapi"
	"github.com/pyneda/kensa/pkg/checks"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/schema"
	"github.com/pyneda/kensa/pkg/scan/control"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/pyneda/kensa/pkg/scan/worker"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/rs/zerolog/log"
)

// WorkerTimeout is how long the engine waits for an event before checking
// whether the workers are done.
const WorkerTimeout = 100 * time.Millisecond

type Engine struct {
	spec      *openapi.Specification
	config    Config
	transport transport.Transport
	checks    []checks.Check
	checkCtx  *checks.Context
	validator *schema.Validator

	probes *events.ProbePayload
}

// New prepares an engine. The transport sends every case; checks are
// resolved from the configured names.
func New(spec *openapi.Specification, config Config, t transport.Transport) (*Engine, error) {
	if spec == nil {
		return nil, fmt.Errorf("no API definition")
	}
	if t == nil {
		return nil, fmt.Errorf("no transport")
	}
	selected, err := checks.Get(config.Checks)
	if err != nil {
		return nil, err
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if len(config.Modes) == 0 {
		config.Modes = generation.AllModes()
	}
	if config.FuzzingMaxExamples < 1 {
		config.FuzzingMaxExamples = DefaultConfig().FuzzingMaxExamples
	}
	if config.StatefulMaxSteps < 1 {
		config.StatefulMaxSteps = 1
	}
	return &Engine{
		spec:      spec,
		config:    config,
		transport: t,
		checks:    selected,
		checkCtx:  checks.NewContext(),
		validator: schema.DefaultValidator,
	}, nil
}

// Plan returns the phases in execution order.
func (e *Engine) Plan() []*events.Phase {
	stateful := e.spec.SupportsFeature(openapi.FeatureStateful)
	statefulEnabled := e.config.phaseEnabled(events.PhaseStateful)

	probing := events.NewPhase(events.PhaseProbing, true, e.config.phaseEnabled(events.PhaseProbing))
	if probing.IsEnabled && e.baseURL() == "" {
		probing.Skip(events.SkipNotApplicable)
	}
	analysis := events.NewPhase(events.PhaseSchemaAnalysis, stateful,
		e.config.phaseEnabled(events.PhaseSchemaAnalysis) || (statefulEnabled && e.config.InferLinks))
	return []*events.Phase{
		probing,
		analysis,
		events.NewPhase(events.PhaseExamples, e.spec.SupportsFeature(openapi.FeatureExamples), e.config.phaseEnabled(events.PhaseExamples)),
		events.NewPhase(events.PhaseCoverage, e.spec.SupportsFeature(openapi.FeatureCoverage), e.config.phaseEnabled(events.PhaseCoverage)),
		events.NewPhase(events.PhaseFuzzing, e.spec.SupportsFeature(openapi.FeatureFuzzing), e.config.phaseEnabled(events.PhaseFuzzing)),
		events.NewPhase(events.PhaseStateful, stateful, statefulEnabled),
	}
}

func (e *Engine) baseURL() string {
	if e.config.BaseURL != "" {
		return e.config.BaseURL
	}
	if e.spec.Operations != nil {
		if e.spec.Operations.BaseURL != "" {
			return e.spec.Operations.BaseURL
		}
		for _, op := range e.spec.Operations.Operations {
			if op.BaseURL != "" {
				return op.BaseURL
			}
		}
	}
	return ""
}

// Execute starts the run. Events are produced as the stream is consumed.
func (e *Engine) Execute(ctx context.Context) *EventStream {
	ctrl := control.New(ctx, e.config.MaxFailures)
	next, stop := iter.Pull(e.run(ctrl))
	return &EventStream{next: next, stop: stop, control: ctrl}
}

func (e *Engine) run(ctrl *control.ExecutionControl) iter.Seq[events.Event] {
	return func(yield func(events.Event) bool) {
		start := time.Now()
		log.Info().Str("definition", e.spec.String()).Int("workers", e.config.Workers).Msg("Starting run")
		if !yield(&events.EngineStarted{Base: events.NewBase()}) {
			return
		}
		for _, phase := range e.Plan() {
			if ctrl.HasReachedFailureLimit() && phase.ShouldExecute() {
				phase.Skip(events.SkipFailureLimitReached)
			}
			if phase.Name == events.PhaseStateful && phase.ShouldExecute() && len(e.links()) == 0 {
				phase.Skip(events.SkipNotApplicable)
			}
			if !yield(&events.PhaseStarted{Base: events.NewBase(), Phase: phase}) {
				return
			}
			if phase.ShouldExecute() {
				if !e.executePhase(phase, ctrl, yield) {
					return
				}
			} else if !yield(&events.PhaseFinished{Base: events.NewBase(), Phase: phase, Status: events.StatusSkip}) {
				return
			}
			if ctrl.IsInterrupted() || ctrl.IsAborted() {
				break
			}
		}
		elapsed := time.Since(start)
		log.Info().Dur("running_time", elapsed).Int64("failures", ctrl.Failures()).Msg("Run finished")
		yield(&events.EngineFinished{Base: events.NewBase(), RunningTime: elapsed})
	}
}

func (e *Engine) executePhase(phase *events.Phase, ctrl *control.ExecutionControl, yield func(events.Event) bool) bool {
	log.Debug().Str("phase", string(phase.Name)).Msg("Executing phase")
	switch phase.Name {
	case events.PhaseProbing:
		return e.runProbing(phase, ctrl, yield)
	case events.PhaseSchemaAnalysis:
		return e.runAnalysis(phase, yield)
	case events.PhaseStateful:
		return e.runUnit(phase, ctrl, worker.LinkTasks(e.links()), e.statefulTask, yield)
	}
	source := e.caseSource(phase.Name)
	tasks := worker.OperationTasks(e.spec)
	return e.runUnit(phase, ctrl, tasks, func(runner *worker.Runner, suiteID events.Base) worker.TaskFunc {
		return runner.Task(phase.Name, suiteID.ID, source)
	}, yield)
}

func (e *Engine) caseSource(phase events.PhaseName) worker.CaseSource {
	switch phase {
	case events.PhaseExamples:
		return func(op *core.Operation) iter.Seq2[*cases.Case, error] {
			return func(yield func(*cases.Case, error) bool) {
				drawer := generation.NewRapidDrawer(e.config.Seed).WithValidator(e.validator)
				generated, err := cases.ExampleCases(op, drawer)
				if err != nil {
					yield(nil, err)
					return
				}
				for _, c := range generated {
					if !yield(c, nil) {
						return
					}
				}
			}
		}
	case events.PhaseCoverage:
		return func(op *core.Operation) iter.Seq2[*cases.Case, error] {
			drawer := generation.NewRapidDrawer(e.config.Seed).WithValidator(e.validator)
			return cases.CoverageCases(op, e.config.Modes, drawer)
		}
	}
	return func(op *core.Operation) iter.Seq2[*cases.Case, error] {
		return cases.FuzzCases(op, e.config.Modes, e.config.Seed, e.config.FuzzingMaxExamples, e.validator)
	}
}

func (e *Engine) runner(ctrl *control.ExecutionControl) *worker.Runner {
	return &worker.Runner{
		Transport:         e.transport,
		Checks:            e.checks,
		CheckContext:      e.checkCtx,
		Control:           ctrl,
		ContinueOnFailure: e.config.ContinueOnFailure,
		SkipNullBytes:     !e.probes.SupportsNullByteInHeaders(),
	}
}

type taskFactory func(runner *worker.Runner, suite events.Base) worker.TaskFunc

// runUnit runs tasks on the worker pool and forwards their events. The
// phase status is the worst scenario status, skipped scenarios aside.
func (e *Engine) runUnit(phase *events.Phase, ctrl *control.ExecutionControl, tasks iter.Seq[worker.Task], factory taskFactory, yield func(events.Event) bool) bool {
	suite := &events.SuiteStarted{Base: events.NewBase(), Phase: phase.Name}
	if !yield(suite) {
		return false
	}

	pool := worker.NewPool(worker.PoolConfig{
		WorkerCount: e.config.Workers,
		Producer:    worker.NewTaskProducer(tasks),
		Control:     ctrl,
		Run:         factory(e.runner(ctrl), suite.Base),
		Phase:       phase.Name,
		Suite:       suite.Base,
	})
	pool.Start()
	defer pool.Close()

	status := events.StatusSuccess
	executed := false
	interrupted := false
	for {
		event, ok := pool.Poll(WorkerTimeout)
		if !ok {
			if ctrl.IsInterrupted() && !interrupted {
				interrupted = true
				if !yield(&events.Interrupted{Base: events.NewBase(), Phase: phase.Name}) {
					return false
				}
			}
			if pool.Finished() {
				break
			}
			continue
		}
		if !yield(event) {
			return false
		}
		if finished, ok := event.(*events.ScenarioFinished); ok && finished.Status != events.StatusSkip {
			executed = true
			status = status.Worse(finished.Status)
		}
	}

	if err := pool.Close(); err != nil {
		ctrl.Abort()
		status = status.Worse(events.StatusError)
		if !yield(&events.FatalError{Base: events.NewBase(), Err: err}) {
			return false
		}
	} else if ctrl.IsInterrupted() {
		status = events.StatusInterrupted
		if !interrupted && !yield(&events.Interrupted{Base: events.NewBase(), Phase: phase.Name}) {
			return false
		}
	} else if !executed {
		status = events.StatusSkip
		phase.Skip(events.SkipNothingToTest)
	}

	if !yield(&events.SuiteFinished{Base: events.Base{ID: suite.ID, Timestamp: time.Now()}, Phase: phase.Name, Status: status}) {
		return false
	}
	return yield(&events.PhaseFinished{Base: events.NewBase(), Phase: phase, Status: status})
}

func (e *Engine) links() []core.Link {
	if e.spec.Operations == nil {
		return nil
	}
	return e.spec.Operations.Links()
}

// EventStream is the consumer side of a run.
type EventStream struct {
	next    func() (events.Event, bool)
	stop    func()
	control *control.ExecutionControl

	mu       sync.Mutex
	finished bool
}

// Next returns the next event, or false after EngineFinished.
func (s *EventStream) Next() (events.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil, false
	}
	event, ok := s.next()
	if !ok {
		s.finished = true
		s.stop()
		return nil, false
	}
	if event.IsTerminal() {
		s.finished = true
		s.stop()
	}
	return event, true
}

// All yields every remaining event.
func (s *EventStream) All() iter.Seq[events.Event] {
	return func(yield func(events.Event) bool) {
		for {
			event, ok := s.Next()
			if !ok || !yield(event) {
				return
			}
		}
	}
}

// Stop interrupts the run. Events keep flowing until EngineFinished.
func (s *EventStream) Stop() {
	s.control.Stop()
}

// Finish stops the run and drains the stream, returning the last event.
func (s *EventStream) Finish() events.Event {
	s.Stop()
	var last events.Event
	for event := range s.All() {
		last = event
	}
	return last
}

// Close abandons the stream without draining it.
func (s *EventStream) Close() {
	s.control.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.stop()
}

// Control exposes pause and resume of the run.
func (s *EventStream) Control() *control.ExecutionControl {
	return s.control
}
