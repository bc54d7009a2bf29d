package worker

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pyneda/kensa/pkg/scan/control"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// EventBufferSize is the capacity of the channel shared by all workers.
const EventBufferSize = 256

// TaskFunc runs one task and reports what happens through emit.
type TaskFunc func(task Task, emit func(events.Event))

// Pool runs tasks from a producer on a fixed number of workers. Workers
// share one event channel that the caller drains with Poll.
type Pool struct {
	workerCount int
	producer    *TaskProducer
	control     *control.ExecutionControl
	run         TaskFunc
	phase       events.PhaseName
	suite       events.Base

	events chan events.Event
	quit   chan struct{}
	alive  atomic.Int32
	wg     conc.WaitGroup

	started atomic.Bool
	closed  atomic.Bool
}

// PoolConfig holds pool configuration.
type PoolConfig struct {
	WorkerCount int
	Producer    *TaskProducer
	Control     *control.ExecutionControl
	Run         TaskFunc
	Phase       events.PhaseName
	// Suite is the SuiteStarted event the scenarios belong to.
	Suite events.Base
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Pool{
		workerCount: cfg.WorkerCount,
		producer:    cfg.Producer,
		control:     cfg.Control,
		run:         cfg.Run,
		phase:       cfg.Phase,
		suite:       cfg.Suite,
		events:      make(chan events.Event, EventBufferSize),
		quit:        make(chan struct{}),
	}
}

// Start launches the workers. It is a no-op on a started pool.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	log.Debug().Int("workers", p.workerCount).Str("phase", string(p.phase)).Msg("Starting worker pool")
	p.alive.Store(int32(p.workerCount))
	for i := 0; i < p.workerCount; i++ {
		id := fmt.Sprintf("%s-worker-%d", p.phase, i)
		p.wg.Go(func() { p.work(id) })
	}
}

func (p *Pool) work(id string) {
	defer p.alive.Add(-1)
	log.Debug().Str("worker_id", id).Msg("Worker started")
	for !p.control.HasToStop() {
		task, ok := p.producer.Next()
		if !ok {
			break
		}
		if task.Err != nil {
			p.reportLoadError(task)
			continue
		}
		p.run(task, p.emit)
	}
	log.Debug().Str("worker_id", id).Msg("Worker finished")
}

// reportLoadError emits a complete errored scenario for an operation that
// could not be loaded.
func (p *Pool) reportLoadError(task Task) {
	started := &events.ScenarioStarted{Base: events.NewBase(), Phase: p.phase, SuiteID: p.suite.ID, Label: task.Label()}
	p.emit(started)
	p.emit(&events.NonFatalError{
		Base:               events.NewBase(),
		Phase:              p.phase,
		Label:              task.Label(),
		Err:                task.Err,
		RelatedToOperation: true,
	})
	p.emit(&events.ScenarioFinished{
		Base:    events.Base{ID: started.ID, Timestamp: time.Now()},
		Phase:   p.phase,
		SuiteID: p.suite.ID,
		Label:   task.Label(),
		Status:  events.StatusError,
	})
}

func (p *Pool) emit(e events.Event) {
	select {
	case p.events <- e:
	case <-p.quit:
	}
}

// Poll waits up to timeout for the next event.
func (p *Pool) Poll(timeout time.Duration) (events.Event, bool) {
	select {
	case e := <-p.events:
		return e, true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e := <-p.events:
		return e, true
	case <-timer.C:
		return nil, false
	}
}

// Finished reports whether every worker exited and every event was polled.
func (p *Pool) Finished() bool {
	return p.alive.Load() == 0 && len(p.events) == 0
}

// Close releases workers blocked on emitting, waits for them and returns
// the panic of a crashed worker as an error.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.quit)
	p.producer.Close()
	if recovered := p.wg.WaitAndRecover(); recovered != nil {
		log.Error().Str("panic", fmt.Sprint(recovered.Value)).Msg("Worker crashed")
		return errors.Join(fmt.Errorf("worker crashed"), recovered.AsError())
	}
	return nil
}
