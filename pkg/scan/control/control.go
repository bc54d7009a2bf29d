// Package control holds the state shared by every worker of a run: the stop
// flag, pause state and failure budget. Checks are lock-free on the hot path
// so workers can call them before every case.
package control

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pyneda/kensa/pkg/scan/circuitbreaker"
	"github.com/rs/zerolog/log"
)

// State represents the current state of a run
type State int

const (
	StateRunning State = iota
	StatePaused
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ExecutionControl manages stop/pause state and the failure limit of a run.
// It is safe for concurrent use by multiple goroutines.
type ExecutionControl struct {
	maxFailures  int
	breaker      circuitbreaker.CircuitBreaker
	failures     atomic.Int64
	stopped      atomic.Bool
	limitReached atomic.Bool
	aborted      atomic.Bool

	mu    sync.Mutex
	state State
	// pauseCond is used to block workers when paused
	pauseCond *sync.Cond

	// ctx is cancelled by Stop, Abort and the parent context, never by the
	// failure limit
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an ExecutionControl in running state. A maxFailures of zero
// disables the failure limit.
func New(parent context.Context, maxFailures int) *ExecutionControl {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	ec := &ExecutionControl{
		maxFailures: maxFailures,
		state:       StateRunning,
		ctx:         ctx,
		cancel:      cancel,
	}
	if maxFailures > 0 {
		ec.breaker = circuitbreaker.NewFailureLimit(maxFailures)
	} else {
		ec.breaker = circuitbreaker.NewUnlimited()
	}
	ec.pauseCond = sync.NewCond(&ec.mu)
	context.AfterFunc(ctx, ec.Stop)
	return ec
}

// Context returns the context for HTTP requests and other cancellable
// operations. Reaching the failure limit does not cancel it, so in-flight
// requests finish.
func (ec *ExecutionControl) Context() context.Context {
	return ec.ctx
}

// MaxFailures returns the configured limit, zero when unlimited.
func (ec *ExecutionControl) MaxFailures() int {
	return ec.maxFailures
}

func (ec *ExecutionControl) State() State {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.state
}

// Stop interrupts the run: the stop flag is set and in-flight requests are
// cancelled.
func (ec *ExecutionControl) Stop() {
	ec.halt()
	ec.cancel()
}

// Abort stops the run after a fatal error. It is not an interruption.
func (ec *ExecutionControl) Abort() {
	ec.aborted.Store(true)
	ec.Stop()
}

// halt stops scheduling new work and leaves in-flight requests alone.
func (ec *ExecutionControl) halt() {
	if ec.stopped.Swap(true) {
		return
	}
	ec.mu.Lock()
	ec.state = StateStopped
	ec.mu.Unlock()
	// Wake up any waiting goroutines so they can exit
	ec.pauseCond.Broadcast()
}

// IsStopped reports whether the run was stopped for any reason.
func (ec *ExecutionControl) IsStopped() bool {
	return ec.stopped.Load() || ec.ctx.Err() != nil
}

// IsInterrupted reports a stop that came from the user, not from the
// failure limit or a fatal error.
func (ec *ExecutionControl) IsInterrupted() bool {
	return ec.IsStopped() && !ec.HasReachedFailureLimit() && !ec.aborted.Load()
}

// IsAborted reports a stop caused by a fatal error.
func (ec *ExecutionControl) IsAborted() bool {
	return ec.aborted.Load()
}

// HasToStop is checked by workers before every new step.
func (ec *ExecutionControl) HasToStop() bool {
	return ec.IsStopped()
}

func (ec *ExecutionControl) HasReachedFailureLimit() bool {
	return ec.limitReached.Load()
}

// Failures returns the number of failed or errored scenarios so far.
func (ec *ExecutionControl) Failures() int64 {
	return ec.failures.Load()
}

// CountFailure records a FAILURE or ERROR scenario. Reaching the limit stops
// the run.
func (ec *ExecutionControl) CountFailure(label, kind string) {
	ec.failures.Add(1)
	if ec.breaker.RecordFailure(label, kind) == circuitbreaker.ActionStop {
		if !ec.limitReached.Swap(true) {
			log.Info().Int("max_failures", ec.maxFailures).Msg("Stopping run after reaching the failure limit")
		}
		ec.halt()
	}
}

// CountSuccess records a scenario that passed.
func (ec *ExecutionControl) CountSuccess(label string) {
	ec.breaker.RecordSuccess(label)
}

// Pause makes Checkpoint block until Resume or Stop.
func (ec *ExecutionControl) Pause() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.state == StateStopped {
		return
	}
	ec.state = StatePaused
}

// Resume unblocks paused workers.
func (ec *ExecutionControl) Resume() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.state != StatePaused {
		return
	}
	ec.state = StateRunning
	ec.pauseCond.Broadcast()
}

func (ec *ExecutionControl) IsPaused() bool {
	return ec.State() == StatePaused
}

// Checkpoint blocks while paused and returns false once the run has to stop.
// Workers call it before each case.
//
//	for c := range generated {
//	    if !ctrl.Checkpoint() {
//	        return
//	    }
//	    run(c)
//	}
func (ec *ExecutionControl) Checkpoint() bool {
	if ec.HasToStop() {
		return false
	}
	ec.mu.Lock()
	for ec.state == StatePaused {
		ec.pauseCond.Wait()
	}
	ec.mu.Unlock()
	return !ec.HasToStop()
}
