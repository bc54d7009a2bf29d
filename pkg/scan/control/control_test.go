package control

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestExecutionControl_InitialState(t *testing.T) {
	ctrl := New(context.Background(), 0)
	if ctrl.State() != StateRunning {
		t.Errorf("Expected initial state to be StateRunning, got %v", ctrl.State())
	}
	if ctrl.HasToStop() || ctrl.IsInterrupted() || ctrl.HasReachedFailureLimit() {
		t.Error("A new control should not request a stop")
	}
}

func TestExecutionControl_Stop(t *testing.T) {
	ctrl := New(context.Background(), 0)
	ctrl.Stop()

	if !ctrl.IsStopped() {
		t.Error("Expected run to be stopped")
	}
	if !ctrl.IsInterrupted() {
		t.Error("A manual stop is an interruption")
	}
	select {
	case <-ctrl.Context().Done():
	default:
		t.Error("Expected context to be cancelled")
	}

	// Stopping twice is fine
	ctrl.Stop()
	if ctrl.State() != StateStopped {
		t.Errorf("Expected StateStopped, got %v", ctrl.State())
	}
}

func TestExecutionControl_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctrl := New(parent, 0)
	cancel()

	if !ctrl.HasToStop() {
		t.Error("Expected a cancelled parent to stop the run")
	}
	if ctrl.Checkpoint() {
		t.Error("Checkpoint should return false after cancellation")
	}
}

func TestExecutionControl_FailureLimit(t *testing.T) {
	ctrl := New(context.Background(), 2)

	ctrl.CountFailure("GET /a", "failure")
	if ctrl.HasToStop() {
		t.Fatal("One failure should not stop a run limited to two")
	}
	ctrl.CountSuccess("GET /b")
	ctrl.CountFailure("GET /c", "error")

	if !ctrl.HasReachedFailureLimit() {
		t.Error("Expected the failure limit to be reached")
	}
	if !ctrl.HasToStop() {
		t.Error("Reaching the failure limit has to stop the run")
	}
	if ctrl.IsInterrupted() {
		t.Error("A failure limit stop is not an interruption")
	}
	if ctrl.Failures() != 2 {
		t.Errorf("Expected 2 failures, got %d", ctrl.Failures())
	}
	if err := ctrl.Context().Err(); err != nil {
		t.Errorf("The failure limit must not cancel in-flight requests, got %v", err)
	}
	if ctrl.Checkpoint() {
		t.Error("Checkpoint should return false after the failure limit")
	}
}

func TestExecutionControl_Abort(t *testing.T) {
	ctrl := New(context.Background(), 0)
	ctrl.Abort()

	if !ctrl.IsAborted() || !ctrl.HasToStop() {
		t.Error("Expected an aborted run to stop")
	}
	if ctrl.IsInterrupted() {
		t.Error("An abort is not an interruption")
	}
	if ctrl.Context().Err() == nil {
		t.Error("Expected context to be cancelled")
	}
}

func TestExecutionControl_NoLimit(t *testing.T) {
	ctrl := New(context.Background(), 0)
	for i := 0; i < 100; i++ {
		ctrl.CountFailure("op", "failure")
	}
	if ctrl.HasToStop() {
		t.Error("Without a limit failures never stop the run")
	}
}

func TestExecutionControl_PauseResume(t *testing.T) {
	ctrl := New(context.Background(), 0)
	ctrl.Pause()
	if !ctrl.IsPaused() {
		t.Fatal("Expected run to be paused")
	}

	result := make(chan bool)
	go func() {
		result <- ctrl.Checkpoint()
	}()

	select {
	case <-result:
		t.Fatal("Checkpoint should block while paused")
	case <-time.After(50 * time.Millisecond):
	}

	ctrl.Resume()
	select {
	case ok := <-result:
		if !ok {
			t.Error("Checkpoint should return true after resume")
		}
	case <-time.After(time.Second):
		t.Fatal("Checkpoint did not unblock after resume")
	}
}

func TestExecutionControl_StopWhilePaused(t *testing.T) {
	ctrl := New(context.Background(), 0)
	ctrl.Pause()

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ctrl.Checkpoint()
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	ctrl.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not release paused workers")
	}
	for i, ok := range results {
		if ok {
			t.Errorf("Worker %d should have been told to stop", i)
		}
	}
	ctrl.Pause()
	if ctrl.IsPaused() {
		t.Error("Should not be able to pause a stopped run")
	}
}

func TestExecutionControl_ConcurrentFailures(t *testing.T) {
	ctrl := New(context.Background(), 10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.CountFailure("op", "failure")
			_ = ctrl.HasToStop()
		}()
	}
	wg.Wait()
	if !ctrl.HasReachedFailureLimit() || ctrl.Failures() != 50 {
		t.Errorf("Expected limit reached with 50 failures, got %d", ctrl.Failures())
	}
}
