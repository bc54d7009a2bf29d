package circuitbreaker

import (
	"sync"
	"testing"
)

func TestFailureLimit(t *testing.T) {
	breaker := NewFailureLimit(2)
	if action := breaker.RecordFailure("GET /a", "failure"); action != ActionContinue {
		t.Fatalf("expected continue after first failure, got %s", action)
	}
	breaker.RecordSuccess("GET /b")
	if action := breaker.RecordFailure("GET /c", "error"); action != ActionStop {
		t.Fatalf("expected stop after second failure, got %s", action)
	}
	if action := breaker.RecordFailure("GET /d", "failure"); action != ActionStop {
		t.Fatalf("expected stop to persist, got %s", action)
	}
	if breaker.Failures() != 3 {
		t.Errorf("expected 3 failures, got %d", breaker.Failures())
	}
}

func TestFailureLimitConcurrent(t *testing.T) {
	breaker := NewFailureLimit(50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	stops := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if breaker.RecordFailure("op", "failure") == ActionStop {
				mu.Lock()
				stops++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if stops != 51 {
		t.Errorf("expected 51 stop actions, got %d", stops)
	}
}

func TestUnlimited(t *testing.T) {
	var breaker CircuitBreaker = NewUnlimited()
	for i := 0; i < 10; i++ {
		if breaker.RecordFailure("op", "failure") != ActionContinue {
			t.Fatal("unlimited breaker should never stop")
		}
	}
}
