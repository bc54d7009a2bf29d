package circuitbreaker

// Action tells the caller what to do after a scenario outcome was recorded.
type Action int

const (
	ActionContinue Action = iota
	// ActionStop means no new work may be scheduled.
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// CircuitBreaker decides when a run has seen enough failed scenarios.
// label is the operation label, kind is "failure" or "error".
type CircuitBreaker interface {
	RecordSuccess(label string)
	RecordFailure(label string, kind string) Action
}

// Unlimited never trips. It backs runs without max_failures.
type Unlimited struct{}

func NewUnlimited() *Unlimited {
	return &Unlimited{}
}

func (Unlimited) RecordSuccess(label string) {}

func (Unlimited) RecordFailure(label string, kind string) Action {
	return ActionContinue
}
