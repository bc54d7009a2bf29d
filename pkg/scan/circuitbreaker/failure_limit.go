package circuitbreaker

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// FailureLimit trips once a fixed number of failed scenarios was recorded.
// Successes do not reset the count.
type FailureLimit struct {
	limit    int64
	failures atomic.Int64
}

func NewFailureLimit(limit int) *FailureLimit {
	return &FailureLimit{limit: int64(limit)}
}

func (f *FailureLimit) RecordSuccess(label string) {}

func (f *FailureLimit) RecordFailure(label string, kind string) Action {
	count := f.failures.Add(1)
	if count == f.limit {
		log.Warn().Str("operation", label).Str("kind", kind).Int64("failures", count).Msg("Failure limit reached")
	}
	if count >= f.limit {
		return ActionStop
	}
	return ActionContinue
}

func (f *FailureLimit) Failures() int64 {
	return f.failures.Load()
}

func (f *FailureLimit) Limit() int64 {
	return f.limit
}
