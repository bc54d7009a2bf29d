package db

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// Store persists the events of one run.
type Store struct {
	conn *DatabaseConnection
	run  *Run

	mu     sync.Mutex
	phases map[events.PhaseName]events.Status
	status events.Status
	err    error
}

// StartRun creates the run row that scenarios are attached to.
func (d *DatabaseConnection) StartRun(title string, seed int64, config any) (*Store, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	run, err := d.CreateRun(&Run{
		Title:     title,
		Seed:      seed,
		Config:    datatypes.JSON(raw),
		Status:    "running",
		StartedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &Store{conn: d, run: run, phases: map[events.PhaseName]events.Status{}}, nil
}

func (s *Store) RunID() uuid.UUID {
	return s.run.ID
}

// Handle persists scenario results and run progress. It can be passed to
// report.Collector.OnEvent; write errors are logged and kept for Err.
func (s *Store) Handle(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev := event.(type) {
	case *events.ScenarioFinished:
		s.keep(s.SaveScenario(ev))
	case *events.PhaseFinished:
		s.phases[ev.Phase.Name] = ev.Status
		if ev.Status != events.StatusSkip {
			s.status = s.status.Worse(ev.Status)
		}
	case *events.Interrupted:
		s.status = s.status.Worse(events.StatusInterrupted)
	case *events.FatalError:
		s.status = s.status.Worse(events.StatusError)
	case *events.EngineFinished:
		s.keep(s.finish(ev.RunningTime))
	}
}

func (s *Store) keep(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

// SaveScenario stores one finished scenario with its unique failures.
func (s *Store) SaveScenario(ev *events.ScenarioFinished) error {
	result := &ScenarioResult{
		RunID:      s.run.ID,
		EventID:    ev.ID,
		Phase:      string(ev.Phase),
		Label:      ev.Label,
		Status:     ev.Status.String(),
		SkipReason: ev.SkipReason,
		Elapsed:    ev.Elapsed,
	}
	if ev.Recorder != nil {
		result.CaseCount = len(ev.Recorder.Cases())
		for _, recorded := range ev.Recorder.UniqueFailures() {
			context, err := json.Marshal(recorded.Failure.Context)
			if err != nil {
				return err
			}
			result.Failures = append(result.Failures, FailureRecord{
				Check:       recorded.Failure.Check,
				Title:       recorded.Failure.Title,
				Message:     recorded.Failure.Message,
				Context:     datatypes.JSON(context),
				CaseID:      recorded.CaseID,
				CodeSample:  recorded.CodeSample,
				Occurrences: recorded.Occurrences,
			})
		}
	}
	_, err := s.conn.CreateScenarioResult(result)
	return err
}

func (s *Store) finish(runningTime time.Duration) error {
	phases := make(map[string]string, len(s.phases))
	for name, status := range s.phases {
		phases[string(name)] = status.String()
	}
	raw, err := json.Marshal(phases)
	if err != nil {
		return err
	}
	now := time.Now()
	s.run.Phases = datatypes.JSON(raw)
	s.run.Status = s.status.String()
	s.run.FinishedAt = &now
	s.run.RunningTime = runningTime
	log.Debug().Str("run", s.run.ID.String()).Str("status", s.run.Status).Msg("Saving run outcome")
	return s.conn.UpdateRun(s.run)
}

// SetExitCode records the process exit code of the run.
func (s *Store) SetExitCode(code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.ExitCode = code
	return s.conn.UpdateRun(s.run)
}

// Err returns the first persistence error, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
