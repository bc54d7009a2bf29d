package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// ScenarioResult is a finished scenario of a run.
type ScenarioResult struct {
	BaseUUIDModel
	RunID      uuid.UUID     `gorm:"type:uuid;index;not null" json:"run_id"`
	EventID    uuid.UUID     `gorm:"type:uuid;uniqueIndex" json:"event_id"`
	Phase      string        `gorm:"index" json:"phase"`
	Label      string        `gorm:"index" json:"label"`
	Status     string        `gorm:"index" json:"status"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	CaseCount  int           `json:"case_count"`

	Failures []FailureRecord `gorm:"foreignKey:ScenarioID;constraint:OnDelete:CASCADE" json:"failures,omitempty"`
}

// FailureRecord is a unique check failure seen in a scenario.
type FailureRecord struct {
	BaseUUIDModel
	ScenarioID  uuid.UUID      `gorm:"type:uuid;index;not null" json:"scenario_id"`
	Check       string         `gorm:"index" json:"check"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Context     datatypes.JSON `json:"context"`
	CaseID      string         `json:"case_id"`
	CodeSample  string         `json:"code_sample"`
	Occurrences int            `json:"occurrences"`
}

// CreateScenarioResult stores a scenario and its failures in one
// transaction.
func (d *DatabaseConnection) CreateScenarioResult(result *ScenarioResult) (*ScenarioResult, error) {
	err := d.db.Create(result).Error
	if err != nil {
		log.Error().Err(err).Str("label", result.Label).Msg("Scenario result creation failed")
	}
	return result, err
}

func (d *DatabaseConnection) FailuresForRun(runID uuid.UUID) ([]*FailureRecord, error) {
	var failures []*FailureRecord
	err := d.db.
		Joins("JOIN scenario_results ON scenario_results.id = failure_records.scenario_id").
		Where("scenario_results.run_id = ?", runID).
		Order("failure_records.created_at ASC").
		Find(&failures).Error
	return failures, err
}
