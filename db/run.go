package db

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BaseUUIDModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (base *BaseUUIDModel) BeforeCreate(tx *gorm.DB) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	return nil
}

// Run is one engine execution against an API definition.
type Run struct {
	BaseUUIDModel
	Title       string         `gorm:"index" json:"title"`
	Seed        int64          `json:"seed"`
	Config      datatypes.JSON `json:"config"`
	Phases      datatypes.JSON `json:"phases"`
	Status      string         `gorm:"index" json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	RunningTime time.Duration  `json:"running_time"`
	ExitCode    int            `json:"exit_code"`

	Scenarios []ScenarioResult `gorm:"constraint:OnDelete:CASCADE" json:"scenarios,omitempty"`
}

func (r Run) TableHeaders() []string {
	return []string{"ID", "Title", "Status", "Started", "Duration", "Exit code"}
}

func (r Run) TableRow() []string {
	return []string{
		r.ID.String()[:8],
		r.Title,
		r.Status,
		r.StartedAt.Format(time.RFC3339),
		r.RunningTime.Round(time.Millisecond).String(),
		fmt.Sprintf("%d", r.ExitCode),
	}
}

func (r Run) String() string {
	return fmt.Sprintf("ID: %s, Title: %s, Status: %s", r.ID.String()[:8], r.Title, r.Status)
}

func (r Run) Pretty() string {
	label := color.New(color.FgBlue).SprintFunc()
	return fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %s\n%s %d\n",
		label("ID:"), r.ID.String()[:8],
		label("Title:"), r.Title,
		label("Status:"), r.Status,
		label("Duration:"), r.RunningTime.Round(time.Millisecond),
		label("Seed:"), r.Seed,
	)
}

const (
	maxPageSize     = 1000
	defaultPageSize = 25
)

// Pagination used to store pagination config
type Pagination struct {
	Page     int
	PageSize int
}

func (p *Pagination) GetData() (offset int, limit int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	switch {
	case p.PageSize > maxPageSize:
		p.PageSize = maxPageSize
	case p.PageSize <= 0:
		p.PageSize = defaultPageSize
	}
	return (p.Page - 1) * p.PageSize, p.PageSize
}

type RunFilter struct {
	Title      string
	Status     string
	Pagination Pagination
}

func (d *DatabaseConnection) CreateRun(run *Run) (*Run, error) {
	result := d.db.Create(run)
	if result.Error != nil {
		log.Error().Err(result.Error).Str("title", run.Title).Msg("Run creation failed")
	}
	return run, result.Error
}

func (d *DatabaseConnection) UpdateRun(run *Run) error {
	result := d.db.Save(run)
	if result.Error != nil {
		log.Error().Err(result.Error).Str("id", run.ID.String()).Msg("Run update failed")
	}
	return result.Error
}

// GetRun loads a run with its scenarios and their failures.
func (d *DatabaseConnection) GetRun(id uuid.UUID) (*Run, error) {
	var run Run
	err := d.db.Preload("Scenarios", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Preload("Scenarios.Failures").First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (d *DatabaseConnection) ListRuns(filter RunFilter) ([]*Run, int64, error) {
	query := d.db.Model(&Run{})
	if filter.Title != "" {
		query = query.Where("title = ?", filter.Title)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	offset, limit := filter.Pagination.GetData()
	var runs []*Run
	err := query.Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	return runs, count, err
}
