package models

import "time"

// RunStatus is the outcome of a reconciliation run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeMeta is the tracking record of one run against one scope.
// FinishedAt is nil while the run is in flight; once set the row is frozen.
type ScrapeMeta struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string      `gorm:"type:varchar(32);not null;uniqueIndex" json:"run_id"`
	City        string      `gorm:"type:varchar(100);index" json:"city"`
	ListingType ListingType `gorm:"type:varchar(10)" json:"listing_type"`
	Status      RunStatus   `gorm:"type:varchar(20);not null;default:'running';index" json:"status"`

	StartedAt  time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	ListingsFound    int `gorm:"not null;default:0" json:"listings_found"`
	ListingsNew      int `gorm:"not null;default:0" json:"listings_new"`
	ListingsUpdated  int `gorm:"not null;default:0" json:"listings_updated"`
	ListingsInactive int `gorm:"not null;default:0" json:"listings_inactive"`
	ValidationErrors int `gorm:"not null;default:0" json:"validation_errors"`
	DBErrors         int `gorm:"column:db_errors;not null;default:0" json:"db_errors"`
	Errors           int `gorm:"not null;default:0" json:"errors"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName specifies the table name
func (ScrapeMeta) TableName() string {
	return "scrape_meta"
}

// InProgress reports whether the run has not been finalized yet
func (m *ScrapeMeta) InProgress() bool {
	return m.FinishedAt == nil
}
