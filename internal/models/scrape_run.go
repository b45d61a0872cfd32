package models

import "time"

// ScrapeRunStatus is the lifecycle state of a scrape run
type ScrapeRunStatus string

const (
	ScrapeRunRunning   ScrapeRunStatus = "running"
	ScrapeRunCompleted ScrapeRunStatus = "completed"
	ScrapeRunFailed    ScrapeRunStatus = "failed"
)

// ScrapeRun tracks one pass of the scraper over the configured countries
type ScrapeRun struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	RunID          string          `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	Trigger        string          `gorm:"size:20;not null" json:"trigger"`
	Status         ScrapeRunStatus `gorm:"size:20;not null;index" json:"status"`
	StartedAt      time.Time       `gorm:"not null;index" json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	ResortsFound   int             `gorm:"not null;default:0" json:"resorts_found"`
	ResortsScraped int             `gorm:"not null;default:0" json:"resorts_scraped"`
	ResortsFailed  int             `gorm:"not null;default:0" json:"resorts_failed"`
	ErrorSummary   string          `gorm:"type:text" json:"error_summary,omitempty"`
}

// TableName specifies the table name
func (ScrapeRun) TableName() string {
	return "scrape_runs"
}

// Duration returns how long the run took, or zero while it is running
func (r *ScrapeRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
