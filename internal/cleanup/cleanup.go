package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"skimeister/internal/models"
)

// Service prunes history that has aged out: conditions snapshots, forecast
// days in the past and finished scrape runs
type Service struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewService creates a new cleanup service
func NewService(db *gorm.DB, logger *logrus.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// Config holds configuration for cleanup operations
type Config struct {
	SnapshotRetentionDays int  `json:"snapshot_retention_days"`
	RunRetentionDays      int  `json:"run_retention_days"`
	MaxDeletionCount      int  `json:"max_deletion_count"` // safety limit across all tables
	DryRun                bool `json:"dry_run"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		SnapshotRetentionDays: 365,
		RunRetentionDays:      90,
		MaxDeletionCount:      100000,
	}
}

// Result holds the result of a cleanup operation
type Result struct {
	Snapshots  int64     `json:"snapshots"`
	Forecasts  int64     `json:"forecasts"`
	ScrapeRuns int64     `json:"scrape_runs"`
	DryRun     bool      `json:"dry_run"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Total returns the number of rows eligible for deletion
func (r *Result) Total() int64 {
	return r.Snapshots + r.Forecasts + r.ScrapeRuns
}

type target struct {
	model any
	where string
	args  []any
	count *int64
}

// Run deletes expired rows in one transaction. With DryRun set only the
// counts are returned.
func (s *Service) Run(ctx context.Context, cfg Config) (*Result, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	result := &Result{DryRun: cfg.DryRun, ExecutedAt: now}

	targets := []target{
		{&models.ConditionsSnapshot{}, "snapshot_date < ?", []any{today.AddDate(0, 0, -cfg.SnapshotRetentionDays)}, &result.Snapshots},
		{&models.Forecast{}, "date < ?", []any{today}, &result.Forecasts},
		{&models.ScrapeRun{}, "status <> ? AND started_at < ?", []any{models.ScrapeRunRunning, today.AddDate(0, 0, -cfg.RunRetentionDays)}, &result.ScrapeRuns},
	}

	db := s.db.WithContext(ctx)
	for _, t := range targets {
		if err := db.Model(t.model).Where(t.where, t.args...).Count(t.count).Error; err != nil {
			return nil, fmt.Errorf("failed to count expired rows: %w", err)
		}
	}

	log := s.logger.WithFields(logrus.Fields{
		"component":   "cleanup",
		"snapshots":   result.Snapshots,
		"forecasts":   result.Forecasts,
		"scrape_runs": result.ScrapeRuns,
		"dry_run":     cfg.DryRun,
	})

	if result.Total() == 0 {
		log.Debug("nothing to clean up")
		return result, nil
	}

	// Safety check: abort if too many rows would be deleted
	if cfg.MaxDeletionCount > 0 && result.Total() > int64(cfg.MaxDeletionCount) {
		return nil, fmt.Errorf("safety check failed: %d rows exceed max deletion limit of %d",
			result.Total(), cfg.MaxDeletionCount)
	}

	if cfg.DryRun {
		log.Info("cleanup dry run")
		return result, nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, t := range targets {
			if err := tx.Where(t.where, t.args...).Delete(t.model).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup failed: %w", err)
	}

	log.Info("cleanup completed")
	return result, nil
}
