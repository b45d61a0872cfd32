package database

import (
	"context"

	"skimeister/internal/models"
)

// CreateScrapeRun inserts a new run record
func (gdb *GormDB) CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	return gdb.db.WithContext(ctx).Create(run).Error
}

// UpdateScrapeRun persists counters and status of a run
func (gdb *GormDB) UpdateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	return gdb.db.WithContext(ctx).Save(run).Error
}

// RecentScrapeRuns returns the latest runs, newest first
func (gdb *GormDB) RecentScrapeRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.ScrapeRun
	err := gdb.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
