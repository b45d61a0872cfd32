package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"skimeister/internal/config"
	"skimeister/internal/database"
	"skimeister/internal/logging"
	"skimeister/internal/models"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *database.GormDB, uint) {
	t.Helper()
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cleanup.db")},
	}, logging.Discard())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { gdb.Close() })
	if err := gdb.InitSchema(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctx := context.Background()
	day := func(offset int) time.Time {
		return time.Date(2026, 3, 15+offset, 0, 0, 0, 0, time.UTC)
	}
	resort, err := gdb.SaveResortData(ctx, &database.ResortData{
		Resort: models.Resort{Slug: "arosa", Name: "Arosa", Country: "Switzerland"},
		Forecasts: []models.Forecast{
			{Date: day(-2)}, {Date: day(-1)}, {Date: day(0)}, {Date: day(1)},
		},
	})
	if err != nil {
		t.Fatalf("failed to seed resort: %v", err)
	}

	db := gdb.DB()
	for _, offset := range []int{-400, -366, -10, 0} {
		if err := db.Create(&models.ConditionsSnapshot{ResortID: resort.ID, SnapshotDate: day(offset)}).Error; err != nil {
			t.Fatalf("failed to seed snapshot: %v", err)
		}
	}
	runs := []models.ScrapeRun{
		{RunID: "old-done", Status: models.ScrapeRunCompleted, StartedAt: day(-120)},
		{RunID: "old-running", Status: models.ScrapeRunRunning, StartedAt: day(-120)},
		{RunID: "recent", Status: models.ScrapeRunFailed, StartedAt: day(-5)},
	}
	for i := range runs {
		if err := gdb.CreateScrapeRun(ctx, &runs[i]); err != nil {
			t.Fatalf("failed to seed run: %v", err)
		}
	}

	svc := NewService(db, logging.Discard())
	svc.now = func() time.Time { return now }
	return svc, gdb, resort.ID
}

func TestRunDryRunCountsOnly(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	cfg := DefaultConfig()
	cfg.DryRun = true
	result, err := svc.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Snapshots != 2 || result.Forecasts != 2 || result.ScrapeRuns != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}

	var snapshots int64
	gdb.DB().Model(&models.ConditionsSnapshot{}).Count(&snapshots)
	if snapshots != 4 {
		t.Fatalf("expected dry run to keep all snapshots, got %d", snapshots)
	}
}

func TestRunDeletesExpiredRows(t *testing.T) {
	svc, gdb, resortID := newTestService(t)

	result, err := svc.Run(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total() != 5 {
		t.Fatalf("expected 5 rows deleted, got %d", result.Total())
	}

	resort, err := gdb.GetResort(context.Background(), resortID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resort.Forecasts) != 2 {
		t.Fatalf("expected today and tomorrow to remain, got %d forecasts", len(resort.Forecasts))
	}

	runs, _ := gdb.RecentScrapeRuns(context.Background(), 10)
	if len(runs) != 2 {
		t.Fatalf("expected running and recent runs to remain, got %d", len(runs))
	}
	for _, r := range runs {
		if r.RunID == "old-done" {
			t.Fatalf("expected old finished run to be deleted")
		}
	}
}

func TestRunSafetyLimit(t *testing.T) {
	svc, _, _ := newTestService(t)

	cfg := DefaultConfig()
	cfg.MaxDeletionCount = 3
	if _, err := svc.Run(context.Background(), cfg); err == nil {
		t.Fatalf("expected safety check error")
	}
}
