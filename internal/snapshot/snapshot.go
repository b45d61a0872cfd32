package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"skimeister/internal/models"
)

// Service records one conditions snapshot per resort and day
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new snapshot service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Change is a notable difference against the previous day's snapshot
type Change struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Record stores today's snapshot of cond for a resort, replacing an earlier
// one taken the same day
func (s *Service) Record(ctx context.Context, resortID uint, cond *models.Conditions) (*models.ConditionsSnapshot, error) {
	if cond == nil {
		return nil, errors.New("snapshot: no conditions to record")
	}
	snapshot := &models.ConditionsSnapshot{
		ResortID:          resortID,
		SnapshotDate:      day(s.now()),
		SnowDepthValley:   cond.SnowDepthValley,
		SnowDepthMountain: cond.SnowDepthMountain,
		FreshSnow24h:      cond.FreshSnow24h,
		SlopesOpenKm:      cond.SlopesOpenKm,
		LiftsOpen:         cond.LiftsOpen,
		Status:            cond.Status,
	}

	// Check if snapshot already exists for today
	var existing models.ConditionsSnapshot
	result := s.db.WithContext(ctx).
		Where("resort_id = ? AND snapshot_date = ?", resortID, snapshot.SnapshotDate).
		First(&existing)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
			return nil, fmt.Errorf("failed to create snapshot: %w", err)
		}
		return snapshot, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	// Update existing snapshot
	snapshot.ID = existing.ID
	snapshot.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(snapshot).Error; err != nil {
		return nil, fmt.Errorf("failed to update snapshot: %w", err)
	}
	return snapshot, nil
}

// DetectChanges compares cond with the most recent snapshot taken before
// today. A resort without history has no changes.
func (s *Service) DetectChanges(ctx context.Context, resortID uint, cond *models.Conditions) ([]Change, error) {
	var last models.ConditionsSnapshot
	result := s.db.WithContext(ctx).
		Where("resort_id = ? AND snapshot_date < ?", resortID, day(s.now())).
		Order("snapshot_date DESC").
		First(&last)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	changes := []Change{}
	if cond.Status != last.Status {
		changes = append(changes, Change{
			Field:    "status",
			OldValue: string(last.Status),
			NewValue: string(cond.Status),
		})
	}
	if cond.SnowDepthMountain != last.SnowDepthMountain {
		changes = append(changes, Change{
			Field:    "snow_depth_mountain",
			OldValue: fmt.Sprintf("%d", last.SnowDepthMountain),
			NewValue: fmt.Sprintf("%d", cond.SnowDepthMountain),
		})
	}
	if cond.SlopesOpenKm != last.SlopesOpenKm {
		changes = append(changes, Change{
			Field:    "slopes_open_km",
			OldValue: fmt.Sprintf("%.1f", last.SlopesOpenKm),
			NewValue: fmt.Sprintf("%.1f", cond.SlopesOpenKm),
		})
	}
	return changes, nil
}

// History returns the snapshots of the last days days, oldest first
func (s *Service) History(ctx context.Context, resortID uint, days int) ([]models.ConditionsSnapshot, error) {
	if days < 1 {
		days = 1
	}
	since := day(s.now()).AddDate(0, 0, -(days - 1))

	snapshots := []models.ConditionsSnapshot{}
	err := s.db.WithContext(ctx).
		Where("resort_id = ? AND snapshot_date >= ?", resortID, since).
		Order("snapshot_date ASC").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
