package models

import "time"

// ConditionsSnapshot records one day of conditions for a resort
type ConditionsSnapshot struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	ResortID          uint         `gorm:"not null;uniqueIndex:idx_snapshot_resort_date" json:"resort_id"`
	SnapshotDate      time.Time    `gorm:"not null;uniqueIndex:idx_snapshot_resort_date;index" json:"snapshot_date"`
	SnowDepthValley   int          `json:"snow_depth_valley"`
	SnowDepthMountain int          `json:"snow_depth_mountain"`
	FreshSnow24h      int          `gorm:"column:fresh_snow_24h" json:"fresh_snow_24h"`
	SlopesOpenKm      float64      `json:"slopes_open_km"`
	LiftsOpen         int          `json:"lifts_open"`
	Status            ResortStatus `gorm:"size:20" json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TableName specifies the table name
func (ConditionsSnapshot) TableName() string {
	return "conditions_snapshots"
}
