package models

import (
	"strings"
	"time"
)

// Resort is a ski area with a fixed geographic identity. Conditions, Pricing
// and Forecasts are owned by it and removed with it.
type Resort struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Slug        string   `gorm:"size:200;not null;uniqueIndex" json:"slug"`
	Name        string   `gorm:"size:200;not null;index" json:"name"`
	Country     string   `gorm:"size:100;not null;index" json:"country"`
	Region      string   `gorm:"size:200" json:"region"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	AltitudeMin *int     `json:"altitude_min"`
	AltitudeMax *int     `json:"altitude_max"`
	Website     string   `gorm:"size:500" json:"website"`
	Description string   `gorm:"size:1000" json:"description"`
	SourceURL   string   `gorm:"size:500" json:"source_url"`

	Conditions *Conditions `gorm:"constraint:OnDelete:CASCADE" json:"conditions,omitempty"`
	Pricing    *Pricing    `gorm:"constraint:OnDelete:CASCADE" json:"pricing,omitempty"`
	Forecasts  []Forecast  `gorm:"constraint:OnDelete:CASCADE" json:"forecasts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Resort) TableName() string {
	return "resorts"
}

// HasLocation reports whether both coordinates are known
func (r *Resort) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// ResortStatus is the operating state reported for a resort
type ResortStatus string

const (
	StatusOpen    ResortStatus = "open"
	StatusClosed  ResortStatus = "closed"
	StatusPartial ResortStatus = "partial"
	StatusUnknown ResortStatus = "unknown"
)

// Conditions is the latest snow, weather and slope snapshot of a resort.
// Numeric snow and slope fields use 0 when the source did not report them.
type Conditions struct {
	ID                  uint         `gorm:"primaryKey" json:"-"`
	ResortID            uint         `gorm:"not null;uniqueIndex" json:"-"`
	SnowDepthValley     int          `gorm:"not null;default:0" json:"snow_depth_valley"`
	SnowDepthMountain   int          `gorm:"not null;default:0" json:"snow_depth_mountain"`
	FreshSnow24h        int          `gorm:"column:fresh_snow_24h;not null;default:0" json:"fresh_snow_24h"`
	FreshSnow48h        int          `gorm:"column:fresh_snow_48h;not null;default:0" json:"fresh_snow_48h"`
	TemperatureValley   *float64     `json:"temperature_valley"`
	TemperatureMountain *float64     `json:"temperature_mountain"`
	WindSpeed           int          `gorm:"not null;default:0" json:"wind_speed"`
	Visibility          string       `gorm:"size:50" json:"visibility"`
	SlopesOpenKm        float64      `gorm:"not null;default:0" json:"slopes_open_km"`
	SlopesTotalKm       float64      `gorm:"not null;default:0" json:"slopes_total_km"`
	LiftsOpen           int          `gorm:"not null;default:0" json:"lifts_open"`
	LiftsTotal          int          `gorm:"not null;default:0" json:"lifts_total"`
	Status              ResortStatus `gorm:"size:20;not null;default:'unknown';index" json:"status"`
	LastUpdated         time.Time    `json:"last_updated"`
}

// TableName specifies the table name
func (Conditions) TableName() string {
	return "conditions"
}

// DeriveStatus fills in a missing status from slope and lift counts
func (c *Conditions) DeriveStatus() {
	if c.Status != "" && c.Status != StatusUnknown {
		return
	}
	open, total := c.SlopesOpenKm, c.SlopesTotalKm
	if total == 0 {
		open, total = float64(c.LiftsOpen), float64(c.LiftsTotal)
	}
	switch {
	case total <= 0:
		c.Status = StatusUnknown
	case open <= 0:
		c.Status = StatusClosed
	case open >= total:
		c.Status = StatusOpen
	default:
		c.Status = StatusPartial
	}
}

// Pricing holds day-pass prices. Nil prices are unknown, not free.
type Pricing struct {
	ID           uint       `gorm:"primaryKey" json:"-"`
	ResortID     uint       `gorm:"not null;uniqueIndex" json:"-"`
	AdultDayPass *float64   `json:"adult_day_pass"`
	ChildDayPass *float64   `json:"child_day_pass"`
	Currency     string     `gorm:"size:10;not null;default:'EUR'" json:"currency"`
	SeasonStart  *time.Time `json:"season_start"`
	SeasonEnd    *time.Time `json:"season_end"`
	LastUpdated  time.Time  `json:"last_updated"`
}

// TableName specifies the table name
func (Pricing) TableName() string {
	return "pricing"
}

// DefaultCurrency is the currency assumed for prices scraped without a
// marker: CHF for Swiss resorts, EUR elsewhere
func DefaultCurrency(country string) string {
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "switzerland", "schweiz", "ch":
		return "CHF"
	default:
		return "EUR"
	}
}

// Forecast is a single day of the weather outlook for a resort
type Forecast struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ResortID       uint      `gorm:"not null;uniqueIndex:idx_forecast_resort_date" json:"-"`
	Date           time.Time `gorm:"not null;uniqueIndex:idx_forecast_resort_date" json:"date"`
	TempMax        *float64  `json:"temp_max"`
	TempMin        *float64  `json:"temp_min"`
	Symbol         string    `gorm:"size:50" json:"symbol"`
	SnowForecastCm int       `gorm:"not null;default:0" json:"snow_forecast_cm"`
	LastUpdated    time.Time `json:"last_updated"`
}

// TableName specifies the table name
func (Forecast) TableName() string {
	return "forecasts"
}
