package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"skimeister/internal/models"
)

// ResortData is one normalized scrape result for a resort, keyed by slug
type ResortData struct {
	Resort     models.Resort
	Conditions *models.Conditions
	Pricing    *models.Pricing
	Forecasts  []models.Forecast
}

// withDetails preloads the owned rows of a resort, forecasts in date order
func withDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Conditions").
		Preload("Pricing").
		Preload("Forecasts", func(db *gorm.DB) *gorm.DB {
			return db.Order("date ASC")
		})
}

// ListResorts returns every resort with its details, optionally restricted
// to a country (case-insensitive). Rows are ordered by id.
func (gdb *GormDB) ListResorts(ctx context.Context, country string) ([]models.Resort, error) {
	query := withDetails(gdb.db.WithContext(ctx)).Order("id ASC")
	if country = strings.TrimSpace(country); country != "" {
		query = query.Where("LOWER(country) = ?", strings.ToLower(country))
	}

	var resorts []models.Resort
	if err := query.Find(&resorts).Error; err != nil {
		return nil, err
	}
	return resorts, nil
}

// GetResort returns a single resort with details or a NotFoundError
func (gdb *GormDB) GetResort(ctx context.Context, id uint) (*models.Resort, error) {
	var resort models.Resort
	err := withDetails(gdb.db.WithContext(ctx)).First(&resort, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "resort", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &resort, nil
}

// GetResortBySlug returns a resort without details or a NotFoundError
func (gdb *GormDB) GetResortBySlug(ctx context.Context, slug string) (*models.Resort, error) {
	var resort models.Resort
	err := gdb.db.WithContext(ctx).Where("slug = ?", slug).First(&resort).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "resort", ID: slug}
	}
	if err != nil {
		return nil, err
	}
	return &resort, nil
}

// CountResorts returns the number of stored resorts
func (gdb *GormDB) CountResorts(ctx context.Context) (int64, error) {
	var count int64
	err := gdb.db.WithContext(ctx).Model(&models.Resort{}).Count(&count).Error
	return count, err
}

// Countries returns the distinct resort countries in alphabetical order
func (gdb *GormDB) Countries(ctx context.Context) ([]string, error) {
	countries := []string{}
	err := gdb.db.WithContext(ctx).
		Model(&models.Resort{}).
		Distinct("country").
		Order("country ASC").
		Pluck("country", &countries).Error
	return countries, err
}

// SaveResortData upserts a resort by slug and replaces its owned rows in a
// single transaction. Conditions and Pricing are keyed by resort id,
// Forecasts by resort id and date. Existing forecast days that are not part
// of the new data are kept.
func (gdb *GormDB) SaveResortData(ctx context.Context, data *ResortData) (*models.Resort, error) {
	now := gdb.now()
	var saved models.Resort

	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		incoming := data.Resort
		incoming.Conditions = nil
		incoming.Pricing = nil
		incoming.Forecasts = nil

		var existing models.Resort
		result := tx.Where("slug = ?", incoming.Slug).First(&existing)
		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			incoming.ID = 0
			if err := tx.Omit(clause.Associations).Create(&incoming).Error; err != nil {
				return err
			}
			saved = incoming
		case result.Error != nil:
			return result.Error
		default:
			mergeResort(&existing, &incoming)
			if err := tx.Omit(clause.Associations).Save(&existing).Error; err != nil {
				return err
			}
			saved = existing
		}

		if data.Conditions != nil {
			if err := saveConditions(tx, saved.ID, *data.Conditions, now); err != nil {
				return err
			}
		}
		if data.Pricing != nil {
			if err := savePricing(tx, saved.ID, saved.Country, *data.Pricing, now); err != nil {
				return err
			}
		}
		return saveForecasts(tx, saved.ID, data.Forecasts, now)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// mergeResort copies scraped descriptive fields onto the stored row. Empty
// values never overwrite stored ones.
func mergeResort(dst, src *models.Resort) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Country != "" {
		dst.Country = src.Country
	}
	if src.Region != "" {
		dst.Region = src.Region
	}
	if src.HasLocation() {
		dst.Latitude = src.Latitude
		dst.Longitude = src.Longitude
	}
	if src.AltitudeMin != nil {
		dst.AltitudeMin = src.AltitudeMin
	}
	if src.AltitudeMax != nil {
		dst.AltitudeMax = src.AltitudeMax
	}
	if src.Website != "" {
		dst.Website = src.Website
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.SourceURL != "" {
		dst.SourceURL = src.SourceURL
	}
}

func saveConditions(tx *gorm.DB, resortID uint, c models.Conditions, now time.Time) error {
	c.ResortID = resortID
	c.LastUpdated = now
	if c.Status == "" {
		c.Status = models.StatusUnknown
	}

	var existing models.Conditions
	result := tx.Where("resort_id = ?", resortID).First(&existing)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	c.ID = existing.ID
	return tx.Save(&c).Error
}

func savePricing(tx *gorm.DB, resortID uint, country string, p models.Pricing, now time.Time) error {
	p.ResortID = resortID
	p.LastUpdated = now
	if p.Currency == "" {
		p.Currency = models.DefaultCurrency(country)
	}
	if p.SeasonStart != nil && p.SeasonEnd != nil && p.SeasonEnd.Before(*p.SeasonStart) {
		p.SeasonStart, p.SeasonEnd = nil, nil
	}

	var existing models.Pricing
	result := tx.Where("resort_id = ?", resortID).First(&existing)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	p.ID = existing.ID
	return tx.Save(&p).Error
}

func saveForecasts(tx *gorm.DB, resortID uint, forecasts []models.Forecast, now time.Time) error {
	if len(forecasts) == 0 {
		return nil
	}

	rows := make([]models.Forecast, 0, len(forecasts))
	seen := make(map[time.Time]bool, len(forecasts))
	for _, f := range forecasts {
		f.ID = 0
		f.ResortID = resortID
		f.Date = DateOnly(f.Date)
		f.LastUpdated = now
		if seen[f.Date] {
			continue
		}
		seen[f.Date] = true
		rows = append(rows, f)
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resort_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"temp_max", "temp_min", "symbol", "snow_forecast_cm", "last_updated"}),
	}).Create(&rows).Error
}

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
