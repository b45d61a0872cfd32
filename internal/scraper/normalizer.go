package scraper

import (
	"strings"
	"time"

	"skimeister/internal/models"
)

// Normalized is the storage-ready result of parsing one resort page
type Normalized struct {
	Resort     models.Resort
	Conditions *models.Conditions
	Pricing    *models.Pricing
	Forecasts  []models.Forecast
}

// Normalizer converts raw resort documents into model values. Fields the
// document does not carry are left at their sentinel: 0 for snow and slope
// numbers, StatusUnknown, nil for temperatures and prices.
type Normalizer interface {
	Normalize(rawHTML, slug string) (*Normalized, error)
	ParseForecast(rawHTML string, start time.Time) ([]models.Forecast, error)
}

// ResortEntry is one resort found on a country listing page
type ResortEntry struct {
	Name    string
	Slug    string
	URL     string
	Country string
}

// Source is a resort website: where its pages live and how to read them
type Source interface {
	Normalizer
	ListURL(country string) string
	ResortURL(slug string) string
	ForecastURL(resortURL string) string
	ParseResortList(rawHTML, country string) ([]ResortEntry, error)
}

var countryNames = map[string]string{
	"schweiz":     "Switzerland",
	"oesterreich": "Austria",
	"italien":     "Italy",
	"deutschland": "Germany",
	"frankreich":  "France",
}

// CountryName maps a source country slug to its English name. Unknown
// slugs are returned capitalized.
func CountryName(slug string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name, ok := countryNames[slug]; ok {
		return name
	}
	if slug == "" {
		return ""
	}
	return strings.ToUpper(slug[:1]) + slug[1:]
}

// dateOnly truncates t to midnight UTC of its calendar day
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
