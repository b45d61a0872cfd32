package handlers

import (
	"skimeister/internal/geo"
	"skimeister/internal/models"
	"skimeister/internal/search"
)

// ResortResponse is the public JSON shape of a resort. Conditions and
// Pricing are null when no row exists; Forecasts is always an array.
type ResortResponse struct {
	ID          uint               `json:"id"`
	Name        string             `json:"name"`
	Slug        string             `json:"slug"`
	Region      string             `json:"region"`
	Country     string             `json:"country"`
	Latitude    *float64           `json:"latitude"`
	Longitude   *float64           `json:"longitude"`
	AltitudeMin *int               `json:"altitude_min"`
	AltitudeMax *int               `json:"altitude_max"`
	DistanceKm  *float64           `json:"distance_km,omitempty"`
	Conditions  *models.Conditions `json:"conditions"`
	Pricing     *models.Pricing    `json:"pricing"`
	Forecasts   []ForecastResponse `json:"forecasts"`
	Website     string             `json:"website"`
	Description string             `json:"description"`
}

// ForecastResponse is one forecast day with a calendar date
type ForecastResponse struct {
	Date           string   `json:"date"`
	TempMax        *float64 `json:"temp_max"`
	TempMin        *float64 `json:"temp_min"`
	Symbol         string   `json:"symbol"`
	SnowForecastCm int      `json:"snow_forecast_cm"`
}

func newResortResponse(r *models.Resort, distanceKm *float64) ResortResponse {
	out := ResortResponse{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Region:      r.Region,
		Country:     r.Country,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		AltitudeMin: r.AltitudeMin,
		AltitudeMax: r.AltitudeMax,
		Conditions:  r.Conditions,
		Pricing:     r.Pricing,
		Forecasts:   make([]ForecastResponse, 0, len(r.Forecasts)),
		Website:     r.Website,
		Description: r.Description,
	}
	if distanceKm != nil {
		rounded := geo.Round1(*distanceKm)
		out.DistanceKm = &rounded
	}
	for _, f := range r.Forecasts {
		out.Forecasts = append(out.Forecasts, ForecastResponse{
			Date:           f.Date.UTC().Format("2006-01-02"),
			TempMax:        f.TempMax,
			TempMin:        f.TempMin,
			Symbol:         f.Symbol,
			SnowForecastCm: f.SnowForecastCm,
		})
	}
	return out
}

func newMatchResponses(matches []search.Match) []ResortResponse {
	out := make([]ResortResponse, 0, len(matches))
	for i := range matches {
		out = append(out, newResortResponse(&matches[i].Resort, matches[i].DistanceKm))
	}
	return out
}
