package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"skimeister/internal/models"
)

// DefaultOpenMeteoURL is the public Open-Meteo forecast endpoint
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// PageSource returns a document for a URL, typically through the page cache
type PageSource interface {
	GetOrFetch(ctx context.Context, key string) (string, error)
}

// OpenMeteo fetches daily forecasts by coordinates. It is the fallback
// when a resort page carries no outlook.
type OpenMeteo struct {
	baseURL string
	pages   PageSource
	now     func() time.Time
}

// NewOpenMeteo creates a forecast provider reading through pages
func NewOpenMeteo(baseURL string, pages PageSource) *OpenMeteo {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteo{baseURL: baseURL, pages: pages, now: time.Now}
}

// ForecastURL builds the request URL. Coordinates are rounded to four
// decimals so the cache key is stable between runs.
func (o *OpenMeteo) ForecastURL(lat, lng float64) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', 4, 64))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,snowfall_sum,weathercode")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(forecastDays))
	return o.baseURL + "?" + q.Encode()
}

// Forecast returns up to seven days of forecast for a location
func (o *OpenMeteo) Forecast(ctx context.Context, lat, lng float64) ([]models.Forecast, error) {
	body, err := o.pages.GetOrFetch(ctx, o.ForecastURL(lat, lng))
	if err != nil {
		return nil, err
	}
	return ParseOpenMeteo(body, o.now())
}

type openMeteoResponse struct {
	Daily *struct {
		Time        []string   `json:"time"`
		TempMax     []*float64 `json:"temperature_2m_max"`
		TempMin     []*float64 `json:"temperature_2m_min"`
		SnowfallSum []*float64 `json:"snowfall_sum"`
		WeatherCode []*int     `json:"weathercode"`
	} `json:"daily"`
}

// ParseOpenMeteo converts an Open-Meteo daily response into forecasts
func ParseOpenMeteo(body string, fetchedAt time.Time) ([]models.Forecast, error) {
	var resp openMeteoResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode open-meteo response: %w", err)
	}

	forecasts := make([]models.Forecast, 0)
	if resp.Daily == nil {
		return forecasts, nil
	}

	d := resp.Daily
	for i, day := range d.Time {
		if i >= forecastDays {
			break
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("invalid forecast date %q: %w", day, err)
		}

		f := models.Forecast{
			Date:        date,
			TempMax:     floatAt(d.TempMax, i),
			TempMin:     floatAt(d.TempMin, i),
			Symbol:      "unknown",
			LastUpdated: fetchedAt.UTC(),
		}
		if snow := floatAt(d.SnowfallSum, i); snow != nil && *snow > 0 {
			f.SnowForecastCm = int(math.Round(*snow))
		}
		if i < len(d.WeatherCode) && d.WeatherCode[i] != nil {
			f.Symbol = WeatherSymbol(*d.WeatherCode[i])
		}
		forecasts = append(forecasts, f)
	}
	return forecasts, nil
}

func floatAt(values []*float64, i int) *float64 {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	v := *values[i]
	return &v
}

// WeatherSymbol maps a WMO weather interpretation code to a symbol name
func WeatherSymbol(code int) string {
	switch code {
	case 0:
		return "sunny"
	case 1:
		return "mostly_sunny"
	case 2:
		return "partly_cloudy"
	case 3:
		return "cloudy"
	case 45, 48:
		return "fog"
	case 51, 53, 55:
		return "drizzle"
	case 61, 63, 65:
		return "rain"
	case 71, 73, 75:
		return "snow"
	case 77:
		return "snow_grains"
	case 80, 81, 82:
		return "rain_showers"
	case 85, 86:
		return "snow_showers"
	case 95, 96, 99:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
