package search

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"skimeister/internal/geo"
	"skimeister/internal/models"
)

// ValidationError reports a malformed or missing query parameter
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

// RadiusLimits bounds the search radius
type RadiusLimits struct {
	DefaultKm float64
	MinKm     float64
	MaxKm     float64
}

// DefaultRadiusLimits is the day-trip radius: 200 km within [10, 500]
var DefaultRadiusLimits = RadiusLimits{DefaultKm: 200, MinKm: 10, MaxKm: 500}

// Clamp returns km bounded to the limits and rounded to 0.1 km
func (l RadiusLimits) Clamp(km float64) float64 {
	km = math.Max(l.MinKm, math.Min(l.MaxKm, km))
	return geo.Round1(km)
}

// ParseQuery builds Params from URL query values. With requireOrigin set,
// missing lat or lng is a ValidationError. Empty values count as absent.
func ParseQuery(values url.Values, limits RadiusLimits, requireOrigin bool) (Params, error) {
	p := Params{
		Country: strings.TrimSpace(values.Get("country")),
		Query:   strings.TrimSpace(values.Get("q")),
		Sort:    SortDistance,
	}

	lat, err := optionalFloat(values, "lat")
	if err != nil {
		return p, err
	}
	lng, err := optionalFloat(values, "lng")
	if err != nil {
		return p, err
	}
	switch {
	case lat != nil && lng != nil:
		if !geo.ValidCoordinate(*lat, *lng) {
			return p, &ValidationError{Field: "lat/lng", Reason: "coordinates out of range"}
		}
		p.Origin = &Origin{Lat: *lat, Lng: *lng}
	case lat != nil || lng != nil || requireOrigin:
		return p, &ValidationError{Field: "lat/lng", Reason: "both lat and lng are required"}
	}

	p.RadiusKm = limits.Clamp(limits.DefaultKm)
	radius, err := optionalFloat(values, "radius")
	if err != nil {
		return p, err
	}
	if radius != nil {
		p.RadiusKm = limits.Clamp(*radius)
	}

	if p.MinSnow, err = nonNegative(values, "min_snow"); err != nil {
		return p, err
	}
	if p.MaxPrice, err = nonNegative(values, "max_price"); err != nil {
		return p, err
	}
	if p.MinSlopesKm, err = nonNegative(values, "min_slopes"); err != nil {
		return p, err
	}

	if status := strings.ToLower(strings.TrimSpace(values.Get("status"))); status != "" {
		switch models.ResortStatus(status) {
		case models.StatusOpen, models.StatusClosed, models.StatusPartial, models.StatusUnknown:
			p.Status = models.ResortStatus(status)
		default:
			return p, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
		}
	}

	if sortKey := strings.ToLower(strings.TrimSpace(values.Get("sort"))); sortKey != "" {
		p.Sort = SortKey(sortKey)
		if !p.Sort.Valid() {
			return p, &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort key %q", sortKey)}
		}
	}

	return p, nil
}

func optionalFloat(values url.Values, field string) (*float64, error) {
	raw := strings.TrimSpace(values.Get(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	return &v, nil
}

func nonNegative(values url.Values, field string) (*float64, error) {
	v, err := optionalFloat(values, field)
	if err != nil || v == nil {
		return v, err
	}
	if *v < 0 {
		return nil, &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return v, nil
}
