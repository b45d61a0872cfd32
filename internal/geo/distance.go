package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Distance returns the great-circle distance in kilometers between two
// WGS84 coordinates given in degrees. Inputs are expected to be in range.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	meters := geo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
	return meters / 1000
}

// ValidCoordinate reports whether lat/lng are finite degree values in range.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Round1 rounds a distance to 0.1 km for presentation.
func Round1(km float64) float64 {
	return math.Round(km*10) / 10
}
