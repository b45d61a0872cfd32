package search

import (
	"strings"

	"skimeister/internal/geo"
	"skimeister/internal/models"
)

// Origin is the point distances are measured from
type Origin struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Params holds the search criteria. Nil thresholds are not applied.
type Params struct {
	Origin      *Origin
	RadiusKm    float64 // applied only with an Origin
	MinSnow     *float64
	MaxPrice    *float64
	MinSlopesKm *float64
	Status      models.ResortStatus
	Country     string
	Query       string
	IDs         []uint // restricts candidates when non-nil
	Sort        SortKey
}

// Match is a resort that passed every filter. DistanceKm is nil when no
// origin was given or the resort has no coordinates.
type Match struct {
	Resort     models.Resort
	DistanceKm *float64
}

// Apply annotates, filters and sorts resorts. It does not modify its input.
func Apply(resorts []models.Resort, p Params) []Match {
	var allowed map[uint]bool
	if p.IDs != nil {
		allowed = make(map[uint]bool, len(p.IDs))
		for _, id := range p.IDs {
			allowed[id] = true
		}
	}

	matches := make([]Match, 0, len(resorts))
	for _, r := range resorts {
		if allowed != nil && !allowed[r.ID] {
			continue
		}
		m := Match{Resort: r}
		if p.Origin != nil && r.HasLocation() {
			d := geo.Distance(p.Origin.Lat, p.Origin.Lng, *r.Latitude, *r.Longitude)
			m.DistanceKm = &d
		}
		if !p.matches(m, allowed != nil) {
			continue
		}
		matches = append(matches, m)
	}

	sortMatches(matches, p.Sort)
	return matches
}

// matches applies the predicates conjunctively. Missing conditions read as
// zero snow and zero open slopes; missing pricing never excludes.
func (p Params) matches(m Match, idRestricted bool) bool {
	r := &m.Resort

	if p.Country != "" && !strings.EqualFold(strings.TrimSpace(r.Country), strings.TrimSpace(p.Country)) {
		return false
	}

	if p.Origin != nil {
		if m.DistanceKm == nil || *m.DistanceKm > p.RadiusKm {
			return false
		}
	}

	var snow, slopes float64
	status := models.StatusUnknown
	if r.Conditions != nil {
		snow = float64(r.Conditions.SnowDepthMountain)
		slopes = r.Conditions.SlopesOpenKm
		if r.Conditions.Status != "" {
			status = r.Conditions.Status
		}
	}
	if p.MinSnow != nil && snow < *p.MinSnow {
		return false
	}
	if p.MinSlopesKm != nil && slopes < *p.MinSlopesKm {
		return false
	}
	if p.Status != "" && status != p.Status {
		return false
	}

	if p.MaxPrice != nil {
		if price := adultPrice(r); price != nil && *price > *p.MaxPrice {
			return false
		}
	}

	if p.Query != "" && !idRestricted {
		if !strings.Contains(strings.ToLower(r.Name), strings.ToLower(strings.TrimSpace(p.Query))) {
			return false
		}
	}
	return true
}

func adultPrice(r *models.Resort) *float64 {
	if r.Pricing == nil {
		return nil
	}
	return r.Pricing.AdultDayPass
}
