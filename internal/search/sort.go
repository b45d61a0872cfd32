package search

import (
	"cmp"
	"slices"
	"strings"
)

// SortKey selects the result ordering
type SortKey string

const (
	SortDistance SortKey = "distance"
	SortName     SortKey = "name"
	SortSnow     SortKey = "snow"
	SortPrice    SortKey = "price"
)

// Valid reports whether k is a known sort key
func (k SortKey) Valid() bool {
	switch k {
	case SortDistance, SortName, SortSnow, SortPrice:
		return true
	}
	return false
}

// sortMatches orders matches by key, breaking ties by resort id
func sortMatches(matches []Match, key SortKey) {
	if key == "" {
		key = SortDistance
	}
	slices.SortFunc(matches, func(a, b Match) int {
		var c int
		switch key {
		case SortDistance:
			c = compareMissingLast(a.DistanceKm, b.DistanceKm)
		case SortName:
			c = cmp.Compare(strings.ToLower(a.Resort.Name), strings.ToLower(b.Resort.Name))
		case SortSnow:
			c = cmp.Compare(snowDepth(b), snowDepth(a))
		case SortPrice:
			c = compareMissingLast(adultPrice(&a.Resort), adultPrice(&b.Resort))
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.Resort.ID, b.Resort.ID)
	})
}

// compareMissingLast orders ascending with nil values after all others
func compareMissingLast(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

func snowDepth(m Match) int {
	if m.Resort.Conditions == nil {
		return 0
	}
	return m.Resort.Conditions.SnowDepthMountain
}
