package search

import (
	"context"
	"errors"
	"testing"

	"skimeister/internal/logging"
	"skimeister/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

type resortOpt func(*models.Resort)

func withConditions(snow int, slopes float64, status models.ResortStatus) resortOpt {
	return func(r *models.Resort) {
		r.Conditions = &models.Conditions{SnowDepthMountain: snow, SlopesOpenKm: slopes, Status: status}
	}
}

func withPrice(price float64) resortOpt {
	return func(r *models.Resort) {
		r.Pricing = &models.Pricing{AdultDayPass: floatPtr(price), Currency: "CHF"}
	}
}

func newResort(id uint, name, country string, lat, lng float64, opts ...resortOpt) models.Resort {
	r := models.Resort{
		ID:        id,
		Slug:      name,
		Name:      name,
		Country:   country,
		Latitude:  floatPtr(lat),
		Longitude: floatPtr(lng),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func ids(matches []Match) []uint {
	out := make([]uint, len(matches))
	for i, m := range matches {
		out[i] = m.Resort.ID
	}
	return out
}

func sameIDs(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyIncludesResortAtOrigin(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "A", "Switzerland", 46.0, 7.0, withConditions(120, 50, models.StatusOpen), withPrice(60)),
	}
	matches := Apply(resorts, Params{
		Origin:   &Origin{Lat: 46.0, Lng: 7.0},
		RadiusKm: 50,
		MinSnow:  floatPtr(100),
		MaxPrice: floatPtr(80),
	})
	if len(matches) != 1 {
		t.Fatalf("expected resort A, got %d matches", len(matches))
	}
	if matches[0].DistanceKm == nil || *matches[0].DistanceKm != 0 {
		t.Fatalf("expected distance 0, got %v", matches[0].DistanceKm)
	}
}

func TestApplyExcludesResortOutsideRadius(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "near", "Switzerland", 46.1, 7.0),
		newResort(2, "B", "Germany", 48.7, 7.0), // roughly 300 km north
	}
	matches := Apply(resorts, Params{Origin: &Origin{Lat: 46.0, Lng: 7.0}, RadiusKm: 200})
	if !sameIDs(ids(matches), []uint{1}) {
		t.Fatalf("expected only the near resort, got %v", ids(matches))
	}
}

func TestApplyMissingPricingPassesPriceFilter(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "no-pricing", "Switzerland", 46.0, 7.0),
		newResort(2, "expensive", "Switzerland", 46.0, 7.0, withPrice(90)),
		newResort(3, "cheap", "Switzerland", 46.0, 7.0, withPrice(45)),
	}
	resorts = append(resorts, newResort(4, "unknown-price", "Switzerland", 46.0, 7.0))
	resorts[3].Pricing = &models.Pricing{Currency: "EUR"}

	matches := Apply(resorts, Params{MaxPrice: floatPtr(50)})
	if !sameIDs(ids(matches), []uint{1, 3, 4}) {
		t.Fatalf("expected resorts without a price to pass, got %v", ids(matches))
	}
}

func TestApplyRadiusBoundHolds(t *testing.T) {
	var resorts []models.Resort
	for i := 0; i < 40; i++ {
		lat := 44.0 + float64(i)*0.12
		lng := 5.0 + float64(i%7)*0.4
		resorts = append(resorts, newResort(uint(i+1), "r", "X", lat, lng))
	}
	for _, radius := range []float64{10, 50, 120, 200, 500} {
		matches := Apply(resorts, Params{Origin: &Origin{Lat: 46.0, Lng: 7.0}, RadiusKm: radius})
		for _, m := range matches {
			if m.DistanceKm == nil || *m.DistanceKm > radius {
				t.Fatalf("radius %v: resort %d at %v km returned", radius, m.Resort.ID, m.DistanceKm)
			}
		}
	}
}

func TestApplyWithoutOriginSkipsRadius(t *testing.T) {
	resorts := []models.Resort{
		newResort(2, "far", "Austria", 10, 10),
		newResort(1, "farther", "Austria", -40, 100),
	}
	matches := Apply(resorts, Params{RadiusKm: 10})
	if !sameIDs(ids(matches), []uint{1, 2}) {
		t.Fatalf("expected all resorts in id order, got %v", ids(matches))
	}
	for _, m := range matches {
		if m.DistanceKm != nil {
			t.Fatalf("expected no distance without origin")
		}
	}
}

func TestApplyResortWithoutCoordinatesFailsRadius(t *testing.T) {
	unlocated := models.Resort{ID: 7, Name: "ghost", Country: "Italy"}
	matches := Apply([]models.Resort{unlocated}, Params{Origin: &Origin{Lat: 46, Lng: 7}, RadiusKm: 500})
	if len(matches) != 0 {
		t.Fatalf("expected resort without coordinates to be excluded by radius")
	}
	matches = Apply([]models.Resort{unlocated}, Params{})
	if len(matches) != 1 {
		t.Fatalf("expected resort without coordinates when no origin is given")
	}
}

func TestApplySnowAndSlopesFilters(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "deep", "CH", 46, 7, withConditions(200, 100, models.StatusOpen)),
		newResort(2, "shallow", "CH", 46, 7, withConditions(40, 100, models.StatusOpen)),
		newResort(3, "few-slopes", "CH", 46, 7, withConditions(200, 5, models.StatusPartial)),
		newResort(4, "no-conditions", "CH", 46, 7),
	}
	matches := Apply(resorts, Params{MinSnow: floatPtr(100), MinSlopesKm: floatPtr(50)})
	if !sameIDs(ids(matches), []uint{1}) {
		t.Fatalf("expected only the deep resort, got %v", ids(matches))
	}

	matches = Apply(resorts, Params{Status: models.StatusPartial})
	if !sameIDs(ids(matches), []uint{3}) {
		t.Fatalf("expected partial resort, got %v", ids(matches))
	}

	matches = Apply(resorts, Params{Status: models.StatusUnknown})
	if !sameIDs(ids(matches), []uint{4}) {
		t.Fatalf("expected resort without conditions to be unknown, got %v", ids(matches))
	}
}

func TestApplyCountryAndQuery(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "Zermatt", "Switzerland", 46, 7),
		newResort(2, "Saas-Fee", "Switzerland", 46, 7),
		newResort(3, "Zell am See", "Austria", 47, 12),
	}
	if got := ids(Apply(resorts, Params{Country: "switzerland"})); !sameIDs(got, []uint{1, 2}) {
		t.Fatalf("expected swiss resorts, got %v", got)
	}
	if got := ids(Apply(resorts, Params{Query: "ze"})); !sameIDs(got, []uint{1, 3}) {
		t.Fatalf("expected substring matches, got %v", got)
	}
	if got := ids(Apply(resorts, Params{Query: "ze", IDs: []uint{2}})); !sameIDs(got, []uint{2}) {
		t.Fatalf("expected id restriction to replace substring matching, got %v", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "A", "CH", 46.0, 7.0, withConditions(120, 80, models.StatusOpen), withPrice(60)),
		newResort(2, "B", "CH", 46.5, 7.5, withConditions(90, 80, models.StatusOpen), withPrice(70)),
		newResort(3, "C", "CH", 46.2, 7.1, withConditions(150, 20, models.StatusPartial)),
		newResort(4, "D", "CH", 47.5, 9.0, withConditions(300, 200, models.StatusOpen), withPrice(95)),
		newResort(5, "E", "CH", 46.1, 6.9, withConditions(110, 60, models.StatusOpen), withPrice(55)),
	}
	params := Params{
		Origin:      &Origin{Lat: 46.0, Lng: 7.0},
		RadiusKm:    150,
		MinSnow:     floatPtr(100),
		MaxPrice:    floatPtr(80),
		MinSlopesKm: floatPtr(10),
		Sort:        SortPrice,
	}
	first := Apply(resorts, params)

	again := make([]models.Resort, len(first))
	for i, m := range first {
		again[i] = m.Resort
	}
	second := Apply(again, params)
	if !sameIDs(ids(first), ids(second)) {
		t.Fatalf("expected idempotent filtering, got %v then %v", ids(first), ids(second))
	}
	if len(first) != 3 {
		t.Fatalf("expected A, C and E, got %v", ids(first))
	}
}

func TestSortByDistance(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "far", "CH", 46.9, 7.0),
		{ID: 2, Name: "unlocated", Country: "CH"},
		newResort(3, "near", "CH", 46.1, 7.0),
		newResort(4, "twin", "CH", 46.1, 7.0),
	}
	matches := Apply(resorts, Params{Origin: &Origin{Lat: 46.0, Lng: 7.0}, RadiusKm: 500, Sort: SortDistance})
	if !sameIDs(ids(matches), []uint{3, 4, 1}) {
		t.Fatalf("expected distance order with id tie-break, got %v", ids(matches))
	}
	for i := 0; i+1 < len(matches); i++ {
		if *matches[i].DistanceKm > *matches[i+1].DistanceKm {
			t.Fatalf("distance order violated at %d", i)
		}
	}

	// without an origin every distance is undefined and order falls back to id
	matches = Apply(resorts, Params{Sort: SortDistance})
	if !sameIDs(ids(matches), []uint{1, 2, 3, 4}) {
		t.Fatalf("expected id order without origin, got %v", ids(matches))
	}
}

func TestSortByNameSnowPrice(t *testing.T) {
	resorts := []models.Resort{
		newResort(1, "verbier", "CH", 46, 7, withConditions(195, 0, ""), withPrice(82)),
		newResort(2, "Arosa", "CH", 46, 7, withConditions(170, 0, "")),
		newResort(3, "davos", "CH", 46, 7, withConditions(195, 0, ""), withPrice(76)),
		newResort(4, "Laax", "CH", 46, 7),
	}
	if got := ids(Apply(resorts, Params{Sort: SortName})); !sameIDs(got, []uint{2, 3, 4, 1}) {
		t.Fatalf("expected name order, got %v", got)
	}
	if got := ids(Apply(resorts, Params{Sort: SortSnow})); !sameIDs(got, []uint{1, 3, 2, 4}) {
		t.Fatalf("expected snow descending with id tie-break, got %v", got)
	}
	if got := ids(Apply(resorts, Params{Sort: SortPrice})); !sameIDs(got, []uint{3, 1, 2, 4}) {
		t.Fatalf("expected price ascending with missing last, got %v", got)
	}
}

func TestApplyEmptyInput(t *testing.T) {
	matches := Apply(nil, Params{Origin: &Origin{Lat: 46, Lng: 7}, RadiusKm: 50})
	if matches == nil || len(matches) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", matches)
	}
}

type fakeSource struct {
	resorts []models.Resort
	country string
}

func (f *fakeSource) ListResorts(_ context.Context, country string) ([]models.Resort, error) {
	f.country = country
	return f.resorts, nil
}

type fakeNames struct {
	ids []uint
	err error
}

func (f fakeNames) SearchIDs(context.Context, string, int64) ([]uint, error) {
	return f.ids, f.err
}

func TestServiceUsesNameIndex(t *testing.T) {
	source := &fakeSource{resorts: []models.Resort{
		newResort(1, "Zermatt", "Switzerland", 46, 7),
		newResort(2, "Verbier", "Switzerland", 46, 7),
	}}

	svc := NewService(source, fakeNames{ids: []uint{2}}, logging.Discard())
	matches, err := svc.Search(context.Background(), Params{Query: "verbir", Country: "Switzerland"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sameIDs(ids(matches), []uint{2}) {
		t.Fatalf("expected index hit, got %v", ids(matches))
	}
	if source.country != "Switzerland" {
		t.Fatalf("expected country pre-restriction, got %q", source.country)
	}

	svc = NewService(source, fakeNames{err: errors.New("down")}, logging.Discard())
	matches, err = svc.Search(context.Background(), Params{Query: "zer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sameIDs(ids(matches), []uint{1}) {
		t.Fatalf("expected substring fallback, got %v", ids(matches))
	}
}

func TestHitIDs(t *testing.T) {
	hits := []interface{}{
		map[string]interface{}{"id": float64(3)},
		map[string]interface{}{"id": "x"},
		"garbage",
		map[string]interface{}{"id": float64(9)},
	}
	if got := hitIDs(hits); !sameIDs(got, []uint{3, 9}) {
		t.Fatalf("expected [3 9], got %v", got)
	}
}
