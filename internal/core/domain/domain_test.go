package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/creerlio/discovery/internal/core/domain"
)

func intPtr(v int) *int { return &v }

func TestFingerprint_OrderInsensitiveSkills(t *testing.T) {
	a := domain.FilterState{Kind: domain.KindTalent, Skills: []string{"Go", "rust"}}
	b := domain.FilterState{Kind: domain.KindTalent, Skills: []string{" RUST", "go", "go"}}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprint_DistinguishesFilters(t *testing.T) {
	base := domain.FilterState{Kind: domain.KindBusiness, Query: "cafe"}
	cases := map[string]domain.FilterState{
		"kind":       {Kind: domain.KindJob, Query: "cafe"},
		"query":      {Kind: domain.KindBusiness, Query: "bakery"},
		"experience": {Kind: domain.KindBusiness, Query: "cafe", MinExperience: intPtr(3)},
		"intent":     {Kind: domain.KindBusiness, Query: "cafe", IntentStatus: "hiring"},
		"center": {Kind: domain.KindBusiness, Query: "cafe", Center: &domain.SearchCenter{
			Point: domain.GeoPoint{Lat: -33.8688, Lng: 151.2093},
		}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base.Fingerprint(), f.Fingerprint())
		})
	}
}

func TestFingerprint_IgnoresLabelAndCase(t *testing.T) {
	center := domain.GeoPoint{Lat: -33.8688, Lng: 151.2093}
	a := domain.FilterState{Kind: domain.KindTalent, Query: "Barista ", Center: &domain.SearchCenter{Point: center, Label: "Sydney"}, RadiusKm: 10}
	b := domain.FilterState{Kind: domain.KindTalent, Query: "barista", Center: &domain.SearchCenter{Point: center, Label: "Sydney NSW"}, RadiusKm: 10}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprint_RadiusOnlyMattersWithCenter(t *testing.T) {
	a := domain.FilterState{Kind: domain.KindTalent, RadiusKm: 10}
	b := domain.FilterState{Kind: domain.KindTalent, RadiusKm: 50}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestValidRadius(t *testing.T) {
	assert.True(t, domain.ValidRadius(0.5))
	for _, km := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.False(t, domain.ValidRadius(km), "%v", km)
	}
}

func TestRadius_NonFiniteFallsBackToDefault(t *testing.T) {
	center := &domain.SearchCenter{Point: domain.GeoPoint{Lat: -33.8688, Lng: 151.2093}}
	nan := domain.FilterState{Kind: domain.KindTalent, Center: center, RadiusKm: math.NaN()}
	def := domain.FilterState{Kind: domain.KindTalent, Center: center}
	assert.Equal(t, domain.DefaultRadiusKm, nan.Radius())
	assert.Equal(t, def.Fingerprint(), nan.Fingerprint())
	assert.NotContains(t, nan.Fingerprint(), "NaN")
}

func TestLocationKey(t *testing.T) {
	tests := []struct {
		name string
		e    domain.Entity
		want string
	}{
		{"embedded city", domain.Entity{City: "Cooma, NSW, Australia", State: "NSW", Country: "Australia"}, "Cooma, NSW, Australia"},
		{"city only", domain.Entity{City: "Cooma, NSW, Australia"}, "Cooma"},
		{"fallback location", domain.Entity{Location: " Parramatta NSW "}, "Parramatta NSW"},
		{"nothing", domain.Entity{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.e.LocationKey())
		})
	}
}

func TestCoordinates(t *testing.T) {
	var e domain.Entity
	assert.False(t, e.Geolocated())

	lat := -33.87
	e.Latitude = &lat
	assert.False(t, e.Geolocated(), "longitude missing")

	e.SetCoordinates(domain.GeoPoint{Lat: -33.87, Lng: 151.21})
	p, ok := e.Coordinates()
	assert.True(t, ok)
	assert.Equal(t, 151.21, p.Lng)
}

func TestRouteRounding(t *testing.T) {
	r := domain.Route{DurationSeconds: 1530, DistanceMeters: 23456}
	assert.Equal(t, 26, r.Minutes())
	assert.Equal(t, 23.5, r.Kilometers())
}

func TestActionsFor(t *testing.T) {
	assert.Equal(t, []domain.PopupAction{domain.ActionViewBusiness, domain.ActionViewJobs}, domain.ActionsFor(domain.KindBusiness))
	assert.Equal(t, []domain.PopupAction{domain.ActionViewJob}, domain.ActionsFor(domain.KindJob))
	assert.Equal(t, []domain.PopupAction{domain.ActionViewProfile}, domain.ActionsFor(domain.KindTalent))
}

func TestBoundsExtend(t *testing.T) {
	var b domain.Bounds
	assert.True(t, b.IsEmpty())
	b.Extend(domain.GeoPoint{Lat: -33.8688, Lng: 151.2093})
	b.ExtendLine(domain.GeoLineString{Coordinates: [][2]float64{{151.0036, -33.8150}}})
	assert.False(t, b.IsEmpty())
	assert.Equal(t, -33.8688, b.MinLat)
	assert.Equal(t, 151.0036, b.MinLng)
	assert.True(t, b.Contains(domain.GeoPoint{Lat: -33.84, Lng: 151.1}))
}
