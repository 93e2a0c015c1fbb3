package domain

import (
	"math"
	"strings"
)

// EntityKind identifies which population a searchable entity belongs to.
type EntityKind string

const (
	KindTalent   EntityKind = "talent"
	KindBusiness EntityKind = "business"
	KindJob      EntityKind = "job"
)

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindTalent, KindBusiness, KindJob:
		return true
	}
	return false
}

// Entity is a point-of-interest candidate returned by discovery searches.
type Entity struct {
	ID              string     `json:"id"`
	Kind            EntityKind `json:"kind"`
	DisplayName     string     `json:"display_name"`
	Title           string     `json:"title,omitempty"`
	Bio             string     `json:"bio,omitempty"`
	Skills          []string   `json:"skills,omitempty"`
	ExperienceYears *int       `json:"experience_years,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Location        string     `json:"location,omitempty"`
	City            string     `json:"city,omitempty"`
	State           string     `json:"state,omitempty"`
	Country         string     `json:"country,omitempty"`
	Summary         string     `json:"search_summary,omitempty"`
	Availability    string     `json:"availability,omitempty"`
	SearchVisible   *bool      `json:"-"`
	ParentID        string     `json:"parent_id,omitempty"` // owning business for jobs
	IntentStatus    string     `json:"intent_status,omitempty"`
	IntentVisible   bool       `json:"intent_visible"`
	DistanceKm      *float64   `json:"distance_km,omitempty"` // computed field
	Approximate     bool       `json:"approx"`                // coordinates came from geocoding
}

// Coordinates returns the entity position when both components are present and finite.
func (e Entity) Coordinates() (GeoPoint, bool) {
	if e.Latitude == nil || e.Longitude == nil {
		return GeoPoint{}, false
	}
	lat, lng := *e.Latitude, *e.Longitude
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: lat, Lng: lng}, true
}

// Geolocated reports whether the entity can be placed without geocoding.
func (e Entity) Geolocated() bool {
	_, ok := e.Coordinates()
	return ok
}

// SetCoordinates stores p on the entity.
func (e *Entity) SetCoordinates(p GeoPoint) {
	lat, lng := p.Lat, p.Lng
	e.Latitude = &lat
	e.Longitude = &lng
}

// LocationKey builds the geocoding query for an ungeolocated entity: city, state and
// country joined with ", ". City values sometimes embed "City, State, Country", so only
// the part before the first comma is kept. The free-text location is used when no
// structured component is present.
func (e Entity) LocationKey() string {
	city := e.City
	if i := strings.IndexByte(city, ','); i >= 0 {
		city = city[:i]
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{city, e.State, e.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(e.Location)
	}
	return strings.Join(parts, ", ")
}

// Intent is a profile's intent mode as stored in intent_modes.
type Intent struct {
	ProfileID string `json:"profile_id"`
	Status    string `json:"intent_status"`
	Visible   bool   `json:"visibility"`
}

// EntityGeocoded is emitted when coordinates were resolved for an ungeolocated entity.
type EntityGeocoded struct {
	EntityID string     `json:"entity_id"`
	Kind     EntityKind `json:"kind"`
	Key      string     `json:"key"`
	Point    GeoPoint   `json:"point"`
}
