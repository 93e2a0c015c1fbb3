package domain

import "math"

// RouteProfile is a directions travel mode.
type RouteProfile string

const (
	ProfileDriving RouteProfile = "driving"
	ProfileCycling RouteProfile = "cycling"
)

// Route is a single directions result.
type Route struct {
	Profile         RouteProfile  `json:"profile"`
	DurationSeconds float64       `json:"duration_s"`
	DistanceMeters  float64       `json:"distance_m"`
	Geometry        GeoLineString `json:"geometry"`
}

// Minutes is the duration rounded to the nearest minute.
func (r Route) Minutes() int {
	return int(math.Round(r.DurationSeconds / 60))
}

// Kilometers is the distance rounded to one decimal.
func (r Route) Kilometers() float64 {
	return math.Round(r.DistanceMeters/100) / 10
}

// RoutePhase is the state of the route engine.
type RoutePhase string

const (
	PhaseIdle      RoutePhase = "idle"
	PhaseResolving RoutePhase = "resolving"
	PhaseRouted    RoutePhase = "routed"
	PhaseError     RoutePhase = "error"
)

// Waypoint is a labelled route endpoint.
type Waypoint struct {
	Point GeoPoint `json:"point"`
	Label string   `json:"label"`
}

// RouteOrigin is Point A as derived from the current selection. EntityID is empty
// when the origin has no marker of its own and needs a floating one.
type RouteOrigin struct {
	EntityID string   `json:"entity_id,omitempty"`
	Point    GeoPoint `json:"point"`
	Label    string   `json:"label"`
}

// RouteState is a snapshot of the route engine.
type RouteState struct {
	Phase          RoutePhase    `json:"phase"`
	Query          string        `json:"query,omitempty"`
	PointA         *Waypoint     `json:"point_a,omitempty"`
	PointB         *Waypoint     `json:"point_b,omitempty"`
	Geometry       GeoLineString `json:"geometry"`
	DrivingMinutes int           `json:"driving_minutes"`
	DrivingKm      float64       `json:"driving_km"`
	CyclingMinutes int           `json:"cycling_minutes"`
	CyclingKm      float64       `json:"cycling_km"`
	Busy           bool          `json:"busy"`
	Error          string        `json:"error,omitempty"`
}

// Active reports whether a route is drawn.
func (s RouteState) Active() bool {
	return s.Phase == PhaseRouted && !s.Geometry.Empty()
}
