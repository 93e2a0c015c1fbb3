package domain

import (
	"fmt"
	"math"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside WGS 84 ranges.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// LngLat returns the point in GeoJSON axis order.
func (p GeoPoint) LngLat() [2]float64 {
	return [2]float64{p.Lng, p.Lat}
}

// Label renders the point as "lat, lng" with four decimals.
func (p GeoPoint) Label() string {
	return fmt.Sprintf("%.4f, %.4f", p.Lat, p.Lng)
}

// PointFromLngLat converts a GeoJSON position into a GeoPoint.
func PointFromLngLat(c [2]float64) GeoPoint {
	return GeoPoint{Lat: c[1], Lng: c[0]}
}

// Place is a labelled location, typically a geocoding candidate.
type Place struct {
	Label string   `json:"label"`
	Point GeoPoint `json:"point"`
}

// GeoLineString represents an ordered sequence of [lng, lat] positions.
type GeoLineString struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

// Empty reports whether the line has no positions.
func (l GeoLineString) Empty() bool {
	return len(l.Coordinates) == 0
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
	set    bool
}

// Extend grows the box to include p.
func (b *Bounds) Extend(p GeoPoint) {
	if !b.set {
		b.MinLat, b.MaxLat = p.Lat, p.Lat
		b.MinLng, b.MaxLng = p.Lng, p.Lng
		b.set = true
		return
	}
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	b.MinLng = math.Min(b.MinLng, p.Lng)
	b.MaxLng = math.Max(b.MaxLng, p.Lng)
}

// ExtendLine grows the box to include every position of l.
func (b *Bounds) ExtendLine(l GeoLineString) {
	for _, c := range l.Coordinates {
		b.Extend(PointFromLngLat(c))
	}
}

// IsEmpty reports whether nothing has been added to the box.
func (b Bounds) IsEmpty() bool {
	return !b.set
}

// Contains reports whether p lies inside the box (inclusive).
func (b Bounds) Contains(p GeoPoint) bool {
	return b.set && p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Padding is a viewport inset in screen pixels.
type Padding struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}
