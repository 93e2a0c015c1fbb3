package geospatial

import (
	"math"

	"github.com/creerlio/discovery/internal/core/domain"
)

const earthRadiusKm = 6371.0

// DefaultRingPoints is the vertex count used for radius rings.
const DefaultRingPoints = 64

// HaversineKm calculates the great-circle distance in kilometers between two points.
func HaversineKm(a, b domain.GeoPoint) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// RoundKm rounds a distance to one decimal.
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

// CirclePolygon approximates a circle around center as a closed ring of [lng, lat]
// positions using equirectangular scaling. It is meant for drawing only; radius
// filtering uses HaversineKm.
func CirclePolygon(center domain.GeoPoint, radiusKm float64, points int) [][2]float64 {
	if points < 3 {
		points = DefaultRingPoints
	}
	dx := radiusKm / (111.32 * math.Cos(toRad(center.Lat)))
	dy := radiusKm / 110.574

	ring := make([][2]float64, 0, points+1)
	for i := 0; i < points; i++ {
		theta := float64(i) / float64(points) * 2 * math.Pi
		ring = append(ring, [2]float64{
			center.Lng + dx*math.Cos(theta),
			center.Lat + dy*math.Sin(theta),
		})
	}
	return append(ring, ring[0])
}

// BoundingBox returns the smallest box containing every point within radiusKm
// of center by HaversineKm. ok is false when the circle reaches a pole or
// crosses the antimeridian, where a single box cannot bound it.
func BoundingBox(center domain.GeoPoint, radiusKm float64) (b domain.Bounds, ok bool) {
	if !domain.ValidRadius(radiusKm) || !center.Valid() {
		return b, false
	}
	// Slightly widened so points exactly on the radius survive rounding.
	ang := radiusKm / earthRadiusKm * (1 + 1e-9)
	lat, lng := toRad(center.Lat), toRad(center.Lng)

	minLat, maxLat := lat-ang, lat+ang
	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 {
		return b, false
	}
	dLng := math.Asin(math.Sin(ang) / math.Cos(lat))
	minLng, maxLng := lng-dLng, lng+dLng
	if minLng < -math.Pi || maxLng > math.Pi {
		return b, false
	}

	b.Extend(domain.GeoPoint{Lat: toDeg(minLat), Lng: toDeg(minLng)})
	b.Extend(domain.GeoPoint{Lat: toDeg(maxLat), Lng: toDeg(maxLng)})
	return b, true
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
