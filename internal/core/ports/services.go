package ports

import (
	"context"

	"github.com/creerlio/discovery/internal/core/domain"
)

// Geocoder resolves free text into candidate places, best first.
type Geocoder interface {
	Geocode(ctx context.Context, query string, limit int) ([]domain.Place, error)
}

// ReverseGeocoder turns a point into a human-readable label.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, p domain.GeoPoint) (string, error)
}

// DirectionsProvider computes a route between two points.
type DirectionsProvider interface {
	Directions(ctx context.Context, profile domain.RouteProfile, from, to domain.GeoPoint) (domain.Route, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishEntityGeocoded(ctx context.Context, ev domain.EntityGeocoded) error
	PublishPopupAction(ctx context.Context, ev domain.PopupActionEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeEntityGeocoded(ctx context.Context, handler func(ctx context.Context, ev domain.EntityGeocoded) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// LocationResolver maps a location key to coordinates. ok is false when the key
// is known to have no match.
type LocationResolver interface {
	Resolve(ctx context.Context, key string) (p domain.GeoPoint, ok bool, err error)
}
