package http

import (
	"context"
	"log/slog"

	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
)

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Search   *usecases.SearchService
	Places   *usecases.GeocodeCache
	Reverse  ports.ReverseGeocoder
	Planner  *usecases.RoutePlanner
	Sessions usecases.MapSessionDeps

	// SuggestLimit caps /v1/geocode candidates.
	SuggestLimit int

	DB     Pinger
	Broker Pinger
	Cache  Pinger

	Logger *slog.Logger
}
