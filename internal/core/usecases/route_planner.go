package usecases

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/metrics"
	"github.com/creerlio/discovery/internal/pkg/telemetry"
)

// RoutePlan is a one-shot route between two waypoints.
type RoutePlan struct {
	From    domain.Waypoint `json:"from"`
	To      domain.Waypoint `json:"to"`
	Driving RouteLeg        `json:"driving"`
	Cycling RouteLeg        `json:"cycling"`
	// Geometry is the driving line.
	Geometry domain.GeoLineString `json:"geometry"`
}

// RouteLeg summarizes one travel mode.
type RouteLeg struct {
	Minutes int     `json:"minutes"`
	Km      float64 `json:"km"`
}

// RouteTarget is a destination given either as text or as a point.
type RouteTarget struct {
	Text  string
	Point *domain.GeoPoint
}

// RoutePlanner computes routes without session state.
type RoutePlanner struct {
	places     PlaceLookup
	reverse    ports.ReverseGeocoder
	directions ports.DirectionsProvider
}

// NewRoutePlanner creates a RoutePlanner. places may be nil when geocoding is
// not configured.
func NewRoutePlanner(places PlaceLookup, reverse ports.ReverseGeocoder, directions ports.DirectionsProvider) *RoutePlanner {
	if places == nil {
		places = unavailableLookup{}
	}
	return &RoutePlanner{places: places, reverse: reverse, directions: directions}
}

// Plan resolves to and fetches driving and cycling routes from from in parallel.
// A point target is labelled by reverse geocoding, falling back to "lat, lng".
func (p *RoutePlanner) Plan(ctx context.Context, from domain.GeoPoint, to RouteTarget) (plan *RoutePlan, err error) {
	ctx, span := telemetry.StartSpan(ctx, "route.plan", attribute.Bool("route.text", to.Point == nil))
	defer func() { telemetry.EndSpan(span, err) }()

	if !from.Valid() {
		return nil, fmt.Errorf("invalid origin %v", from)
	}
	if p.directions == nil {
		return nil, ports.ErrMissingCredentials
	}

	var dest domain.Waypoint
	switch {
	case to.Point != nil:
		if !to.Point.Valid() {
			return nil, fmt.Errorf("invalid destination %v", *to.Point)
		}
		dest = domain.Waypoint{Point: *to.Point}
	case strings.TrimSpace(to.Text) != "":
		place, ok, lerr := p.places.Lookup(ctx, to.Text)
		if lerr != nil {
			return nil, lerr
		}
		if !ok {
			return nil, fmt.Errorf("destination %q: %w", to.Text, ports.ErrNotFound)
		}
		dest = domain.Waypoint{Point: place.Point, Label: place.Label}
		if dest.Label == "" {
			dest.Label = strings.TrimSpace(to.Text)
		}
	default:
		return nil, fmt.Errorf("destination is required")
	}

	var driving, cycling domain.Route
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, derr := p.directions.Directions(gctx, domain.ProfileDriving, from, dest.Point)
		driving = r
		return derr
	})
	g.Go(func() error {
		r, derr := p.directions.Directions(gctx, domain.ProfileCycling, from, dest.Point)
		cycling = r
		return derr
	})
	if dest.Label == "" {
		g.Go(func() error {
			dest.Label = p.labelFor(gctx, dest.Point)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		metrics.RouteRecomputations.WithLabelValues("plan", "error").Inc()
		return nil, err
	}
	if driving.Geometry.Empty() {
		metrics.RouteRecomputations.WithLabelValues("plan", "error").Inc()
		return nil, fmt.Errorf("no route: %w", ports.ErrNotFound)
	}
	metrics.RouteRecomputations.WithLabelValues("plan", "routed").Inc()

	return &RoutePlan{
		From:     domain.Waypoint{Point: from, Label: from.Label()},
		To:       dest,
		Driving:  RouteLeg{Minutes: driving.Minutes(), Km: driving.Kilometers()},
		Cycling:  RouteLeg{Minutes: cycling.Minutes(), Km: cycling.Kilometers()},
		Geometry: driving.Geometry,
	}, nil
}

func (p *RoutePlanner) labelFor(ctx context.Context, pt domain.GeoPoint) string {
	if p.reverse == nil {
		return pt.Label()
	}
	label, err := p.reverse.ReverseGeocode(ctx, pt)
	if err != nil || strings.TrimSpace(label) == "" {
		return pt.Label()
	}
	return label
}
