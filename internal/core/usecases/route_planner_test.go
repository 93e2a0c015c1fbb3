package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
)

func newPlanner(reverse ports.ReverseGeocoder, directions ports.DirectionsProvider) *usecases.RoutePlanner {
	geocoder := &mockGeocoder{geocodeFn: func(ctx context.Context, q string, limit int) ([]domain.Place, error) {
		if q == "parramatta" {
			return []domain.Place{parramatta}, nil
		}
		return nil, nil
	}}
	places := usecases.NewGeocodeCache(geocoder, nil, usecases.GeocodeCacheConfig{}, nil)
	return usecases.NewRoutePlanner(places, reverse, directions)
}

func TestRoutePlanner_TextDestination(t *testing.T) {
	directions := &mockDirections{}
	plan, err := newPlanner(nil, directions).Plan(context.Background(), sydneyCenter, usecases.RouteTarget{Text: " Parramatta "})
	require.NoError(t, err)

	assert.Equal(t, parramatta.Label, plan.To.Label)
	assert.Equal(t, parramatta.Point, plan.To.Point)
	assert.Equal(t, "-33.8688, 151.2093", plan.From.Label)
	assert.Equal(t, 13, plan.Driving.Minutes)
	assert.InDelta(t, 13.1, plan.Driving.Km, 1e-9)
	assert.Equal(t, 39, plan.Cycling.Minutes)
	assert.Len(t, plan.Geometry.Coordinates, 3)
	assert.Equal(t, 1, directions.count(domain.ProfileDriving))
	assert.Equal(t, 1, directions.count(domain.ProfileCycling))
}

func TestRoutePlanner_PointDestinationLabel(t *testing.T) {
	to := domain.GeoPoint{Lat: -33.8123, Lng: 151.0011}

	reverse := &mockReverse{reverseFn: func(ctx context.Context, p domain.GeoPoint) (string, error) {
		return "Westmead, NSW", nil
	}}
	plan, err := newPlanner(reverse, &mockDirections{}).Plan(context.Background(), sydneyCenter, usecases.RouteTarget{Point: &to})
	require.NoError(t, err)
	assert.Equal(t, "Westmead, NSW", plan.To.Label)

	plan, err = newPlanner(&mockReverse{}, &mockDirections{}).Plan(context.Background(), sydneyCenter, usecases.RouteTarget{Point: &to})
	require.NoError(t, err)
	assert.Equal(t, "-33.8123, 151.0011", plan.To.Label)
}

func TestRoutePlanner_Errors(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(nil, &mockDirections{})

	_, err := p.Plan(ctx, sydneyCenter, usecases.RouteTarget{Text: "Atlantis"})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = p.Plan(ctx, sydneyCenter, usecases.RouteTarget{})
	assert.Error(t, err)

	_, err = p.Plan(ctx, domain.GeoPoint{Lat: 91}, usecases.RouteTarget{Text: "parramatta"})
	assert.Error(t, err)

	_, err = usecases.NewRoutePlanner(nil, nil, &mockDirections{}).Plan(ctx, sydneyCenter, usecases.RouteTarget{Text: "parramatta"})
	assert.ErrorIs(t, err, ports.ErrMissingCredentials)

	boom := errors.New("upstream 502")
	failing := &mockDirections{directionFn: func(ctx context.Context, profile domain.RouteProfile, from, to domain.GeoPoint) (domain.Route, error) {
		if profile == domain.ProfileCycling {
			return domain.Route{}, boom
		}
		return straightRoute(profile, from, to), nil
	}}
	_, err = newPlanner(nil, failing).Plan(ctx, sydneyCenter, usecases.RouteTarget{Text: "parramatta"})
	assert.ErrorIs(t, err, boom)
}
