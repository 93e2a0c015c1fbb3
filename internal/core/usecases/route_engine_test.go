package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
)

var parramatta = domain.Place{Label: "Parramatta, New South Wales, Australia", Point: domain.GeoPoint{Lat: -33.8150, Lng: 151.0011}}

type routeFixture struct {
	engine     *usecases.RouteEngine
	surface    *fakeSurface
	registry   *usecases.MarkerRegistry
	directions *mockDirections
	geocoder   *mockGeocoder
	sink       *recordingRouteSink
}

func newRouteFixture(t *testing.T, reverse ports.ReverseGeocoder) *routeFixture {
	t.Helper()
	f := &routeFixture{
		surface:    &fakeSurface{},
		directions: &mockDirections{},
		sink:       &recordingRouteSink{},
		geocoder: &mockGeocoder{geocodeFn: func(ctx context.Context, q string, limit int) ([]domain.Place, error) {
			if q == "parramatta" {
				return []domain.Place{parramatta}, nil
			}
			return nil, nil
		}},
	}
	places := usecases.NewGeocodeCache(f.geocoder, nil, usecases.GeocodeCacheConfig{}, nil)
	f.registry = usecases.NewMarkerRegistry(f.surface, nil, nil, nil)
	cfg := usecases.DefaultRouteConfig()
	cfg.FitDelay = 10 * time.Millisecond
	f.engine = usecases.NewRouteEngine(places, reverse, f.directions, f.surface, f.registry, f.sink, cfg, nil)
	t.Cleanup(f.engine.Close)
	return f
}

func sydneyOrigin(f *routeFixture) *domain.RouteOrigin {
	e := business("biz-1", sydneyCenter.Lat, sydneyCenter.Lng)
	f.registry.Sync([]domain.Entity{e})
	return &domain.RouteOrigin{EntityID: e.ID, Point: sydneyCenter, Label: e.DisplayName}
}

func TestRouteEngine_QueryThenDrag(t *testing.T) {
	reverse := &mockReverse{reverseFn: func(ctx context.Context, p domain.GeoPoint) (string, error) {
		return "Westmead, NSW", nil
	}}
	f := newRouteFixture(t, reverse)
	f.engine.SetOrigin(sydneyOrigin(f))

	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	st := f.engine.State()
	require.Equal(t, domain.PhaseRouted, st.Phase)
	assert.False(t, st.Busy)
	assert.Equal(t, parramatta.Label, st.PointB.Label)
	assert.Equal(t, sydneyCenter, st.PointA.Point)
	assert.Equal(t, 1, f.directions.count(domain.ProfileDriving))
	assert.Equal(t, 1, f.directions.count(domain.ProfileCycling))
	assert.Greater(t, st.CyclingMinutes, st.DrivingMinutes)
	assert.Equal(t, domain.StyleRouteOrigin, f.surface.handle("biz-1").style)
	assert.Nil(t, f.surface.handle("route:a"), "the entity marker serves as Point A")
	require.NotNil(t, f.surface.handle("route:b"))
	assert.True(t, f.surface.handle("route:b").spec.Draggable)

	dropped := domain.GeoPoint{Lat: -33.80, Lng: 150.99}
	require.True(t, f.engine.DragEnd(dropped))
	f.engine.Wait()

	st = f.engine.State()
	require.Equal(t, domain.PhaseRouted, st.Phase)
	assert.Equal(t, dropped, st.PointB.Point)
	assert.Equal(t, "Westmead, NSW", st.PointB.Label)
	assert.Equal(t, "Westmead, NSW", st.Query)
	assert.Equal(t, 2, f.directions.count(domain.ProfileDriving))
	assert.Equal(t, 2, f.directions.count(domain.ProfileCycling))
	assert.Equal(t, dropped, f.surface.handle("route:b").position)
	assert.Equal(t, int32(1), f.geocoder.calls.Load(), "drag does not forward-geocode")

	// Echoing the new label back does not recompute.
	f.engine.SetQuery("Westmead, NSW")
	f.engine.Wait()
	assert.Equal(t, 2, f.directions.count(domain.ProfileDriving))
	assert.Equal(t, 2, f.engine.Recomputations())
	assert.Equal(t, st, f.sink.last())
}

func TestRouteEngine_DragLabelFallsBackToCoordinates(t *testing.T) {
	f := newRouteFixture(t, &mockReverse{})
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("parramatta")
	f.engine.Wait()

	p := domain.GeoPoint{Lat: -33.81234, Lng: 151.00111}
	require.True(t, f.engine.DragEnd(p))
	f.engine.Wait()
	assert.Equal(t, "-33.8123, 151.0011", f.engine.State().PointB.Label)
}

func TestRouteEngine_DragWithoutDestination(t *testing.T) {
	f := newRouteFixture(t, nil)
	assert.False(t, f.engine.DragEnd(sydneyCenter))
	f.engine.SetOrigin(sydneyOrigin(f))
	assert.False(t, f.engine.DragEnd(sydneyCenter))
}

func TestRouteEngine_SameQueryIsNoop(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()
	f.engine.SetQuery(" Parramatta ")
	f.engine.Wait()

	assert.Equal(t, 1, f.engine.Recomputations())
	assert.Equal(t, 1, f.directions.count(domain.ProfileDriving))
}

func TestRouteEngine_EmptyQueryClears(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	f.engine.SetQuery("")
	st := f.engine.State()
	assert.Equal(t, domain.PhaseIdle, st.Phase)
	assert.Nil(t, st.PointB)
	assert.Nil(t, f.surface.handle("route:b"))
	assert.Equal(t, 1, f.surface.clears)
	assert.Equal(t, domain.StyleDefault, f.surface.handle("biz-1").style)
}

func TestRouteEngine_QueryWithoutOrigin(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	st := f.engine.State()
	assert.Equal(t, domain.PhaseIdle, st.Phase)
	assert.Equal(t, "Parramatta", st.Query)
	assert.Equal(t, 0, f.engine.Recomputations())

	// Selecting an origin later routes to the stored query.
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.Wait()
	assert.Equal(t, domain.PhaseRouted, f.engine.State().Phase)
}

func TestRouteEngine_NotFoundThenRecovers(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(sydneyOrigin(f))

	f.engine.SetQuery("Atlantis")
	f.engine.Wait()
	st := f.engine.State()
	assert.Equal(t, domain.PhaseError, st.Phase)
	assert.Contains(t, st.Error, "not found")
	assert.False(t, st.Busy)
	assert.Equal(t, 0, f.directions.count(domain.ProfileDriving))

	f.engine.SetQuery("Parramatta")
	f.engine.Wait()
	st = f.engine.State()
	assert.Equal(t, domain.PhaseRouted, st.Phase)
	assert.Empty(t, st.Error)
}

func TestRouteEngine_DirectionsFailureClearsLine(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	f.directions.directionFn = func(ctx context.Context, profile domain.RouteProfile, from, to domain.GeoPoint) (domain.Route, error) {
		if profile == domain.ProfileCycling {
			return domain.Route{}, errors.New("no cycling network")
		}
		return straightRoute(profile, from, to), nil
	}
	require.True(t, f.engine.DragEnd(domain.GeoPoint{Lat: -33.82, Lng: 151.0}))
	f.engine.Wait()

	st := f.engine.State()
	assert.Equal(t, domain.PhaseError, st.Phase)
	assert.True(t, st.Geometry.Empty())
	assert.NotNil(t, f.surface.handle("route:b"), "Point B stays so the user can retry")
	assert.Equal(t, 1, f.surface.clears)
}

func TestRouteEngine_MissingCredentials(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.geocoder.geocodeFn = func(ctx context.Context, q string, limit int) ([]domain.Place, error) {
		return nil, ports.ErrMissingCredentials
	}
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	assert.Equal(t, usecases.NoticeLocationUnavailable, f.engine.State().Error)
}

func TestRouteEngine_FitsViewportAfterDelay(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	require.Eventually(t, func() bool { return f.surface.fitCount() == 1 }, time.Second, 5*time.Millisecond)
	f.surface.mu.Lock()
	defer f.surface.mu.Unlock()
	assert.Equal(t, domain.Padding{Top: 120, Bottom: 120, Left: 150, Right: 150}, f.surface.fitPad)
	assert.Equal(t, 13.0, f.surface.fitZoom)
	b := f.surface.fits[0]
	assert.True(t, b.Contains(sydneyCenter))
	assert.True(t, b.Contains(parramatta.Point))
}

func TestRouteEngine_FloatingOrigin(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(&domain.RouteOrigin{Point: sydneyCenter, Label: "Unmarked"})
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	h := f.surface.handle("route:a")
	require.NotNil(t, h)
	assert.Equal(t, sydneyCenter, h.position)
	assert.Equal(t, domain.StyleRouteOrigin, h.style)
}

func TestRouteEngine_ClearOriginKeepsQuery(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()

	f.engine.SetOrigin(nil)
	st := f.engine.State()
	assert.Equal(t, domain.PhaseIdle, st.Phase)
	assert.Equal(t, "Parramatta", st.Query)
	assert.Nil(t, f.surface.handle("route:b"))
	assert.Equal(t, st, f.sink.last())
}

func TestRouteEngine_RedrawAfterStyleChange(t *testing.T) {
	f := newRouteFixture(t, nil)
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")
	f.engine.Wait()
	require.Equal(t, 1, f.surface.routeCount())

	f.engine.Redraw()
	assert.Equal(t, 2, f.surface.routeCount())
	assert.Equal(t, 1, f.surface.handle("route:b").attaches)
}

func TestRouteEngine_SupersededComputationDiscarded(t *testing.T) {
	f := newRouteFixture(t, nil)
	release := make(chan struct{})
	f.directions.directionFn = func(ctx context.Context, profile domain.RouteProfile, from, to domain.GeoPoint) (domain.Route, error) {
		if to == parramatta.Point {
			<-release
		}
		return straightRoute(profile, from, to), nil
	}
	f.engine.SetOrigin(sydneyOrigin(f))
	f.engine.SetQuery("Parramatta")

	require.Eventually(t, func() bool { return f.directions.count(domain.ProfileDriving) >= 1 }, time.Second, time.Millisecond)
	f.engine.SetOrigin(&domain.RouteOrigin{Point: domain.GeoPoint{Lat: -33.9, Lng: 151.2}, Label: "Elsewhere"})
	close(release)
	f.engine.Wait()

	st := f.engine.State()
	assert.Equal(t, domain.PhaseRouted, st.Phase)
	assert.Equal(t, "Elsewhere", st.PointA.Label)
	assert.Equal(t, 1, f.surface.routeCount())
}
