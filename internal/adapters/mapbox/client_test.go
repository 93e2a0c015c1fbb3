package mapbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{Token: "pk.test", BaseURL: srv.URL, Country: "AU"}, srv.Client(), nil)
}

func TestGeocode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocoding/v5/mapbox.places/Parramatta NSW.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "pk.test", q.Get("access_token"))
		assert.Equal(t, "au", q.Get("country"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Empty(t, q.Get("types"))
		_, _ = w.Write([]byte(`{"features":[{"place_name":"Parramatta, New South Wales, Australia","center":[151.0011,-33.815]}]}`))
	})

	places, err := c.Geocode(context.Background(), " Parramatta NSW ", 1)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Parramatta, New South Wales, Australia", places[0].Label)
	assert.Equal(t, domain.GeoPoint{Lat: -33.815, Lng: 151.0011}, places[0].Point)
}

func TestGeocode_SuggestionsNarrowTypes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "6", r.URL.Query().Get("limit"))
		assert.Equal(t, suggestTypes, r.URL.Query().Get("types"))
		_, _ = w.Write([]byte(`{"features":[]}`))
	})
	places, err := c.Geocode(context.Background(), "Syd", 6)
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestGeocode_EmptyQuerySkipsProvider(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	places, err := c.Geocode(context.Background(), "  ", 1)
	require.NoError(t, err)
	assert.Nil(t, places)
	assert.Zero(t, calls.Load())
}

func TestMissingToken(t *testing.T) {
	c := New(Config{}, nil, nil)
	_, err := c.Geocode(context.Background(), "Sydney", 1)
	assert.ErrorIs(t, err, ports.ErrMissingCredentials)
	_, err = c.Directions(context.Background(), domain.ProfileDriving, domain.GeoPoint{}, domain.GeoPoint{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, ports.ErrMissingCredentials)
}

func TestUnauthorizedMapsToMissingCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized - Invalid Token"}`))
	})
	_, err := c.Geocode(context.Background(), "Sydney", 1)
	assert.ErrorIs(t, err, ports.ErrMissingCredentials)
}

func TestServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})
	_, err := c.Geocode(context.Background(), "Sydney", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.False(t, errors.Is(err, ports.ErrMissingCredentials))
}

func TestReverseGeocode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocoding/v5/mapbox.places/151.001100,-33.815000.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"features":[{"place_name":"Parramatta NSW 2150, Australia","center":[151.0011,-33.815]}]}`))
	})
	label, err := c.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: -33.815, Lng: 151.0011})
	require.NoError(t, err)
	assert.Equal(t, "Parramatta NSW 2150, Australia", label)
}

func TestReverseGeocode_NoFeatures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	})
	_, err := c.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: -33.815, Lng: 151.0011})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestDirections(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/directions/v5/mapbox/cycling/151.209300,-33.868800;151.001100,-33.815000"))
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"duration":4530.2,"distance":23456,"geometry":{"coordinates":[[151.2093,-33.8688],[151.1,-33.84],[151.0011,-33.815]]}}]}`))
	})
	r, err := c.Directions(context.Background(), domain.ProfileCycling,
		domain.GeoPoint{Lat: -33.8688, Lng: 151.2093}, domain.GeoPoint{Lat: -33.815, Lng: 151.0011})
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileCycling, r.Profile)
	assert.Equal(t, 76, r.Minutes())
	assert.Equal(t, 23.5, r.Kilometers())
	assert.Len(t, r.Geometry.Coordinates, 3)
}

func TestDirections_NoRoute(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NoRoute","message":"No route found","routes":[]}`))
	})
	_, err := c.Directions(context.Background(), domain.ProfileDriving,
		domain.GeoPoint{Lat: -33.8688, Lng: 151.2093}, domain.GeoPoint{Lat: -41.28, Lng: 174.77})
	require.ErrorIs(t, err, ports.ErrNotFound)
	assert.Contains(t, err.Error(), "NoRoute")
}

func TestDirections_UnsupportedProfile(t *testing.T) {
	c := New(Config{Token: "x"}, nil, nil)
	_, err := c.Directions(context.Background(), "walking", domain.GeoPoint{}, domain.GeoPoint{})
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Geocode(ctx, "Sydney", 1)
	assert.ErrorIs(t, err, context.Canceled)
}
