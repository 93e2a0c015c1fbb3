package usecases_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
)

// --- Mock Geocoder ---

type mockGeocoder struct {
	calls     atomic.Int32
	geocodeFn func(ctx context.Context, query string, limit int) ([]domain.Place, error)
}

func (m *mockGeocoder) Geocode(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	m.calls.Add(1)
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, query, limit)
	}
	return nil, nil
}

// --- Mock ReverseGeocoder ---

type mockReverse struct {
	reverseFn func(ctx context.Context, p domain.GeoPoint) (string, error)
}

func (m *mockReverse) ReverseGeocode(ctx context.Context, p domain.GeoPoint) (string, error) {
	if m.reverseFn != nil {
		return m.reverseFn(ctx, p)
	}
	return "", ports.ErrNotFound
}

// --- Mock DirectionsProvider ---

type mockDirections struct {
	mu          sync.Mutex
	calls       map[domain.RouteProfile]int
	directionFn func(ctx context.Context, profile domain.RouteProfile, from, to domain.GeoPoint) (domain.Route, error)
}

func (m *mockDirections) Directions(ctx context.Context, profile domain.RouteProfile, from, to domain.GeoPoint) (domain.Route, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = map[domain.RouteProfile]int{}
	}
	m.calls[profile]++
	m.mu.Unlock()
	if m.directionFn != nil {
		return m.directionFn(ctx, profile, from, to)
	}
	return straightRoute(profile, from, to), nil
}

func (m *mockDirections) count(profile domain.RouteProfile) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[profile]
}

// straightRoute fakes a route: 30 s and 500 m per hundredth of a degree by car,
// three times slower by bike.
func straightRoute(profile domain.RouteProfile, from, to domain.GeoPoint) domain.Route {
	dx := to.Lng - from.Lng
	dy := to.Lat - from.Lat
	units := (abs(dx) + abs(dy)) * 100
	r := domain.Route{
		Profile:         profile,
		DurationSeconds: units * 30,
		DistanceMeters:  units * 500,
		Geometry: domain.GeoLineString{Coordinates: [][2]float64{
			from.LngLat(),
			{from.Lng + dx/2, from.Lat + dy/2},
			to.LngLat(),
		}},
	}
	if profile == domain.ProfileCycling {
		r.DurationSeconds *= 3
	}
	return r
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// --- Mock EntityRepository ---

type mockEntityRepo struct {
	mu      sync.Mutex
	fetches [][]string
	saved   map[string]domain.GeoPoint
	fetchFn func(ctx context.Context, kind domain.EntityKind, columns []string, q ports.EntityQuery) ([]domain.Entity, error)
	listFn  func(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error)
	saveErr error
}

func (m *mockEntityRepo) Fetch(ctx context.Context, kind domain.EntityKind, columns []string, q ports.EntityQuery) ([]domain.Entity, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, columns)
	m.mu.Unlock()
	if m.fetchFn != nil {
		return m.fetchFn(ctx, kind, columns, q)
	}
	return nil, nil
}

func (m *mockEntityRepo) ListUngeolocated(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error) {
	if m.listFn != nil {
		return m.listFn(ctx, kind, afterID, limit)
	}
	return nil, nil
}

func (m *mockEntityRepo) SaveCoordinates(ctx context.Context, kind domain.EntityKind, id string, p domain.GeoPoint) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]domain.GeoPoint{}
	}
	m.saved[id] = p
	return nil
}

func (m *mockEntityRepo) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetches)
}

// --- Mock IntentRepository ---

type mockIntentRepo struct {
	calls int
	getFn func(ctx context.Context, kind domain.EntityKind, ids []string) (map[string]domain.Intent, error)
}

func (m *mockIntentRepo) GetByProfileIDs(ctx context.Context, kind domain.EntityKind, ids []string) (map[string]domain.Intent, error) {
	m.calls++
	if m.getFn != nil {
		return m.getFn(ctx, kind, ids)
	}
	return nil, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: map[string][]byte{}} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	geocoded []domain.EntityGeocoded
	actions  []domain.PopupActionEvent
}

func (m *mockPublisher) PublishEntityGeocoded(ctx context.Context, ev domain.EntityGeocoded) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geocoded = append(m.geocoded, ev)
	return nil
}

func (m *mockPublisher) PublishPopupAction(ctx context.Context, ev domain.PopupActionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, ev)
	return nil
}

// --- Fake map surface ---

type fakeHandle struct {
	spec      domain.MarkerSpec
	style     domain.MarkerStyle
	position  domain.GeoPoint
	popup     domain.PopupDescriptor
	popupOpen bool
	attaches  int
	removed   bool
}

type fakeSurface struct {
	mu      sync.Mutex
	handles []*fakeHandle
	routes  []domain.GeoLineString
	clears  int
	fits    []domain.Bounds
	fitPad  domain.Padding
	fitZoom float64
	flights []domain.GeoPoint
}

func (s *fakeSurface) AddMarker(spec domain.MarkerSpec) ports.MarkerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeHandle{spec: spec, style: spec.Style, position: spec.Point, popup: spec.Popup}
	s.handles = append(s.handles, h)
	return &lockedHandle{s: s, h: h}
}

func (s *fakeSurface) DrawRoute(line domain.GeoLineString) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, line)
}

func (s *fakeSurface) ClearRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *fakeSurface) FitBounds(b domain.Bounds, pad domain.Padding, maxZoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits = append(s.fits, b)
	s.fitPad = pad
	s.fitZoom = maxZoom
}

func (s *fakeSurface) FlyTo(p domain.GeoPoint, zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flights = append(s.flights, p)
}

func (s *fakeSurface) created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *fakeSurface) handle(id string) *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		if h.spec.ID == id && !h.removed {
			return h
		}
	}
	return nil
}

func (s *fakeSurface) fitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fits)
}

func (s *fakeSurface) routeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.routes)
}

// lockedHandle serializes handle mutations through the surface lock.
type lockedHandle struct {
	s *fakeSurface
	h *fakeHandle
}

func (l *lockedHandle) do(f func(h *fakeHandle)) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	f(l.h)
}

func (l *lockedHandle) SetStyle(style domain.MarkerStyle) {
	l.do(func(h *fakeHandle) { h.style = style })
}
func (l *lockedHandle) SetPosition(p domain.GeoPoint)     { l.do(func(h *fakeHandle) { h.position = p }) }
func (l *lockedHandle) SetPopup(p domain.PopupDescriptor) { l.do(func(h *fakeHandle) { h.popup = p }) }
func (l *lockedHandle) OpenPopup()                        { l.do(func(h *fakeHandle) { h.popupOpen = true }) }
func (l *lockedHandle) ClosePopup()                       { l.do(func(h *fakeHandle) { h.popupOpen = false }) }
func (l *lockedHandle) Attach()                           { l.do(func(h *fakeHandle) { h.attaches++ }) }
func (l *lockedHandle) Remove()                           { l.do(func(h *fakeHandle) { h.removed = true }) }

// --- Recording sinks ---

type recordingSink struct {
	mu      sync.Mutex
	results []domain.ResultSet
	errs    []error
	ch      chan struct{}
}

func newRecordingSink() *recordingSink { return &recordingSink{ch: make(chan struct{}, 64)} }

func (r *recordingSink) DeliverResults(rs domain.ResultSet) {
	r.mu.Lock()
	r.results = append(r.results, rs)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recordingSink) DeliverError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recordingSink) delivered() []domain.ResultSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ResultSet(nil), r.results...)
}

type recordingRouteSink struct {
	mu     sync.Mutex
	states []domain.RouteState
}

func (r *recordingRouteSink) RouteChanged(s domain.RouteState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingRouteSink) last() domain.RouteState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return domain.RouteState{}
	}
	return r.states[len(r.states)-1]
}

type recordingSelection struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingSelection) Selected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

type recordingActions struct {
	mu  sync.Mutex
	evs []domain.PopupActionEvent
}

func (r *recordingActions) PopupAction(ev domain.PopupActionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
}

type recordingClient struct {
	mu      sync.Mutex
	results []domain.ResultSet
	routes  []domain.RouteState
	actions []domain.PopupActionEvent
	notices []string
	errors  []string
}

func (c *recordingClient) Results(rs domain.ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, rs)
}

func (c *recordingClient) Route(s domain.RouteState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = append(c.routes, s)
}

func (c *recordingClient) Action(ev domain.PopupActionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, ev)
}

func (c *recordingClient) Notice(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, msg)
}

func (c *recordingClient) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, msg)
}

type clientView struct {
	results []domain.ResultSet
	routes  []domain.RouteState
	actions []domain.PopupActionEvent
	notices []string
	errors  []string
}

func (c *recordingClient) snapshot() clientView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clientView{
		results: append([]domain.ResultSet(nil), c.results...),
		routes:  append([]domain.RouteState(nil), c.routes...),
		actions: append([]domain.PopupActionEvent(nil), c.actions...),
		notices: append([]string(nil), c.notices...),
		errors:  append([]string(nil), c.errors...),
	}
}

func ptr[T any](v T) *T { return &v }
