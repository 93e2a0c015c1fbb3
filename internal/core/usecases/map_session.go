package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/debounce"
	"github.com/creerlio/discovery/internal/pkg/logging"
)

// Debounced filter fields.
const (
	FieldQuery    = "query"
	FieldLocation = "location"
	FieldRole     = "role"
	FieldSkills   = "skills"
	FieldRadius   = "radius"
)

// MapSessionDeps are the collaborators shared by every session.
type MapSessionDeps struct {
	Search     Searcher
	Places     *GeocodeCache
	Reverse    ports.ReverseGeocoder
	Directions ports.DirectionsProvider
	Events     ports.EventPublisher
	Debounce   time.Duration
	Route      RouteConfig
	Kind       domain.EntityKind
	RadiusKm   float64
	Logger     *slog.Logger
}

// MapSession drives one interactive map: debounced filter edits feed the result
// pipeline, accepted results reconcile the marker registry, and the selection
// feeds the route engine.
type MapSession struct {
	ID string

	client   ports.SessionClient
	places   *GeocodeCache
	events   ports.EventPublisher
	logger   *slog.Logger
	fields   *debounce.Group[string]
	pipeline *ResultPipeline
	registry *MarkerRegistry
	route    *RouteEngine

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	filter      domain.FilterState
	results     map[string]domain.Entity
	locationGen uint64
	noticeSent  bool
	closed      bool
	wg          sync.WaitGroup
}

// NewMapSession wires a session drawing on surface and reporting to client.
func NewMapSession(id string, deps MapSessionDeps, surface ports.MapSurface, client ports.SessionClient) *MapSession {
	logger := logging.OrDefault(deps.Logger).With("session", id)
	ctx, cancel := context.WithCancel(context.Background())

	kind := deps.Kind
	if !kind.Valid() {
		kind = domain.KindTalent
	}
	s := &MapSession{
		ID:      id,
		client:  client,
		places:  deps.Places,
		events:  deps.Events,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		filter:  domain.FilterState{Kind: kind, RadiusKm: deps.RadiusKm},
		results: make(map[string]domain.Entity),
	}
	s.fields = debounce.NewGroup(deps.Debounce, s.applyField)
	s.pipeline = NewResultPipeline(deps.Search, s, logger)
	s.registry = NewMarkerRegistry(surface, s, s, logger)

	var places PlaceLookup
	if deps.Places != nil {
		places = deps.Places
	} else {
		places = unavailableLookup{}
	}
	s.route = NewRouteEngine(places, deps.Reverse, deps.Directions, surface, s.registry, s, deps.Route, logger)
	return s
}

// Start issues the initial fetch.
func (s *MapSession) Start() {
	s.refetch()
}

// SetField records a debounced filter edit.
func (s *MapSession) SetField(name, value string) error {
	switch name {
	case FieldQuery, FieldLocation, FieldRole, FieldSkills, FieldRadius:
	default:
		return fmt.Errorf("unknown field %q", name)
	}
	s.fields.Set(name, value)
	return nil
}

// SetKind switches the searched population.
func (s *MapSession) SetKind(kind domain.EntityKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	s.update(func(f *domain.FilterState) { f.Kind = kind })
	return nil
}

// SetCenter sets or clears the search center directly, bypassing geocoding.
func (s *MapSession) SetCenter(c *domain.SearchCenter) {
	s.mu.Lock()
	s.locationGen++
	s.mu.Unlock()
	s.update(func(f *domain.FilterState) { f.Center = c })
}

// SetRadius sets the radius immediately.
func (s *MapSession) SetRadius(km float64) {
	if !domain.ValidRadius(km) {
		s.client.Error(fmt.Sprintf("invalid radius %v", km))
		return
	}
	s.update(func(f *domain.FilterState) { f.RadiusKm = km })
}

// SetIntentStatus sets the intent filter.
func (s *MapSession) SetIntentStatus(status string) {
	s.update(func(f *domain.FilterState) { f.IntentStatus = strings.TrimSpace(status) })
}

// SetMinExperience sets or clears the experience floor.
func (s *MapSession) SetMinExperience(years *int) {
	s.update(func(f *domain.FilterState) { f.MinExperience = years })
}

// Filter returns the current filter snapshot.
func (s *MapSession) Filter() domain.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Select makes id the selection and derives the route origin from it. An empty
// id clears the selection.
func (s *MapSession) Select(id string) {
	s.registry.SetSelected(id)
	s.route.SetOrigin(s.originFor(id))
}

// Click handles a click on a marker.
func (s *MapSession) Click(id string) error {
	return s.registry.Click(id)
}

// Focus handles a click on a result list row.
func (s *MapSession) Focus(id string) {
	s.Select(id)
	s.registry.Focus(id)
}

// RouteQuery sets the destination text of the route.
func (s *MapSession) RouteQuery(text string) {
	s.route.SetQuery(text)
}

// DragEnd handles the end of a destination marker drag.
func (s *MapSession) DragEnd(p domain.GeoPoint) bool {
	return s.route.DragEnd(p)
}

// StyleChanged re-establishes markers and the route on a fresh map style.
func (s *MapSession) StyleChanged() {
	s.registry.Reattach()
	s.route.Redraw()
}

// TriggerAction runs a popup action.
func (s *MapSession) TriggerAction(id string, action domain.PopupAction) error {
	return s.registry.TriggerAction(id, action)
}

// Route returns the route state.
func (s *MapSession) Route() domain.RouteState {
	return s.route.State()
}

// Markers returns the number of live markers.
func (s *MapSession) Markers() int {
	return s.registry.Len()
}

// Flush applies pending debounced edits now.
func (s *MapSession) Flush() {
	s.fields.Flush()
}

// Wait blocks until no background work of the session is running.
func (s *MapSession) Wait() {
	s.wg.Wait()
	s.pipeline.Wait()
	s.route.Wait()
}

// Close stops timers, cancels work and tears down the map.
func (s *MapSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.fields.Stop()
	s.cancel()
	s.pipeline.Close()
	s.route.Close()
	s.wg.Wait()
	s.pipeline.Wait()
	s.registry.Clear()
}

// DeliverResults implements ports.ResultSink.
func (s *MapSession) DeliverResults(rs domain.ResultSet) {
	s.registry.Sync(rs.Entities)

	s.mu.Lock()
	s.results = make(map[string]domain.Entity, len(rs.Entities))
	for _, e := range rs.Entities {
		s.results[e.ID] = e
	}
	sendNotice := rs.Notice != "" && !s.noticeSent
	if sendNotice {
		s.noticeSent = true
	}
	s.mu.Unlock()

	s.client.Results(rs)
	if sendNotice {
		s.client.Notice(rs.Notice)
	}

	// Sync drops the selection when its marker leaves.
	if s.registry.Selected() == "" {
		s.route.SetOrigin(nil)
	}
}

// DeliverError implements ports.ResultSink.
func (s *MapSession) DeliverError(err error) {
	s.client.Error(err.Error())
}

// Selected implements ports.SelectionSink.
func (s *MapSession) Selected(id string) {
	s.Select(id)
}

// RouteChanged implements ports.RouteSink.
func (s *MapSession) RouteChanged(st domain.RouteState) {
	s.client.Route(st)
}

// PopupAction implements ports.ActionSink.
func (s *MapSession) PopupAction(ev domain.PopupActionEvent) {
	s.client.Action(ev)
	if s.events == nil {
		return
	}
	if err := s.events.PublishPopupAction(s.ctx, ev); err != nil {
		s.logger.Warn("publish popup action", "action", ev.Action, "error", err)
	}
}

func (s *MapSession) applyField(name, value string) {
	value = strings.TrimSpace(value)
	switch name {
	case FieldQuery:
		s.update(func(f *domain.FilterState) { f.Query = value })
	case FieldRole:
		s.update(func(f *domain.FilterState) { f.Role = value })
	case FieldSkills:
		s.update(func(f *domain.FilterState) { f.Skills = domain.ParseSkills(value) })
	case FieldRadius:
		km, err := strconv.ParseFloat(value, 64)
		if err != nil || !domain.ValidRadius(km) {
			s.client.Error(fmt.Sprintf("invalid radius %q", value))
			return
		}
		s.update(func(f *domain.FilterState) { f.RadiusKm = km })
	case FieldLocation:
		s.resolveLocation(value)
	}
}

// resolveLocation geocodes the location field into the search center. Only the
// latest edit may set the center.
func (s *MapSession) resolveLocation(text string) {
	s.mu.Lock()
	s.locationGen++
	gen := s.locationGen
	s.mu.Unlock()

	if text == "" {
		s.update(func(f *domain.FilterState) { f.Center = nil })
		return
	}
	if s.places == nil {
		s.notice(NoticeLocationUnavailable)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		place, ok, err := s.places.Lookup(s.ctx, text)

		s.mu.Lock()
		stale := gen != s.locationGen || s.closed
		s.mu.Unlock()
		if stale {
			return
		}
		switch {
		case errors.Is(err, ports.ErrMissingCredentials):
			s.notice(NoticeLocationUnavailable)
		case err != nil:
			if s.ctx.Err() == nil {
				s.client.Error(fmt.Sprintf("location lookup failed: %v", err))
			}
		case !ok:
			s.client.Error(fmt.Sprintf("location %q not found", text))
		default:
			label := place.Label
			if label == "" {
				label = text
			}
			s.update(func(f *domain.FilterState) {
				f.Center = &domain.SearchCenter{Point: place.Point, Label: label}
			})
		}
	}()
}

func (s *MapSession) update(mut func(f *domain.FilterState)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	mut(&s.filter)
	s.mu.Unlock()
	s.refetch()
}

func (s *MapSession) refetch() {
	s.mu.Lock()
	f := s.filter
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.pipeline.Fetch(s.ctx, f)
}

func (s *MapSession) notice(msg string) {
	s.mu.Lock()
	if s.noticeSent {
		s.mu.Unlock()
		return
	}
	s.noticeSent = true
	s.mu.Unlock()
	s.client.Notice(msg)
}

// originFor derives Point A from an entity in the current result set.
func (s *MapSession) originFor(id string) *domain.RouteOrigin {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	e, ok := s.results[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	p, ok := e.Coordinates()
	if !ok {
		return nil
	}
	label := e.DisplayName
	if label == "" {
		label = e.Title
	}
	o := &domain.RouteOrigin{Point: p, Label: label}
	if _, has := s.registry.Position(id); has {
		o.EntityID = id
	}
	return o
}

type unavailableLookup struct{}

func (unavailableLookup) Lookup(context.Context, string) (domain.Place, bool, error) {
	return domain.Place{}, false, ports.ErrMissingCredentials
}
