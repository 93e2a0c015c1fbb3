package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/metrics"
	"github.com/creerlio/discovery/internal/pkg/telemetry"
)

// PlaceLookup resolves free text to a single labelled place.
type PlaceLookup interface {
	Lookup(ctx context.Context, raw string) (domain.Place, bool, error)
}

// OriginMarker lets the route engine reuse an entity marker as Point A.
type OriginMarker interface {
	MarkRouteOrigin(id string, on bool) bool
}

// RouteConfig tunes RouteEngine.
type RouteConfig struct {
	FitDelay time.Duration
	Padding  domain.Padding
	MaxZoom  float64
}

// DefaultRouteConfig matches the map defaults.
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		FitDelay: 300 * time.Millisecond,
		Padding:  domain.Padding{Top: 120, Bottom: 120, Left: 150, Right: 150},
		MaxZoom:  13,
	}
}

type routeTrigger string

const (
	triggerQuery  routeTrigger = "query"
	triggerDrag   routeTrigger = "drag"
	triggerOrigin routeTrigger = "origin"
)

type routeJob struct {
	trigger routeTrigger
	origin  domain.RouteOrigin
	text    string
	dest    *domain.Waypoint
}

// RouteEngine computes and draws a route from the selected origin to a
// destination typed as text or dragged on the map. Every recomputation bumps a
// generation; results of older generations are discarded.
type RouteEngine struct {
	places     PlaceLookup
	reverse    ports.ReverseGeocoder
	directions ports.DirectionsProvider
	surface    ports.MapSurface
	markers    OriginMarker
	sink       ports.RouteSink
	cfg        RouteConfig
	logger     *slog.Logger

	mu           sync.Mutex
	state        domain.RouteState
	origin       *domain.RouteOrigin
	gen          uint64
	cancel       context.CancelFunc
	destHandle   ports.MarkerHandle
	originHandle ports.MarkerHandle
	markedOrigin string
	fitTimer     *time.Timer
	computations int
	version      uint64

	emitMu  sync.Mutex
	emitted uint64

	wg sync.WaitGroup
}

// NewRouteEngine creates a RouteEngine. markers and sink may be nil.
func NewRouteEngine(places PlaceLookup, reverse ports.ReverseGeocoder, directions ports.DirectionsProvider,
	surface ports.MapSurface, markers OriginMarker, sink ports.RouteSink, cfg RouteConfig, logger *slog.Logger) *RouteEngine {
	return &RouteEngine{
		places:     places,
		reverse:    reverse,
		directions: directions,
		surface:    surface,
		markers:    markers,
		sink:       sink,
		cfg:        cfg,
		logger:     logging.OrDefault(logger),
		state:      domain.RouteState{Phase: domain.PhaseIdle},
	}
}

// State returns a snapshot of the route state.
func (e *RouteEngine) State() domain.RouteState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Recomputations returns how many route computations were started.
func (e *RouteEngine) Recomputations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computations
}

// Wait blocks until no computation is running.
func (e *RouteEngine) Wait() {
	e.wg.Wait()
}

// SetOrigin updates Point A. A nil origin clears the route but keeps the query
// so a later selection can route again.
func (e *RouteEngine) SetOrigin(o *domain.RouteOrigin) {
	e.mu.Lock()
	if sameOrigin(e.origin, o) {
		e.mu.Unlock()
		return
	}
	if o == nil {
		e.origin = nil
		query := e.state.Query
		e.resetLocked()
		e.state.Query = query
		snap, v := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap, v)
		return
	}
	origin := *o
	e.origin = &origin
	if e.state.Query == "" {
		e.mu.Unlock()
		return
	}
	job := routeJob{trigger: triggerOrigin, origin: origin, text: e.state.Query}
	if e.state.PointB != nil && e.state.Phase == domain.PhaseRouted {
		dest := *e.state.PointB
		job.dest = &dest
	}
	e.startLocked(job)
}

// SetQuery sets the destination text. Re-sending the current text is a no-op;
// an empty text clears the route.
func (e *RouteEngine) SetQuery(text string) {
	text = strings.TrimSpace(text)

	e.mu.Lock()
	if text == e.state.Query {
		e.mu.Unlock()
		return
	}
	if text == "" {
		e.resetLocked()
		snap, v := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap, v)
		return
	}
	e.state.Query = text
	if e.origin == nil {
		snap, v := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap, v)
		return
	}
	e.startLocked(routeJob{trigger: triggerQuery, origin: *e.origin, text: text})
}

// DragEnd recomputes the route to a dragged destination. It reports false when
// there is no destination to drag.
func (e *RouteEngine) DragEnd(p domain.GeoPoint) bool {
	e.mu.Lock()
	if e.origin == nil || e.state.PointB == nil || !p.Valid() {
		e.mu.Unlock()
		return false
	}
	e.startLocked(routeJob{trigger: triggerDrag, origin: *e.origin, dest: &domain.Waypoint{Point: p}})
	return true
}

// Redraw re-establishes the drawn route after the map reinitializes its layers.
func (e *RouteEngine) Redraw() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Active() {
		return
	}
	e.surface.DrawRoute(e.state.Geometry)
	if e.destHandle != nil {
		e.destHandle.Attach()
	}
	if e.originHandle != nil {
		e.originHandle.Attach()
	}
	e.scheduleFitLocked(e.gen)
}

// Close cancels work in flight and clears the route.
func (e *RouteEngine) Close() {
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()
	e.wg.Wait()
}

// startLocked begins a new computation, superseding any in flight. It releases e.mu.
func (e *RouteEngine) startLocked(job routeJob) {
	e.gen++
	gen := e.gen
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.computations++
	e.state.Busy = true
	e.state.Phase = domain.PhaseResolving
	e.state.Error = ""
	snap, v := e.snapshotLocked()
	e.wg.Add(1)
	e.mu.Unlock()

	e.emit(snap, v)
	go e.run(ctx, gen, job)
}

func (e *RouteEngine) run(ctx context.Context, gen uint64, job routeJob) {
	defer e.wg.Done()

	ctx, span := telemetry.StartSpan(ctx, "route.compute", attribute.String("route.trigger", string(job.trigger)))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	var dest domain.Waypoint
	if job.dest != nil {
		dest = *job.dest
	} else {
		place, ok, lerr := e.places.Lookup(ctx, job.text)
		switch {
		case lerr != nil:
			err = lerr
			e.fail(gen, job.trigger, describeRouteError("destination lookup failed", lerr))
			return
		case !ok:
			err = ports.ErrNotFound
			e.fail(gen, job.trigger, fmt.Sprintf("destination %q not found", job.text))
			return
		}
		dest = domain.Waypoint{Point: place.Point, Label: place.Label}
		if dest.Label == "" {
			dest.Label = job.text
		}
	}

	from := job.origin.Point
	var driving, cycling domain.Route
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, derr := e.directions.Directions(gctx, domain.ProfileDriving, from, dest.Point)
		driving = r
		return derr
	})
	g.Go(func() error {
		r, derr := e.directions.Directions(gctx, domain.ProfileCycling, from, dest.Point)
		cycling = r
		return derr
	})
	if job.trigger == triggerDrag {
		g.Go(func() error {
			dest.Label = e.labelFor(gctx, dest.Point)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		e.fail(gen, job.trigger, describeRouteError("route unavailable", err))
		return
	}
	if driving.Geometry.Empty() {
		err = ports.ErrNotFound
		e.fail(gen, job.trigger, "no route between the selected points")
		return
	}

	e.apply(gen, job, dest, driving, cycling)
}

func (e *RouteEngine) labelFor(ctx context.Context, p domain.GeoPoint) string {
	if e.reverse == nil {
		return p.Label()
	}
	label, err := e.reverse.ReverseGeocode(ctx, p)
	if err != nil || strings.TrimSpace(label) == "" {
		return p.Label()
	}
	return label
}

func (e *RouteEngine) apply(gen uint64, job routeJob, dest domain.Waypoint, driving, cycling domain.Route) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		metrics.RouteRecomputations.WithLabelValues(string(job.trigger), "superseded").Inc()
		return
	}
	e.cancel = nil

	a := domain.Waypoint{Point: job.origin.Point, Label: job.origin.Label}
	e.state.PointA = &a
	e.state.PointB = &dest
	e.state.Geometry = driving.Geometry
	e.state.DrivingMinutes = driving.Minutes()
	e.state.DrivingKm = driving.Kilometers()
	e.state.CyclingMinutes = cycling.Minutes()
	e.state.CyclingKm = cycling.Kilometers()
	e.state.Busy = false
	e.state.Error = ""
	e.state.Phase = domain.PhaseRouted
	if job.trigger == triggerDrag {
		// The label becomes the query so echoing it back through SetQuery is a no-op.
		e.state.Query = dest.Label
	}

	e.surface.DrawRoute(driving.Geometry)
	e.placeDestLocked(dest.Point)
	e.placeOriginLocked(job.origin)
	e.scheduleFitLocked(gen)

	snap, v := e.snapshotLocked()
	e.mu.Unlock()

	metrics.RouteRecomputations.WithLabelValues(string(job.trigger), "routed").Inc()
	e.emit(snap, v)
}

func (e *RouteEngine) fail(gen uint64, trigger routeTrigger, msg string) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.cancel = nil
	e.state.Busy = false
	e.state.Phase = domain.PhaseError
	e.state.Error = msg
	e.state.Geometry = domain.GeoLineString{}
	e.state.DrivingMinutes, e.state.CyclingMinutes = 0, 0
	e.state.DrivingKm, e.state.CyclingKm = 0, 0
	e.surface.ClearRoute()
	e.stopFitLocked()
	snap, v := e.snapshotLocked()
	e.mu.Unlock()

	metrics.RouteRecomputations.WithLabelValues(string(trigger), "error").Inc()
	e.logger.Info("route computation failed", "trigger", trigger, "error", msg)
	e.emit(snap, v)
}

func (e *RouteEngine) placeDestLocked(p domain.GeoPoint) {
	if e.destHandle != nil {
		e.destHandle.SetPosition(p)
		return
	}
	e.destHandle = e.surface.AddMarker(domain.MarkerSpec{
		ID:        "route:b",
		Point:     p,
		Style:     domain.StyleRouteDest,
		Popup:     domain.PopupDescriptor{Title: "Point B"},
		Draggable: true,
	})
}

// placeOriginLocked highlights the origin's own marker, or draws a floating
// Point A marker when the origin has none.
func (e *RouteEngine) placeOriginLocked(o domain.RouteOrigin) {
	if e.markedOrigin != "" && e.markedOrigin != o.EntityID && e.markers != nil {
		e.markers.MarkRouteOrigin(e.markedOrigin, false)
		e.markedOrigin = ""
	}
	if o.EntityID != "" && e.markers != nil && e.markers.MarkRouteOrigin(o.EntityID, true) {
		e.markedOrigin = o.EntityID
		if e.originHandle != nil {
			e.originHandle.Remove()
			e.originHandle = nil
		}
		return
	}
	if e.originHandle != nil {
		e.originHandle.SetPosition(o.Point)
		return
	}
	e.originHandle = e.surface.AddMarker(domain.MarkerSpec{
		ID:    "route:a",
		Point: o.Point,
		Style: domain.StyleRouteOrigin,
		Popup: domain.PopupDescriptor{Title: "Point A", Subtitle: o.Label},
	})
}

// scheduleFitLocked fits the viewport shortly after drawing so it does not race
// other viewport changes.
func (e *RouteEngine) scheduleFitLocked(gen uint64) {
	e.stopFitLocked()
	e.fitTimer = time.AfterFunc(e.cfg.FitDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.gen || !e.state.Active() {
			return
		}
		var b domain.Bounds
		if e.state.PointA != nil {
			b.Extend(e.state.PointA.Point)
		}
		if e.state.PointB != nil {
			b.Extend(e.state.PointB.Point)
		}
		b.ExtendLine(e.state.Geometry)
		e.surface.FitBounds(b, e.cfg.Padding, e.cfg.MaxZoom)
	})
}

func (e *RouteEngine) stopFitLocked() {
	if e.fitTimer != nil {
		e.fitTimer.Stop()
		e.fitTimer = nil
	}
}

// resetLocked cancels work and removes everything the engine drew.
func (e *RouteEngine) resetLocked() {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.stopFitLocked()
	if e.state.Active() || e.state.Phase == domain.PhaseError {
		e.surface.ClearRoute()
	}
	if e.destHandle != nil {
		e.destHandle.Remove()
		e.destHandle = nil
	}
	if e.originHandle != nil {
		e.originHandle.Remove()
		e.originHandle = nil
	}
	if e.markedOrigin != "" && e.markers != nil {
		e.markers.MarkRouteOrigin(e.markedOrigin, false)
	}
	e.markedOrigin = ""
	e.state = domain.RouteState{Phase: domain.PhaseIdle}
}

func (e *RouteEngine) snapshotLocked() (domain.RouteState, uint64) {
	e.version++
	return e.state, e.version
}

// emit delivers a snapshot unless a newer one was already delivered.
func (e *RouteEngine) emit(s domain.RouteState, v uint64) {
	if e.sink == nil {
		return
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if v <= e.emitted {
		return
	}
	e.emitted = v
	e.sink.RouteChanged(s)
}

func sameOrigin(a, b *domain.RouteOrigin) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func describeRouteError(prefix string, err error) string {
	if errors.Is(err, ports.ErrMissingCredentials) {
		return NoticeLocationUnavailable
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}
