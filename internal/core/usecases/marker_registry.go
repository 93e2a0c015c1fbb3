package usecases

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/metrics"
)

// FocusZoom is the zoom level used when a list row focuses a marker.
const FocusZoom = 14.0

type marker struct {
	id        string
	kind      domain.EntityKind
	coords    domain.GeoPoint
	popup     domain.PopupDescriptor
	popupOpen bool
	style     domain.MarkerStyle
	handle    ports.MarkerHandle
}

// SyncStats reports what a Sync changed.
type SyncStats struct {
	Created int
	Removed int
	Kept    int
}

// MarkerRegistry owns exactly one renderable marker per entity id for as long as
// the entity is in the result set. Selection and style changes mutate existing
// markers in place; markers are only removed when their entity leaves.
type MarkerRegistry struct {
	surface   ports.MapSurface
	selection ports.SelectionSink
	actions   ports.ActionSink
	logger    *slog.Logger

	mu          sync.Mutex
	markers     map[string]*marker
	selected    string
	lastFocused string
	routeOrigin string
}

// NewMarkerRegistry creates a registry drawing on surface. selection and actions
// may be nil.
func NewMarkerRegistry(surface ports.MapSurface, selection ports.SelectionSink, actions ports.ActionSink, logger *slog.Logger) *MarkerRegistry {
	return &MarkerRegistry{
		surface:   surface,
		selection: selection,
		actions:   actions,
		logger:    logging.OrDefault(logger),
		markers:   make(map[string]*marker),
	}
}

// Sync reconciles markers with entities. Entities without coordinates get no
// marker. Existing markers keep their position and renderable handle; only
// their popup content is refreshed.
func (r *MarkerRegistry) Sync(entities []domain.Entity) SyncStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, ok := e.Coordinates(); ok {
			present[e.ID] = struct{}{}
		}
	}

	var st SyncStats
	for id, m := range r.markers {
		if _, ok := present[id]; ok {
			continue
		}
		m.handle.Remove()
		delete(r.markers, id)
		st.Removed++
		if r.selected == id {
			r.selected = ""
		}
		if r.lastFocused == id {
			r.lastFocused = ""
		}
	}

	for _, e := range entities {
		p, ok := e.Coordinates()
		if !ok {
			continue
		}
		popup := domain.PopupFor(e)
		if m, exists := r.markers[e.ID]; exists {
			if !reflect.DeepEqual(m.popup, popup) {
				m.popup = popup
				m.handle.SetPopup(popup)
			}
			st.Kept++
			continue
		}
		m := &marker{id: e.ID, kind: e.Kind, coords: p, popup: popup, style: r.styleFor(e.ID)}
		m.handle = r.surface.AddMarker(domain.MarkerSpec{
			ID:    e.ID,
			Kind:  e.Kind,
			Point: p,
			Style: m.style,
			Popup: popup,
		})
		if e.ID == r.selected {
			m.handle.OpenPopup()
			m.popupOpen = true
		}
		r.markers[e.ID] = m
		st.Created++
	}

	metrics.MarkersCreated.Add(float64(st.Created))
	metrics.MarkersRemoved.Add(float64(st.Removed))
	return st
}

// SetSelected restyles markers for a new selection, opening the selected
// marker's popup and closing the others. It reports false when id is already
// selected.
func (r *MarkerRegistry) SetSelected(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == r.selected {
		return false
	}
	r.selected = id
	if id == "" {
		r.lastFocused = ""
	}
	for _, m := range r.markers {
		r.restyle(m)
		if m.id == id {
			r.openPopup(m)
		} else {
			r.closePopup(m)
		}
	}
	return true
}

// Selected returns the selected entity id.
func (r *MarkerRegistry) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Click toggles the marker's popup and reports the selection. Closing the popup
// of the selected marker does not deselect it; the selection and any route
// origin stay until another entity is selected or the selection is cleared.
func (r *MarkerRegistry) Click(id string) error {
	r.mu.Lock()
	m, ok := r.markers[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("marker %s: %w", id, ports.ErrNotFound)
	}
	if m.popupOpen {
		r.closePopup(m)
	} else {
		r.openPopup(m)
	}
	r.mu.Unlock()

	if r.selection != nil {
		r.selection.Selected(id)
	}
	return nil
}

// Focus recenters the map on a marker and opens its popup. Focusing the marker
// that was focused last is a no-op.
func (r *MarkerRegistry) Focus(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" || id == r.lastFocused {
		return false
	}
	m, ok := r.markers[id]
	if !ok {
		return false
	}
	r.lastFocused = id
	r.surface.FlyTo(m.coords, FocusZoom)
	r.openPopup(m)
	return true
}

// MarkRouteOrigin toggles the route-origin style on a marker. It reports whether
// the entity has a marker that can serve as Point A.
func (r *MarkerRegistry) MarkRouteOrigin(id string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.routeOrigin
	if on {
		r.routeOrigin = id
	} else if r.routeOrigin == id {
		r.routeOrigin = ""
	}
	if prev != r.routeOrigin {
		if m, ok := r.markers[prev]; ok {
			r.restyle(m)
		}
	}
	m, ok := r.markers[id]
	if ok {
		r.restyle(m)
	}
	return ok
}

// Reattach re-adds every marker to a freshly initialized visual layer, restoring
// style and popup state. Handles are reused, never recreated.
func (r *MarkerRegistry) Reattach() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.markers {
		m.handle.Attach()
		m.handle.SetStyle(m.style)
		if m.popupOpen {
			m.handle.OpenPopup()
		}
	}
	return len(r.markers)
}

// TriggerAction emits a popup action for a marker when its popup offers it.
func (r *MarkerRegistry) TriggerAction(id string, action domain.PopupAction) error {
	r.mu.Lock()
	m, ok := r.markers[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("marker %s: %w", id, ports.ErrNotFound)
	}
	if !m.popup.Allows(action) {
		r.mu.Unlock()
		return fmt.Errorf("action %q not offered for %s", action, m.kind)
	}
	ev := domain.PopupActionEvent{EntityID: id, Kind: m.kind, Action: action}
	r.mu.Unlock()

	if r.actions != nil {
		r.actions.PopupAction(ev)
	}
	return nil
}

// Position returns the anchored coordinates of a marker.
func (r *MarkerRegistry) Position(id string) (domain.GeoPoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markers[id]
	if !ok {
		return domain.GeoPoint{}, false
	}
	return m.coords, true
}

// Len returns the number of live markers.
func (r *MarkerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markers)
}

// Clear removes every marker, as on map teardown.
func (r *MarkerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.markers {
		m.handle.Remove()
		delete(r.markers, id)
		metrics.MarkersRemoved.Inc()
	}
	r.selected, r.lastFocused, r.routeOrigin = "", "", ""
}

func (r *MarkerRegistry) styleFor(id string) domain.MarkerStyle {
	switch id {
	case r.selected:
		return domain.StyleSelected
	case r.routeOrigin:
		return domain.StyleRouteOrigin
	}
	return domain.StyleDefault
}

func (r *MarkerRegistry) restyle(m *marker) {
	s := r.styleFor(m.id)
	if s == m.style {
		return
	}
	m.style = s
	m.handle.SetStyle(s)
}

func (r *MarkerRegistry) openPopup(m *marker) {
	if m.popupOpen {
		return
	}
	m.popupOpen = true
	m.handle.OpenPopup()
}

func (r *MarkerRegistry) closePopup(m *marker) {
	if !m.popupOpen {
		return
	}
	m.popupOpen = false
	m.handle.ClosePopup()
}
