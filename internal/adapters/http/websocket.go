package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/metrics"
)

const (
	outboundBuffer = 256
	pingInterval   = 30 * time.Second
)

// frame is a server to client message: a map command or a state event.
type frame struct {
	Type    string                   `json:"type"`
	Session string                   `json:"session,omitempty"`
	ID      string                   `json:"id,omitempty"`
	Marker  *domain.MarkerSpec       `json:"marker,omitempty"`
	Style   domain.MarkerStyle       `json:"style,omitempty"`
	Point   *domain.GeoPoint         `json:"point,omitempty"`
	Popup   *domain.PopupDescriptor  `json:"popup,omitempty"`
	Open    *bool                    `json:"open,omitempty"`
	Line    *domain.GeoLineString    `json:"line,omitempty"`
	Bounds  *domain.Bounds           `json:"bounds,omitempty"`
	Padding *domain.Padding          `json:"padding,omitempty"`
	Zoom    float64                  `json:"zoom,omitempty"`
	Results *domain.ResultSet        `json:"results,omitempty"`
	Route   *domain.RouteState       `json:"route,omitempty"`
	Action  *domain.PopupActionEvent `json:"action,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// clientMessage is a client to server message.
type clientMessage struct {
	Type   string   `json:"type"`
	Name   string   `json:"name,omitempty"`
	Value  string   `json:"value,omitempty"`
	Kind   string   `json:"kind,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
	Label  string   `json:"label,omitempty"`
	Radius float64  `json:"radius,omitempty"`
	Status string   `json:"status,omitempty"`
	Years  *int     `json:"years,omitempty"`
	ID     string   `json:"id,omitempty"`
	Text   string   `json:"text,omitempty"`
	Action string   `json:"action,omitempty"`
}

// mapController is the part of a map session driven by client messages.
type mapController interface {
	SetField(name, value string) error
	SetKind(kind domain.EntityKind) error
	SetCenter(c *domain.SearchCenter)
	SetRadius(km float64)
	SetIntentStatus(status string)
	SetMinExperience(years *int)
	Select(id string)
	Click(id string) error
	Focus(id string)
	RouteQuery(text string)
	DragEnd(p domain.GeoPoint) bool
	StyleChanged()
	TriggerAction(id string, action domain.PopupAction) error
}

// dispatch applies one client message to the session.
func dispatch(s mapController, m clientMessage) error {
	switch m.Type {
	case "field":
		return s.SetField(m.Name, m.Value)
	case "kind":
		return s.SetKind(domain.EntityKind(m.Kind))
	case "center":
		if m.Lat == nil && m.Lng == nil {
			s.SetCenter(nil)
			return nil
		}
		p, err := messagePoint(m)
		if err != nil {
			return err
		}
		s.SetCenter(&domain.SearchCenter{Point: p, Label: m.Label})
	case "radius":
		if !domain.ValidRadius(m.Radius) {
			return fmt.Errorf("invalid radius %v", m.Radius)
		}
		s.SetRadius(m.Radius)
	case "intent_status":
		s.SetIntentStatus(m.Status)
	case "min_experience":
		if m.Years != nil && *m.Years < 0 {
			return fmt.Errorf("invalid min_experience %d", *m.Years)
		}
		s.SetMinExperience(m.Years)
	case "select":
		s.Select(m.ID)
	case "click":
		return s.Click(m.ID)
	case "focus":
		s.Focus(m.ID)
	case "route_query":
		s.RouteQuery(m.Text)
	case "drag_end":
		p, err := messagePoint(m)
		if err != nil {
			return err
		}
		if !s.DragEnd(p) {
			return fmt.Errorf("no destination to move")
		}
	case "style_changed":
		s.StyleChanged()
	case "action":
		return s.TriggerAction(m.ID, domain.PopupAction(m.Action))
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

func messagePoint(m clientMessage) (domain.GeoPoint, error) {
	if m.Lat == nil || m.Lng == nil {
		return domain.GeoPoint{}, fmt.Errorf("%s needs lat and lng", m.Type)
	}
	p := domain.GeoPoint{Lat: *m.Lat, Lng: *m.Lng}
	if !p.Valid() {
		return p, fmt.Errorf("coordinates out of range")
	}
	return p, nil
}

// socket is the write side of a websocket connection.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// mapConn renders a map session onto a websocket. Frames are queued and written
// by a single goroutine; a client that falls behind is disconnected.
type mapConn struct {
	logger *slog.Logger
	out    chan []byte

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

var (
	_ ports.MapSurface    = (*mapConn)(nil)
	_ ports.SessionClient = (*mapConn)(nil)
)

func newMapConn(logger *slog.Logger) *mapConn {
	return &mapConn{
		logger:  logging.OrDefault(logger),
		out:     make(chan []byte, outboundBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (m *mapConn) send(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		m.logger.Error("encode frame", "type", f.Type, "error", err)
		return
	}
	select {
	case <-m.done:
	case m.out <- data:
	default:
		m.logger.Warn("client too slow, disconnecting", "type", f.Type)
		m.close()
	}
}

// writeLoop drains queued frames to ws and keeps the connection alive. It
// closes ws once the connection is closed, including after a slow-client drop.
func (m *mapConn) writeLoop(ws socket) {
	defer close(m.stopped)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case data := <-m.out:
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				m.close()
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.close()
				_ = ws.Close()
				return
			}
		case <-m.done:
			// Unblocks the handler's read loop so the session ends.
			_ = ws.Close()
			return
		}
	}
}

func (m *mapConn) close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// AddMarker implements ports.MapSurface.
func (m *mapConn) AddMarker(spec domain.MarkerSpec) ports.MarkerHandle {
	h := &markerHandle{conn: m, spec: spec}
	m.send(frame{Type: "marker.add", ID: spec.ID, Marker: &spec})
	return h
}

// DrawRoute implements ports.MapSurface.
func (m *mapConn) DrawRoute(line domain.GeoLineString) {
	m.send(frame{Type: "route.draw", Line: &line})
}

// ClearRoute implements ports.MapSurface.
func (m *mapConn) ClearRoute() {
	m.send(frame{Type: "route.clear"})
}

// FitBounds implements ports.MapSurface.
func (m *mapConn) FitBounds(b domain.Bounds, pad domain.Padding, maxZoom float64) {
	m.send(frame{Type: "viewport.fit", Bounds: &b, Padding: &pad, Zoom: maxZoom})
}

// FlyTo implements ports.MapSurface.
func (m *mapConn) FlyTo(p domain.GeoPoint, zoom float64) {
	m.send(frame{Type: "viewport.fly", Point: &p, Zoom: zoom})
}

// Results implements ports.SessionClient.
func (m *mapConn) Results(rs domain.ResultSet) {
	m.send(frame{Type: "results", Results: &rs})
}

// Route implements ports.SessionClient.
func (m *mapConn) Route(s domain.RouteState) {
	m.send(frame{Type: "route", Route: &s})
}

// Action implements ports.SessionClient.
func (m *mapConn) Action(ev domain.PopupActionEvent) {
	m.send(frame{Type: "action", Action: &ev})
}

// Notice implements ports.SessionClient.
func (m *mapConn) Notice(msg string) {
	m.send(frame{Type: "notice", Message: msg})
}

// Error implements ports.SessionClient.
func (m *mapConn) Error(msg string) {
	m.send(frame{Type: "error", Message: msg})
}

// markerHandle mirrors one client-side marker. It remembers the latest spec so
// the marker can be re-sent after a style change.
type markerHandle struct {
	conn *mapConn

	mu   sync.Mutex
	spec domain.MarkerSpec
}

func (h *markerHandle) SetStyle(style domain.MarkerStyle) {
	h.mu.Lock()
	h.spec.Style = style
	id := h.spec.ID
	h.mu.Unlock()
	h.conn.send(frame{Type: "marker.style", ID: id, Style: style})
}

func (h *markerHandle) SetPosition(p domain.GeoPoint) {
	h.mu.Lock()
	h.spec.Point = p
	id := h.spec.ID
	h.mu.Unlock()
	h.conn.send(frame{Type: "marker.move", ID: id, Point: &p})
}

func (h *markerHandle) SetPopup(p domain.PopupDescriptor) {
	h.mu.Lock()
	h.spec.Popup = p
	id := h.spec.ID
	h.mu.Unlock()
	h.conn.send(frame{Type: "marker.popup", ID: id, Popup: &p})
}

func (h *markerHandle) OpenPopup()  { h.popupOpen(true) }
func (h *markerHandle) ClosePopup() { h.popupOpen(false) }

func (h *markerHandle) popupOpen(open bool) {
	h.conn.send(frame{Type: "marker.popup", ID: h.id(), Open: &open})
}

func (h *markerHandle) Attach() {
	h.mu.Lock()
	spec := h.spec
	h.mu.Unlock()
	h.conn.send(frame{Type: "marker.attach", ID: spec.ID, Marker: &spec})
}

func (h *markerHandle) Remove() {
	h.conn.send(frame{Type: "marker.remove", ID: h.id()})
}

func (h *markerHandle) id() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spec.ID
}

// MapSessionHandler runs one live map session per websocket connection. The
// optional kind query parameter picks the initial population.
func MapSessionHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		sessionDeps := deps.Sessions
		if k := domain.EntityKind(c.Query("kind")); k.Valid() {
			sessionDeps.Kind = k
		}
		id := uuid.NewString()
		logger := logging.OrDefault(deps.Logger).With("session", id)
		sessionDeps.Logger = logger

		conn := newMapConn(logger)
		go conn.writeLoop(c)
		defer func() {
			conn.close()
			<-conn.stopped
		}()

		sess := usecases.NewMapSession(id, sessionDeps, conn, conn)
		metrics.ActiveMapSessions.Inc()
		logger.Info("map session opened", "remote", c.RemoteAddr().String(), "kind", sessionDeps.Kind)

		conn.send(frame{Type: "session", Session: id})
		sess.Start()

		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				break
			}
			var m clientMessage
			if err := json.Unmarshal(data, &m); err != nil {
				conn.Error("invalid JSON")
				continue
			}
			if err := dispatch(sess, m); err != nil {
				conn.Error(err.Error())
			}
		}

		sess.Close()
		metrics.ActiveMapSessions.Dec()
		logger.Info("map session closed")
	}
}
