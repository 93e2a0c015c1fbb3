package ports

import "github.com/creerlio/discovery/internal/core/domain"

// MapSurface is the rendering side of an interactive map. Implementations
// forward commands to whatever draws the map; the core never inspects them.
type MapSurface interface {
	AddMarker(spec domain.MarkerSpec) MarkerHandle
	DrawRoute(line domain.GeoLineString)
	ClearRoute()
	FitBounds(b domain.Bounds, pad domain.Padding, maxZoom float64)
	FlyTo(p domain.GeoPoint, zoom float64)
}

// MarkerHandle is an opaque renderable marker owned by exactly one registry entry.
type MarkerHandle interface {
	SetStyle(style domain.MarkerStyle)
	SetPosition(p domain.GeoPoint)
	SetPopup(p domain.PopupDescriptor)
	OpenPopup()
	ClosePopup()
	// Attach re-adds the marker to a freshly initialized visual layer.
	Attach()
	Remove()
}

// ResultSink receives result sets accepted by the fetch pipeline.
type ResultSink interface {
	DeliverResults(rs domain.ResultSet)
	DeliverError(err error)
}

// SelectionSink is told when the user selects a marker.
type SelectionSink interface {
	Selected(entityID string)
}

// RouteSink receives route state snapshots.
type RouteSink interface {
	RouteChanged(s domain.RouteState)
}

// ActionSink receives popup actions.
type ActionSink interface {
	PopupAction(ev domain.PopupActionEvent)
}

// SessionClient is the host UI of a live map session.
type SessionClient interface {
	Results(rs domain.ResultSet)
	Route(s domain.RouteState)
	Action(ev domain.PopupActionEvent)
	Notice(msg string)
	Error(msg string)
}
