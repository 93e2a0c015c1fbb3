package domain

import (
	"fmt"
	"strings"
)

// MarkerStyle is the visual state of a map marker.
type MarkerStyle string

const (
	StyleDefault     MarkerStyle = "default"
	StyleSelected    MarkerStyle = "selected"
	StyleRouteOrigin MarkerStyle = "route_origin"
	StyleRouteDest   MarkerStyle = "route_destination"
)

// PopupAction identifies a structured action offered by a popup.
type PopupAction string

const (
	ActionViewProfile  PopupAction = "view_profile"
	ActionViewBusiness PopupAction = "view_business"
	ActionViewJobs     PopupAction = "view_jobs"
	ActionViewJob      PopupAction = "view_job"
)

// PopupDescriptor is the data a host UI needs to render a popup.
type PopupDescriptor struct {
	Title    string        `json:"title"`
	Subtitle string        `json:"subtitle,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Actions  []PopupAction `json:"actions,omitempty"`
}

// MarkerSpec describes a marker to create on the map surface.
type MarkerSpec struct {
	ID        string          `json:"id"`
	Kind      EntityKind      `json:"kind,omitempty"`
	Point     GeoPoint        `json:"point"`
	Style     MarkerStyle     `json:"style"`
	Popup     PopupDescriptor `json:"popup"`
	Draggable bool            `json:"draggable,omitempty"`
}

// PopupActionEvent is emitted when a user triggers a popup action.
type PopupActionEvent struct {
	EntityID string      `json:"entity_id"`
	Kind     EntityKind  `json:"kind"`
	Action   PopupAction `json:"action"`
}

// ActionsFor lists the popup actions offered for a kind.
func ActionsFor(k EntityKind) []PopupAction {
	switch k {
	case KindBusiness:
		return []PopupAction{ActionViewBusiness, ActionViewJobs}
	case KindJob:
		return []PopupAction{ActionViewJob}
	default:
		return []PopupAction{ActionViewProfile}
	}
}

// PopupFor builds the popup descriptor for an entity.
func PopupFor(e Entity) PopupDescriptor {
	p := PopupDescriptor{
		Title:   e.DisplayName,
		Actions: ActionsFor(e.Kind),
	}
	if p.Title == "" {
		p.Title = e.Title
	} else if e.Title != "" && e.Title != e.DisplayName {
		p.Subtitle = e.Title
	}
	var detail []string
	if loc := e.LocationKey(); loc != "" {
		detail = append(detail, loc)
	}
	if e.DistanceKm != nil {
		detail = append(detail, fmt.Sprintf("%.1f km away", *e.DistanceKm))
	}
	if e.Approximate {
		detail = append(detail, "approximate location")
	}
	p.Detail = strings.Join(detail, " · ")
	return p
}

// Allows reports whether a is one of the descriptor's actions.
func (p PopupDescriptor) Allows(a PopupAction) bool {
	for _, x := range p.Actions {
		if x == a {
			return true
		}
	}
	return false
}
