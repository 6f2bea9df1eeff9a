package service

import (
	"context"
	"math"

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/events"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Session is the per-client view state. It is passed into and returned from
// HandleInteraction; the service keeps none of it between calls.
type Session struct {
	EditMode       bool    `json:"edit_mode"`
	EditingEventID int     `json:"editing_event_id,omitempty"`
	PendingCoords  *LatLng `json:"pending_coords,omitempty"`
	Center         *LatLng `json:"center,omitempty"`
	Zoom           int     `json:"zoom,omitempty"`
}

// Interaction is what the map reports after a user action.
type Interaction struct {
	LastClicked       *LatLng `json:"last_clicked"`
	LastObjectClicked *LatLng `json:"last_object_clicked"`
	Center            *LatLng `json:"center"`
	Zoom              *int    `json:"zoom"`
}

type ActionKind string

const (
	ActionNone ActionKind = "none"
	// ActionEdit opens the edit form for Action.Event.
	ActionEdit ActionKind = "edit"
	// ActionAdd opens the add form at Action.Coords.
	ActionAdd ActionKind = "add"
)

type Action struct {
	Kind        ActionKind    `json:"kind"`
	Event       *domain.Event `json:"event,omitempty"`
	Coords      *LatLng       `json:"coords,omitempty"`
	DefaultName string        `json:"default_name,omitempty"`
}

// HandleInteraction resolves a map interaction. In edit mode a click on a
// marker selects the nearest event within the configured threshold. A click
// on empty map proposes a new event there, named by the geocoder.
func (s *JourneyService) HandleInteraction(ctx context.Context, sess Session, in Interaction) (Session, Action, error) {
	if in.Center != nil {
		c := roundLatLng(*in.Center)
		sess.Center = &c
	}
	if in.Zoom != nil {
		sess.Zoom = *in.Zoom
	}

	switch {
	case sess.EditMode && in.LastObjectClicked != nil:
		c := roundLatLng(*in.LastObjectClicked)

		s.mu.Lock()
		e := events.FindNearest(s.load().Events, c.Lat, c.Lng, s.threshold)
		var selected *domain.Event
		if e != nil {
			ev := cloneEvent(*e)
			selected = &ev
		}
		s.mu.Unlock()

		if selected == nil {
			return sess, Action{Kind: ActionNone}, nil
		}
		sess.EditingEventID = selected.ID
		sess.PendingCoords = &c
		return sess, Action{Kind: ActionEdit, Event: selected, Coords: &c}, nil

	case in.LastClicked != nil && in.LastObjectClicked == nil:
		c := roundLatLng(*in.LastClicked)
		if !domain.ValidCoordinates(c.Lat, c.Lng) {
			return sess, Action{Kind: ActionNone}, nil
		}
		name := s.geocoder.Reverse(ctx, c.Lat, c.Lng)
		return sess, Action{Kind: ActionAdd, Coords: &c, DefaultName: name}, nil
	}
	return sess, Action{Kind: ActionNone}, nil
}

// CancelEdit abandons the edit in progress. Nothing was persisted for it.
func CancelEdit(sess Session) Session {
	sess.EditingEventID = 0
	sess.PendingCoords = nil
	return sess
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func roundLatLng(c LatLng) LatLng {
	return LatLng{Lat: round6(c.Lat), Lng: round6(c.Lng)}
}
