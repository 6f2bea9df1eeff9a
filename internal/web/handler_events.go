package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/events"
	"github.com/vbonduro/lifemap/internal/mapview"
	"github.com/vbonduro/lifemap/internal/service"
)

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	opts := mapview.Options{
		Cluster:  parseFlag(r, "cluster", true),
		Path:     parseFlag(r, "path", false),
		Timeline: parseFlag(r, "timeline", false),
	}
	view, err := s.service.Map(r.Context(), opts)
	if err != nil {
		s.writeError(w, "compose map", err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	j, err := s.service.Journal(r.Context())
	if err != nil {
		s.writeError(w, "load journal", err)
		return
	}
	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	timeline, err := s.service.Timeline(r.Context())
	if err != nil {
		s.writeError(w, "load timeline", err)
		return
	}
	s.writeJSON(w, http.StatusOK, timeline)
}

// handleCreateEvent accepts a multipart form with title, date, location_name,
// description, lat, lon and any number of photos and videos files.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.badRequest(w, "failed to parse form")
		return
	}
	defer s.removeTempFiles(r.MultipartForm)

	lat, err := formFloat(r, "lat")
	if err != nil {
		s.writeError(w, "create event", err)
		return
	}
	lon, err := formFloat(r, "lon")
	if err != nil {
		s.writeError(w, "create event", err)
		return
	}
	f := events.Fields{
		Title:        r.FormValue("title"),
		LocationName: r.FormValue("location_name"),
		Description:  r.FormValue("description"),
	}
	if v := strings.TrimSpace(r.FormValue("date")); v != "" {
		if f.Date, err = domain.ParseDate(v); err != nil {
			s.writeError(w, "create event", err)
			return
		}
	}

	uploads, err := s.readUploads(r.MultipartForm)
	if err != nil {
		s.writeError(w, "read uploads", err)
		return
	}

	e, err := s.service.CreateEvent(r.Context(), f, lat, lon, uploads)
	if err != nil {
		s.writeError(w, "create event", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, e)
}

// handleUpdateEvent overwrites only the fields present in the form and appends
// any uploaded media.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.badRequest(w, "invalid event id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.badRequest(w, "failed to parse form")
		return
	}
	defer s.removeTempFiles(r.MultipartForm)

	var c events.Changes
	c.Title = formString(r, "title")
	c.LocationName = formString(r, "location_name")
	c.Description = formString(r, "description")
	if v := formString(r, "date"); v != nil {
		d, err := domain.ParseDate(*v)
		if err != nil {
			s.writeError(w, "update event", err)
			return
		}
		c.Date = &d
	}
	if formString(r, "lat") != nil || formString(r, "lon") != nil {
		lat, err := formFloat(r, "lat")
		if err != nil {
			s.writeError(w, "update event", err)
			return
		}
		lon, err := formFloat(r, "lon")
		if err != nil {
			s.writeError(w, "update event", err)
			return
		}
		c.Latitude, c.Longitude = &lat, &lon
	}

	uploads, err := s.readUploads(r.MultipartForm)
	if err != nil {
		s.writeError(w, "read uploads", err)
		return
	}

	e, err := s.service.UpdateEvent(r.Context(), id, c, uploads)
	if err != nil {
		s.writeError(w, "update event", err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.badRequest(w, "invalid event id")
		return
	}
	if err := s.service.DeleteEvent(r.Context(), id); err != nil {
		s.writeError(w, "delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveMedia detaches one media file, named by ?path=, from the event.
func (s *Server) handleRemoveMedia(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.badRequest(w, "invalid event id")
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		s.badRequest(w, "path required")
		return
	}
	removed, err := s.service.RemoveMedia(r.Context(), id, p)
	if err != nil {
		s.writeError(w, "remove media", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

type interactionRequest struct {
	Session     service.Session     `json:"session"`
	Interaction service.Interaction `json:"interaction"`
}

type interactionResponse struct {
	Session service.Session `json:"session"`
	Action  service.Action  `json:"action"`
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid interaction")
		return
	}
	sess, action, err := s.service.HandleInteraction(r.Context(), req.Session, req.Interaction)
	if err != nil {
		s.writeError(w, "handle interaction", err)
		return
	}
	s.writeJSON(w, http.StatusOK, interactionResponse{Session: sess, Action: action})
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	var sess service.Session
	if err := decodeJSON(w, r, &sess); err != nil {
		s.badRequest(w, "invalid session")
		return
	}
	s.writeJSON(w, http.StatusOK, service.CancelEdit(sess))
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		s.badRequest(w, "invalid lat")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		s.badRequest(w, "invalid lon")
		return
	}
	name, err := s.service.PlaceName(r.Context(), lat, lon)
	if err != nil {
		s.writeError(w, "geocode", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// formString returns the raw value of a form field, or nil when the
// field was not submitted at all.
func formString(r *http.Request, name string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	vs, ok := r.MultipartForm.Value[name]
	if !ok || len(vs) == 0 {
		return nil
	}
	return &vs[0]
}

func formFloat(r *http.Request, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(name)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, name)
	}
	return v, nil
}
