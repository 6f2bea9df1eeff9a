package web

import (
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/vbonduro/lifemap/internal/domain"
)

type journeysResponse struct {
	Active   string                `json:"active"`
	Journeys []domain.CatalogEntry `json:"journeys"`
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListJourneys(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListJourneys(r.Context())
	if err != nil {
		s.writeError(w, "list journeys", err)
		return
	}
	active, err := s.service.ActiveJourney(r.Context())
	if err != nil {
		s.writeError(w, "read active journey", err)
		return
	}
	s.writeJSON(w, http.StatusOK, journeysResponse{Active: active, Journeys: entries})
}

func (s *Server) handleCreateJourney(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	filename, err := s.service.CreateJourney(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, "create journey", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"filename": filename})
}

func (s *Server) handleSwitchJourney(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("file")
	if err := s.service.SwitchJourney(r.Context(), filename); err != nil {
		s.writeError(w, "switch journey", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"active": filename})
}

func (s *Server) handleRenameJourney(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	filename, err := s.service.RenameJourney(r.Context(), r.PathValue("file"), req.Name)
	if err != nil {
		s.writeError(w, "rename journey", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"filename": filename})
}

func (s *Server) handleDeleteJourney(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteJourney(r.Context(), r.PathValue("file")); err != nil {
		s.writeError(w, "delete journey", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBackup downloads the active journal exactly as stored.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.service.Backup(r.Context())
	if err != nil {
		s.writeError(w, "backup", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write backup failed", "error", err)
	}
}

// handleRestore replaces the active journal with the uploaded "file" field.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxJSONBody); err != nil {
		s.badRequest(w, "failed to parse form")
		return
	}
	defer s.removeTempFiles(r.MultipartForm)

	file, _, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, "journal file required")
		return
	}
	defer closeWithLog(file, "restore file", s.logger)

	data, err := io.ReadAll(io.LimitReader(file, maxJSONBody+1))
	if err != nil {
		s.writeError(w, "read restore file", err)
		return
	}
	if len(data) > maxJSONBody {
		s.badRequest(w, "journal file larger than "+humanize.IBytes(maxJSONBody))
		return
	}

	if err := s.service.Restore(r.Context(), data); err != nil {
		s.writeError(w, "restore", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"bytes": len(data)})
}
