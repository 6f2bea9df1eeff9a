package web

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/google/uuid"

	"github.com/vbonduro/lifemap/internal/mapview"
	"github.com/vbonduro/lifemap/internal/service"
)

// mediaReader is the subset of mediastore.MediaStore the server requires.
type mediaReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
	Thumbnail(ctx context.Context, path string, maxDim int) ([]byte, error)
}

type Server struct {
	service   *service.JourneyService
	templates embed.FS
	media     mediaReader
	mux       *http.ServeMux
	tmplFuncs template.FuncMap
	logger    *slog.Logger
}

func NewServer(svc *service.JourneyService, tmpl embed.FS, media mediaReader, logger *slog.Logger) *Server {
	s := &Server{
		service:   svc,
		templates: tmpl,
		media:     media,
		mux:       http.NewServeMux(),
		logger:    logger,
		tmplFuncs: template.FuncMap{
			"color":  mapview.ColorForDate,
			"plural": func(n int, word string) string { return english.Plural(n, word, "") },
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)

	s.mux.HandleFunc("GET /api/map", s.handleMap)
	s.mux.HandleFunc("GET /api/journal", s.handleGetJournal)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}/media", s.handleRemoveMedia)
	s.mux.HandleFunc("POST /api/interactions", s.handleInteraction)
	s.mux.HandleFunc("POST /api/interactions/cancel", s.handleCancelEdit)

	s.mux.HandleFunc("GET /api/journeys", s.handleListJourneys)
	s.mux.HandleFunc("POST /api/journeys", s.handleCreateJourney)
	s.mux.HandleFunc("POST /api/journeys/{file}/activate", s.handleSwitchJourney)
	s.mux.HandleFunc("POST /api/journeys/{file}/rename", s.handleRenameJourney)
	s.mux.HandleFunc("DELETE /api/journeys/{file}", s.handleDeleteJourney)

	s.mux.HandleFunc("GET /api/backup", s.handleBackup)
	s.mux.HandleFunc("POST /api/restore", s.handleRestore)
	s.mux.HandleFunc("GET /api/geocode", s.handleGeocode)
	s.mux.HandleFunc("POST /api/photo-metadata", s.handlePhotoMetadata)
	s.mux.HandleFunc("GET /media/{kind}/{name}", s.handleMedia)
}

// securityHeaders sets the browser security headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"img-src 'self' data: https://*.tile.openstreetmap.org https://unpkg.com; "+
				"media-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// requestID tags the request with an X-Request-ID, reusing the caller's when
// one is supplied.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Header.Get("X-Request-ID"),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID(requestLogger(s.logger, securityHeaders(s.mux))).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	j, err := s.service.Journal(r.Context())
	if err != nil {
		s.writeError(w, "load journal", err)
		return
	}
	timeline, err := s.service.Timeline(r.Context())
	if err != nil {
		s.writeError(w, "load timeline", err)
		return
	}
	journeys, err := s.service.ListJourneys(r.Context())
	if err != nil {
		s.writeError(w, "list journeys", err)
		return
	}

	if err := s.renderPage(w,
		map[string]any{"Journal": j, "Timeline": timeline, "Journeys": journeys},
		"base.html", "pages/map.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}
