package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"teamcal/internal/config"
	"teamcal/internal/gesture"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/nowline"
	"teamcal/internal/store"
	"teamcal/internal/view"
)

// NowSource publishes the latest current-time indicator for today.
// nowline.Ticker implements it.
type NowSource interface {
	Latest() nowline.Indicator
}

// Server exposes the calendar views, the event API and the rendered week
// page used for snapshots.
type Server struct {
	cfg      *config.Config
	store    store.Store
	composer view.Composer
	now      NowSource
	mux      *http.ServeMux

	gestureOpts []gesture.Option
	gestures    gestureSessions
}

// NewServer wires the HTTP routes. now may be nil, in which case /api/now
// computes the indicator on request. Drag-to-create sessions snap with the
// gesture settings of cfg.
func NewServer(cfg *config.Config, st store.Store, composer view.Composer, now NowSource) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:         cfg,
		store:       st,
		composer:    composer,
		now:         now,
		mux:         http.NewServeMux(),
		gestureOpts: cfg.GestureOptions(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.closeGestures()
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/views/day", s.handleDayView)
	s.mux.HandleFunc("GET /api/views/week", s.handleWeekView)
	s.mux.HandleFunc("GET /api/views/month", s.handleMonthView)
	s.mux.HandleFunc("GET /api/now", s.handleNow)
	s.mux.HandleFunc("GET /api/settings", s.handleSettings)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	// Imported ids contain slashes.
	s.mux.HandleFunc("DELETE /api/events/{id...}", s.handleDeleteEvent)

	s.mux.HandleFunc("POST /api/gestures", s.handleOpenGesture)
	s.mux.HandleFunc("POST /api/gestures/{id}/down", s.handleGestureDown)
	s.mux.HandleFunc("POST /api/gestures/{id}/move", s.handleGestureMove)
	s.mux.HandleFunc("POST /api/gestures/{id}/up", s.handleGestureUp)
	s.mux.HandleFunc("POST /api/gestures/{id}/escape", s.handleGestureEscape)
	s.mux.HandleFunc("DELETE /api/gestures/{id}", s.handleCloseGesture)

	s.mux.HandleFunc("GET /calendar", s.handleCalendarPage)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="teamcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeStoreError maps domain errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidInterval),
		errors.Is(err, model.ErrUnknownRecurrence),
		errors.Is(err, model.ErrInvalidID),
		errors.Is(err, model.ErrInvalidTimeZone):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api: store failure", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
