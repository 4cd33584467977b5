// Package server exposes the skill over HTTP for voice platform
// adapters.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/metrics"
	"tidbyt.dev/bustime/model"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type TurnRequest struct {
	DeviceID string            `json:"deviceId"`
	Intent   string            `json:"intent"`
	Slots    map[string]string `json:"slots"`
	Session  *model.Session    `json:"session,omitempty"`
}

type TurnResponse struct {
	model.Response
	Session model.Session `json:"session"`
}

type Server struct {
	skill   *bustime.Skill
	metrics *metrics.Metrics
	logger  *slog.Logger
	router  chi.Router
}

func New(skill *bustime.Skill, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		skill:   skill,
		metrics: m,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(RequestLogging(logger))
	r.Use(Metrics(m))

	r.Get("/healthz", srv.handleHealth)
	r.Post("/v1/turns", srv.handleTurn)
	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	srv.router = r
	return srv
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	req := TurnRequest{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deviceId is required"})
		return
	}
	if req.Session != nil {
		if err := req.Session.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session: " + err.Error()})
			return
		}
	}

	intent := mapIntent(req.Intent)
	resp, session := s.skill.HandleTurn(r.Context(), bustime.Request{
		DeviceID: req.DeviceID,
		Intent:   intent,
		Slots:    mapSlots(intent, req.Slots),
		Session:  req.Session,
	})

	writeJSON(w, http.StatusOK, TurnResponse{Response: resp, Session: session})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
