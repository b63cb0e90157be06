package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/accessory"
	"github.com/dokzlo13/solbridge/internal/config"
	"github.com/dokzlo13/solbridge/internal/ledger"
	"github.com/dokzlo13/solbridge/internal/reconcile"
	"github.com/dokzlo13/solbridge/internal/sol"
)

const defaultEventLimit = 100

// HTTPService serves health, metrics and a read/write API over the accessories.
type HTTPService struct {
	cfg        *config.Config
	reconciler *reconcile.Reconciler
	ledger     *ledger.Ledger
	server     *http.Server
	stopped    chan struct{}
}

// NewHTTPService creates a new HTTPService.
func NewHTTPService(cfg *config.Config, r *reconcile.Reconciler, l *ledger.Ledger) *HTTPService {
	return &HTTPService{
		cfg:        cfg,
		reconciler: r,
		ledger:     l,
	}
}

// accessoryView is the API representation of a binding.
type accessoryView struct {
	Token    string                           `json:"token"`
	Type     sol.Type                         `json:"type"`
	Info     accessory.Info                   `json:"info"`
	Services []accessory.ServiceSpec          `json:"services"`
	Values   map[accessory.Characteristic]any `json:"values"`
	Device   *sol.Device                      `json:"device,omitempty"`
}

// Handler builds the router.
func (s *HTTPService) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/accessories", s.handleListAccessories)
		r.Route("/accessories/{token}", func(r chi.Router) {
			r.Get("/", s.handleGetAccessory)
			r.Get("/events", s.handleAccessoryEvents)
			r.Put("/characteristics/{characteristic}", s.handleSetCharacteristic)
		})
		r.Get("/events", s.handleEvents)
		r.Post("/reconcile", s.handleReconcile)
	})

	return r
}

// Start begins serving if enabled.
func (s *HTTPService) Start(ctx context.Context) {
	if !s.cfg.HTTP.Enabled {
		return
	}

	addr := s.cfg.HTTP.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
}

// Wait blocks until the server has shut down, so no handler is still
// writing, or until ctx is done. It returns at once if the server never started.
func (s *HTTPService) Wait(ctx context.Context) {
	if s.stopped == nil {
		return
	}
	select {
	case <-s.stopped:
	case <-ctx.Done():
		log.Warn().Msg("HTTP server did not stop in time")
	}
}

func (s *HTTPService) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.reconciler.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *HTTPService) handleListAccessories(w http.ResponseWriter, _ *http.Request) {
	bindings := s.reconciler.Bindings()
	out := make([]accessoryView, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, view(b, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPService) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	b, ok := s.reconciler.Binding(chi.URLParam(r, "token"))
	if !ok {
		writeError(w, http.StatusNotFound, "accessory not found")
		return
	}
	writeJSON(w, http.StatusOK, view(b, true))
}

// handleSetCharacteristic accepts {"value": ...} and writes it through the binding.
func (s *HTTPService) handleSetCharacteristic(w http.ResponseWriter, r *http.Request) {
	b, ok := s.reconciler.Binding(chi.URLParam(r, "token"))
	if !ok {
		writeError(w, http.StatusNotFound, "accessory not found")
		return
	}

	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"value\": ...}")
		return
	}

	c := accessory.Characteristic(chi.URLParam(r, "characteristic"))
	if err := b.Set(r.Context(), c, fmt.Sprint(body.Value)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view(b, false))
}

func (s *HTTPService) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.ledger.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPService) handleAccessoryEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.ledger.ForToken(chi.URLParam(r, "token"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPService) handleReconcile(w http.ResponseWriter, _ *http.Request) {
	s.reconciler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "triggered"})
}

func view(b *accessory.Binding, withDevice bool) accessoryView {
	d := b.Device()
	v := accessoryView{
		Token:    b.Token(),
		Type:     d.Type,
		Info:     b.Info(),
		Services: b.Services(),
		Values:   b.Values(),
	}
	if withDevice {
		v.Device = d
	}
	return v
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultEventLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
