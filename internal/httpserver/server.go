package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"conuco-bot/internal/cache"
	"conuco-bot/internal/convo"
	"conuco-bot/internal/metrics"
	"conuco-bot/internal/repo"
	"conuco-bot/internal/weather"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups optional HTTP handlers to mount.
type Handlers struct {
	TelegramWebhook http.Handler
}

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Repository repo.Repository
	Redis      *cache.Redis
	Weather    *weather.Client
	Convo      *convo.Engine
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	handlers   Handlers
	deps       Dependencies
	basePath   string
}

// New creates a new HTTP server listening on addr with health and metrics endpoints.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, handlers Handlers, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		handlers: handlers,
		basePath: normaliseBasePath(basePath),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/reload-crop-cache", server.handleReloadCropCache)
	mux.HandleFunc("/admin/weather", server.handleWeatherProbe)

	if handlers.TelegramWebhook != nil {
		mux.Handle("/webhook/telegram", handlers.TelegramWebhook)
	}

	handler := mountWithBasePath(server.basePath, mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// SetDependencies makes dependencies accessible to handlers.
func (s *Server) SetDependencies(deps Dependencies) {
	s.deps = deps
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleReloadCropCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Convo == nil {
		http.Error(w, "conversation engine unavailable", http.StatusServiceUnavailable)
		return
	}

	count, err := s.deps.Convo.ReloadCropCache(r.Context())
	if err != nil {
		s.logger.Error("failed reloading crop cache", "error", err)
		http.Error(w, "failed reloading crop cache", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"status": "ok",
		"count":  count,
	})
}

// handleWeatherProbe returns the recent weather series for a zone, mostly
// useful to verify provider connectivity.
func (s *Server) handleWeatherProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Weather == nil || s.deps.Repository == nil {
		http.Error(w, "weather client unavailable", http.StatusServiceUnavailable)
		return
	}

	zoneID, err := strconv.Atoi(r.URL.Query().Get("zone"))
	if err != nil {
		http.Error(w, "invalid zone id", http.StatusBadRequest)
		return
	}

	zone, err := s.deps.Repository.GetZone(r.Context(), zoneID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "zone not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed loading zone", "error", err, "zone", zoneID)
		http.Error(w, "failed loading zone", http.StatusInternalServerError)
		return
	}

	daysBack := 2
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			daysBack = parsed
		}
	}

	history, err := s.deps.Weather.History(r.Context(), zone.Latitude, zone.Longitude, daysBack)
	if err != nil {
		s.logger.Warn("weather history unavailable", "error", err, "zone", zoneID)
		http.Error(w, "weather unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, map[string]any{
		"zone":    zone.Name,
		"history": history,
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
