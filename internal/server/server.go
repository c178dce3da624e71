package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/linkmon/internal/report"
	"github.com/hazz-dev/linkmon/internal/storage"
)

// ServerStore defines the storage queries the server needs.
type ServerStore interface {
	AllLatest(ctx context.Context, kind report.Kind) ([]storage.Measurement, error)
	LatestByHost(ctx context.Context, host string, kind report.Kind) (*storage.Measurement, error)
	History(ctx context.Context, host string, kind report.Kind, limit, offset int) ([]storage.Measurement, int, error)
	UptimePercent(ctx context.Context, host string, last int) (float64, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store    ServerStore
	targets  []string
	interval time.Duration
	metrics  http.Handler
	router   chi.Router
	logger   *slog.Logger
}

// New creates a new Server and registers all routes. interval is the probe
// period reported per target. A nil metrics handler leaves /metrics unrouted.
func New(store ServerStore, targets []string, interval time.Duration, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		targets:  targets,
		interval: interval,
		metrics:  metrics,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/targets", s.handleListTargets)
	r.Get("/api/targets/{host}", s.handleGetTarget)
	r.Get("/api/targets/{host}/history", s.handleGetTargetHistory)
	r.Get("/api/bandwidth", s.handleBandwidth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
}

// --- Response helpers ---

type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

func (s *Server) isTarget(host string) bool {
	for _, t := range s.targets {
		if t == host {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type targetDetail struct {
	Host         string     `json:"host"`
	Interval     string     `json:"interval"`
	Status       string     `json:"status"`
	LatencyMs    *float64   `json:"latency_ms"`
	UptimePct    float64    `json:"uptime_percent"`
	LastMeasured *time.Time `json:"last_measured"`
}

func (s *Server) detail(ctx context.Context, host string, latest *storage.Measurement) targetDetail {
	d := targetDetail{
		Host:     host,
		Interval: s.interval.String(),
		Status:   "unknown",
	}
	if latest == nil {
		return d
	}
	d.Status = "down"
	if latest.IsUp {
		d.Status = "up"
	}
	d.LatencyMs = latest.LatencyMs
	t := latest.MeasuredAt
	d.LastMeasured = &t
	pct, err := s.store.UptimePercent(ctx, host, 100)
	if err != nil {
		s.logger.Warn("UptimePercent", "host", host, "error", err)
	}
	d.UptimePct = pct
	return d
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.AllLatest(r.Context(), report.KindLatency)
	if err != nil {
		s.logger.Error("AllLatest", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byHost := make(map[string]storage.Measurement, len(latest))
	for _, m := range latest {
		byHost[m.Host] = m
	}

	details := make([]targetDetail, 0, len(s.targets))
	for _, host := range s.targets {
		var m *storage.Measurement
		if v, ok := byHost[host]; ok {
			m = &v
		}
		details = append(details, s.detail(r.Context(), host, m))
	}

	writeJSON(w, http.StatusOK, details)
}

type targetDetailResponse struct {
	targetDetail
	Recent []storage.Measurement `json:"recent"`
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	if !s.isTarget(host) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}

	latest, err := s.store.LatestByHost(r.Context(), host, report.KindLatency)
	if err != nil {
		s.logger.Error("LatestByHost", "host", host, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	recent, _, err := s.store.History(r.Context(), host, report.KindLatency, 10, 0)
	if err != nil {
		s.logger.Error("History", "host", host, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if recent == nil {
		recent = []storage.Measurement{}
	}

	writeJSON(w, http.StatusOK, targetDetailResponse{
		targetDetail: s.detail(r.Context(), host, latest),
		Recent:       recent,
	})
}

type historyResponse struct {
	Measurements []storage.Measurement `json:"measurements"`
	Total        int                   `json:"total"`
}

func (s *Server) handleGetTargetHistory(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	if !s.isTarget(host) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}

	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	ms, total, err := s.store.History(r.Context(), host, report.KindLatency, limit, offset)
	if err != nil {
		s.logger.Error("History", "host", host, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ms == nil {
		ms = []storage.Measurement{}
	}

	writeJSON(w, http.StatusOK, historyResponse{Measurements: ms, Total: total})
}

func (s *Server) handleBandwidth(w http.ResponseWriter, r *http.Request) {
	ms, err := s.store.AllLatest(r.Context(), report.KindBandwidth)
	if err != nil {
		s.logger.Error("AllLatest", "kind", report.KindBandwidth, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ms == nil {
		ms = []storage.Measurement{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	const maxLimit = 1000
	limit = 50

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return 0, 0, false
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
