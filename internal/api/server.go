// Package api exposes the draft session HTTP surface: session CRUD, player
// actions, spectator streams, listings and cost presets.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/draftforge/backend/internal/config"
	"github.com/draftforge/backend/internal/draft"
	"github.com/draftforge/backend/internal/hub"
	"github.com/draftforge/backend/internal/locks"
	"github.com/draftforge/backend/internal/middleware"
	"github.com/draftforge/backend/internal/monitoring"
	"github.com/draftforge/backend/internal/store"
)

// Rate-limit bucket names.
const (
	bucketAction = "action" // player writes, keyed "<sessionKey>:<tokenOrAddr>"
	bucketOwner  = "owner"  // owner mutations, keyed by owner id
)

// Pinger reports backend reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the draft core together behind a mux router.
type Server struct {
	store   store.Store
	hub     *hub.Hub
	locks   *locks.Table
	limiter *middleware.RateLimiter
	metrics *monitoring.Metrics
	cfg     *config.Config

	dbPing    Pinger // optional
	redisPing Pinger // optional

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time
}

// Options carries optional collaborators for NewServer.
type Options struct {
	DBPing    Pinger
	RedisPing Pinger
	Registry  prometheus.Registerer
}

// NewServer builds a Server. metrics may be nil (tests).
func NewServer(st store.Store, h *hub.Hub, cfg *config.Config, metrics *monitoring.Metrics, opts Options) *Server {
	return &Server{
		store:   st,
		hub:     h,
		locks:   locks.NewTable(),
		limiter: middleware.NewRateLimiter(map[string]middleware.BucketConfig{
			bucketAction: {MaxPerMinute: 120, Burst: 180},
			bucketOwner:  {MaxPerMinute: 60, Burst: 90},
		}),
		metrics:   metrics,
		cfg:       cfg,
		dbPing:    opts.DBPing,
		redisPing: opts.RedisPing,
		now:       time.Now,
	}
}

// Router builds the full route table. Stream endpoints carry no rate limit.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/sessions", s.requireOwner(s.handleCreateSession)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/recent", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/sessions/live", s.handleLive).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}", s.requireOwner(s.handleUpdateSession)).Methods(http.MethodPatch)
	api.HandleFunc("/sessions/{key}", s.requireOwner(s.handleDeleteSession)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{key}/actions", s.handleAction).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{key}/stream", s.handleStream).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}/ws", s.handleWS).Methods(http.MethodGet)
	api.HandleFunc("/resolve-token", s.handleResolveToken).Methods(http.MethodPost)

	api.HandleFunc("/presets", s.requireOwner(s.handleListPresets)).Methods(http.MethodGet)
	api.HandleFunc("/presets", s.requireOwner(s.handleCreatePreset)).Methods(http.MethodPost)
	api.HandleFunc("/presets/{id}", s.requireOwner(s.handleDeletePreset)).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

func (s *Server) requireOwner(next http.HandlerFunc) http.HandlerFunc {
	return middleware.RequireOwner(s.store, next)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]interface{}{"status": "ok"}
	code := http.StatusOK
	if s.dbPing != nil {
		if err := s.dbPing.Ping(ctx); err != nil {
			health["status"] = "degraded"
			health["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			health["database"] = "ok"
		}
	}
	if s.redisPing != nil {
		if err := s.redisPing.Ping(ctx); err != nil {
			health["redis"] = "unreachable"
		} else {
			health["redis"] = "ok"
		}
	}
	respondJSON(w, code, health)
}

// =========================================================================
// Response helpers
// =========================================================================

func respondJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

// respondRejection maps a reducer rejection to a transport response.
// Malformed input is the caller's fault; everything else is a protocol
// conflict.
func (s *Server) respondRejection(w http.ResponseWriter, op string, rej *draft.Rejection) {
	if s.metrics != nil {
		s.metrics.RejectionsTotal.WithLabelValues(string(rej.Reason)).Inc()
		if op != "" {
			s.metrics.ActionsTotal.WithLabelValues(op, "rejected").Inc()
		}
	}
	code := http.StatusConflict
	if rej.Reason == draft.RejectInvalidArgument {
		code = http.StatusBadRequest
	}
	respondError(w, code, string(rej.Reason))
}

// respondInternal hides the cause from the caller and logs it with context.
func respondInternal(w http.ResponseWriter, where string, err error) {
	slog.Error("internal error", "where", where, "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
