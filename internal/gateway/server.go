package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/bus"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/MEKXH/gatekeeper/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestIDHeader = "X-Request-ID"

// ApprovalStore lists approval records. *approval.Journal satisfies it.
type ApprovalStore interface {
	List(q approval.Query) ([]approval.Record, error)
	Get(id string) (approval.Record, error)
}

// MetricsSource returns the current runtime snapshot.
type MetricsSource interface {
	Snapshot() metrics.RuntimeSnapshot
}

// Deps are the read-only sources served by the gateway. Nil sources answer
// 503 on their endpoints.
type Deps struct {
	Approvals ApprovalStore
	Metrics   MetricsSource
}

type Server struct {
	cfg        config.GatewayConfig
	deps       Deps
	httpServer *http.Server
}

func New(cfg config.GatewayConfig, deps Deps) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18790
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:  cfg,
		deps: deps,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           NewHandler(s.cfg.Token, s.deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// NewHandler builds the status API. /health and /version are public; the
// rest require the bearer token when one is configured.
func NewHandler(token string, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "not found")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID(r),
		})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": requestID(r),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(token))
		r.Get("/approvals", listApprovals(deps.Approvals))
		r.Get("/approvals/{id}", getApproval(deps.Approvals))
		r.Get("/metrics", getMetrics(deps.Metrics))
	})
	return r
}

func listApprovals(store ApprovalStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, r, http.StatusServiceUnavailable, "unavailable", "approval journal is not configured")
			return
		}
		q := approval.Query{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Action: strings.TrimSpace(r.URL.Query().Get("action")),
		}
		records, err := store.List(q)
		if err != nil {
			slog.Error("gateway approval listing failed", "request_id", requestID(r), "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to read approvals")
			return
		}
		if records == nil {
			records = []approval.Record{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"approvals":  records,
			"count":      len(records),
			"request_id": requestID(r),
		})
	}
}

func getApproval(store ApprovalStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, r, http.StatusServiceUnavailable, "unavailable", "approval journal is not configured")
			return
		}
		record, err := store.Get(chi.URLParam(r, "id"))
		if errors.Is(err, approval.ErrTicketNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "approval not found")
			return
		}
		if err != nil {
			slog.Error("gateway approval lookup failed", "request_id", requestID(r), "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to read approval")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"approval":   record,
			"request_id": requestID(r),
		})
	}
}

func getMetrics(source MetricsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			writeError(w, r, http.StatusServiceUnavailable, "unavailable", "runtime metrics are not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics":    source.Snapshot(),
			"request_id": requestID(r),
		})
	}
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if rid := strings.TrimSpace(r.Header.Get(requestIDHeader)); rid != "" {
			ctx = bus.WithRequestID(ctx, rid)
		}
		ctx, rid := bus.EnsureRequestID(ctx)
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && !isAuthorized(r, token) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func requestID(r *http.Request) string {
	return bus.RequestIDFromContext(r.Context())
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID(r),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
