// Package server is the thin operator-facing HTTP surface: one ask endpoint
// over the orchestrator plus health and metrics. Authentication proper is a
// collaborator; the Authenticator interface is the seam where a real token
// verifier plugs in.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/finsightai/finsight/pkg/observability"
	"github.com/finsightai/finsight/pkg/orchestrator"
)

// Authenticator resolves a request to a user identity. Token verification is
// a black box behind this interface.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, ok bool)
}

// BearerUserID is the development authenticator: the bearer token IS the
// user id. Production deployments replace it.
type BearerUserID struct{}

// Authenticate extracts the bearer token and accepts it when it parses as a
// UUID.
func (BearerUserID) Authenticate(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || token == "" {
		return "", false
	}
	if _, err := uuid.Parse(token); err != nil {
		return "", false
	}
	return token, true
}

// Server hosts the HTTP surface.
type Server struct {
	orch    *orchestrator.Orchestrator
	auth    Authenticator
	metrics *observability.Metrics
	router  chi.Router
}

// New builds the router. metrics may be nil.
func New(orch *orchestrator.Orchestrator, auth Authenticator, metrics *observability.Metrics) *Server {
	s := &Server{orch: orch, auth: auth, metrics: metrics}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	r.Post("/v1/ask", s.handleAsk)

	s.router = r
	return s
}

// Handler exposes the underlying router.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving HTTP on addr.
func (s *Server) ListenAndServe(addr string) error {
	slog.Info("http server listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type askRequest struct {
	UserID    string `json:"user_id"`
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Authenticate(r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	// The authenticated identity wins over anything in the body
	req.UserID = userID

	result := s.orch.Process(r.Context(), req.UserID, req.Question, req.SessionID)

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
