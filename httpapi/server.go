// Package httpapi serves the session endpoints over HTTP with gorilla/mux.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/internal"
	"github.com/MrEthical07/sessioncore/middleware"
)

const maxBodyBytes = 1 << 20

type Config struct {
	AllowedOrigins    []string
	TrustProxyHeaders bool
	// AdminToken guards /admin. Empty leaves the admin routes unregistered.
	AdminToken string
}

// ConfigFrom takes the HTTP settings of an engine configuration.
func ConfigFrom(c sessioncore.ServerConfig) Config {
	return Config{
		AllowedOrigins:    c.AllowedOrigins,
		TrustProxyHeaders: c.TrustProxyHeaders,
		AdminToken:        c.AdminToken,
	}
}

type Server struct {
	engine  *sessioncore.Engine
	logger  *zap.Logger
	config  Config
	metrics http.Handler
	router  *mux.Router
}

// New builds the router. metrics may be nil, in which case /metrics is not
// served.
func New(engine *sessioncore.Engine, cfg Config, metrics http.Handler) *Server {
	s := &Server{
		engine:  engine,
		logger:  engine.Logger(),
		config:  cfg,
		metrics: metrics,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.ClientInfo(s.config.TrustProxyHeaders))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(middleware.RateLimit(s.engine))
	auth.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	protected := auth.NewRoute().Subrouter()
	protected.Use(middleware.RequireAuth(s.engine), middleware.RequireCSRF(s.engine))
	protected.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	protected.HandleFunc("/mfa/setup", s.handleMFASetup).Methods(http.MethodPost)
	protected.HandleFunc("/mfa/enable", s.handleMFAEnable).Methods(http.MethodPost)
	protected.HandleFunc("/mfa/disable", s.handleMFADisable).Methods(http.MethodPost)
	protected.HandleFunc("/mfa/backup-codes", s.handleBackupCodesRemaining).Methods(http.MethodGet)
	protected.HandleFunc("/mfa/backup-codes", s.handleBackupCodesRegenerate).Methods(http.MethodPost)

	if s.config.AdminToken != "" {
		admin := r.PathPrefix("/admin").Subrouter()
		admin.Use(middleware.RateLimit(s.engine), s.requireAdmin)
		admin.HandleFunc("/sweep", s.handleSweep).Methods(http.MethodPost)
		admin.HandleFunc("/security-events", s.handleListEvents).Methods(http.MethodGet)
		admin.HandleFunc("/security-events/{id}/resolve", s.handleResolveEvent).Methods(http.MethodPost)
		admin.HandleFunc("/security-report", s.handleSecurityReport).Methods(http.MethodGet)
	}
}

// Handler wraps the router with CORS. Credentials are allowed so the
// refresh and CSRF cookies travel with cross-origin requests from the
// configured origins.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", s.engine.CSRFHeaderName()},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// requireAdmin accepts only the configured admin bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := middleware.BearerToken(r)
		if tok == "" || !internal.ConstantTimeEqual(tok, s.config.AdminToken) {
			middleware.WriteError(w, s.logger, sessioncore.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return middleware.ErrBadRequest
	}
	return nil
}
