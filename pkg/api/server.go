package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/rollcall/pkg/audit"
	"github.com/platinummonkey/rollcall/pkg/auth"
	"github.com/platinummonkey/rollcall/pkg/httputil"
	"github.com/platinummonkey/rollcall/pkg/middleware"
	"github.com/platinummonkey/rollcall/pkg/observability"
)

// LoginFlow creates and completes logins
type LoginFlow interface {
	Begin(ctx context.Context, subjectID string) (string, error)
	Confirm(ctx context.Context, csrfToken, code string) (*auth.Result, error)
}

// SubjectService implements the admin operations on subjects
type SubjectService interface {
	UserInfo(ctx context.Context, subjectID string) (*auth.IdentityView, error)
	RefreshRoles(ctx context.Context, subjectID string) error
	RefreshInfo(ctx context.Context, subjectID string) (time.Duration, error)
	Stats(ctx context.Context) (*auth.Stats, error)
}

// Messenger sends a direct message and returns a link to it
type Messenger interface {
	SendDirectMessage(ctx context.Context, subjectID, text string) (string, error)
}

// Config holds the collaborators of a Server
type Config struct {
	Flow      LoginFlow
	Service   SubjectService
	Messenger Messenger

	// Health serves /healthz and /readyz when set
	Health *observability.HealthChecker
	// Metrics instruments requests and Gatherer serves /metrics when set
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer

	// AdminToken guards /api/v1. Empty disables the admin API.
	AdminToken string
	// RefreshLimiter limits refresh-info per subject. Nil means no limit.
	RefreshLimiter middleware.Limiter

	// Audit records admin requests. AuditReader serves the audit route.
	Audit       audit.Logger
	AuditReader audit.Reader

	Logger logrus.FieldLogger
}

// Server is the HTTP front end
type Server struct {
	flow      LoginFlow
	service   SubjectService
	messenger Messenger
	audit     audit.Reader
	logger    logrus.FieldLogger

	router  *mux.Router
	handler http.Handler
}

// NewServer creates a server with all routes registered
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		flow:      cfg.Flow,
		service:   cfg.Service,
		messenger: cfg.Messenger,
		audit:     cfg.AuditReader,
		logger:    logger.WithField("component", "api"),
		router:    mux.NewRouter(),
	}
	s.setupRoutes(cfg)

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RequestIDMiddleware(s.logger),
			httputil.RecoveryMiddleware,
			httputil.LoggingMiddleware,
		)(s.router),
		"rollcall",
	)
	return s
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes(cfg Config) {
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	s.router.HandleFunc("/oauth/callback", s.handleCallback).Methods(http.MethodGet)
	s.router.HandleFunc("/callback", s.handleCallback).Methods(http.MethodGet)

	if cfg.Health != nil {
		s.router.HandleFunc("/healthz", cfg.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", cfg.Health.Readiness).Methods(http.MethodGet)
	}
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(cfg.Gatherer)).Methods(http.MethodGet)
	}

	admin := s.router.PathPrefix("/api/v1").Subrouter()
	if cfg.Audit != nil {
		admin.Use(audit.Middleware(cfg.Audit, s.logger))
	}
	admin.Use(middleware.AdminAuth(cfg.AdminToken))

	admin.HandleFunc("/subjects/{id:[0-9]+}", s.getSubject).Methods(http.MethodGet)
	admin.HandleFunc("/subjects/{id:[0-9]+}/login", s.createLogin).Methods(http.MethodPost)
	admin.HandleFunc("/subjects/{id:[0-9]+}/refresh-roles", s.refreshRoles).Methods(http.MethodPost)

	var refreshInfo http.Handler = http.HandlerFunc(s.refreshInfo)
	if cfg.RefreshLimiter != nil {
		refreshInfo = middleware.RateLimit(cfg.RefreshLimiter, middleware.SubjectKey, s.logger)(refreshInfo)
	}
	admin.Handle("/subjects/{id:[0-9]+}/refresh-info", refreshInfo).Methods(http.MethodPost)

	if cfg.AuditReader != nil {
		admin.HandleFunc("/subjects/{id:[0-9]+}/audit", s.getAudit).Methods(http.MethodGet)
	}
	admin.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}
