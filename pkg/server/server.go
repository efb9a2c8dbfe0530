// Package server provides the JSON API consumed by the dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/config"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/ingest"
	"github.com/logflow/poflow/pkg/logger"
	"github.com/logflow/poflow/pkg/query/analytics"
	"github.com/logflow/poflow/pkg/telemetry"
	"github.com/logflow/poflow/pkg/writer"
)

// Tenant identity headers set by the upstream auth proxy.
const (
	HeaderCompanyCode = "X-Company-Code"
	HeaderRole        = "X-Role"
	HeaderUserEmail   = "X-User-Email"
)

// Deps are the services behind the API.
type Deps struct {
	Imports   *ingest.Service
	Analytics *analytics.Service
	Datasets  *writer.Dataset
	// Broker streams import progress. A nil Broker leaves event streams
	// with status polling only.
	Broker *Broker
	// Health reports readiness; nil means always healthy.
	Health func() bool
}

// Server handles HTTP requests for the dashboard.
type Server struct {
	cfg       config.ServerConfig
	imports   *ingest.Service
	analytics *analytics.Service
	datasets  *writer.Dataset
	broker    *Broker
	health    func() bool
	eventPoll time.Duration
	mux       *http.ServeMux
	handler   http.Handler
	log       *zap.Logger
}

// New creates a new HTTP server.
func New(cfg config.ServerConfig, deps Deps, log *zap.Logger) *Server {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = config.Default().Server.MaxUploadSize
	}
	s := &Server{
		cfg:       cfg,
		imports:   deps.Imports,
		analytics: deps.Analytics,
		datasets:  deps.Datasets,
		broker:    deps.Broker,
		health:    deps.Health,
		eventPoll: 500 * time.Millisecond,
		mux:       http.NewServeMux(),
		log:       logger.OrNop(log).Named("http"),
	}
	if s.broker == nil {
		s.broker = NewBroker()
	}
	if s.health == nil {
		s.health = func() bool { return true }
	}
	s.setupRoutes()
	s.handler = telemetry.Middleware(otel.Tracer("poflow/server"), s.logRequests(s.mux))
	return s
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/imports", s.handleStartImport)
	s.mux.HandleFunc("GET /api/imports", s.handleImportHistory)
	s.mux.HandleFunc("GET /api/imports/{id}", s.handleImportStatus)
	s.mux.HandleFunc("GET /api/imports/{id}/stats", s.handleImportStats)
	s.mux.HandleFunc("GET /api/imports/{id}/events", s.handleImportEvents)
	s.mux.HandleFunc("DELETE /api/imports/{id}", s.handleDeleteImport)
	s.mux.HandleFunc("DELETE /api/data", s.handleClearAll)

	s.mux.HandleFunc("GET /api/analytics/vendors", s.handleVendors)
	s.mux.HandleFunc("GET /api/analytics/branches", s.handleBranches)
	s.mux.HandleFunc("GET /api/analytics/companies", s.handleCompanies)
	s.mux.HandleFunc("GET /api/analytics/trends", s.handleTrends)
	s.mux.HandleFunc("GET /api/analytics/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/analytics/top-vendors-by-branch", s.handleTopVendorsByBranch)
	s.mux.HandleFunc("GET /api/analytics/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/analytics/filters", s.handleFilters)
	s.mux.HandleFunc("GET /api/analytics/vendor-companies", s.handleVendorCompanies)

	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.HandleFunc("GET /api/dataset", s.handleDataset)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			strings.Join([]string{"Content-Type", HeaderCompanyCode, HeaderRole, HeaderUserEmail}, ", "))
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.handler.ServeHTTP(w, r)
}

func (s *Server) allowOrigin(origin string) string {
	if slices.Contains(s.cfg.CORSOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.cfg.CORSOrigins, origin) {
		return origin
	}
	return ""
}

// Addr is the listen address from the configuration.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts the listener
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, wrap func(http.Handler) http.Handler) error {
	var h http.Handler = s
	if wrap != nil {
		h = wrap(h)
	}
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("company_code", r.Header.Get(HeaderCompanyCode)),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// tenantFrom reads the caller's tenant from the identity headers.
func tenantFrom(r *http.Request) (model.TenantContext, error) {
	t := model.NewTenant(r.Header.Get(HeaderCompanyCode), r.Header.Get(HeaderRole))
	if err := t.Validate(); err != nil {
		return t, pferrors.Wrap(err, pferrors.CodeInvalidArgument, "missing tenant").
			WithContext("header", HeaderCompanyCode)
	}
	return t, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.health() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false,"status":"draining"}` + "\n"))
		return
	}
	body := map[string]any{"status": "ok"}
	if s.analytics != nil {
		body["cache"] = s.analytics.CacheStats()
	}
	jsonResponse(w, http.StatusOK, body)
}
