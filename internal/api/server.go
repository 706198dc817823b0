package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/auth"
	"github.com/radio-control/meshchan/internal/config"
)

// shutdownTimeout bounds how long Stop waits for in-flight requests.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	channels       ChannelPort
	telemetryHub   TelemetryPort
	audit          AuditPort
	authMiddleware *auth.Middleware
	log            logrus.FieldLogger
	startTime      time.Time
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

// NewServer creates a new API server. authMiddleware is required; use
// auth.NewDisabledMiddleware for an unauthenticated local link. hub and auditLog may be nil.
func NewServer(cfg config.AdminConfig, table ChannelPort, hub TelemetryPort, auditLog AuditPort, authMiddleware *auth.Middleware, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		channels:       table,
		telemetryHub:   hub,
		audit:          auditLog,
		authMiddleware: authMiddleware,
		log:            log.WithField("component", "api"),
		startTime:      time.Now(),
		readTimeout:    time.Duration(cfg.ReadTimeoutSec) * time.Second,
		writeTimeout:   time.Duration(cfg.WriteTimeoutSec) * time.Second,
		idleTimeout:    time.Duration(cfg.IdleTimeoutSec) * time.Second,
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	return s
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start listens on addr and serves until Stop is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("Admin API listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
