// Package httpserver exposes the webhook, health, version and metrics
// endpoints over echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
)

// webhookHandler is implemented by messenger.WebhookHandler.
type webhookHandler interface {
	HandleVerify(w http.ResponseWriter, r *http.Request)
	HandleEvent(w http.ResponseWriter, r *http.Request)
}

// Config holds the listener and webhook rate-limit settings.
type Config struct {
	Port             string
	WebhookRateLimit float64
	WebhookRateBurst int
}

type Server struct {
	echo   *echo.Echo
	config Config

	webhook        webhookHandler
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

type Option func(*Server)

// WithMetrics records request metrics and serves reg on /metrics.
func WithMetrics(httpMetrics *metrics.HTTPMetrics, handler http.Handler) Option {
	return func(s *Server) {
		s.httpMetrics = httpMetrics
		s.metricsHandler = handler
	}
}

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.healthChecks = append(s.healthChecks, checks...) }
}

func NewServer(cfg Config, webhook webhookHandler, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		webhook:   webhook,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
