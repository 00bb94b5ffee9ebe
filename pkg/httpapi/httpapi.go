// Package httpapi serves the /healthz and /metrics endpoints both the
// collect and investigate commands expose, grounded on the teacher's
// gin.Default router plus a database.Health-style readiness check.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gohost "github.com/shirou/gopsutil/v4/host"

	"github.com/scrywarden/scrywarden/pkg/metrics"
)

// Pinger is the subset of *store.Repo the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the gin engine backing a command's health/metrics surface.
type Server struct {
	Component string
	Repo      Pinger
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	registry *prometheus.Registry
	engine   *gin.Engine
}

// New builds a Server. It registers m's collectors against a fresh
// registry of its own, so each Server serves its own /metrics output.
func New(component string, repo Pinger, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		return nil, err
	}

	s := &Server{Component: component, Repo: repo, Metrics: m, Logger: logger, registry: registry}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return s, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// it down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	body := gin.H{"component": s.Component}

	if s.Repo != nil {
		if err := s.Repo.Ping(reqCtx); err != nil {
			body["status"] = "unhealthy"
			body["database"] = "unreachable"
			body["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}

	if info, err := gohost.InfoWithContext(reqCtx); err == nil {
		body["uptime_seconds"] = info.Uptime
		body["hostname"] = info.Hostname
	} else if s.Logger != nil {
		s.Logger.WarnContext(reqCtx, "fetching host info for health check failed", "error", err)
	}

	body["status"] = "healthy"
	c.JSON(http.StatusOK, body)
}
