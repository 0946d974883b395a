package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/cache"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/config"
)

// Rate limit applied per client IP across all API routes.
const (
	apiRateLimit  = 60
	apiRateWindow = time.Minute
)

// Server is the HTTP front of the monitoring service.
type Server struct {
	httpServer *http.Server
	cfg        config.ServerConfig
	logger     *slog.Logger
}

// NewServer assembles the route tree: versioned API routes behind the
// middleware stack, health probes and the alert WebSocket outside the
// rate limiter.
func NewServer(
	cfg config.ServerConfig,
	handler *Handler,
	health *HealthService,
	ws *WebSocketHandler,
	limiter cache.RateLimiter,
	metricsHandler http.Handler,
	logger *slog.Logger,
) *Server {
	root := http.NewServeMux()

	api := Chain(handler.Routes(),
		rateLimitMiddleware(limiter, apiRateLimit, apiRateWindow),
	)
	root.Handle("/api/v1/", http.StripPrefix("/api/v1", api))

	root.HandleFunc("GET /healthz", health.LivenessHandler)
	root.HandleFunc("GET /readyz", health.ReadinessHandler)
	root.HandleFunc("GET /ws/alerts", ws.ServeAlerts)
	if metricsHandler != nil {
		root.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Port),
			Handler: Chain(root,
				recoveryMiddleware,
				requestIDMiddleware,
				tracingMiddleware,
				loggingMiddleware,
				corsMiddleware,
			),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Start serves until the context is canceled or SIGINT/SIGTERM arrives,
// then drains in-flight requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("server context canceled")
	}

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("draining http server", "timeout", timeout)
	return s.httpServer.Shutdown(ctx)
}
