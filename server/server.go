// Package server wires the engine services behind an echo HTTP server and
// owns the background loops: the expiration sweeper, the nightly pattern
// analyzer, and the stale-episode resolver.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/subpilot/subpilot/internal/profile"
	"github.com/subpilot/subpilot/plugin/engine/delivery"
	"github.com/subpilot/subpilot/plugin/engine/generation"
	"github.com/subpilot/subpilot/plugin/engine/learning"
	"github.com/subpilot/subpilot/plugin/engine/lifecycle"
	"github.com/subpilot/subpilot/plugin/engine/memory"
	"github.com/subpilot/subpilot/plugin/engine/orchestrator"
	"github.com/subpilot/subpilot/plugin/engine/reasoning"
	"github.com/subpilot/subpilot/server/middleware"
	apiv1 "github.com/subpilot/subpilot/server/router/api/v1"
	"github.com/subpilot/subpilot/store"
)

// Server is the assembled engine: HTTP surface plus background loops.
type Server struct {
	profile *profile.Profile
	store   *store.Store
	echo    *echo.Echo

	memoryService *memory.Service
	sweeper       *lifecycle.Sweeper
	analyzer      *learning.Analyzer
	resolver      *learning.Resolver
}

// New assembles the server from a profile and store.
func New(ctx context.Context, p *profile.Profile, s *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(requestLogger())

	memoryService := memory.NewService(s, 0)
	learningService := learning.NewService(s)
	reasoner := reasoning.NewEngine(memoryService, learningService)

	generator, err := buildGenerator(p)
	if err != nil {
		return nil, err
	}
	deliverer, err := buildDeliverer(p)
	if err != nil {
		return nil, err
	}

	executor := lifecycle.NewExecutor(s, deliverer)
	lifecycleService := lifecycle.NewService(s, generator, memoryService, executor)

	orchestratorService, err := orchestrator.NewService(
		s, memoryService, learningService, reasoner, generator, lifecycleService, deliverer)
	if err != nil {
		return nil, err
	}

	auth := middleware.NewAuthenticator(s, p.JWTSecret)
	apiv1.NewAPIV1Service(s, auth, orchestratorService, lifecycleService, learningService).Register(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	server := &Server{
		profile:       p,
		store:         s,
		echo:          e,
		memoryService: memoryService,
		sweeper:       lifecycle.NewSweeper(s, deliverer, p.ExpirationHours, p.SweepIntervalMin),
		analyzer: learning.NewAnalyzer(learningService, s).
			WithRunHour(p.AnalysisRunHour).
			WithSampleLimit(p.AnalysisSample),
		resolver: learning.NewResolver(learningService, s),
	}
	return server, nil
}

// Start launches the background loops and serves HTTP. It blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.sweeper.Start(ctx)
	if err := s.analyzer.Start(ctx); err != nil {
		return err
	}
	if err := s.resolver.Start(ctx); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server listening", "addr", addr, "mode", s.profile.Mode, "version", s.profile.Version)
	return s.echo.Start(addr)
}

// Shutdown stops the loops and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sweeper.Stop()
	s.analyzer.Stop()
	s.resolver.Stop()
	s.memoryService.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.store.Close()
}

// buildGenerator returns the configured content generator: the OpenAI-backed
// provider when AI is enabled, the deterministic mock otherwise.
func buildGenerator(p *profile.Profile) (generation.Generator, error) {
	if !p.IsAIEnabled() {
		slog.Info("content generation disabled, using template generator")
		return generation.NewMockGenerator(), nil
	}
	provider, err := generation.NewProvider(&generation.Config{
		APIKey:     p.AIAPIKey,
		BaseURL:    p.AIBaseURL,
		ChatModel:  p.AIModel,
		MaxRetries: p.AIMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	// One tenant must not be able to starve the provider quota.
	return generation.NewRateLimitedGenerator(provider, 30, 10), nil
}

// buildDeliverer returns the configured deliverer: SMTP when a host is set,
// the log-only deliverer otherwise.
func buildDeliverer(p *profile.Profile) (delivery.Deliverer, error) {
	if p.SMTPHost == "" {
		slog.Info("smtp not configured, using log delivery")
		return delivery.NewLogDeliverer(), nil
	}
	return delivery.NewSMTPDeliverer(&delivery.SMTPConfig{
		Host:     p.SMTPHost,
		Port:     p.SMTPPort,
		Username: p.SMTPUsername,
		Password: p.SMTPPassword,
	})
}

// requestLogger logs one line per request with method, path, status and
// latency. Request and response bodies are never logged.
func requestLogger() echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			slog.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	})
}
