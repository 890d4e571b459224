package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/api/handlers"
	"github.com/Mathews-Tom/SubLLM/config"
	"github.com/Mathews-Tom/SubLLM/internal/metrics"
	"github.com/Mathews-Tom/SubLLM/internal/server"
	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/providers/claudecode"
	"github.com/Mathews-Tom/SubLLM/providers/codex"
	"github.com/Mathews-Tom/SubLLM/providers/gemini"
)

// Server wires configuration, providers, router, handlers, and the HTTP
// listener together.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	router      *llm.Router
	httpManager *server.Manager
	collector   *metrics.Collector

	rateLimiterCancel context.CancelFunc
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// buildRouter registers every configured backend provider.
func buildRouter(cfg *config.Config, logger *zap.Logger) *llm.Router {
	registry := llm.NewProviderRegistry()
	registry.Register(claudecode.New(cfg.Providers.ClaudeCode, logger))
	registry.Register(codex.New(cfg.Providers.Codex, logger))
	registry.Register(gemini.New(cfg.Providers.Gemini, logger))
	return llm.NewRouter(registry, logger)
}

// Start builds the handler chain and begins serving.
func (s *Server) Start() error {
	if s.cfg.Server.EnableMetrics {
		s.collector = metrics.NewCollector("subllm", s.logger)
	}

	s.router = buildRouter(s.cfg, s.logger)

	chatHandler := handlers.NewChatHandler(s.router, s.collector, s.logger)
	modelsHandler := handlers.NewModelsHandler(s.router, s.logger)
	healthHandler := handlers.NewHealthHandler(s.router, Version, s.logger)
	batchHandler := handlers.NewBatchHandler(s.router, s.collector, s.cfg.Batch.Concurrency, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", chatHandler.HandleCompletions)
	mux.HandleFunc("/v1/models", modelsHandler.HandleList)
	mux.HandleFunc("/v1/batch", batchHandler.HandleBatch)
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", healthHandler.HandleHealthz)
	if s.cfg.Server.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(s.collector))
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            s.cfg.Server.Addr(),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("SubLLM server started",
		zap.String("addr", s.httpManager.ListenAddr()),
		zap.Bool("metrics", s.cfg.Server.EnableMetrics),
	)
	return nil
}

// WaitForShutdown blocks until a shutdown signal, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the listener and releases provider resources.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(context.Background()); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.router != nil {
		if err := s.router.Close(); err != nil {
			s.logger.Warn("provider close error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
