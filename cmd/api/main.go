// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parley-ai/chat-platform/internal/cache"
	"github.com/parley-ai/chat-platform/internal/config"
	"github.com/parley-ai/chat-platform/internal/handler"
	"github.com/parley-ai/chat-platform/internal/llm"
	"github.com/parley-ai/chat-platform/internal/middleware"
	"github.com/parley-ai/chat-platform/internal/queue"
	"github.com/parley-ai/chat-platform/internal/ratelimit"
	"github.com/parley-ai/chat-platform/internal/service"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/internal/worker"
	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Error("failed to create AI provider", zap.Error(err))
		os.Exit(1)
	}
	log.Info("AI provider configured", zap.String("provider", provider.Name()))

	generation := llm.GenerationConfig{
		Model:       cfg.DefaultModel,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
	}
	llmClient := llm.NewClient(provider, generation, cfg.RequestTimeout, log)

	responseCache := cache.New(cfg.CacheTTL)

	jobWorker := worker.New(st, llmClient, responseCache, worker.Options{
		MaxAttempts:   cfg.JobMaxAttempts,
		RetryBackoff:  cfg.JobRetryBackoff,
		HistoryWindow: cfg.HistoryWindow,
		Generation:    generation,
	}, log)

	dispatcher, err := buildDispatcher(ctx, cfg, jobWorker.Handle, log)
	if err != nil {
		log.Error("failed to create job dispatcher", zap.Error(err))
		os.Exit(1)
	}
	defer dispatcher.Close()

	aiLimiter := ratelimit.New(cfg.AIRateLimit, cfg.AIRateWindow)

	conversationSvc := service.NewConversationService(st, log)
	chatSvc := service.NewChatService(st, dispatcher, responseCache, cfg.PollWindow, log)

	healthHandler := handler.NewHealthHandler(st, dispatcher)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(chatSvc, log)
	annotationHandler := handler.NewAnnotationHandler(chatSvc, log)
	modelsHandler := handler.NewModelsHandler(cfg.DefaultModel)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.GlobalRateLimit, cfg.GlobalRateWindow))

		r.Get("/ai/models", modelsHandler.List)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)

				r.Get("/poll", messageHandler.Poll)

				// Endpoints that trigger upstream completion calls sit
				// behind the AI limiter.
				r.Group(func(r chi.Router) {
					r.Use(middleware.AIRateLimit(aiLimiter))
					r.Post("/messages", messageHandler.Send)
					r.Post("/summary", annotationHandler.Summary)
					r.Post("/topics", annotationHandler.Topics)
					r.Post("/categorize", annotationHandler.Categorize)
				})
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// buildProvider selects the upstream completion provider once, at
// startup. Handlers and workers never branch on provider identity.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.AIProvider {
	case "mock":
		return llm.NewStubProvider(), nil
	case "anthropic":
		return llm.NewAnthropicProvider(cfg.AnthropicAPIKey)
	default:
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
}

func buildDispatcher(ctx context.Context, cfg *config.Config, h queue.Handler, log *logger.Logger) (queue.Dispatcher, error) {
	if cfg.QueueDriver == "nats" {
		return queue.ConnectNATS(ctx, queue.NATSConfig{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, h, log)
	}
	return queue.NewLocal(0, cfg.WorkerConcurrency, h, log), nil
}
