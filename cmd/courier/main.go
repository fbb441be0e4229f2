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
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/api"
	"github.com/lalithlochan/courier/internal/circuitbreaker"
	"github.com/lalithlochan/courier/internal/compose"
	"github.com/lalithlochan/courier/internal/config"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/events"
	"github.com/lalithlochan/courier/internal/gateway"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/observ"
	"github.com/lalithlochan/courier/internal/quota"
	"github.com/lalithlochan/courier/internal/redis"
	"github.com/lalithlochan/courier/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting courier",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.Int("daily_limit", cfg.DailyLimit),
		zap.String("gateway_mode", cfg.GatewayMode),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for idempotency, rate limiting, and the event feed
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and event feed disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	var eventSink events.Sink = events.NewZapSink(logger)
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per client
		})
		eventSink = events.NewMultiSink(
			events.NewZapSink(logger),
			redis.NewEventPublisher(redisClient, logger, cfg.EventChannel),
		)
		defer redisClient.Close()
	}

	// Select the message gateway
	var gw gateway.Gateway
	switch cfg.GatewayMode {
	case "webhook":
		gw = gateway.NewWebhookGateway(gateway.WebhookConfig{
			SendURL:   cfg.GatewaySendURL,
			HealthURL: cfg.GatewayHealthURL,
			Timeout:   cfg.SendTimeout,
		}, logger)
	case "sns":
		gw, err = gateway.NewSNSGateway(ctx, gateway.SNSConfig{Region: cfg.SNSRegion}, logger)
		if err != nil {
			return fmt.Errorf("failed to create sns gateway: %w", err)
		}
	default:
		logger.Warn("gateway mode is log, messages will not leave this process")
		gw = gateway.NewLogGateway(logger)
	}

	// Wrap the gateway in a circuit breaker so a dead session fails fast
	// instead of burning the pacing budget on timeouts.
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("gateway"), logger)
	gw = circuitbreaker.NewProtectedGateway(gw, breaker, logger)

	// Quota tracker counts sent entries in the delivery log; it is never
	// cached, so restarts and log clears are reflected immediately.
	tracker := quota.New(repo, cfg.DailyLimit)

	dispatch := scheduler.New(
		repo,
		tracker,
		compose.New(nil),
		gw,
		eventSink,
		scheduler.Config{
			MinMessageDelay: cfg.MinMessageDelay,
			MaxMessageDelay: cfg.MaxMessageDelay,
			MinBatchSize:    cfg.MinBatchSize,
			MaxBatchSize:    cfg.MaxBatchSize,
			MinLongPause:    cfg.MinLongPause,
			MaxLongPause:    cfg.MaxLongPause,
			SendTimeout:     cfg.SendTimeout,
		},
		logger,
		nil,
	)
	defer dispatch.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	var handler *api.Handler
	if idempotencyService != nil {
		handler = api.NewHandlerWithIdempotency(logger, repo, dispatch, tracker, idempotencyService)
	} else {
		handler = api.NewHandler(logger, repo, dispatch, tracker)
	}
	r.Route("/v1", func(r chi.Router) {
		// Apply rate limiting to API routes
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Post("/contacts", handler.CreateContact)
		r.Get("/contacts", handler.ListContacts)
		r.Post("/templates", handler.CreateTemplate)

		r.Post("/campaigns", handler.CreateCampaign)
		r.Get("/campaigns", handler.ListCampaigns)
		r.Get("/campaigns/{id}", handler.GetCampaign)
		r.Post("/campaigns/{id}/start", handler.StartCampaign)
		r.Post("/campaigns/{id}/resume", handler.ResumeCampaign)
		r.Post("/campaigns/{id}/recipients", handler.AddRecipients)
		r.Delete("/campaigns/{id}/recipients", handler.RemoveRecipients)

		r.Post("/dispatch/stop", handler.StopDispatch)
		r.Get("/dispatch/status", handler.DispatchStatus)

		r.Get("/logs", handler.RecentLogs)
		r.Delete("/logs", handler.ClearLogs)

		r.Post("/groups", handler.CreateGroup)
		r.Post("/groups/{id}/members", handler.AddGroupMember)
		r.Get("/groups/{id}/members", handler.ListGroupMembers)

		r.Post("/admin/reset", handler.ResetDatabase)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Stop the dispatch loop first; the in-flight message finishes,
		// everything behind it stays queued.
		dispatch.Stop()

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
