package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpAdapter "github.com/navbat/queue-backend/internal/adapters/primary/http"
	mw "github.com/navbat/queue-backend/internal/adapters/primary/http/middleware"
	"github.com/navbat/queue-backend/internal/adapters/primary/websocket"
	"github.com/navbat/queue-backend/internal/adapters/secondary/memory"
	"github.com/navbat/queue-backend/internal/adapters/secondary/notify"
	"github.com/navbat/queue-backend/internal/adapters/secondary/postgres"
	"github.com/navbat/queue-backend/internal/adapters/secondary/redisbus"
	"github.com/navbat/queue-backend/internal/auth"
	"github.com/navbat/queue-backend/internal/config"
	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
	"github.com/navbat/queue-backend/internal/core/services"
	"github.com/navbat/queue-backend/internal/infrastructure/logging"
	"github.com/navbat/queue-backend/internal/infrastructure/metrics"
)

// queueStore bundles the repositories and lock manager of one backend.
type queueStore struct {
	tickets ports.TicketRepository
	orgs    ports.OrganizationRepository
	tx      ports.TransactionManager
	health  httpAdapter.HealthChecker
	close   func()
}

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Initialize Queue Store
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open queue store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.close()

	healthChecks := httpAdapter.HealthChecks{"store": store.health}

	// 4. Initialize Real-time Sync
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	feed := services.NewChangeFeed(logger)
	feed.Subscribe(services.AllOrganizations, func(e domain.Event) { _ = hub.Broadcast(e) })

	broadcaster := services.MultiBroadcaster{feed}
	var notifier ports.Notifier = notify.NewLogNotifier(logger)

	// 5. Initialize Redis Bus and Notification Worker
	if cfg.RedisEnabled() {
		redisOptions, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOptions)
		defer redisClient.Close()

		bus := redisbus.NewBus(redisClient, feed, logger)
		if err := bus.Ping(ctx); err != nil {
			logger.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis bus stopped", "error", err)
			}
		}()
		broadcaster = append(broadcaster, bus)
		healthChecks["redis"] = bus

		asynqOpt, err := asynq.ParseRedisURI(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis URL for task queue", "error", err)
			os.Exit(1)
		}
		asynqNotifier := notify.NewAsynqNotifier(asynq.NewClient(asynqOpt), logger)
		defer asynqNotifier.Close()
		notifier = asynqNotifier

		worker := notify.NewWorker(asynqOpt, cfg.Redis.NotifyConcurrency, notify.NewLogNotifier(logger), logger)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("notification worker stopped", "error", err)
			}
		}()

		logger.Info("redis sync enabled", "origin", bus.Origin())
	}

	// 6. Dependency Injection (Wiring the Hexagon)
	var queueMetrics *metrics.Metrics
	serviceOpts := []services.Option{services.WithDefaultServiceMinutes(cfg.Queue.DefaultServiceMinutes)}
	if cfg.Metrics.Enabled {
		queueMetrics = metrics.New()
		serviceOpts = append(serviceOpts, services.WithMetrics(queueMetrics))
	}

	queueService := services.NewQueueService(
		store.tickets, store.orgs, store.tx,
		notifier, broadcaster, logger,
		serviceOpts...,
	)

	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	queueHandler := httpAdapter.NewQueueHandler(queueService, errorHandler, cfg.Queue.SyncPollInterval, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, tokenManager, httpAdapter.WebSocketConfig{
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		IsDevelopment:   cfg.IsDevelopment(),
		PollInterval:    cfg.Queue.SyncPollInterval,
	}, logger)
	healthHandler := httpAdapter.NewHealthHandler(healthChecks, cfg.App.Version)

	// 7. Initialize Rate Limiters
	var generalRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})

		joinRateLimiter := mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.JoinRPS,
			BurstSize:         cfg.RateLimit.JoinBurst,
			CleanupInterval:   time.Minute,
			TTL:               10 * time.Minute,
		})
		queueHandler.WithJoinLimiter(joinRateLimiter.MiddlewareByKey(mw.ClaimsKey))
	}

	// 8. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if queueMetrics != nil {
		r.Use(queueMetrics.Middleware)
	}

	// Apply general rate limiting if enabled
	if generalRateLimiter != nil {
		r.Use(generalRateLimiter.Middleware)
	}

	if queueMetrics != nil {
		r.Handle("/metrics", queueMetrics.Handler())
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	healthHandler.RegisterRoutes(r)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (Authentication is handled inside the handler)
		r.Get("/ws", wsHandler.ServeHTTP)

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokenManager))
			r.Route("/organizations", queueHandler.RegisterOrganizationRoutes)
			r.Route("/tickets", queueHandler.RegisterTicketRoutes)
		})
	})

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Graceful shutdown: stop accepting requests, then background work
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	stop()
	queueService.Shutdown()

	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		logger.Warn("websocket hub did not stop before shutdown timeout")
	}

	logger.Info("server shutdown complete")
}

// openStore opens the configured queue store backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*queueStore, error) {
	if cfg.Store.Driver == config.StoreMemory {
		store := memory.Open(cfg.Store.Namespace)
		logger.Warn("using in-memory queue store; data is lost on restart",
			"namespace", store.Namespace(),
		)
		return &queueStore{
			tickets: store,
			orgs:    store,
			tx:      store,
			health:  store,
			close:   func() { _ = store.Close() },
		}, nil
	}

	if err := postgres.Migrate(cfg.Database.URL, logger); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	// Apply database configuration
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database connection established")

	return &queueStore{
		tickets: postgres.NewTicketRepository(pool),
		orgs:    postgres.NewOrganizationRepository(pool),
		tx:      postgres.NewTransactionManager(pool),
		health:  pool,
		close:   pool.Close,
	}, nil
}
