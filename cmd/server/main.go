package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listsync/internal/api"
	"listsync/internal/config"
	"listsync/internal/db"
	"listsync/internal/repository"
	"listsync/internal/services"
	"listsync/internal/services/collaboration"
	"listsync/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

This main function demonstrates:
1. Service initialization and dependency injection
2. Concurrent server and worker pool management
3. Graceful shutdown handling (listening for SIGINT/SIGTERM)
4. Proper resource cleanup order: stop accepting, close sockets, drain
   the presence queue, then close the stores
*/

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to load config")
	}

	if err := telemetry.InitLogger(cfg.AppEnv, cfg.LogLevel); err != nil {
		logrus.WithError(err).Fatal("❌ Failed to configure logger")
	}
	logrus.WithField("version", version).Info("🚀 Starting listsync server...")

	// Learning: Do this FIRST so all operations are traced
	if cfg.TracingEnabled {
		jaegerShutdown, err := telemetry.InitJaeger("listsync", version, cfg.JaegerEndpoint)
		if err != nil {
			logrus.WithError(err).Warn("⚠️  Failed to initialize Jaeger (continuing without tracing)")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := jaegerShutdown(ctx); err != nil {
					logrus.WithError(err).Warn("⚠️  Failed to shutdown Jaeger")
				}
			}()
		}
	}

	database, err := db.NewGorm(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to connect to database")
	}
	defer database.Close()

	listRepo := repository.NewListRepository(database.DB)
	itemRepo := repository.NewItemRepository(database.DB)

	sessionStore, closeStore := newSessionStore(cfg, database)
	defer closeStore()

	// Presence writes never block the realtime path
	presence := services.NewPresenceWriter(sessionStore, cfg.PresenceWorkers, cfg.PresenceQueueSize)
	presence.Start()

	listService := services.NewListService(listRepo, itemRepo, sessionStore, cfg.ActiveSessionWindow)

	gateway := collaboration.NewGateway(listService, presence)
	gateway.Start()
	wsHandler := collaboration.NewWebSocketHandler(gateway, cfg.AllowedOrigin, cfg.SendBufferSize)

	cleanup := services.NewCleanupWorker(listRepo, cfg.CleanupInterval)
	cleanup.Start()

	handler := api.NewHandler(listService, gateway, presence, wsHandler)
	router := api.SetupRoutes(handler, cfg.AllowedOrigin)

	addr := cfg.ListenAddr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		logrus.WithField("addr", addr).Info("🌐 Server listening")
		logrus.Info("   POST   /api/lists                        - Create list")
		logrus.Info("   GET    /api/lists/{slug}                 - Get list with items")
		logrus.Info("   PUT    /api/lists/{id}                   - Update list")
		logrus.Info("   POST   /api/lists/{id}/items             - Add item")
		logrus.Info("   PUT    /api/items/{id}                   - Update item")
		logrus.Info("   DELETE /api/items/{id}                   - Delete item")
		logrus.Info("   POST   /api/items/reorder                - Reorder items")
		logrus.Info("   POST   /api/lists/{id}/sessions          - Register viewer")
		logrus.Info("   GET    /api/lists/{id}/sessions/active   - Active viewers")
		logrus.Info("   DELETE /api/sessions/{sessionId}         - Unregister viewer")
		logrus.Info("   GET    /ws                               - Realtime sync")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("❌ Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("⚠️  Server forced to shutdown")
	}

	// Hijacked websocket connections are not covered by server.Shutdown
	gateway.Shutdown()
	cleanup.Shutdown()

	// Learning: This waits for workers to finish their queued jobs
	presence.Shutdown()

	logrus.Info("✓ Server shutdown complete")
}

// newSessionStore picks the presence backend named by SESSION_STORE.
func newSessionStore(cfg *config.Config, database *db.GormDB) (services.SessionStore, func()) {
	if cfg.SessionStore != config.SessionStoreRedis {
		logrus.Info("✓ Using database session store")
		return repository.NewSessionRepository(database.DB), func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.WithError(err).Fatal("❌ Invalid REDIS_URL")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Fatal("❌ Failed to connect to Redis")
	}

	logrus.WithField("addr", opts.Addr).Info("✓ Using Redis session store")
	return repository.NewRedisSessionStore(client, cfg.ActiveSessionWindow), func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("⚠️  Failed to close Redis client")
		}
	}
}
