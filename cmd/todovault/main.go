package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Patrick-De-Lara/todovault/internal/api"
	"github.com/Patrick-De-Lara/todovault/internal/cache"
	"github.com/Patrick-De-Lara/todovault/internal/config"
	"github.com/Patrick-De-Lara/todovault/internal/repository/postgres"
	"github.com/Patrick-De-Lara/todovault/internal/service"
	"github.com/Patrick-De-Lara/todovault/internal/storage"
	"github.com/Patrick-De-Lara/todovault/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel)
	l.Info("Starting todovault...")

	// Database
	db, err := config.NewDatabase(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate("migrations"); err != nil {
		l.Fatalf("Failed to run migrations: %v", err)
	}

	// Attachment store
	files, err := storage.NewDiskStore(cfg.StoragePath)
	if err != nil {
		l.Fatalf("Failed to initialize attachment store: %v", err)
	}

	// Repositories
	userRepo := postgres.NewUserRepository(db.DB)
	todoRepo := postgres.NewTodoRepository(db.DB)

	// Optional Redis list cache
	var todoCache *cache.TodoCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			l.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			l.Fatalf("Failed to connect to Redis: %v", err)
		}
		todoCache = cache.NewTodoCache(rdb, cfg.CacheTTL)
		l.Info("Todo list cache enabled")
	}

	// Service layer
	svc := service.New(db.DB, l, userRepo, todoRepo, files, todoCache, cfg.JWTSecret, cfg.TokenTTL)

	// HTTP server
	apiServer := api.NewServer(svc, l)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: apiServer.Handler(),
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
			cancel()
		}
	}()

	l.Info("todovault started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Errorf("HTTP server shutdown error: %v", err)
	}

	l.Info("todovault stopped")
}
