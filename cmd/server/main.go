// Package main is the entry point for the insuree batch API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imisbatch/internal/domain/auth"
	"imisbatch/internal/domain/batch"
	"imisbatch/internal/domain/export"
	"imisbatch/internal/domain/insuree"
	"imisbatch/internal/domain/location"
	v1 "imisbatch/internal/infrastructure/http/v1"
	"imisbatch/internal/infrastructure/storage/postgres"
	"imisbatch/internal/infrastructure/storage/postgres/batch_repo"
	"imisbatch/internal/infrastructure/storage/postgres/insuree_repo"
	"imisbatch/internal/infrastructure/storage/postgres/location_repo"
	"imisbatch/pkg/logger"
)

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting imisbatch server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			postgres.LogPoolStats(ctx, pool.Pool)
		}
	}()

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	batchRepo := batch_repo.NewBatchRepo(txManager)
	insureeRepo := insuree_repo.NewInsureeRepo(txManager)
	locationRepo := location_repo.NewLocationRepo(txManager)

	// --- Number format ---
	numberCfg := insuree.ResolveNumberConfig(ctx,
		getEnvInt("INSUREE_NUMBER_LENGTH", 0),
		getEnvInt("INSUREE_NUMBER_MODULO_ROOT", 0),
	)
	log.Infow("insuree number format",
		"length", numberCfg.Length,
		"modulo_root", numberCfg.ModuloRoot,
	)

	codeLengths := location.NewCodeLengthCache(locationRepo)
	generator := insuree.NewGenerator(numberCfg, codeLengths)

	// --- Services ---
	batchService := batch.NewService(batchRepo, insureeRepo, locationRepo, generator)
	exportService := export.NewService(insureeRepo, batchRepo, txManager)

	// --- JWT Service ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:          pool,
		Logger:        log,
		JWTValidator:  jwtService,
		BatchService:  batchService,
		ExportService: exportService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // export downloads can be large
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
