// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"imisbatch/internal/domain/batch"
	"imisbatch/internal/domain/export"
	"imisbatch/internal/infrastructure/http/v1/handlers"
	"imisbatch/internal/infrastructure/http/v1/middleware"
	"imisbatch/internal/infrastructure/storage/postgres"
	"imisbatch/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// BatchService creates and lists insuree number batches
	BatchService *batch.Service

	// ExportService produces print bundles
	ExportService *export.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	batchHandler := handlers.NewBatchHandler(cfg.BatchService)
	exportHandler := handlers.NewExportHandler(cfg.ExportService)

	// API v1 - all endpoints require authentication
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))
	{
		api.POST("/batches", batchHandler.Create)
		api.GET("/batches", batchHandler.List)
		api.GET("/batches/:id", batchHandler.Get)

		api.POST("/exports", exportHandler.Export)
	}

	return router
}
