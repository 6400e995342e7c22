package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailvault/mailvault/api/handlers"
	"github.com/mailvault/mailvault/api/middleware"
	"github.com/mailvault/mailvault/internal/repository"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// setup handlers
	apiHandlers := handlers.InitHandlers(repos, s.SyncOrchestrator)

	// Health check, status and metrics endpoints (no auth)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.SyncOrchestrator))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILVAULT-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware()) // Add tracing for all /v1/* endpoints
	{
		// Account endpoints
		accounts := api.Group("/accounts")
		{
			accounts.GET("", apiHandlers.Accounts.List())
			accounts.POST("", apiHandlers.Accounts.Register())
			accounts.GET("/:id", apiHandlers.Accounts.Get())
			accounts.PUT("/:id", apiHandlers.Accounts.Update())
			accounts.DELETE("/:id", apiHandlers.Accounts.Remove())

			// Sync control
			accounts.POST("/:id/sync", apiHandlers.Sync.Trigger())
			accounts.GET("/:id/sync", apiHandlers.Sync.Status())

			// Archived messages
			accounts.GET("/:id/messages", apiHandlers.Messages.ListByAccount())
			accounts.GET("/:id/folders/:folder/messages/:uid", apiHandlers.Messages.GetByUID())
		}

		// Message endpoints
		messages := api.Group("/messages")
		{
			messages.GET("/:id", apiHandlers.Messages.Get())
			messages.GET("/:id/attachments", apiHandlers.Messages.ListAttachments())
		}

		// Attachment endpoints
		api.GET("/attachments/checksum/:checksum", apiHandlers.Attachments.ListByChecksum())
	}
}
