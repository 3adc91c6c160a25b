package router

import (
	"github.com/gin-gonic/gin"

	"docai/internal/handler"
	"docai/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	allowedOrigins []string,
	documentH *handler.DocumentHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	// Upload endpoint at its original path
	r.POST("/documents/upload", documentH.Upload)

	v1 := r.Group("/api/v1")

	docs := v1.Group("/documents")
	docs.POST("/upload", documentH.Upload)
	docs.GET("", documentH.List)
	docs.GET("/export", documentH.Export)
	docs.GET("/:task_id", documentH.Get)

	v1.GET("/models", documentH.Models)

	return r
}
