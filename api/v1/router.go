package v1

import (
	"go_seoindex/api/v1/indexing"
	"go_seoindex/api/v1/middleware"
	"go_seoindex/internal/auth"
	"go_seoindex/internal/httpx"

	"github.com/gin-gonic/gin"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, tm *auth.TokenManager, h *indexing.Handler) {
	v1 := r.Group("/api/v1")
	{
		// Public routes
		v1.GET("/ping", pingHandler)

		protected := v1.Group("/indexing")
		protected.Use(middleware.AuthRequired(tm))
		{
			protected.GET("/status", h.Status)
			protected.GET("/stats", h.Stats)

			write := protected.Group("")
			write.Use(middleware.WriteRequired())
			{
				write.POST("/tenants/event", h.TenantEvent)
				write.POST("/products/event", h.ProductEvent)
				write.POST("/reindex", h.Reindex)
				write.POST("/reindex-all", h.ReindexAll)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}
