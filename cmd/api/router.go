package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"household-catalog/internal/shared/middleware"
	"household-catalog/internal/shared/response"
	"household-catalog/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	v1 := router.Group("/api/v1")
	{
		// books, categories, statistics, health
		c.CatalogHandler.RegisterRoutes(v1)

		v1.GET("/db-stats", databaseStatsHandler(c))
	}

	return router
}

// ========================================
// DATABASE STATS HANDLER
// ========================================
// Chỉ có ý nghĩa với STORE_DRIVER=postgres (pgx pool stats)
func databaseStatsHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		if appCtx.DB == nil || appCtx.DB.Pool == nil {
			response.Success(c, http.StatusOK, gin.H{
				"store": appCtx.Store.Name(),
				"pool":  nil,
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var version string
		if err := appCtx.DB.Pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
			response.ErrorResponse(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error())
			return
		}

		stats := appCtx.DB.Pool.Stat()
		response.Success(c, http.StatusOK, gin.H{
			"store":            appCtx.Store.Name(),
			"postgres_version": version,
			"pool": gin.H{
				"total_connections":    stats.TotalConns(),
				"idle_connections":     stats.IdleConns(),
				"acquired_connections": stats.AcquiredConns(),
				"max_connections":      stats.MaxConns(),
			},
		})
	}
}
