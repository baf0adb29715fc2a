package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dhananjaym182/stock-app-backend/controllers"
	"github.com/dhananjaym182/stock-app-backend/middleware"
	"github.com/dhananjaym182/stock-app-backend/services"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, stocks *services.StockService, realtime *services.RealtimeService, cacheAdmin *services.CacheAdminService) {
	stockController := controllers.NewStockController(stocks)
	cacheAdminController := controllers.NewCacheAdminController(cacheAdmin, realtime)

	// API v1 group, rate limited per client IP
	api := router.Group("/api/v1")
	api.Use(middleware.NewRateLimiter(300, time.Minute).Middleware())
	{
		stocksGroup := api.Group("/stocks")
		{
			stocksGroup.GET("/search", stockController.SearchStocks)
			stocksGroup.GET("/:symbol/quote", stockController.GetQuote)
			stocksGroup.GET("/:symbol/history", stockController.GetHistory)
		}

		cache := api.Group("/cache")
		{
			cache.GET("/stats", cacheAdminController.GetStats)
			cache.DELETE("/symbol/:symbol", cacheAdminController.ClearSymbol)
			cache.DELETE("/prefix/:prefix", cacheAdminController.ClearPrefix)
		}

		api.GET("/realtime/status", cacheAdminController.RealtimeStatus)

		// WebSocket subscription endpoint
		api.GET("/ws", func(c *gin.Context) {
			realtime.HandleWebSocket(c.Writer, c.Request)
		})
	}
}
