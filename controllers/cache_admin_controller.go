package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dhananjaym182/stock-app-backend/services"
)

// CacheAdminController exposes cache maintenance and realtime status
type CacheAdminController struct {
	cacheAdmin *services.CacheAdminService
	realtime   *services.RealtimeService
}

// NewCacheAdminController creates a new cache admin controller
func NewCacheAdminController(cacheAdmin *services.CacheAdminService, realtime *services.RealtimeService) *CacheAdminController {
	return &CacheAdminController{cacheAdmin: cacheAdmin, realtime: realtime}
}

// GetStats returns per-prefix cached key counts
// GET /api/v1/cache/stats
func (cc *CacheAdminController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, cc.cacheAdmin.Stats(c.Request.Context()))
}

// ClearPrefix removes all cached entries under one prefix
// DELETE /api/v1/cache/:prefix
func (cc *CacheAdminController) ClearPrefix(c *gin.Context) {
	removed, err := cc.cacheAdmin.ClearPrefix(c.Request.Context(), c.Param("prefix"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ClearSymbol removes all cached entries for one symbol
// DELETE /api/v1/cache/symbol/:symbol
func (cc *CacheAdminController) ClearSymbol(c *gin.Context) {
	removed := cc.cacheAdmin.ClearSymbol(c.Request.Context(), c.Param("symbol"))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// RealtimeStatus reports fan-out engine counters
// GET /api/v1/realtime/status
func (cc *CacheAdminController) RealtimeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, cc.realtime.Status())
}
