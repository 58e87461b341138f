package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flagops/flagservice/internal/evalcache"
)

// CacheHandler exposes evaluation cache administration endpoints.
type CacheHandler struct {
	cache *evalcache.Manager // Evaluation result cache.
}

// NewCacheHandler constructs a cache handler.
func NewCacheHandler(cache *evalcache.Manager) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Stats reports cache hit and miss counters.
func (h *CacheHandler) Stats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, evalcache.Stats{Backend: "disabled"})
		return
	}
	c.JSON(http.StatusOK, h.cache.Stats())
}

// Clear drops every cached evaluation.
func (h *CacheHandler) Clear(c *gin.Context) {
	if h.cache == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if errClear := h.cache.InvalidateAll(c.Request.Context()); errClear != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache clear failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Evict drops one cached evaluation.
func (h *CacheHandler) Evict(c *gin.Context) {
	flagName := strings.TrimSpace(c.Param("flagName"))
	userID := strings.TrimSpace(c.Param("userId"))
	if flagName == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flag name and user id are required"})
		return
	}
	if h.cache == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if errEvict := h.cache.Invalidate(c.Request.Context(), flagName, userID); errEvict != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache evict failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
