package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flagops/flagservice/internal/config"
	"github.com/flagops/flagservice/internal/evalcache"
	"github.com/flagops/flagservice/internal/flags"
	handlers "github.com/flagops/flagservice/internal/http/api/admin/handlers"
	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/scheduler"
	"github.com/flagops/flagservice/internal/security"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, service *flags.Service, sched *scheduler.Scheduler, cache *evalcache.Manager) {
	if r == nil || db == nil || service == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	flagHandler := handlers.NewFlagHandler(service)
	authed.POST("/flags", flagHandler.Create)
	authed.GET("/flags", flagHandler.List)
	authed.GET("/flags/enabled", flagHandler.ListEnabled)
	authed.GET("/flags/search", flagHandler.Search)
	authed.GET("/flags/:id", flagHandler.Get)
	authed.PUT("/flags/:id", flagHandler.Update)
	authed.DELETE("/flags/:id", flagHandler.Delete)
	authed.POST("/flags/:id/toggle", flagHandler.Toggle)

	rolloutHandler := handlers.NewRolloutHandler(sched)
	authed.POST("/schedule/rollout", rolloutHandler.Schedule)
	authed.DELETE("/schedule/rollout/:id", rolloutHandler.CancelSchedule)
	authed.POST("/schedule/auto-rollout", rolloutHandler.EnableAuto)
	authed.POST("/schedule/auto-rollout/:id/disable", rolloutHandler.DisableAuto)

	cacheHandler := handlers.NewCacheHandler(cache)
	authed.GET("/cache/stats", cacheHandler.Stats)
	authed.DELETE("/cache", cacheHandler.Clear)
	authed.DELETE("/cache/:flagName/:userId", cacheHandler.Evict)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
