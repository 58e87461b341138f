package public

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flagops/flagservice/internal/evalcache"
	handlers "github.com/flagops/flagservice/internal/http/api/public/handlers"
	"github.com/flagops/flagservice/internal/rollout"
)

// RegisterPublicRoutes registers the unauthenticated evaluation API.
func RegisterPublicRoutes(r *gin.Engine, conn *gorm.DB, evaluator *rollout.Evaluator, cache *evalcache.Manager) {
	if r == nil || evaluator == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(conn)
	r.GET("/healthz", healthHandler.Healthz)

	evaluateHandler := handlers.NewEvaluateHandler(evaluator, cache)
	statsHandler := handlers.NewStatsHandler(evaluator)

	group := r.Group("/v0/evaluate")
	group.POST("", evaluateHandler.Evaluate)
	group.POST("/batch", statsHandler.Batch)
	group.GET("/user/:userId", evaluateHandler.EvaluateAllForUser)
	group.GET("/:flagName", evaluateHandler.EvaluateByName)
	group.GET("/:flagName/stats", statsHandler.Stats)
	group.GET("/:flagName/simulate", statsHandler.Simulate)
	group.GET("/:flagName/distribution", statsHandler.Distribution)
}
