package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flagops/flagservice/internal/evalcache"
	"github.com/flagops/flagservice/internal/rollout"
	"github.com/flagops/flagservice/internal/store"
)

// EvaluateHandler serves flag evaluation endpoints.
type EvaluateHandler struct {
	evaluator *rollout.Evaluator // Decision engine.
	cache     *evalcache.Manager // Evaluation result cache, optional.
}

// NewEvaluateHandler constructs an evaluate handler.
func NewEvaluateHandler(evaluator *rollout.Evaluator, cache *evalcache.Manager) *EvaluateHandler {
	return &EvaluateHandler{evaluator: evaluator, cache: cache}
}

// evaluateRequest captures the payload for a single evaluation.
type evaluateRequest struct {
	FlagName       string            `json:"flag_name"`       // Flag to evaluate.
	UserID         string            `json:"user_id"`         // User identity.
	UserAttributes map[string]string `json:"user_attributes"` // Optional segment attributes.
}

// Evaluate decides one flag for one user.
func (h *EvaluateHandler) Evaluate(c *gin.Context) {
	var body evaluateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.evaluate(c, body.FlagName, body.UserID, body.UserAttributes)
}

// EvaluateByName decides one flag for the user named in the query string.
func (h *EvaluateHandler) EvaluateByName(c *gin.Context) {
	h.evaluate(c, c.Param("flagName"), c.Query("user_id"), nil)
}

func (h *EvaluateHandler) evaluate(c *gin.Context, flagName, userID string, attrs map[string]string) {
	flagName = strings.TrimSpace(flagName)
	userID = strings.TrimSpace(userID)
	if flagName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flag_name is required"})
		return
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx := c.Request.Context()

	// Attribute-dependent evaluations are not cached: the cache key
	// carries only flag and user.
	cacheable := len(attrs) == 0
	if cacheable && h.cache != nil {
		if cached, ok, errGet := h.cache.Get(ctx, flagName, userID); errGet == nil && ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	result, errEval := h.evaluator.Evaluate(ctx, flagName, userID, attrs)
	if errEval != nil {
		if errors.Is(errEval, store.ErrFlagNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "flag not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}
	if cacheable && h.cache != nil {
		_ = h.cache.Set(ctx, &result)
	}
	c.JSON(http.StatusOK, result)
}

// EvaluateAllForUser decides every flag for one user.
func (h *EvaluateHandler) EvaluateAllForUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	results, errEval := h.evaluator.EvaluateAll(c.Request.Context(), userID, nil)
	if errEval != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "evaluations": results})
}
