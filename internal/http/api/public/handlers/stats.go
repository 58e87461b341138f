package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flagops/flagservice/internal/rollout"
	"github.com/flagops/flagservice/internal/store"
)

const (
	defaultSampleSize = 1000
	maxSampleSize     = 100000
	maxBatchUsers     = 10000
)

// StatsHandler serves batch evaluation and distribution endpoints.
type StatsHandler struct {
	evaluator *rollout.Evaluator // Decision engine.
}

// NewStatsHandler constructs a stats handler.
func NewStatsHandler(evaluator *rollout.Evaluator) *StatsHandler {
	return &StatsHandler{evaluator: evaluator}
}

// batchRequest captures the payload for evaluating one flag over many users.
type batchRequest struct {
	FlagName string   `json:"flag_name"` // Flag to evaluate.
	UserIDs  []string `json:"user_ids"`  // Users to evaluate.
}

// Batch evaluates one flag for an explicit list of users.
func (h *StatsHandler) Batch(c *gin.Context) {
	var body batchRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	flagName := strings.TrimSpace(body.FlagName)
	if flagName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flag_name is required"})
		return
	}
	if len(body.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_ids is required"})
		return
	}
	if len(body.UserIDs) > maxBatchUsers {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many user_ids"})
		return
	}

	result, errEval := h.evaluator.EvaluateForUsers(c.Request.Context(), flagName, body.UserIDs)
	if errEval != nil {
		h.writeError(c, errEval)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats reports the effective enablement rate over a synthetic sample.
func (h *StatsHandler) Stats(c *gin.Context) {
	flagName := strings.TrimSpace(c.Param("flagName"))
	sampleSize, ok := h.sampleSize(c)
	if !ok {
		return
	}

	stats, errStats := h.evaluator.GetStatistics(c.Request.Context(), flagName, sampleSize)
	if errStats != nil {
		h.writeError(c, errStats)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Simulate evaluates a flag for a synthetic user population.
func (h *StatsHandler) Simulate(c *gin.Context) {
	flagName := strings.TrimSpace(c.Param("flagName"))
	sampleSize, ok := h.sampleSize(c)
	if !ok {
		return
	}

	result, errEval := h.evaluator.SimulateRollout(c.Request.Context(), flagName, sampleSize)
	if errEval != nil {
		h.writeError(c, errEval)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Distribution reports the decile histogram of hash buckets for a flag.
func (h *StatsHandler) Distribution(c *gin.Context) {
	flagName := strings.TrimSpace(c.Param("flagName"))
	sampleSize, ok := h.sampleSize(c)
	if !ok {
		return
	}

	buckets, errBuckets := h.evaluator.DistributionBuckets(c.Request.Context(), flagName, sampleSize)
	if errBuckets != nil {
		h.writeError(c, errBuckets)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flag_name": flagName, "buckets": buckets})
}

// sampleSize parses the sample_size query parameter with bounds applied.
func (h *StatsHandler) sampleSize(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("sample_size"))
	if raw == "" {
		return defaultSampleSize, true
	}
	n, errParse := strconv.Atoi(raw)
	if errParse != nil || n <= 0 || n > maxSampleSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sample_size"})
		return 0, false
	}
	return n, true
}

func (h *StatsHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrFlagNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "flag not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
}
