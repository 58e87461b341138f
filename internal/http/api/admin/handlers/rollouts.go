package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flagops/flagservice/internal/scheduler"
)

// RolloutHandler manages scheduled and automatic rollout progressions.
type RolloutHandler struct {
	scheduler *scheduler.Scheduler // Rollout progression engine.
}

// NewRolloutHandler constructs a rollout handler.
func NewRolloutHandler(sched *scheduler.Scheduler) *RolloutHandler {
	return &RolloutHandler{scheduler: sched}
}

// scheduleRolloutRequest captures a one-time rollout change.
type scheduleRolloutRequest struct {
	FlagID           uint64    `json:"flag_id"`           // Flag to change.
	TargetPercentage int       `json:"target_percentage"` // Percentage to apply.
	ScheduledTime    time.Time `json:"scheduled_time"`    // When to apply, must be in the future.
}

// Schedule registers a one-time rollout percentage change.
func (h *RolloutHandler) Schedule(c *gin.Context) {
	var body scheduleRolloutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.FlagID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flag_id is required"})
		return
	}

	flag, errSchedule := h.scheduler.ScheduleRollout(c.Request.Context(), body.FlagID, body.TargetPercentage, body.ScheduledTime)
	if errSchedule != nil {
		writeFlagError(c, errSchedule)
		return
	}
	c.JSON(http.StatusOK, formatFlag(flag))
}

// CancelSchedule clears a pending one-time rollout change.
func (h *RolloutHandler) CancelSchedule(c *gin.Context) {
	id, ok := parseFlagID(c)
	if !ok {
		return
	}
	flag, errCancel := h.scheduler.CancelScheduledRollout(c.Request.Context(), id)
	if errCancel != nil {
		writeFlagError(c, errCancel)
		return
	}
	c.JSON(http.StatusOK, formatFlag(flag))
}

// enableAutoRolloutRequest captures gradual rollout settings.
type enableAutoRolloutRequest struct {
	FlagID        uint64 `json:"flag_id"`        // Flag to progress.
	Step          int    `json:"step"`           // Percentage increase per interval.
	IntervalHours int    `json:"interval_hours"` // Hours between steps.
}

// EnableAuto turns on gradual automatic rollout for a flag.
func (h *RolloutHandler) EnableAuto(c *gin.Context) {
	var body enableAutoRolloutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.FlagID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flag_id is required"})
		return
	}

	flag, errEnable := h.scheduler.EnableAutoRollout(c.Request.Context(), body.FlagID, body.Step, body.IntervalHours)
	if errEnable != nil {
		writeFlagError(c, errEnable)
		return
	}
	c.JSON(http.StatusOK, formatFlag(flag))
}

// DisableAuto turns off gradual automatic rollout for a flag.
func (h *RolloutHandler) DisableAuto(c *gin.Context) {
	id, ok := parseFlagID(c)
	if !ok {
		return
	}
	flag, errDisable := h.scheduler.DisableAutoRollout(c.Request.Context(), id)
	if errDisable != nil {
		writeFlagError(c, errDisable)
		return
	}
	c.JSON(http.StatusOK, formatFlag(flag))
}
