package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flagops/flagservice/internal/flags"
	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/store"
)

// FlagHandler manages admin CRUD endpoints for feature flags.
type FlagHandler struct {
	service *flags.Service // Flag lifecycle service.
}

// NewFlagHandler constructs a flag handler.
func NewFlagHandler(service *flags.Service) *FlagHandler {
	return &FlagHandler{service: service}
}

// createFlagRequest captures the payload for creating a flag.
type createFlagRequest struct {
	Name              string            `json:"name"`               // Unique flag name.
	Description       string            `json:"description"`        // Human description.
	Enabled           bool              `json:"enabled"`            // Kill switch state.
	RolloutPercentage int               `json:"rollout_percentage"` // Rollout percentage 0-100.
	TargetUserIDs     []string          `json:"target_user_ids"`    // Always-on users.
	UserSegment       map[string]string `json:"user_segment"`       // Segment predicate.
}

// Create validates input and inserts a new flag.
func (h *FlagHandler) Create(c *gin.Context) {
	var body createFlagRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	flag, errCreate := h.service.Create(c.Request.Context(), flags.CreateParams{
		Name:              body.Name,
		Description:       body.Description,
		Enabled:           body.Enabled,
		RolloutPercentage: body.RolloutPercentage,
		TargetUserIDs:     body.TargetUserIDs,
		UserSegment:       body.UserSegment,
	})
	if errCreate != nil {
		writeFlagError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, formatFlag(flag))
}

// List returns all flags.
func (h *FlagHandler) List(c *gin.Context) {
	rows, errList := h.service.List(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list flags failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": formatFlags(rows)})
}

// ListEnabled returns only globally enabled flags.
func (h *FlagHandler) ListEnabled(c *gin.Context) {
	rows, errList := h.service.ListEnabled(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list flags failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": formatFlags(rows)})
}

// Search returns flags whose name contains the query, case-insensitive.
func (h *FlagHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("name"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name query is required"})
		return
	}
	rows, errSearch := h.service.SearchByName(c.Request.Context(), query)
	if errSearch != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": formatFlags(rows)})
}

// Get fetches a flag by ID.
func (h *FlagHandler) Get(c *gin.Context) {
	id, ok := parseFlagID(c)
	if !ok {
		return
	}
	flag, errGet := h.service.Get(c.Request.Context(), id)
	if errGet != nil {
		writeFlagError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, formatFlag(flag))
}

// updateFlagRequest captures optional fields for flag updates.
type updateFlagRequest struct {
	Name              *string           `json:"name"`               // Optional rename.
	Description       *string           `json:"description"`        // Optional description.
	Enabled           *bool             `json:"enabled"`            // Optional kill switch state.
	RolloutPercentage *int              `json:"rollout_percentage"` // Optional rollout percentage.
	TargetUserIDs     []string          `json:"target_user_ids"`    // Optional always-on users.
	UserSegment       map[string]string `json:"user_segment"`       // Optional segment predicate.
}

// Update validates and applies flag field updates.
func (h *FlagHandler) Update(c *gin.Context) {
	id, ok := parseFlagID(c)
	if !ok {
		return
	}
	var body updateFlagRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	flag, errUpdate := h.service.Update(c.Request.Context(), id, flags.UpdateParams{
		Name:              body.Name,
		Description:       body.Description,
		Enabled:           body.Enabled,
		RolloutPercentage: body.RolloutPercentage,
		TargetUserIDs:     body.TargetUserIDs,
		UserSegment:       body.UserSegment,
	})
	if errUpdate != nil {
		writeFlagError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, formatFlag(flag))
}

// Toggle flips the global kill switch for a flag.
func (h *FlagHandler) Toggle(c *gin.Context) {
	id, ok := parseFlagID(c)
	if !ok {
		return
	}
	flag, errToggle := h.service.Toggle(c.Request.Context(), id)
	if errToggle != nil {
		writeFlagError(c, errToggle)
		return
	}
	c.JSON(http.StatusOK, formatFlag(flag))
}

// Delete removes a flag by ID.
func (h *FlagHandler) Delete(c *gin.Context) {
	id, ok := parseFlagID(c)
	if !ok {
		return
	}
	if errDelete := h.service.Delete(c.Request.Context(), id); errDelete != nil {
		writeFlagError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseFlagID parses the :id path parameter, writing a 400 on failure.
func parseFlagID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// writeFlagError maps service errors onto HTTP status codes.
func writeFlagError(c *gin.Context, err error) {
	var validationErr *flags.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
		return
	}
	if errors.Is(err, store.ErrFlagNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "flag not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
}

// formatFlag converts a flag model into a response payload.
func formatFlag(f *models.Flag) gin.H {
	targets := []string{}
	if len(f.TargetUserIDs) > 0 {
		_ = json.Unmarshal(f.TargetUserIDs, &targets)
	}
	var segment map[string]string
	if len(f.UserSegment) > 0 {
		_ = json.Unmarshal(f.UserSegment, &segment)
	}
	return gin.H{
		"id":                           f.ID,
		"name":                         f.Name,
		"description":                  f.Description,
		"enabled":                      f.Enabled,
		"rollout_percentage":           f.RolloutPercentage,
		"target_user_ids":              targets,
		"user_segment":                 segment,
		"scheduled_rollout_percentage": f.ScheduledRolloutPercentage,
		"scheduled_rollout_time":       f.ScheduledRolloutTime,
		"auto_rollout_enabled":         f.AutoRolloutEnabled,
		"auto_rollout_step":            f.AutoRolloutStep,
		"auto_rollout_interval_hours":  f.AutoRolloutIntervalHours,
		"created_at":                   f.CreatedAt,
		"updated_at":                   f.UpdatedAt,
	}
}

func formatFlags(rows []models.Flag) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatFlag(&rows[i]))
	}
	return out
}
