package models

import (
	"time"

	"gorm.io/datatypes"
)

// Flag is the unit of rollout control.
type Flag struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	Name        string `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"` // Unique flag name (stored trimmed).
	Description string `gorm:"type:varchar(500)" json:"description"`              // Human-readable description.

	Enabled           bool `gorm:"not null;default:false" json:"enabled"`        // Global kill switch.
	RolloutPercentage int  `gorm:"not null;default:0" json:"rollout_percentage"` // Fraction of users in [0,100].

	TargetUserIDs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"target_user_ids"` // Always-on user allow-list (JSON string array).
	UserSegment   datatypes.JSON `gorm:"type:jsonb" json:"user_segment,omitempty"`                // Attribute equality predicate (JSON string map).

	ScheduledRolloutPercentage *int       `json:"scheduled_rollout_percentage,omitempty"` // Pending one-time target percentage.
	ScheduledRolloutTime       *time.Time `json:"scheduled_rollout_time,omitempty"`       // When the pending change fires.

	AutoRolloutEnabled       bool `gorm:"not null;default:false" json:"auto_rollout_enabled"` // Gradual rollout active.
	AutoRolloutStep          *int `json:"auto_rollout_step,omitempty"`                        // Percentage increase per interval, [1,100].
	AutoRolloutIntervalHours *int `json:"auto_rollout_interval_hours,omitempty"`              // Hours between steps, >=1.

	// Timestamps are set explicitly by update functions, never by ORM
	// hooks: UpdatedAt is the anchor the scheduler measures auto-rollout
	// intervals against, so it must be a deliberate input.
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false" json:"created_at"` // Creation timestamp (UTC).
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"` // Last update timestamp (UTC).
}
