package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/flagops/flagservice/internal/events"
	"github.com/flagops/flagservice/internal/flags"
	"github.com/flagops/flagservice/internal/models"
)

// ScheduleRollout records a pending one-time percentage change. A flag holds
// at most one pending change; scheduling again overwrites it.
func (s *Scheduler) ScheduleRollout(ctx context.Context, flagID uint64, targetPercentage int, scheduledTime time.Time) (*models.Flag, error) {
	if s == nil || s.flags == nil {
		return nil, errors.New("scheduler: not initialized")
	}
	if targetPercentage < 0 || targetPercentage > 100 {
		return nil, flags.NewValidationError("target percentage must be between 0 and 100")
	}
	if !scheduledTime.After(s.now()) {
		return nil, flags.NewValidationError("scheduled time must be in the future")
	}

	scheduledTime = scheduledTime.UTC()
	updated, errUpdate := s.flags.Update(ctx, flagID, func(flag *models.Flag) error {
		flag.ScheduledRolloutPercentage = &targetPercentage
		flag.ScheduledRolloutTime = &scheduledTime
		return nil
	})
	if errUpdate != nil {
		return nil, errUpdate
	}

	s.afterTransition(ctx, events.Event{
		Type:              events.TypeRolloutScheduled,
		FlagID:            updated.ID,
		FlagName:          updated.Name,
		RolloutPercentage: &targetPercentage,
		Timestamp:         s.now().UTC(),
	})
	return updated, nil
}

// EnableAutoRollout turns on gradual rollout with the given step and interval.
func (s *Scheduler) EnableAutoRollout(ctx context.Context, flagID uint64, step, intervalHours int) (*models.Flag, error) {
	if s == nil || s.flags == nil {
		return nil, errors.New("scheduler: not initialized")
	}
	if step < 1 || step > 100 {
		return nil, flags.NewValidationError("step must be between 1 and 100")
	}
	if intervalHours < 1 {
		return nil, flags.NewValidationError("interval must be at least 1 hour")
	}

	updated, errUpdate := s.flags.Update(ctx, flagID, func(flag *models.Flag) error {
		flag.AutoRolloutEnabled = true
		flag.AutoRolloutStep = &step
		flag.AutoRolloutIntervalHours = &intervalHours
		flag.UpdatedAt = s.now().UTC()
		return nil
	})
	if errUpdate != nil {
		return nil, errUpdate
	}

	s.afterTransition(ctx, events.Event{
		Type:      events.TypeFlagUpdated,
		FlagID:    updated.ID,
		FlagName:  updated.Name,
		Enabled:   &updated.Enabled,
		Timestamp: s.now().UTC(),
	})
	return updated, nil
}

// DisableAutoRollout turns off gradual rollout, keeping the current percentage.
func (s *Scheduler) DisableAutoRollout(ctx context.Context, flagID uint64) (*models.Flag, error) {
	if s == nil || s.flags == nil {
		return nil, errors.New("scheduler: not initialized")
	}
	updated, errUpdate := s.flags.Update(ctx, flagID, func(flag *models.Flag) error {
		flag.AutoRolloutEnabled = false
		flag.UpdatedAt = s.now().UTC()
		return nil
	})
	if errUpdate != nil {
		return nil, errUpdate
	}

	s.afterTransition(ctx, events.Event{
		Type:      events.TypeFlagUpdated,
		FlagID:    updated.ID,
		FlagName:  updated.Name,
		Enabled:   &updated.Enabled,
		Timestamp: s.now().UTC(),
	})
	return updated, nil
}

// CancelScheduledRollout clears any pending one-time change.
func (s *Scheduler) CancelScheduledRollout(ctx context.Context, flagID uint64) (*models.Flag, error) {
	if s == nil || s.flags == nil {
		return nil, errors.New("scheduler: not initialized")
	}
	updated, errUpdate := s.flags.Update(ctx, flagID, func(flag *models.Flag) error {
		flag.ScheduledRolloutPercentage = nil
		flag.ScheduledRolloutTime = nil
		return nil
	})
	if errUpdate != nil {
		return nil, errUpdate
	}

	s.afterTransition(ctx, events.Event{
		Type:      events.TypeFlagUpdated,
		FlagID:    updated.ID,
		FlagName:  updated.Name,
		Enabled:   &updated.Enabled,
		Timestamp: s.now().UTC(),
	})
	return updated, nil
}
