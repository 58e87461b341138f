package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/flagops/flagservice/internal/events"
	"github.com/flagops/flagservice/internal/flags"
	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/store"

	log "github.com/sirupsen/logrus"
)

// DefaultTickInterval is the cadence of the rollout scan. It is a tuning
// parameter, not a correctness requirement.
const DefaultTickInterval = time.Minute

// errNoChange aborts a store.Update without persisting anything. It signals
// that the transition's preconditions no longer hold inside the transaction.
var errNoChange = errors.New("scheduler: no change")

// Scheduler advances rollouts over time: it applies due one-time scheduled
// changes and due auto-rollout steps, once per tick, idempotently.
type Scheduler struct {
	flags     store.FlagStore
	cache     flags.Invalidator
	publisher events.Publisher
	interval  time.Duration
	now       func() time.Time
}

// New constructs a Scheduler. cache and publisher may be nil.
func New(flagStore store.FlagStore, cache flags.Invalidator, publisher events.Publisher) *Scheduler {
	return &Scheduler{
		flags:     flagStore,
		cache:     cache,
		publisher: publisher,
		interval:  DefaultTickInterval,
		now:       time.Now,
	}
}

// WithInterval overrides the tick cadence.
func (s *Scheduler) WithInterval(interval time.Duration) *Scheduler {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

// WithClock injects the time source, letting tests drive transitions
// without real time passing.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// Start runs the tick loop in the background until the context is canceled.
// The loop is serial: a tick runs to completion before the next fires, so two
// ticks can never process the same flag concurrently.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("rollout scheduler started (interval=%s)", s.interval)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.WithError(err).Warn("rollout scheduler: tick failed")
			}
		}
	}
}

// Tick scans every flag and applies due transitions. One-time schedules fire
// before auto-rollout steps, so an auto step in the same tick observes the
// already-applied scheduled percentage. A failure on one flag is logged and
// never blocks progression of the others.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s == nil || s.flags == nil {
		return errors.New("scheduler: not initialized")
	}
	all, errList := s.flags.List(ctx)
	if errList != nil {
		return errList
	}

	now := s.now().UTC()
	for i := range all {
		flag := &all[i]
		if errSchedule := s.applyScheduledRollout(ctx, flag, now); errSchedule != nil {
			log.WithError(errSchedule).Warnf("rollout scheduler: flag %s: scheduled change failed", flag.Name)
		}
		if errAuto := s.applyAutoRollout(ctx, flag, now); errAuto != nil {
			log.WithError(errAuto).Warnf("rollout scheduler: flag %s: auto-rollout failed", flag.Name)
		}
	}
	return nil
}

// applyScheduledRollout fires a due one-time change. Applying the percentage
// and clearing the pending fields happen in the same persisted update; a
// partial apply would re-fire forever.
func (s *Scheduler) applyScheduledRollout(ctx context.Context, snapshot *models.Flag, now time.Time) error {
	if snapshot.ScheduledRolloutPercentage == nil || snapshot.ScheduledRolloutTime == nil {
		return nil
	}
	if now.Before(*snapshot.ScheduledRolloutTime) {
		return nil
	}

	updated, errUpdate := s.flags.Update(ctx, snapshot.ID, func(flag *models.Flag) error {
		// Recheck inside the transaction: an operator may have canceled
		// the schedule since the scan read the row.
		if flag.ScheduledRolloutPercentage == nil || flag.ScheduledRolloutTime == nil {
			return errNoChange
		}
		if now.Before(*flag.ScheduledRolloutTime) {
			return errNoChange
		}
		flag.RolloutPercentage = *flag.ScheduledRolloutPercentage
		flag.ScheduledRolloutPercentage = nil
		flag.ScheduledRolloutTime = nil
		flag.UpdatedAt = now
		return nil
	})
	if errUpdate != nil {
		if errors.Is(errUpdate, errNoChange) {
			return nil
		}
		return errUpdate
	}

	log.Infof("applied scheduled rollout for flag %s -> %d%%", updated.Name, updated.RolloutPercentage)
	*snapshot = *updated
	s.afterTransition(ctx, events.Event{
		Type:              events.TypeRolloutAdvanced,
		FlagID:            updated.ID,
		FlagName:          updated.Name,
		Enabled:           &updated.Enabled,
		RolloutPercentage: &updated.RolloutPercentage,
		Timestamp:         now,
	})
	return nil
}

// applyAutoRollout advances a due gradual rollout by one step, capped at 100.
// The step write always persists on its own; only then, if 100 was reached,
// a second write clears the auto-rollout enablement. Callers observing the
// flag between the two writes see 100% with auto-rollout still active.
func (s *Scheduler) applyAutoRollout(ctx context.Context, snapshot *models.Flag, now time.Time) error {
	if !snapshot.AutoRolloutEnabled || snapshot.AutoRolloutStep == nil || snapshot.AutoRolloutIntervalHours == nil {
		return nil
	}
	if now.Sub(snapshot.UpdatedAt) < time.Duration(*snapshot.AutoRolloutIntervalHours)*time.Hour {
		return nil
	}

	updated, errUpdate := s.flags.Update(ctx, snapshot.ID, func(flag *models.Flag) error {
		if !flag.AutoRolloutEnabled || flag.AutoRolloutStep == nil || flag.AutoRolloutIntervalHours == nil {
			return errNoChange
		}
		if now.Sub(flag.UpdatedAt) < time.Duration(*flag.AutoRolloutIntervalHours)*time.Hour {
			return errNoChange
		}
		next := flag.RolloutPercentage + *flag.AutoRolloutStep
		if next > 100 {
			next = 100
		}
		if next <= flag.RolloutPercentage {
			return errNoChange
		}
		flag.RolloutPercentage = next
		flag.UpdatedAt = now
		return nil
	})
	if errUpdate != nil {
		if errors.Is(errUpdate, errNoChange) {
			return nil
		}
		return errUpdate
	}

	log.Infof("auto-rollout for flag %s -> %d%%", updated.Name, updated.RolloutPercentage)
	*snapshot = *updated
	s.afterTransition(ctx, events.Event{
		Type:              events.TypeRolloutAdvanced,
		FlagID:            updated.ID,
		FlagName:          updated.Name,
		Enabled:           &updated.Enabled,
		RolloutPercentage: &updated.RolloutPercentage,
		Timestamp:         now,
	})

	if updated.RolloutPercentage < 100 {
		return nil
	}
	completed, errComplete := s.flags.Update(ctx, snapshot.ID, func(flag *models.Flag) error {
		if !flag.AutoRolloutEnabled {
			return errNoChange
		}
		flag.AutoRolloutEnabled = false
		flag.UpdatedAt = now
		return nil
	})
	if errComplete != nil {
		if errors.Is(errComplete, errNoChange) {
			return nil
		}
		return errComplete
	}

	log.Infof("auto-rollout complete for flag %s", completed.Name)
	*snapshot = *completed
	s.afterTransition(ctx, events.Event{
		Type:              events.TypeRolloutCompleted,
		FlagID:            completed.ID,
		FlagName:          completed.Name,
		Enabled:           &completed.Enabled,
		RolloutPercentage: &completed.RolloutPercentage,
		Timestamp:         now,
	})
	return nil
}

// afterTransition invalidates the evaluation cache and publishes the event.
func (s *Scheduler) afterTransition(ctx context.Context, event events.Event) {
	if s.cache != nil {
		if errInvalidate := s.cache.InvalidateAll(ctx); errInvalidate != nil {
			log.WithError(errInvalidate).Warn("rollout scheduler: cache invalidation failed")
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, event)
	}
}
