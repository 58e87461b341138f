package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flagops/flagservice/internal/events"
	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/store"
	"gorm.io/datatypes"

	log "github.com/sirupsen/logrus"
)

// Invalidator evicts derived evaluation results after a flag mutation.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Service owns flag lifecycle operations: validated creation, updates,
// toggling, and deletion, each followed by cache invalidation and a
// published change event.
type Service struct {
	flags     store.FlagStore
	cache     Invalidator
	publisher events.Publisher
	now       func() time.Time
}

// NewService constructs a flag Service. cache and publisher may be nil.
func NewService(flags store.FlagStore, cache Invalidator, publisher events.Publisher) *Service {
	return &Service{
		flags:     flags,
		cache:     cache,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateParams holds inputs for flag creation.
type CreateParams struct {
	Name              string
	Description       string
	Enabled           bool
	RolloutPercentage int
	TargetUserIDs     []string
	UserSegment       map[string]string
}

// Create validates and persists a new flag.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Flag, error) {
	if s == nil || s.flags == nil {
		return nil, fmt.Errorf("flag service: not initialized")
	}
	name := strings.TrimSpace(params.Name)
	if errName := validateFlagName(name); errName != nil {
		return nil, errName
	}
	if errPct := validateRolloutPercentage(params.RolloutPercentage); errPct != nil {
		return nil, errPct
	}
	exists, errExists := s.flags.ExistsByName(ctx, name)
	if errExists != nil {
		return nil, errExists
	}
	if exists {
		return nil, NewValidationError("flag with name '%s' already exists", name)
	}

	targets, errTargets := encodeTargets(params.TargetUserIDs)
	if errTargets != nil {
		return nil, errTargets
	}
	segment, errSegment := encodeSegment(params.UserSegment)
	if errSegment != nil {
		return nil, errSegment
	}

	now := s.now().UTC()
	flag := &models.Flag{
		Name:              name,
		Description:       strings.TrimSpace(params.Description),
		Enabled:           params.Enabled,
		RolloutPercentage: params.RolloutPercentage,
		TargetUserIDs:     targets,
		UserSegment:       segment,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if errSave := s.flags.Save(ctx, flag); errSave != nil {
		return nil, errSave
	}

	s.afterMutation(ctx, events.Event{
		Type:              events.TypeFlagCreated,
		FlagID:            flag.ID,
		FlagName:          flag.Name,
		Enabled:           &flag.Enabled,
		RolloutPercentage: &flag.RolloutPercentage,
		Timestamp:         now,
	})
	return flag, nil
}

// UpdateParams holds optional field updates for a flag.
type UpdateParams struct {
	Name              *string
	Description       *string
	Enabled           *bool
	RolloutPercentage *int
	TargetUserIDs     []string
	UserSegment       map[string]string
}

// Update validates and applies field updates to an existing flag.
func (s *Service) Update(ctx context.Context, id uint64, params UpdateParams) (*models.Flag, error) {
	if s == nil || s.flags == nil {
		return nil, fmt.Errorf("flag service: not initialized")
	}

	if params.Name != nil {
		newName := strings.TrimSpace(*params.Name)
		if errName := validateFlagName(newName); errName != nil {
			return nil, errName
		}
		current, errGet := s.flags.Get(ctx, id)
		if errGet != nil {
			return nil, errGet
		}
		if !strings.EqualFold(current.Name, newName) {
			exists, errExists := s.flags.ExistsByName(ctx, newName)
			if errExists != nil {
				return nil, errExists
			}
			if exists {
				return nil, NewValidationError("flag with name '%s' already exists", newName)
			}
		}
	}
	if params.RolloutPercentage != nil {
		if errPct := validateRolloutPercentage(*params.RolloutPercentage); errPct != nil {
			return nil, errPct
		}
	}

	updated, errUpdate := s.flags.Update(ctx, id, func(flag *models.Flag) error {
		if params.Name != nil {
			flag.Name = strings.TrimSpace(*params.Name)
		}
		if params.Description != nil {
			flag.Description = strings.TrimSpace(*params.Description)
		}
		if params.Enabled != nil {
			flag.Enabled = *params.Enabled
		}
		if params.RolloutPercentage != nil {
			flag.RolloutPercentage = *params.RolloutPercentage
		}
		if params.TargetUserIDs != nil {
			targets, errTargets := encodeTargets(params.TargetUserIDs)
			if errTargets != nil {
				return errTargets
			}
			flag.TargetUserIDs = targets
		}
		if params.UserSegment != nil {
			segment, errSegment := encodeSegment(params.UserSegment)
			if errSegment != nil {
				return errSegment
			}
			flag.UserSegment = segment
		}
		flag.UpdatedAt = s.now().UTC()
		return nil
	})
	if errUpdate != nil {
		return nil, errUpdate
	}

	s.afterMutation(ctx, events.Event{
		Type:              events.TypeFlagUpdated,
		FlagID:            updated.ID,
		FlagName:          updated.Name,
		Enabled:           &updated.Enabled,
		RolloutPercentage: &updated.RolloutPercentage,
		Timestamp:         updated.UpdatedAt,
	})
	return updated, nil
}

// Toggle flips the kill switch for a flag.
func (s *Service) Toggle(ctx context.Context, id uint64) (*models.Flag, error) {
	if s == nil || s.flags == nil {
		return nil, fmt.Errorf("flag service: not initialized")
	}
	updated, errUpdate := s.flags.Update(ctx, id, func(flag *models.Flag) error {
		flag.Enabled = !flag.Enabled
		flag.UpdatedAt = s.now().UTC()
		return nil
	})
	if errUpdate != nil {
		return nil, errUpdate
	}

	s.afterMutation(ctx, events.Event{
		Type:      events.TypeFlagToggled,
		FlagID:    updated.ID,
		FlagName:  updated.Name,
		Enabled:   &updated.Enabled,
		Timestamp: updated.UpdatedAt,
	})
	return updated, nil
}

// Delete removes a flag and evicts every derived cache entry.
func (s *Service) Delete(ctx context.Context, id uint64) error {
	if s == nil || s.flags == nil {
		return fmt.Errorf("flag service: not initialized")
	}
	flag, errGet := s.flags.Get(ctx, id)
	if errGet != nil {
		return errGet
	}
	if errDelete := s.flags.Delete(ctx, id); errDelete != nil {
		return errDelete
	}

	s.afterMutation(ctx, events.Event{
		Type:      events.TypeFlagDeleted,
		FlagID:    flag.ID,
		FlagName:  flag.Name,
		Timestamp: s.now().UTC(),
	})
	return nil
}

// Get loads a flag by ID.
func (s *Service) Get(ctx context.Context, id uint64) (*models.Flag, error) {
	return s.flags.Get(ctx, id)
}

// List returns all flags.
func (s *Service) List(ctx context.Context) ([]models.Flag, error) {
	return s.flags.List(ctx)
}

// SearchByName returns flags whose name contains the query.
func (s *Service) SearchByName(ctx context.Context, name string) ([]models.Flag, error) {
	return s.flags.SearchByName(ctx, name)
}

// ListEnabled returns only enabled flags.
func (s *Service) ListEnabled(ctx context.Context) ([]models.Flag, error) {
	return s.flags.ListEnabled(ctx)
}

// afterMutation invalidates the evaluation cache and publishes the event.
// Both are best-effort: the flag row is already committed.
func (s *Service) afterMutation(ctx context.Context, event events.Event) {
	if s.cache != nil {
		if errInvalidate := s.cache.InvalidateAll(ctx); errInvalidate != nil {
			log.WithError(errInvalidate).Warn("flag service: cache invalidation failed")
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, event)
	}
}

// encodeTargets normalizes and marshals the target user ID list.
func encodeTargets(ids []string) (datatypes.JSON, error) {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	raw, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, fmt.Errorf("flag service: marshal targets: %w", errMarshal)
	}
	return datatypes.JSON(raw), nil
}

// encodeSegment marshals the segment predicate, dropping blank keys.
func encodeSegment(segment map[string]string) (datatypes.JSON, error) {
	if len(segment) == 0 {
		return nil, nil
	}
	cleaned := make(map[string]string, len(segment))
	for key, value := range segment {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cleaned[key] = strings.TrimSpace(value)
	}
	raw, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, fmt.Errorf("flag service: marshal segment: %w", errMarshal)
	}
	return datatypes.JSON(raw), nil
}
