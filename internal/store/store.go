package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flagops/flagservice/internal/db"
	"github.com/flagops/flagservice/internal/models"
	"gorm.io/gorm"
)

// ErrFlagNotFound indicates a lookup miss by ID or name.
var ErrFlagNotFound = errors.New("flag not found")

// FlagStore is the persistence contract the core works against.
type FlagStore interface {
	Get(ctx context.Context, id uint64) (*models.Flag, error)
	GetByName(ctx context.Context, name string) (*models.Flag, error)
	List(ctx context.Context) ([]models.Flag, error)
	ListEnabled(ctx context.Context) ([]models.Flag, error)
	SearchByName(ctx context.Context, name string) ([]models.Flag, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, flag *models.Flag) error
	Delete(ctx context.Context, id uint64) error
	Update(ctx context.Context, id uint64, apply func(*models.Flag) error) (*models.Flag, error)
}

// GormFlagStore persists flags through GORM.
type GormFlagStore struct {
	db *gorm.DB
}

// NewGormFlagStore constructs a GormFlagStore.
func NewGormFlagStore(conn *gorm.DB) *GormFlagStore {
	return &GormFlagStore{db: conn}
}

// Get loads a flag by ID.
func (s *GormFlagStore) Get(ctx context.Context, id uint64) (*models.Flag, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("flag store: not initialized")
	}
	var flag models.Flag
	if errFind := s.db.WithContext(ctx).First(&flag, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("flag store: get: %w", errFind)
	}
	return &flag, nil
}

// GetByName loads a flag by name, case-insensitively.
func (s *GormFlagStore) GetByName(ctx context.Context, name string) (*models.Flag, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("flag store: not initialized")
	}
	var flag models.Flag
	errFind := s.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).
		First(&flag).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("flag store: get by name: %w", errFind)
	}
	return &flag, nil
}

// List returns all flags in insertion order.
func (s *GormFlagStore) List(ctx context.Context) ([]models.Flag, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("flag store: not initialized")
	}
	var rows []models.Flag
	if errFind := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("flag store: list: %w", errFind)
	}
	return rows, nil
}

// ListEnabled returns all enabled flags in insertion order.
func (s *GormFlagStore) ListEnabled(ctx context.Context) ([]models.Flag, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("flag store: not initialized")
	}
	var rows []models.Flag
	errFind := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("flag store: list enabled: %w", errFind)
	}
	return rows, nil
}

// SearchByName returns flags whose name contains the query, case-insensitively.
// An empty query returns every flag.
func (s *GormFlagStore) SearchByName(ctx context.Context, name string) ([]models.Flag, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("flag store: not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s.List(ctx)
	}
	pattern := db.NormalizeLikePattern(s.db, "%"+name+"%")
	var rows []models.Flag
	errFind := s.db.WithContext(ctx).
		Where(db.CaseInsensitiveLikeExpr(s.db, "name"), pattern).
		Order("id ASC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("flag store: search: %w", errFind)
	}
	return rows, nil
}

// ExistsByName reports whether a flag with the given name exists, case-insensitively.
func (s *GormFlagStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("flag store: not initialized")
	}
	var count int64
	errCount := s.db.WithContext(ctx).Model(&models.Flag{}).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("flag store: exists: %w", errCount)
	}
	return count > 0, nil
}

// Save upserts a flag. Timestamps are assigned on first save when unset.
func (s *GormFlagStore) Save(ctx context.Context, flag *models.Flag) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("flag store: not initialized")
	}
	if flag == nil {
		return fmt.Errorf("flag store: flag is nil")
	}
	if flag.ID == 0 {
		now := time.Now().UTC()
		if flag.CreatedAt.IsZero() {
			flag.CreatedAt = now
		}
		if flag.UpdatedAt.IsZero() {
			flag.UpdatedAt = now
		}
	}
	if errSave := s.db.WithContext(ctx).Save(flag).Error; errSave != nil {
		return fmt.Errorf("flag store: save: %w", errSave)
	}
	return nil
}

// Delete removes a flag by ID.
func (s *GormFlagStore) Delete(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("flag store: not initialized")
	}
	res := s.db.WithContext(ctx).Delete(&models.Flag{}, id)
	if res.Error != nil {
		return fmt.Errorf("flag store: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFlagNotFound
	}
	return nil
}

// Update runs a read-modify-write on a single flag inside a transaction.
// The apply callback mutates the freshly loaded row and the whole row is
// persisted when it returns nil. Administrative operations and scheduler
// transitions both go through here so they serialize at the database.
func (s *GormFlagStore) Update(ctx context.Context, id uint64, apply func(*models.Flag) error) (*models.Flag, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("flag store: not initialized")
	}
	if apply == nil {
		return nil, fmt.Errorf("flag store: nil apply func")
	}
	var updated models.Flag
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var flag models.Flag
		if errFind := tx.First(&flag, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrFlagNotFound
			}
			return fmt.Errorf("flag store: update load: %w", errFind)
		}
		if errApply := apply(&flag); errApply != nil {
			return errApply
		}
		if errSave := tx.Save(&flag).Error; errSave != nil {
			return fmt.Errorf("flag store: update save: %w", errSave)
		}
		updated = flag
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &updated, nil
}
