package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/flagops/flagservice/internal/models"
)

func newTestFlagStore(t *testing.T) *GormFlagStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.Flag{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormFlagStore(db)
}

func seedFlag(t *testing.T, s *GormFlagStore, name string, enabled bool) *models.Flag {
	t.Helper()
	flag := &models.Flag{
		Name:          name,
		Enabled:       enabled,
		TargetUserIDs: datatypes.JSON([]byte("[]")),
	}
	if errSave := s.Save(context.Background(), flag); errSave != nil {
		t.Fatalf("seed %s: %v", name, errSave)
	}
	return flag
}

func TestSaveAssignsTimestamps(t *testing.T) {
	flags := newTestFlagStore(t)
	flag := seedFlag(t, flags, "dark_mode", true)
	if flag.ID == 0 {
		t.Fatal("expected ID assigned on save")
	}
	if flag.CreatedAt.IsZero() || flag.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps assigned on first save")
	}
}

func TestGetByName_CaseInsensitive(t *testing.T) {
	flags := newTestFlagStore(t)
	seedFlag(t, flags, "Dark_Mode", true)

	for _, name := range []string{"Dark_Mode", "dark_mode", "DARK_MODE", " dark_mode "} {
		flag, errGet := flags.GetByName(context.Background(), name)
		if errGet != nil {
			t.Fatalf("get by name %q: %v", name, errGet)
		}
		if flag.Name != "Dark_Mode" {
			t.Fatalf("expected stored name preserved, got %q", flag.Name)
		}
	}
}

func TestGetByName_NotFound(t *testing.T) {
	flags := newTestFlagStore(t)
	if _, errGet := flags.GetByName(context.Background(), "ghost"); !errors.Is(errGet, ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", errGet)
	}
	if _, errGet := flags.Get(context.Background(), 999); !errors.Is(errGet, ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound by ID, got %v", errGet)
	}
}

func TestListOrdering(t *testing.T) {
	flags := newTestFlagStore(t)
	seedFlag(t, flags, "zebra", true)
	seedFlag(t, flags, "alpha", false)

	rows, errList := flags.List(context.Background())
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if len(rows) != 2 || rows[0].Name != "zebra" || rows[1].Name != "alpha" {
		t.Fatalf("expected insertion order, got %+v", rows)
	}
}

func TestListEnabled(t *testing.T) {
	flags := newTestFlagStore(t)
	seedFlag(t, flags, "on_flag", true)
	seedFlag(t, flags, "off_flag", false)

	rows, errList := flags.ListEnabled(context.Background())
	if errList != nil {
		t.Fatalf("list enabled: %v", errList)
	}
	if len(rows) != 1 || rows[0].Name != "on_flag" {
		t.Fatalf("expected only enabled flags, got %+v", rows)
	}
}

func TestSearchByName(t *testing.T) {
	flags := newTestFlagStore(t)
	seedFlag(t, flags, "new_checkout", true)
	seedFlag(t, flags, "dark_mode", true)

	rows, errSearch := flags.SearchByName(context.Background(), "CHECK")
	if errSearch != nil {
		t.Fatalf("search: %v", errSearch)
	}
	if len(rows) != 1 || rows[0].Name != "new_checkout" {
		t.Fatalf("expected case-insensitive substring match, got %+v", rows)
	}

	all, errSearch := flags.SearchByName(context.Background(), "  ")
	if errSearch != nil {
		t.Fatalf("search empty: %v", errSearch)
	}
	if len(all) != 2 {
		t.Fatalf("empty query must return every flag, got %d", len(all))
	}
}

func TestExistsByName(t *testing.T) {
	flags := newTestFlagStore(t)
	seedFlag(t, flags, "dark_mode", true)

	exists, errExists := flags.ExistsByName(context.Background(), "DARK_MODE")
	if errExists != nil {
		t.Fatalf("exists: %v", errExists)
	}
	if !exists {
		t.Fatal("expected case-insensitive existence check")
	}
	exists, errExists = flags.ExistsByName(context.Background(), "ghost")
	if errExists != nil {
		t.Fatalf("exists: %v", errExists)
	}
	if exists {
		t.Fatal("expected no match for unknown name")
	}
}

func TestDelete(t *testing.T) {
	flags := newTestFlagStore(t)
	flag := seedFlag(t, flags, "short_lived", true)

	if errDelete := flags.Delete(context.Background(), flag.ID); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if errDelete := flags.Delete(context.Background(), flag.ID); !errors.Is(errDelete, ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound on second delete, got %v", errDelete)
	}
}

func TestUpdate_AppliesInTransaction(t *testing.T) {
	flags := newTestFlagStore(t)
	flag := seedFlag(t, flags, "rollout_me", true)

	updated, errUpdate := flags.Update(context.Background(), flag.ID, func(f *models.Flag) error {
		f.RolloutPercentage = 55
		return nil
	})
	if errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
	if updated.RolloutPercentage != 55 {
		t.Fatalf("expected callback result returned, got %d", updated.RolloutPercentage)
	}

	reloaded, errGet := flags.Get(context.Background(), flag.ID)
	if errGet != nil {
		t.Fatalf("reload: %v", errGet)
	}
	if reloaded.RolloutPercentage != 55 {
		t.Fatalf("expected change persisted, got %d", reloaded.RolloutPercentage)
	}
}

func TestUpdate_CallbackErrorRollsBack(t *testing.T) {
	flags := newTestFlagStore(t)
	flag := seedFlag(t, flags, "keep_me", true)

	errBoom := errors.New("boom")
	_, errUpdate := flags.Update(context.Background(), flag.ID, func(f *models.Flag) error {
		f.RolloutPercentage = 99
		return errBoom
	})
	if !errors.Is(errUpdate, errBoom) {
		t.Fatalf("expected callback error surfaced, got %v", errUpdate)
	}

	reloaded, errGet := flags.Get(context.Background(), flag.ID)
	if errGet != nil {
		t.Fatalf("reload: %v", errGet)
	}
	if reloaded.RolloutPercentage != 0 {
		t.Fatalf("expected rollback, got rollout percentage %d", reloaded.RolloutPercentage)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	flags := newTestFlagStore(t)
	_, errUpdate := flags.Update(context.Background(), 12345, func(f *models.Flag) error { return nil })
	if !errors.Is(errUpdate, ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", errUpdate)
	}
}
