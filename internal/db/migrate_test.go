package db

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/flagops/flagservice/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return conn
}

func TestMigrate_SeedsSampleFlags(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn, true); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var seeded []models.Flag
	if errFind := conn.Order("id asc").Find(&seeded).Error; errFind != nil {
		t.Fatalf("list flags: %v", errFind)
	}
	if len(seeded) != 3 {
		t.Fatalf("expected 3 seeded flags, got %d", len(seeded))
	}

	want := map[string]struct {
		enabled bool
		pct     int
	}{
		"dark_mode":          {false, 0},
		"new_checkout":       {true, 25},
		"ai_recommendations": {true, 50},
	}
	for _, flag := range seeded {
		expected, ok := want[flag.Name]
		if !ok {
			t.Fatalf("unexpected seed flag %q", flag.Name)
		}
		if flag.Enabled != expected.enabled || flag.RolloutPercentage != expected.pct {
			t.Fatalf("flag %q: got enabled=%v pct=%d", flag.Name, flag.Enabled, flag.RolloutPercentage)
		}
	}
}

func TestMigrate_SeedingDisabled(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn, false); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var count int64
	if errCount := conn.Model(&models.Flag{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("seeded with seeding disabled: %d flags", count)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn, true); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(conn, true); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var count int64
	if errCount := conn.Model(&models.Flag{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 3 {
		t.Fatalf("reseeded on second migrate: %d flags", count)
	}
}

func TestMigrate_DoesNotSeedOverExistingFlags(t *testing.T) {
	conn := openTestDB(t)
	if errAuto := conn.AutoMigrate(&models.Flag{}); errAuto != nil {
		t.Fatalf("automigrate: %v", errAuto)
	}
	existing := models.Flag{Name: "custom", Enabled: true, TargetUserIDs: []byte("[]")}
	if errCreate := conn.Create(&existing).Error; errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	if err := Migrate(conn, true); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var count int64
	if errCount := conn.Model(&models.Flag{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("samples seeded over existing data: %d flags", count)
	}
}
