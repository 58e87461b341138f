package rollout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/store"
)

func newTestStore(t *testing.T) store.FlagStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.Flag{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return store.NewGormFlagStore(db)
}

func mustSaveFlag(t *testing.T, flags store.FlagStore, flag *models.Flag) *models.Flag {
	t.Helper()
	if len(flag.TargetUserIDs) == 0 {
		flag.TargetUserIDs = datatypes.JSON([]byte("[]"))
	}
	if flag.CreatedAt.IsZero() {
		now := time.Now().UTC()
		flag.CreatedAt = now
		flag.UpdatedAt = now
	}
	if errSave := flags.Save(context.Background(), flag); errSave != nil {
		t.Fatalf("save flag %s: %v", flag.Name, errSave)
	}
	return flag
}

func TestEvaluate_FlagNotFound(t *testing.T) {
	evaluator := NewEvaluator(newTestStore(t))
	_, errEval := evaluator.Evaluate(context.Background(), "ghost", "alice", nil)
	if !errors.Is(errEval, store.ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", errEval)
	}
}

func TestEvaluate_GloballyDisabledBeatsTargeting(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{
		Name:              "dark_mode",
		Enabled:           false,
		RolloutPercentage: 100,
		TargetUserIDs:     datatypes.JSON([]byte(`["alice"]`)),
	})

	evaluator := NewEvaluator(flags)
	result, errEval := evaluator.Evaluate(context.Background(), "dark_mode", "alice", nil)
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}
	if result.Enabled {
		t.Fatal("kill switch must override targeting and percentage")
	}
	if result.Reason != ReasonGloballyDisabled {
		t.Fatalf("expected reason %s, got %s", ReasonGloballyDisabled, result.Reason)
	}
	if result.Message != "Flag is disabled globally" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestEvaluate_TargetedAtZeroPercent(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{
		Name:              "new_checkout",
		Enabled:           true,
		RolloutPercentage: 0,
		TargetUserIDs:     datatypes.JSON([]byte(`["alice","Bob"]`)),
	})

	evaluator := NewEvaluator(flags)
	for _, userID := range []string{"alice", "bob"} {
		result, errEval := evaluator.Evaluate(context.Background(), "new_checkout", userID, nil)
		if errEval != nil {
			t.Fatalf("evaluate %s: %v", userID, errEval)
		}
		if !result.Enabled || result.Reason != ReasonExplicitlyTargeted {
			t.Fatalf("expected %s targeted at 0%%, got %+v", userID, result)
		}
	}

	result, errEval := evaluator.Evaluate(context.Background(), "new_checkout", "carol", nil)
	if errEval != nil {
		t.Fatalf("evaluate carol: %v", errEval)
	}
	if result.Enabled || result.Reason != ReasonNotInRolloutPercentage {
		t.Fatalf("expected carol excluded at 0%%, got %+v", result)
	}
}

func TestEvaluate_LookupIsCaseInsensitive(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{Name: "Dark_Mode", Enabled: true, RolloutPercentage: 100})

	evaluator := NewEvaluator(flags)
	result, errEval := evaluator.Evaluate(context.Background(), "dark_mode", "alice", nil)
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}
	if !result.Enabled {
		t.Fatal("expected flag found regardless of name case")
	}
}

func TestEvaluate_SegmentMismatchBeatsTargeting(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{
		Name:              "ai_recommendations",
		Enabled:           true,
		RolloutPercentage: 100,
		TargetUserIDs:     datatypes.JSON([]byte(`["alice"]`)),
		UserSegment:       datatypes.JSON([]byte(`{"country":"US"}`)),
	})

	evaluator := NewEvaluator(flags)
	result, errEval := evaluator.Evaluate(context.Background(), "ai_recommendations", "alice", map[string]string{"country": "DE"})
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}
	if result.Enabled || result.Reason != ReasonSegmentMismatch {
		t.Fatalf("expected segment mismatch to win over targeting, got %+v", result)
	}

	matched, errEval := evaluator.Evaluate(context.Background(), "ai_recommendations", "alice", map[string]string{"country": "US"})
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}
	if !matched.Enabled || matched.Reason != ReasonExplicitlyTargeted {
		t.Fatalf("expected targeting once segment matches, got %+v", matched)
	}
}

func TestEvaluate_MalformedSegmentFailsOpen(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{
		Name:              "broken_segment",
		Enabled:           true,
		RolloutPercentage: 100,
		UserSegment:       datatypes.JSON([]byte(`;;; not a segment`)),
	})

	evaluator := NewEvaluator(flags)
	result, errEval := evaluator.Evaluate(context.Background(), "broken_segment", "alice", nil)
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}
	if !result.Enabled {
		t.Fatalf("malformed segment must not lock users out, got %+v", result)
	}
}

func TestEvaluate_PercentageMatchesBucket(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{Name: "partial", Enabled: true, RolloutPercentage: 40})

	evaluator := NewEvaluator(flags)
	for i := 0; i < 200; i++ {
		userID := fmt.Sprintf("user-%d", i)
		result, errEval := evaluator.Evaluate(context.Background(), "partial", userID, nil)
		if errEval != nil {
			t.Fatalf("evaluate %s: %v", userID, errEval)
		}
		want := InRollout("partial", userID, 40)
		if result.Enabled != want {
			t.Fatalf("user %s: evaluation %v disagrees with bucket %v", userID, result.Enabled, want)
		}
	}
}

func TestEvaluateAll(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{Name: "one", Enabled: true, RolloutPercentage: 100})
	mustSaveFlag(t, flags, &models.Flag{Name: "two", Enabled: false})

	evaluator := NewEvaluator(flags)
	results, errEval := evaluator.EvaluateAll(context.Background(), "alice", nil)
	if errEval != nil {
		t.Fatalf("evaluate all: %v", errEval)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(results))
	}
	if !results[0].Enabled || results[0].FlagName != "one" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].Enabled || results[1].Reason != ReasonGloballyDisabled {
		t.Fatalf("unexpected second result %+v", results[1])
	}
}
