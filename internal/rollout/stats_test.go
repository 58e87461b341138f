package rollout

import (
	"context"
	"errors"
	"testing"

	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/store"

	"gorm.io/datatypes"
)

func TestEvaluateForUsers(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{
		Name:          "batch_flag",
		Enabled:       true,
		TargetUserIDs: datatypes.JSON([]byte(`["alice"]`)),
	})

	batch, errBatch := NewEvaluator(flags).EvaluateForUsers(context.Background(), "batch_flag", []string{"alice", "bob", "carol"})
	if errBatch != nil {
		t.Fatalf("batch: %v", errBatch)
	}
	if batch.TotalUsers != 3 {
		t.Fatalf("expected 3 users, got %d", batch.TotalUsers)
	}
	if batch.UsersEnabled != 1 || batch.UsersDisabled != 2 {
		t.Fatalf("expected 1 enabled / 2 disabled, got %d / %d", batch.UsersEnabled, batch.UsersDisabled)
	}
	if batch.EnabledPercentage < 33.3 || batch.EnabledPercentage > 33.4 {
		t.Fatalf("unexpected enabled percentage %f", batch.EnabledPercentage)
	}
	if batch.ReasonCounts[ReasonExplicitlyTargeted] != 1 {
		t.Fatalf("expected 1 targeted, got %d", batch.ReasonCounts[ReasonExplicitlyTargeted])
	}
	if batch.ReasonCounts[ReasonNotInRolloutPercentage] != 2 {
		t.Fatalf("expected 2 outside rollout, got %d", batch.ReasonCounts[ReasonNotInRolloutPercentage])
	}
	if len(batch.Results) != 3 {
		t.Fatalf("expected per-user results, got %d", len(batch.Results))
	}
}

func TestEvaluateForUsers_UnknownFlag(t *testing.T) {
	_, errBatch := NewEvaluator(newTestStore(t)).EvaluateForUsers(context.Background(), "ghost", []string{"alice"})
	if !errors.Is(errBatch, store.ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", errBatch)
	}
}

func TestSimulateRollout_SyntheticUsers(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{Name: "sim_flag", Enabled: true, RolloutPercentage: 50})

	batch, errBatch := NewEvaluator(flags).SimulateRollout(context.Background(), "sim_flag", 10)
	if errBatch != nil {
		t.Fatalf("simulate: %v", errBatch)
	}
	if batch.TotalUsers != 10 {
		t.Fatalf("expected 10 synthetic users, got %d", batch.TotalUsers)
	}
	if batch.Results[0].UserID != "user-1" || batch.Results[9].UserID != "user-10" {
		t.Fatalf("synthetic IDs must run user-1..user-n, got %s..%s", batch.Results[0].UserID, batch.Results[9].UserID)
	}
}

func TestGetStatistics_TracksConfiguredPercentage(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{Name: "stat_flag", Enabled: true, RolloutPercentage: 25})

	stats, errStats := NewEvaluator(flags).GetStatistics(context.Background(), "stat_flag", 1000)
	if errStats != nil {
		t.Fatalf("statistics: %v", errStats)
	}
	if stats.TotalUsers != 1000 {
		t.Fatalf("expected 1000 sampled users, got %d", stats.TotalUsers)
	}
	if stats.ActualPercentage < 20 || stats.ActualPercentage > 30 {
		t.Fatalf("expected actual percentage near 25, got %f", stats.ActualPercentage)
	}
}

func TestDistributionBuckets(t *testing.T) {
	flags := newTestStore(t)
	mustSaveFlag(t, flags, &models.Flag{Name: "dist_flag", Enabled: true})

	buckets, errBuckets := NewEvaluator(flags).DistributionBuckets(context.Background(), "dist_flag", 1000)
	if errBuckets != nil {
		t.Fatalf("distribution: %v", errBuckets)
	}
	if len(buckets) != 10 {
		t.Fatalf("expected 10 deciles, got %d", len(buckets))
	}
	if buckets[0].Label != "0-9" || buckets[9].Label != "90-99" {
		t.Fatalf("decile labels out of order: %s..%s", buckets[0].Label, buckets[9].Label)
	}
	total := 0
	for _, bucket := range buckets {
		total += bucket.Count
	}
	if total != 1000 {
		t.Fatalf("expected counts to sum to the sample size, got %d", total)
	}
}
