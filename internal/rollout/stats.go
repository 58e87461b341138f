package rollout

import (
	"context"
	"fmt"
)

// BatchResult aggregates evaluations of one flag across many users.
type BatchResult struct {
	FlagName          string         `json:"flag_name"`
	TotalUsers        int            `json:"total_users"`
	UsersEnabled      int            `json:"users_enabled"`
	UsersDisabled     int            `json:"users_disabled"`
	EnabledPercentage float64        `json:"enabled_percentage"`
	ReasonCounts      map[Reason]int `json:"reason_counts"`
	Results           []Evaluation   `json:"results"`
}

// Statistics summarizes how much of a sample population receives a flag.
type Statistics struct {
	FlagName         string  `json:"flag_name"`
	UsersEnabled     int     `json:"users_enabled"`
	TotalUsers       int     `json:"total_users"`
	ActualPercentage float64 `json:"actual_percentage"`
}

// BucketCount is one decile of the hash distribution histogram.
type BucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// EvaluateForUsers evaluates one flag for every supplied user ID and aggregates.
func (e *Evaluator) EvaluateForUsers(ctx context.Context, flagName string, userIDs []string) (BatchResult, error) {
	batch := BatchResult{
		FlagName:     flagName,
		ReasonCounts: make(map[Reason]int),
		Results:      make([]Evaluation, 0, len(userIDs)),
	}
	for _, userID := range userIDs {
		result, errEval := e.Evaluate(ctx, flagName, userID, nil)
		if errEval != nil {
			return BatchResult{}, errEval
		}
		batch.Results = append(batch.Results, result)
		batch.ReasonCounts[result.Reason]++
		if result.Enabled {
			batch.UsersEnabled++
		}
	}
	batch.TotalUsers = len(batch.Results)
	batch.UsersDisabled = batch.TotalUsers - batch.UsersEnabled
	if batch.TotalUsers > 0 {
		batch.EnabledPercentage = float64(batch.UsersEnabled) * 100 / float64(batch.TotalUsers)
	}
	return batch, nil
}

// SimulateRollout evaluates the flag over the synthetic IDs user-1..user-n.
func (e *Evaluator) SimulateRollout(ctx context.Context, flagName string, numberOfUsers int) (BatchResult, error) {
	return e.EvaluateForUsers(ctx, flagName, syntheticUserIDs(numberOfUsers))
}

// GetStatistics samples synthetic users and reports the effective rollout share.
func (e *Evaluator) GetStatistics(ctx context.Context, flagName string, sampleSize int) (Statistics, error) {
	batch, errBatch := e.SimulateRollout(ctx, flagName, sampleSize)
	if errBatch != nil {
		return Statistics{}, errBatch
	}
	return Statistics{
		FlagName:         flagName,
		UsersEnabled:     batch.UsersEnabled,
		TotalUsers:       batch.TotalUsers,
		ActualPercentage: batch.EnabledPercentage,
	}, nil
}

// DistributionBuckets partitions user-1..user-sampleSize into the ten hash
// deciles. It is a diagnostic for confirming the hash spreads users evenly,
// not a business rule; the flag's own state is irrelevant beyond existing.
func (e *Evaluator) DistributionBuckets(ctx context.Context, flagName string, sampleSize int) ([]BucketCount, error) {
	if e == nil || e.flags == nil {
		return nil, fmt.Errorf("evaluator: not initialized")
	}
	flag, errGet := e.flags.GetByName(ctx, flagName)
	if errGet != nil {
		return nil, errGet
	}

	buckets := make([]BucketCount, 10)
	for i := range buckets {
		buckets[i].Label = fmt.Sprintf("%d-%d", i*10, i*10+9)
	}
	for _, userID := range syntheticUserIDs(sampleSize) {
		buckets[Bucket(flag.Name, userID)/10].Count++
	}
	return buckets, nil
}

// syntheticUserIDs generates user-1..user-n.
func syntheticUserIDs(n int) []string {
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, fmt.Sprintf("user-%d", i))
	}
	return ids
}
