package evalcache

import (
	"context"
	"time"

	"github.com/flagops/flagservice/internal/rollout"
)

// Store is a TTL cache for evaluation results keyed by flag and user.
type Store interface {
	Get(ctx context.Context, flagName, userID string) (*rollout.Evaluation, bool, error)
	Set(ctx context.Context, eval *rollout.Evaluation, ttl time.Duration) error
	Invalidate(ctx context.Context, flagName, userID string) error
	InvalidateAll(ctx context.Context) error
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Entries int64  `json:"entries"`
	Backend string `json:"backend"`
}

func cacheKey(flagName, userID string) string {
	return flagName + ":" + userID
}
