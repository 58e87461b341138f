package rollout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flagops/flagservice/internal/models"
	"github.com/flagops/flagservice/internal/store"

	log "github.com/sirupsen/logrus"
)

// Reason identifies why an evaluation produced its result.
type Reason string

// Evaluation reasons, in decision precedence order.
const (
	ReasonGloballyDisabled       Reason = "globally_disabled"
	ReasonSegmentMismatch        Reason = "segment_mismatch"
	ReasonExplicitlyTargeted     Reason = "explicitly_targeted"
	ReasonInRolloutPercentage    Reason = "in_rollout_percentage"
	ReasonNotInRolloutPercentage Reason = "not_in_rollout_percentage"
)

// Evaluation is the outcome of evaluating one flag for one user.
type Evaluation struct {
	FlagName string `json:"flag_name"`
	UserID   string `json:"user_id"`
	Enabled  bool   `json:"enabled"`
	Reason   Reason `json:"reason"`
	Message  string `json:"message"`
}

// Evaluator decides whether a feature is active for a user.
// Evaluation is read-only and safe under arbitrary concurrency.
type Evaluator struct {
	flags store.FlagStore
}

// NewEvaluator constructs an Evaluator over the given flag store.
func NewEvaluator(flags store.FlagStore) *Evaluator {
	return &Evaluator{flags: flags}
}

// Evaluate applies the decision ladder for a single flag and user.
// attrs may be nil when the caller has no user attributes.
func (e *Evaluator) Evaluate(ctx context.Context, flagName, userID string, attrs map[string]string) (Evaluation, error) {
	if e == nil || e.flags == nil {
		return Evaluation{}, fmt.Errorf("evaluator: not initialized")
	}
	flag, errGet := e.flags.GetByName(ctx, flagName)
	if errGet != nil {
		return Evaluation{}, errGet
	}
	return e.evaluateFlag(flag, userID, attrs), nil
}

// EvaluateAll evaluates every known flag for the user, in store order.
func (e *Evaluator) EvaluateAll(ctx context.Context, userID string, attrs map[string]string) ([]Evaluation, error) {
	if e == nil || e.flags == nil {
		return nil, fmt.Errorf("evaluator: not initialized")
	}
	flags, errList := e.flags.List(ctx)
	if errList != nil {
		return nil, errList
	}
	results := make([]Evaluation, 0, len(flags))
	for i := range flags {
		results = append(results, e.evaluateFlag(&flags[i], userID, attrs))
	}
	return results, nil
}

// evaluateFlag runs the decision ladder against a loaded flag. First match wins:
// kill switch, segment, explicit target, percentage bucket.
func (e *Evaluator) evaluateFlag(flag *models.Flag, userID string, attrs map[string]string) Evaluation {
	result := Evaluation{FlagName: flag.Name, UserID: userID}

	if !flag.Enabled {
		result.Reason = ReasonGloballyDisabled
		result.Message = "Flag is disabled globally"
		return result
	}

	if seg := DecodeSegment(flag.Name, flag.UserSegment); !seg.Matches(attrs) {
		result.Reason = ReasonSegmentMismatch
		result.Message = "User does not match segment criteria"
		return result
	}

	if isTargeted(flag, userID) {
		result.Enabled = true
		result.Reason = ReasonExplicitlyTargeted
		result.Message = "User is specifically targeted"
		return result
	}

	if InRollout(flag.Name, userID, flag.RolloutPercentage) {
		result.Enabled = true
		result.Reason = ReasonInRolloutPercentage
		result.Message = fmt.Sprintf("User is in rollout percentage (%d%%)", flag.RolloutPercentage)
		return result
	}

	result.Reason = ReasonNotInRolloutPercentage
	result.Message = "User not in rollout percentage"
	return result
}

// isTargeted reports whether the user is on the flag's explicit allow-list.
func isTargeted(flag *models.Flag, userID string) bool {
	for _, target := range decodeTargets(flag) {
		if strings.EqualFold(strings.TrimSpace(target), userID) {
			return true
		}
	}
	return false
}

// decodeTargets parses the stored target list. Malformed payloads count as empty.
func decodeTargets(flag *models.Flag) []string {
	if len(flag.TargetUserIDs) == 0 || string(flag.TargetUserIDs) == "null" {
		return nil
	}
	var targets []string
	if errUnmarshal := json.Unmarshal(flag.TargetUserIDs, &targets); errUnmarshal != nil {
		log.Warnf("flag %s: malformed target user ids, treating as empty", flag.Name)
		return nil
	}
	return targets
}
