package rollout

import (
	"crypto/sha256"
	"encoding/binary"
)

// Bucket maps a (flag, user) pair to a stable bucket in [0,100).
// SHA-256 keeps the assignment identical across processes and restarts.
// Inclusion is bucket < rolloutPercentage, so raising the percentage
// only ever adds users.
func Bucket(flagName, userID string) int {
	digest := sha256.Sum256([]byte(flagName + ":" + userID))
	return int(binary.BigEndian.Uint32(digest[:4]) % 100)
}

// InRollout reports whether the user falls inside the rollout percentage.
func InRollout(flagName, userID string, percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	return Bucket(flagName, userID) < percentage
}
