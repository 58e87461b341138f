package rollout

import (
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Segment is a flat conjunction of attribute equality constraints.
// An empty segment matches every user. Values compare case-insensitively.
type Segment map[string]string

// Matches reports whether the user attributes satisfy every constraint.
func (s Segment) Matches(attrs map[string]string) bool {
	if len(s) == 0 {
		return true
	}
	for key, want := range s {
		got, ok := attrs[key]
		if !ok || !strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			return false
		}
	}
	return true
}

// DecodeSegment parses a stored segment payload. A malformed payload
// fails open: evaluation proceeds as if no segment were configured,
// with a logged diagnostic.
func DecodeSegment(flagName string, raw []byte) Segment {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var seg Segment
	if errUnmarshal := json.Unmarshal(raw, &seg); errUnmarshal == nil {
		return seg
	}

	// Legacy encoding: the whole predicate stored as one loosely
	// JSON-shaped string such as {"country":"US","platform":"iOS"}.
	// Kept at the storage boundary only.
	legacy := string(raw)
	var quoted string
	if errUnmarshal := json.Unmarshal(raw, &quoted); errUnmarshal == nil {
		legacy = quoted
	}
	if seg, ok := parseLegacySegment(legacy); ok {
		return seg
	}

	log.Warnf("flag %s: malformed user segment, failing open", flagName)
	return nil
}

// parseLegacySegment parses the delimited string form of a segment.
func parseLegacySegment(raw string) (Segment, bool) {
	cleaned := strings.NewReplacer("{", "", "}", "", `"`, "", " ", "").Replace(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, true
	}
	seg := make(Segment)
	for _, criterion := range strings.Split(cleaned, ",") {
		parts := strings.SplitN(criterion, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, false
		}
		seg[parts[0]] = parts[1]
	}
	return seg, true
}
