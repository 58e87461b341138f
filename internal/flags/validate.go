package flags

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError rejects a request before any mutation happens.
type ValidationError struct {
	Message string
}

// Error returns the validation message.
func (e *ValidationError) Error() string { return e.Message }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

var flagNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateFlagName enforces the name format rules.
func validateFlagName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewValidationError("flag name cannot be empty")
	}
	if len(name) < 3 {
		return NewValidationError("flag name must be at least 3 characters long")
	}
	if len(name) > 50 {
		return NewValidationError("flag name cannot exceed 50 characters")
	}
	if !flagNamePattern.MatchString(name) {
		return NewValidationError("flag name can only contain letters, numbers, underscores, and hyphens")
	}
	return nil
}

// validateRolloutPercentage enforces the [0,100] range.
func validateRolloutPercentage(percentage int) error {
	if percentage < 0 || percentage > 100 {
		return NewValidationError("rollout percentage must be between 0 and 100")
	}
	return nil
}
