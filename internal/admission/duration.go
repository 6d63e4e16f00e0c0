package admission

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"perch/internal/faults"
)

const (
	// DefaultMaxDuration is the ceiling applied unless a job sets
	// allow_override: 4 hours.
	DefaultMaxDuration = 14400
	// HardMaxDuration is the absolute ceiling that cannot be bypassed:
	// 24 hours. It protects disk space and the process table.
	HardMaxDuration = 86400

	maxNameLength  = 255
	maxNotesLength = 1000
)

// ValidateDuration checks a requested capture duration in seconds.
// allowOverride lifts the default ceiling but never the hard one.
func ValidateDuration(seconds int, allowOverride bool) (int, error) {
	if seconds <= 0 {
		return 0, faults.Wrap(faults.ErrValidation, "admission", "duration", "duration must be positive", nil)
	}
	if seconds > HardMaxDuration {
		return 0, faults.Wrap(faults.ErrValidation, "admission", "duration",
			fmt.Sprintf("duration cannot exceed 24 hours (%d seconds)", HardMaxDuration), nil)
	}
	if !allowOverride && seconds > DefaultMaxDuration {
		return 0, faults.Wrap(faults.ErrValidation, "admission", "duration",
			fmt.Sprintf("duration exceeds the %d hour limit (%d seconds); set allow_override for longer captures",
				DefaultMaxDuration/3600, DefaultMaxDuration), nil)
	}
	return seconds, nil
}

// ValidateName checks a job name: required, at most 255 characters.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", faults.Wrap(faults.ErrValidation, "admission", "name", "name is required", nil)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return "", faults.Wrap(faults.ErrValidation, "admission", "name",
			fmt.Sprintf("name exceeds %d characters", maxNameLength), nil)
	}
	return trimmed, nil
}

// ValidateNotes checks optional job notes: at most 1000 characters.
func ValidateNotes(notes string) (string, error) {
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return "", faults.Wrap(faults.ErrValidation, "admission", "notes",
			fmt.Sprintf("notes exceed %d characters", maxNotesLength), nil)
	}
	return notes, nil
}
