// Package faults defines the error taxonomy shared by the schedule engine
// and the capture supervisors. Callers branch on the sentinel markers with
// errors.Is instead of matching message strings.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks rejected input: bad duration, name, or pattern.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks operations rejected at a mutex boundary, such as
	// starting a capture while one is already in progress.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks lookups for unknown jobs or instances.
	ErrNotFound = errors.New("not found")
	// ErrDiskSpace marks admission failures from the disk-space forecast.
	ErrDiskSpace = errors.New("insufficient disk space")
	// ErrProcess marks subprocess launch or runtime failures.
	ErrProcess = errors.New("process error")
)

// Wrap builds an error message that includes component context while
// tagging it with the provided marker for later classification.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProcess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
