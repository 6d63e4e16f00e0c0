package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"perch/internal/faults"
)

// PatternKind identifies one of the closed set of recurrence shapes.
type PatternKind string

const (
	PatternDaily   PatternKind = "daily"
	PatternWeekly  PatternKind = "weekly"
	PatternMonthly PatternKind = "monthly"
)

// Pattern is a declarative recurrence rule plus a time of day.
//
// Weekdays use Go's time.Weekday numbering: 0=Sunday through 6=Saturday.
// A monthly pattern with a day short months lack (29-31) simply does not
// fire in those months; it never rolls over to month end.
type Pattern struct {
	Kind       PatternKind `json:"kind"`
	Days       []int       `json:"days,omitempty"`
	DayOfMonth int         `json:"day_of_month,omitempty"`
	Hour       int         `json:"hour"`
	Minute     int         `json:"minute"`
}

// Validate rejects malformed patterns at the boundary. Unknown kinds are
// an error, never a silent fallback.
func (p *Pattern) Validate() error {
	if p == nil {
		return faults.Wrap(faults.ErrValidation, "schedule", "pattern", "pattern is required", nil)
	}
	if p.Hour < 0 || p.Hour > 23 || p.Minute < 0 || p.Minute > 59 {
		return faults.Wrap(faults.ErrValidation, "schedule", "pattern",
			fmt.Sprintf("time of day %02d:%02d is out of range", p.Hour, p.Minute), nil)
	}
	switch p.Kind {
	case PatternDaily:
		if len(p.Days) != 0 || p.DayOfMonth != 0 {
			return faults.Wrap(faults.ErrValidation, "schedule", "pattern", "daily patterns take no day arguments", nil)
		}
	case PatternWeekly:
		if len(p.Days) == 0 {
			return faults.Wrap(faults.ErrValidation, "schedule", "pattern", "weekly patterns require at least one weekday", nil)
		}
		seen := make(map[int]struct{}, len(p.Days))
		for _, day := range p.Days {
			if day < 0 || day > 6 {
				return faults.Wrap(faults.ErrValidation, "schedule", "pattern",
					fmt.Sprintf("weekday %d is out of range 0-6", day), nil)
			}
			if _, dup := seen[day]; dup {
				return faults.Wrap(faults.ErrValidation, "schedule", "pattern",
					fmt.Sprintf("weekday %d repeated", day), nil)
			}
			seen[day] = struct{}{}
		}
	case PatternMonthly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return faults.Wrap(faults.ErrValidation, "schedule", "pattern",
				fmt.Sprintf("day of month %d is out of range 1-31", p.DayOfMonth), nil)
		}
	default:
		return faults.Wrap(faults.ErrValidation, "schedule", "pattern",
			fmt.Sprintf("unknown pattern kind %q", p.Kind), nil)
	}
	return nil
}

// OccursOn reports whether the pattern fires on the given calendar date.
func (p *Pattern) OccursOn(date time.Time) bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case PatternDaily:
		return true
	case PatternWeekly:
		weekday := int(date.Weekday())
		for _, day := range p.Days {
			if day == weekday {
				return true
			}
		}
		return false
	case PatternMonthly:
		return date.Day() == p.DayOfMonth
	default:
		return false
	}
}

// NextFireTime returns the smallest time >= after at which the pattern
// fires. The search walks day by day; a monthly day=31 pattern skips
// short months rather than rolling over.
func (p *Pattern) NextFireTime(after time.Time) time.Time {
	day := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, after.Location())
	// 366 days covers every monthly pattern, including Feb 29.
	for i := 0; i <= 366; i++ {
		candidate := day.AddDate(0, 0, i)
		if !p.OccursOn(candidate) {
			continue
		}
		fire := p.At(candidate)
		if !fire.Before(after) {
			return fire
		}
	}
	return time.Time{}
}

// At returns the scheduled fire time on the given date.
func (p *Pattern) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), p.Hour, p.Minute, 0, 0, date.Location())
}

// Describe renders a short human-readable summary, e.g. "weekly on
// Mon,Wed at 09:00".
func (p *Pattern) Describe() string {
	if p == nil {
		return ""
	}
	clock := fmt.Sprintf("%02d:%02d", p.Hour, p.Minute)
	switch p.Kind {
	case PatternDaily:
		return "daily at " + clock
	case PatternWeekly:
		days := append([]int(nil), p.Days...)
		sort.Ints(days)
		names := make([]string, 0, len(days))
		for _, day := range days {
			names = append(names, time.Weekday(day).String()[:3])
		}
		return fmt.Sprintf("weekly on %s at %s", strings.Join(names, ","), clock)
	case PatternMonthly:
		return fmt.Sprintf("monthly on day %d at %s", p.DayOfMonth, clock)
	default:
		return string(p.Kind)
	}
}

func encodePattern(p *Pattern) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal pattern: %w", err)
	}
	return string(data), nil
}

func decodePattern(raw string) (*Pattern, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var p Pattern
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal pattern: %w", err)
	}
	return &p, nil
}
