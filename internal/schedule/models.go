package schedule

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job or recording instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusMissed    Status = "missed"
)

var allStatuses = []Status{
	StatusPending,
	StatusCompleted,
	StatusFailed,
	StatusMissed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is an end state for a one-time job.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusMissed:
		return true
	default:
		return false
	}
}

// Job is a persisted capture request definition.
//
// A one-time job moves pending -> {completed|failed|missed} exactly once.
// A recurring job stays pending forever; its history lives in Instance
// rows, never in the job's own status.
type Job struct {
	ID              int64
	Name            string
	DurationSeconds int
	Notes           string
	IsRecurring     bool
	Pattern         *Pattern
	AllowOverride   bool
	CaptureVideo    bool
	Status          Status
	CreatedAt       time.Time
	StartAt         *time.Time // one-time start, or next computed fire for recurring
	CompletedAt     *time.Time
	LastExecutedAt  *time.Time
}

// ScheduleSummary renders the firing rule for display.
func (j *Job) ScheduleSummary() string {
	if j.IsRecurring {
		return j.Pattern.Describe()
	}
	if j.StartAt != nil {
		return "once at " + j.StartAt.Format("2006-01-02 15:04")
	}
	return "once"
}

// Instance is a durable record of one concrete occurrence of a recurring
// job. Identity is the (JobID, Date) pair, so re-derivation is idempotent.
type Instance struct {
	ID          int64
	JobID       int64
	Date        string // occurrence date, YYYY-MM-DD
	Status      Status
	StartedAt   *time.Time
	CompletedAt *time.Time
	Notes       string
}

// DateFormat is the canonical occurrence date layout.
const DateFormat = "2006-01-02"

// OccurrenceDate formats a time as an occurrence date key.
func OccurrenceDate(t time.Time) string {
	return t.Format(DateFormat)
}

// JobUpdate carries the mutable fields of UpdateJob. Nil fields retain
// their stored values.
type JobUpdate struct {
	Name            *string
	DurationSeconds *int
	Notes           *string
	Pattern         *Pattern
	StartAt         *time.Time
	AllowOverride   *bool
	CaptureVideo    *bool
}
