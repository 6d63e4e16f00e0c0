package ipc

import (
	"time"

	"perch/internal/schedule"
)

// JobPayload is the wire form of a schedule job.
type JobPayload struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	DurationSeconds int        `json:"duration_seconds"`
	Notes           string     `json:"notes,omitempty"`
	IsRecurring     bool       `json:"is_recurring"`
	Pattern         *Pattern   `json:"pattern,omitempty"`
	AllowOverride   bool       `json:"allow_override"`
	CaptureVideo    bool       `json:"capture_video"`
	Status          string     `json:"status"`
	Schedule        string     `json:"schedule"`
	CreatedAt       time.Time  `json:"created_at"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	NextFire        *time.Time `json:"next_fire,omitempty"`
}

// Pattern is the wire form of a recurrence pattern.
type Pattern struct {
	Kind       string `json:"kind"`
	Days       []int  `json:"days,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
}

// InstancePayload is the wire form of a recording instance.
type InstancePayload struct {
	ID          int64      `json:"id"`
	JobID       int64      `json:"job_id"`
	Date        string     `json:"date"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// SessionPayload is the wire form of a supervisor status snapshot.
type SessionPayload struct {
	Class            string    `json:"class"`
	Active           bool      `json:"active"`
	SessionID        string    `json:"session_id,omitempty"`
	PID              int       `json:"pid,omitempty"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	DurationSeconds  int       `json:"duration_seconds,omitempty"`
	ElapsedSeconds   int       `json:"elapsed_seconds,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds,omitempty"`
	OutputFiles      []string  `json:"output_files,omitempty"`
	JobID            int64     `json:"job_id,omitempty"`
	JobName          string    `json:"job_name,omitempty"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Running     bool           `json:"running"`
	DBPath      string         `json:"db_path"`
	ArmedCount  int            `json:"armed_count"`
	Audio       SessionPayload `json:"audio"`
	Video       SessionPayload `json:"video"`
	PendingJobs []JobPayload   `json:"pending_jobs,omitempty"`
}

type JobCreateRequest struct {
	Name            string     `json:"name"`
	DurationSeconds int        `json:"duration_seconds"`
	Notes           string     `json:"notes,omitempty"`
	IsRecurring     bool       `json:"is_recurring"`
	Pattern         *Pattern   `json:"pattern,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	AllowOverride   bool       `json:"allow_override"`
	CaptureVideo    bool       `json:"capture_video"`
}

type JobCreateResponse struct {
	Job JobPayload `json:"job"`
}

type JobUpdateRequest struct {
	ID              int64      `json:"id"`
	Name            *string    `json:"name,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Pattern         *Pattern   `json:"pattern,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	AllowOverride   *bool      `json:"allow_override,omitempty"`
	CaptureVideo    *bool      `json:"capture_video,omitempty"`
}

type JobUpdateResponse struct {
	Job JobPayload `json:"job"`
}

type JobDeleteRequest struct {
	ID int64 `json:"id"`
}

type JobDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type JobGetRequest struct {
	ID int64 `json:"id"`
}

type JobGetResponse struct {
	Job JobPayload `json:"job"`
}

type JobListRequest struct {
	PendingOnly bool `json:"pending_only"`
}

type JobListResponse struct {
	Jobs []JobPayload `json:"jobs"`
}

type InstancesRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type InstancesResponse struct {
	Instances []InstancePayload `json:"instances"`
}

type InstanceEnsureRequest struct {
	JobID int64  `json:"job_id"`
	Date  string `json:"date"`
}

type InstanceEnsureResponse struct {
	Instance   *InstancePayload `json:"instance,omitempty"`
	WasCreated bool             `json:"was_created"`
}

type RecordStartRequest struct {
	Class           string `json:"class"`
	DurationSeconds int    `json:"duration_seconds"`
	AllowOverride   bool   `json:"allow_override"`
}

type RecordStartResponse struct {
	SessionID   string   `json:"session_id"`
	PID         int      `json:"pid"`
	OutputFiles []string `json:"output_files"`
}

type RecordStopRequest struct {
	Class string `json:"class"`
}

type RecordStopResponse struct {
	Stopped     bool     `json:"stopped"`
	Succeeded   bool     `json:"succeeded"`
	OutputFiles []string `json:"output_files,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type RecordStatusRequest struct {
	Class string `json:"class"`
}

type RecordStatusResponse struct {
	Session SessionPayload `json:"session"`
}

type CleanupRequest struct {
	RetentionDays int  `json:"retention_days,omitempty"`
	Completed     bool `json:"completed"`
	Failed        bool `json:"failed"`
	Missed        bool `json:"missed"`
	DryRun        bool `json:"dry_run"`
}

type CleanupResponse struct {
	Cutoff           time.Time `json:"cutoff"`
	JobsDeleted      int64     `json:"jobs_deleted"`
	InstancesDeleted int64     `json:"instances_deleted"`
	DryRun           bool      `json:"dry_run"`
}

type ConfigGetRequest struct {
	Key string `json:"key"`
}

type ConfigGetResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ConfigSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ConfigSetResponse struct{}

type ConfigAllRequest struct{}

type ConfigAllResponse struct {
	Values map[string]string `json:"values"`
}

type StorageRequest struct{}

type StorageResponse struct {
	Path           string  `json:"path"`
	TotalBytes     int64   `json:"total_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	FreeBytes      int64   `json:"free_bytes"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// TemplatePayload is the wire form of a capture preset.
type TemplatePayload struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	DurationSeconds int       `json:"duration_seconds"`
	Pattern         *Pattern  `json:"pattern,omitempty"`
	AllowOverride   bool      `json:"allow_override"`
	CaptureVideo    bool      `json:"capture_video"`
	Notes           string    `json:"notes,omitempty"`
	Summary         string    `json:"summary"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type TemplateCreateRequest struct {
	Name            string   `json:"name"`
	DurationSeconds int      `json:"duration_seconds"`
	Pattern         *Pattern `json:"pattern,omitempty"`
	AllowOverride   bool     `json:"allow_override"`
	CaptureVideo    bool     `json:"capture_video"`
	Notes           string   `json:"notes,omitempty"`
}

type TemplateCreateResponse struct {
	Template TemplatePayload `json:"template"`
}

type TemplateGetRequest struct {
	ID int64 `json:"id"`
}

type TemplateGetResponse struct {
	Template TemplatePayload `json:"template"`
}

type TemplateListRequest struct{}

type TemplateListResponse struct {
	Templates []TemplatePayload `json:"templates"`
}

type TemplateUpdateRequest struct {
	ID              int64    `json:"id"`
	Name            *string  `json:"name,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	Pattern         *Pattern `json:"pattern,omitempty"`
	AllowOverride   *bool    `json:"allow_override,omitempty"`
	CaptureVideo    *bool    `json:"capture_video,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
}

type TemplateUpdateResponse struct {
	Template TemplatePayload `json:"template"`
}

type TemplateDeleteRequest struct {
	ID int64 `json:"id"`
}

type TemplateDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type TemplateApplyRequest struct {
	ID      int64      `json:"id"`
	JobName string     `json:"job_name,omitempty"`
	StartAt *time.Time `json:"start_at,omitempty"`
}

type TemplateApplyResponse struct {
	Job JobPayload `json:"job"`
}

func patternToWire(p *schedule.Pattern) *Pattern {
	if p == nil {
		return nil
	}
	return &Pattern{
		Kind:       string(p.Kind),
		Days:       append([]int(nil), p.Days...),
		DayOfMonth: p.DayOfMonth,
		Hour:       p.Hour,
		Minute:     p.Minute,
	}
}

// PatternFromWire converts the wire form back to the engine's pattern.
func PatternFromWire(p *Pattern) *schedule.Pattern {
	if p == nil {
		return nil
	}
	return &schedule.Pattern{
		Kind:       schedule.PatternKind(p.Kind),
		Days:       append([]int(nil), p.Days...),
		DayOfMonth: p.DayOfMonth,
		Hour:       p.Hour,
		Minute:     p.Minute,
	}
}

func jobToWire(job *schedule.Job, nextFire *time.Time) JobPayload {
	return JobPayload{
		ID:              job.ID,
		Name:            job.Name,
		DurationSeconds: job.DurationSeconds,
		Notes:           job.Notes,
		IsRecurring:     job.IsRecurring,
		Pattern:         patternToWire(job.Pattern),
		AllowOverride:   job.AllowOverride,
		CaptureVideo:    job.CaptureVideo,
		Status:          string(job.Status),
		Schedule:        job.ScheduleSummary(),
		CreatedAt:       job.CreatedAt,
		StartAt:         job.StartAt,
		CompletedAt:     job.CompletedAt,
		LastExecutedAt:  job.LastExecutedAt,
		NextFire:        nextFire,
	}
}

func templateToWire(tpl *schedule.Template) TemplatePayload {
	return TemplatePayload{
		ID:              tpl.ID,
		Name:            tpl.Name,
		DurationSeconds: tpl.DurationSeconds,
		Pattern:         patternToWire(tpl.Pattern),
		AllowOverride:   tpl.AllowOverride,
		CaptureVideo:    tpl.CaptureVideo,
		Notes:           tpl.Notes,
		Summary:         tpl.Summary(),
		CreatedAt:       tpl.CreatedAt,
		UpdatedAt:       tpl.UpdatedAt,
	}
}

func instanceToWire(inst *schedule.Instance) InstancePayload {
	return InstancePayload{
		ID:          inst.ID,
		JobID:       inst.JobID,
		Date:        inst.Date,
		Status:      string(inst.Status),
		StartedAt:   inst.StartedAt,
		CompletedAt: inst.CompletedAt,
		Notes:       inst.Notes,
	}
}
