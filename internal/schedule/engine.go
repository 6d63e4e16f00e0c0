package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"perch/internal/admission"
	"perch/internal/capture"
	"perch/internal/config"
	"perch/internal/faults"
	"perch/internal/logging"
)

// JobDefinition carries the caller-supplied fields of CreateJob.
type JobDefinition struct {
	Name            string
	DurationSeconds int
	Notes           string
	IsRecurring     bool
	Pattern         *Pattern
	StartAt         *time.Time
	AllowOverride   bool
	CaptureVideo    bool
}

// Engine owns job lifecycle: validation, persistence, trigger
// registration, and the execution handler that trigger fires land on.
type Engine struct {
	cfg      *config.Config
	store    *Store
	triggers *TriggerScheduler
	audio    *capture.Supervisor
	video    *capture.Supervisor
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(cfg *config.Config, store *Store, triggers *TriggerScheduler, audio, video *capture.Supervisor, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		triggers: triggers,
		audio:    audio,
		video:    video,
		logger:   logging.NewComponentLogger(logger, "schedule-engine"),
		now:      time.Now,
	}
}

// CreateJob validates the definition, persists the job, and arms its
// trigger. A job that fails validation leaves no trace.
func (e *Engine) CreateJob(ctx context.Context, def JobDefinition) (*Job, error) {
	job, err := e.buildJob(def)
	if err != nil {
		return nil, err
	}

	created, err := e.store.InsertJob(ctx, job)
	if err != nil {
		return nil, err
	}
	e.armTrigger(created)

	e.logger.Info("job created",
		logging.Int64(logging.FieldJobID, created.ID),
		logging.String("name", created.Name),
		logging.String("schedule", created.ScheduleSummary()),
		logging.Bool("capture_video", created.CaptureVideo),
	)
	return created, nil
}

// UpdateJob merges the update onto the stored job, re-validates, and
// replaces the trigger. A firing already in flight is unaffected.
func (e *Engine) UpdateJob(ctx context.Context, id int64, upd JobUpdate) (*Job, error) {
	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, e.notFound(id)
	}

	if upd.Name != nil {
		job.Name = *upd.Name
	}
	if upd.DurationSeconds != nil {
		job.DurationSeconds = *upd.DurationSeconds
	}
	if upd.Notes != nil {
		job.Notes = *upd.Notes
	}
	if upd.Pattern != nil {
		job.Pattern = upd.Pattern
	}
	if upd.StartAt != nil {
		job.StartAt = upd.StartAt
	}
	if upd.AllowOverride != nil {
		job.AllowOverride = *upd.AllowOverride
	}
	if upd.CaptureVideo != nil {
		job.CaptureVideo = *upd.CaptureVideo
	}

	if err := e.validateJob(job); err != nil {
		return nil, err
	}

	e.triggers.Deregister(id)
	if err := e.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	e.armTrigger(job)

	e.logger.Info("job updated",
		logging.Int64(logging.FieldJobID, id),
		logging.String("schedule", job.ScheduleSummary()),
	)
	return job, nil
}

// DeleteJob removes the job and its trigger. Historical instances stay
// behind as an audit trail until retention cleanup.
func (e *Engine) DeleteJob(ctx context.Context, id int64) error {
	e.triggers.Deregister(id)
	deleted, err := e.store.DeleteJob(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return e.notFound(id)
	}
	e.logger.Info("job deleted", logging.Int64(logging.FieldJobID, id))
	return nil
}

// GetJob loads one job or reports not found.
func (e *Engine) GetJob(ctx context.Context, id int64) (*Job, error) {
	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, e.notFound(id)
	}
	return job, nil
}

// GetAllJobs lists every stored job.
func (e *Engine) GetAllJobs(ctx context.Context) ([]*Job, error) {
	return e.store.ListJobs(ctx)
}

// GetPendingJobs lists jobs that can still fire: every recurring job
// and every one-time job not yet in a terminal state.
func (e *Engine) GetPendingJobs(ctx context.Context) ([]*Job, error) {
	return e.store.PendingJobs(ctx)
}

// NextFire reports the armed trigger time for a job, if any.
func (e *Engine) NextFire(id int64) (time.Time, bool) {
	return e.triggers.NextFire(id)
}

// Recover rebuilds trigger state after a restart. Recurring jobs get
// their trigger recomputed from the stored pattern. One-time jobs with
// a future start are re-armed; ones whose start time elapsed while the
// process was down are marked missed, never fired late. Safe to call
// on every start, including back-to-back restarts.
func (e *Engine) Recover(ctx context.Context) error {
	jobs, err := e.store.PendingJobs(ctx)
	if err != nil {
		return err
	}

	now := e.now()
	var armed, missed int
	for _, job := range jobs {
		switch {
		case job.IsRecurring:
			e.armTrigger(job)
			armed++
		case job.StartAt == nil:
			e.logger.Warn("one-time job has no start time, skipping",
				logging.Int64(logging.FieldJobID, job.ID))
		case job.StartAt.After(now):
			e.armTrigger(job)
			armed++
		default:
			changed, err := e.store.MarkJobStatus(ctx, job.ID, StatusMissed)
			if err != nil {
				return err
			}
			if changed {
				missed++
				e.logger.Warn("missed one-time job, scheduled time elapsed while down",
					logging.Int64(logging.FieldJobID, job.ID),
					logging.String("name", job.Name),
					logging.Time("start_at", *job.StartAt),
				)
			}
		}
	}

	e.logger.Info("startup recovery complete",
		logging.Int("jobs_examined", len(jobs)),
		logging.Int("triggers_armed", armed),
		logging.Int("marked_missed", missed),
	)
	return nil
}

// Shutdown cancels all armed triggers. In-flight executions finish on
// their own goroutines.
func (e *Engine) Shutdown() {
	e.triggers.Shutdown()
}

func (e *Engine) buildJob(def JobDefinition) (*Job, error) {
	job := &Job{
		Name:            def.Name,
		DurationSeconds: def.DurationSeconds,
		Notes:           def.Notes,
		IsRecurring:     def.IsRecurring,
		Pattern:         def.Pattern,
		AllowOverride:   def.AllowOverride,
		CaptureVideo:    def.CaptureVideo,
		Status:          StatusPending,
		StartAt:         def.StartAt,
	}
	if err := e.validateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (e *Engine) validateJob(job *Job) error {
	name, err := admission.ValidateName(job.Name)
	if err != nil {
		return err
	}
	job.Name = name

	notes, err := admission.ValidateNotes(job.Notes)
	if err != nil {
		return err
	}
	job.Notes = notes

	duration, err := admission.ValidateDuration(job.DurationSeconds, job.AllowOverride)
	if err != nil {
		return err
	}
	job.DurationSeconds = duration

	if job.IsRecurring {
		if job.Pattern == nil {
			return faults.Wrap(faults.ErrValidation, "schedule", "validate",
				"recurring job requires a recurrence pattern", nil)
		}
		return job.Pattern.Validate()
	}
	if job.Pattern != nil {
		return faults.Wrap(faults.ErrValidation, "schedule", "validate",
			"one-time job must not carry a recurrence pattern", nil)
	}
	if job.StartAt == nil {
		return faults.Wrap(faults.ErrValidation, "schedule", "validate",
			"one-time job requires a start time", nil)
	}
	if job.Status == StatusPending && !job.StartAt.After(e.now()) {
		return faults.Wrap(faults.ErrValidation, "schedule", "validate",
			"one-time start time must be in the future", nil)
	}
	return nil
}

// armTrigger registers the next fire for a job. Jobs with nothing left
// to fire (terminal one-time, exhausted pattern) are left unarmed.
func (e *Engine) armTrigger(job *Job) {
	at, ok := e.nextFireTime(job, e.now())
	if !ok {
		return
	}
	id := job.ID
	e.triggers.Register(id, at, func(firedAt time.Time) {
		e.execute(id, firedAt)
	})
}

func (e *Engine) nextFireTime(job *Job, after time.Time) (time.Time, bool) {
	if job.IsRecurring {
		at := job.Pattern.NextFireTime(after)
		if at.IsZero() {
			return time.Time{}, false
		}
		return at, true
	}
	if job.Status != StatusPending || job.StartAt == nil || !job.StartAt.After(after) {
		return time.Time{}, false
	}
	return *job.StartAt, true
}

// execute is the trigger callback. It runs on the trigger's goroutine,
// concurrently with API mutations, so it reloads the job and uses the
// same store the mutations do. Failures here have no caller to return
// to; they land in job/instance state and the log.
func (e *Engine) execute(jobID int64, firedAt time.Time) {
	ctx := context.Background()
	fireID := uuid.New()
	log := e.logger.With(
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldFireID, fireID.String()),
	)

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error("execution aborted, job load failed", logging.Error(err))
		return
	}
	if job == nil {
		// Deleted between arming and firing.
		log.Info("trigger fired for deleted job, ignoring")
		return
	}

	log.Info("trigger fired",
		logging.String("name", job.Name),
		logging.Int("duration_seconds", job.DurationSeconds),
	)

	req := capture.Request{
		DurationSeconds: job.DurationSeconds,
		AllowOverride:   job.AllowOverride,
		JobID:           job.ID,
		JobName:         job.Name,
	}

	var captureErr error
	videoNote := ""
	if _, err := e.audio.Start(ctx, req); err != nil {
		// Audio is the primary leg: without it nothing else launches.
		captureErr = err
		log.Error("audio capture failed to start", logging.Error(err))
	} else {
		videoStarted := false
		if job.CaptureVideo {
			if _, err := e.video.Start(ctx, req); err != nil {
				// Partial success: the audio leg carries on alone.
				videoNote = fmt.Sprintf("video capture failed: %v", err)
				log.Warn("video leg failed to start", logging.Error(err))
			} else {
				videoStarted = true
			}
		}

		if outcome, err := e.audio.Wait(ctx); err != nil {
			captureErr = err
		} else if outcome != nil && outcome.Err != nil {
			captureErr = outcome.Err
		}

		if videoStarted {
			if outcome, err := e.video.Wait(ctx); err != nil {
				videoNote = fmt.Sprintf("video capture failed: %v", err)
				log.Warn("video leg failed", logging.Error(err))
			} else if outcome != nil && outcome.Err != nil {
				videoNote = fmt.Sprintf("video capture failed: %v", outcome.Err)
				log.Warn("video leg failed", logging.Error(outcome.Err))
			}
		}
	}

	e.recordOutcome(ctx, log, job, firedAt, captureErr, videoNote)

	if job.IsRecurring {
		e.rearm(job, firedAt)
	}
}

// recordOutcome writes the execution result where it belongs: terminal
// status on a one-time job, an instance row for a recurring one.
func (e *Engine) recordOutcome(ctx context.Context, log *slog.Logger, job *Job, firedAt time.Time, captureErr error, videoNote string) {
	status := StatusCompleted
	if captureErr != nil {
		status = StatusFailed
	}

	if err := e.store.TouchLastExecuted(ctx, job.ID, firedAt); err != nil {
		log.Error("failed to record execution time", logging.Error(err))
	}

	if !job.IsRecurring {
		if _, err := e.store.MarkJobStatus(ctx, job.ID, status); err != nil {
			log.Error("failed to record job outcome", logging.Error(err))
		}
		log.Info("one-time job finished", logging.String("status", string(status)))
		return
	}

	notes := videoNote
	if captureErr != nil {
		if notes != "" {
			notes += "; "
		}
		notes += captureErr.Error()
	}
	completedAt := e.now()
	if _, err := e.store.UpsertInstance(ctx, &Instance{
		JobID:       job.ID,
		Date:        OccurrenceDate(firedAt),
		Status:      status,
		StartedAt:   &firedAt,
		CompletedAt: &completedAt,
		Notes:       notes,
	}); err != nil {
		log.Error("failed to record instance outcome", logging.Error(err))
	}
	log.Info("recurring occurrence finished",
		logging.String("date", OccurrenceDate(firedAt)),
		logging.String("status", string(status)),
	)
}

// rearm schedules the next occurrence after a recurring fire. Advancing
// past the fire instant keeps the same occurrence from double-firing.
func (e *Engine) rearm(job *Job, firedAt time.Time) {
	after := firedAt.Add(time.Minute)
	if now := e.now(); now.After(after) {
		after = now
	}
	at := job.Pattern.NextFireTime(after)
	if at.IsZero() {
		e.logger.Warn("recurring job has no next occurrence",
			logging.Int64(logging.FieldJobID, job.ID))
		return
	}
	id := job.ID
	e.triggers.Register(id, at, func(firedAt time.Time) {
		e.execute(id, firedAt)
	})
	e.logger.Info("trigger re-armed",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Time("next_fire", at),
	)
}

func (e *Engine) notFound(id int64) error {
	return faults.Wrap(faults.ErrNotFound, "schedule", "lookup",
		fmt.Sprintf("job %d not found", id), nil)
}
