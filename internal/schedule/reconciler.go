package schedule

import (
	"context"
	"log/slog"
	"time"

	"perch/internal/faults"
	"perch/internal/logging"
)

// Reconciler materializes and repairs instance history for recurring
// jobs. History is lazy: nothing generates instance rows eagerly, so
// read paths call EnsureInstanceExists to backfill past occurrences on
// first access.
type Reconciler struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

func NewReconciler(store *Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logging.NewComponentLogger(logger, "reconciler"),
		now:    time.Now,
	}
}

// GetInstancesForRange returns instance rows whose occurrence date
// falls within [start, end], both YYYY-MM-DD.
func (r *Reconciler) GetInstancesForRange(ctx context.Context, start, end string) ([]*Instance, error) {
	if _, err := time.Parse(DateFormat, start); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "reconciler", "range",
			"invalid start date: "+start, nil)
	}
	if _, err := time.Parse(DateFormat, end); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "reconciler", "range",
			"invalid end date: "+end, nil)
	}
	return r.store.InstancesForRange(ctx, start, end)
}

// EnsureInstanceExists is the idempotent backfill primitive. It returns
// the instance for (jobID, date) when one exists or should have existed,
// and whether this call created it. A (nil, false) return means nothing
// to backfill: the job is not recurring, the pattern skips that date, or
// the occurrence window has not elapsed yet.
func (r *Reconciler) EnsureInstanceExists(ctx context.Context, jobID int64, date string) (*Instance, bool, error) {
	day, err := time.ParseInLocation(DateFormat, date, time.Local)
	if err != nil {
		return nil, false, faults.Wrap(faults.ErrValidation, "reconciler", "ensure",
			"invalid occurrence date: "+date, nil)
	}

	existing, err := r.store.GetInstance(ctx, jobID, date)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, faults.Wrap(faults.ErrNotFound, "reconciler", "ensure",
			"job not found for backfill", nil)
	}
	if !job.IsRecurring || job.Pattern == nil || !job.Pattern.OccursOn(day) {
		return nil, false, nil
	}

	// Never fabricate history for an occurrence still in progress or in
	// the future.
	scheduledStart := job.Pattern.At(day)
	scheduledEnd := scheduledStart.Add(time.Duration(job.DurationSeconds) * time.Second)
	if scheduledEnd.After(r.now()) {
		return nil, false, nil
	}

	// Default to missed; an execution marker on this exact date is the
	// only evidence the capture actually ran.
	status := StatusMissed
	if job.LastExecutedAt != nil && OccurrenceDate(*job.LastExecutedAt) == date {
		status = StatusCompleted
	}

	inst, err := r.store.UpsertInstance(ctx, &Instance{
		JobID:  jobID,
		Date:   date,
		Status: status,
		Notes:  "backfilled",
	})
	if err != nil {
		return nil, false, err
	}

	r.logger.Info("instance backfilled",
		logging.Int64(logging.FieldJobID, jobID),
		logging.String("date", date),
		logging.String("status", string(status)),
	)
	return inst, true, nil
}
