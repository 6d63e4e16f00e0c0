package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"perch/internal/faults"
	"perch/internal/logging"
)

// CleanupOptions selects what retention cleanup removes. Zero
// RetentionDays falls back to the configured window. When no status
// flag is set, all terminal statuses are eligible.
type CleanupOptions struct {
	RetentionDays int
	Completed     bool
	Failed        bool
	Missed        bool
}

// CleanupResult reports what cleanup removed, or would remove.
type CleanupResult struct {
	Cutoff           time.Time
	JobsDeleted      int64
	InstancesDeleted int64
}

func (o CleanupOptions) statuses() []Status {
	var statuses []Status
	if o.Completed {
		statuses = append(statuses, StatusCompleted)
	}
	if o.Failed {
		statuses = append(statuses, StatusFailed)
	}
	if o.Missed {
		statuses = append(statuses, StatusMissed)
	}
	if len(statuses) == 0 {
		statuses = []Status{StatusCompleted, StatusFailed, StatusMissed}
	}
	return statuses
}

func (e *Engine) cleanupCutoff(opts CleanupOptions) (time.Time, error) {
	days := opts.RetentionDays
	if days <= 0 {
		days = e.cfg.Scheduler.RetentionDays
	}
	if days <= 0 {
		return time.Time{}, faults.Wrap(faults.ErrValidation, "cleanup", "cutoff",
			"retention window must be positive", nil)
	}
	return e.now().AddDate(0, 0, -days), nil
}

// CleanupPreview counts what Cleanup would delete without touching
// anything.
func (e *Engine) CleanupPreview(ctx context.Context, opts CleanupOptions) (*CleanupResult, error) {
	cutoff, err := e.cleanupCutoff(opts)
	if err != nil {
		return nil, err
	}
	jobs, instances, err := e.store.countExpired(ctx, cutoff, opts.statuses())
	if err != nil {
		return nil, err
	}
	return &CleanupResult{Cutoff: cutoff, JobsDeleted: jobs, InstancesDeleted: instances}, nil
}

// Cleanup deletes terminal one-time jobs and instance rows older than
// the retention window. Row deletion is a single transaction; trigger
// deregistration follows the commit, so a failed transaction never
// leaves triggers gone with their rows still present.
func (e *Engine) Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupResult, error) {
	cutoff, err := e.cleanupCutoff(opts)
	if err != nil {
		return nil, err
	}
	jobIDs, jobs, instances, err := e.store.deleteExpired(ctx, cutoff, opts.statuses())
	if err != nil {
		return nil, err
	}
	for _, id := range jobIDs {
		e.triggers.Deregister(id)
	}

	e.logger.Info("retention cleanup complete",
		logging.Time("cutoff", cutoff),
		logging.Int64("jobs_deleted", jobs),
		logging.Int64("instances_deleted", instances),
	)
	return &CleanupResult{Cutoff: cutoff, JobsDeleted: jobs, InstancesDeleted: instances}, nil
}

const expiredJobsWhere = `is_recurring = 0
  AND status IN (%s)
  AND COALESCE(completed_at, created_at) < ?`

const expiredInstancesWhere = `status IN (%s)
  AND occurrence_date < ?`

func statusPlaceholders(statuses []Status) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		marks[i] = "?"
		args[i] = string(status)
	}
	return strings.Join(marks, ", "), args
}

func (s *Store) countExpired(ctx context.Context, cutoff time.Time, statuses []Status) (jobs, instances int64, err error) {
	marks, statusArgs := statusPlaceholders(statuses)

	jobArgs := append(append([]any{}, statusArgs...), cutoff.UTC().Format(time.RFC3339Nano))
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE "+fmt.Sprintf(expiredJobsWhere, marks), jobArgs...)
	if err := row.Scan(&jobs); err != nil {
		return 0, 0, err
	}

	instArgs := append(append([]any{}, statusArgs...), OccurrenceDate(cutoff))
	row = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM recording_instances WHERE "+fmt.Sprintf(expiredInstancesWhere, marks), instArgs...)
	if err := row.Scan(&instances); err != nil {
		return 0, 0, err
	}
	return jobs, instances, nil
}

func (s *Store) deleteExpired(ctx context.Context, cutoff time.Time, statuses []Status) (jobIDs []int64, jobs, instances int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	defer tx.Rollback()

	marks, statusArgs := statusPlaceholders(statuses)

	jobArgs := append(append([]any{}, statusArgs...), cutoff.UTC().Format(time.RFC3339Nano))
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM jobs WHERE "+fmt.Sprintf(expiredJobsWhere, marks), jobArgs...)
	if err != nil {
		return nil, 0, 0, err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, 0, err
		}
		jobIDs = append(jobIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, 0, err
	}
	rows.Close()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM jobs WHERE "+fmt.Sprintf(expiredJobsWhere, marks), jobArgs...)
	if err != nil {
		return nil, 0, 0, err
	}
	jobs, _ = res.RowsAffected()

	instArgs := append(append([]any{}, statusArgs...), OccurrenceDate(cutoff))
	res, err = tx.ExecContext(ctx,
		"DELETE FROM recording_instances WHERE "+fmt.Sprintf(expiredInstancesWhere, marks), instArgs...)
	if err != nil {
		return nil, 0, 0, err
	}
	instances, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, 0, 0, err
	}
	return jobIDs, jobs, instances, nil
}
