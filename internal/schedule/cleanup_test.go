package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"perch/internal/faults"
)

// ageJob rewrites a job's completion time so it falls outside the
// retention window.
func ageJob(t *testing.T, store *Store, id int64, at time.Time) {
	t.Helper()
	if _, err := store.db.Exec(
		"UPDATE jobs SET completed_at = ? WHERE id = ?",
		at.UTC().Format(time.RFC3339Nano), id,
	); err != nil {
		t.Fatalf("age job %d: %v", id, err)
	}
}

func insertTerminalJob(t *testing.T, store *Store, name string, status Status) *Job {
	t.Helper()
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)
	job, err := store.InsertJob(ctx, &Job{
		Name: name, DurationSeconds: 600,
		Status: StatusPending, StartAt: &start,
	})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if _, err := store.MarkJobStatus(ctx, job.ID, status); err != nil {
		t.Fatalf("MarkJobStatus: %v", err)
	}
	return job
}

func TestCleanupRemovesExpired(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	old := insertTerminalJob(t, store, "old completed", StatusCompleted)
	ageJob(t, store, old.ID, time.Now().AddDate(0, 0, -60))
	recent := insertTerminalJob(t, store, "recent completed", StatusCompleted)

	recurring := insertDailyJob(t, store)
	if _, err := store.UpsertInstance(ctx, &Instance{
		JobID: recurring.ID, Date: "2026-01-05", Status: StatusMissed,
	}); err != nil {
		t.Fatalf("UpsertInstance old: %v", err)
	}
	recentDate := OccurrenceDate(time.Now().AddDate(0, 0, -1))
	if _, err := store.UpsertInstance(ctx, &Instance{
		JobID: recurring.ID, Date: recentDate, Status: StatusCompleted,
	}); err != nil {
		t.Fatalf("UpsertInstance recent: %v", err)
	}

	result, err := engine.Cleanup(ctx, CleanupOptions{RetentionDays: 30})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.JobsDeleted != 1 || result.InstancesDeleted != 1 {
		t.Fatalf("deleted jobs=%d instances=%d, want 1 and 1", result.JobsDeleted, result.InstancesDeleted)
	}

	if job, _ := store.GetJob(ctx, old.ID); job != nil {
		t.Fatal("expired job survived cleanup")
	}
	if job, _ := store.GetJob(ctx, recent.ID); job == nil {
		t.Fatal("recent job was deleted")
	}
	if job, _ := store.GetJob(ctx, recurring.ID); job == nil {
		t.Fatal("recurring jobs must never be deleted by retention cleanup")
	}
	if inst, _ := store.GetInstance(ctx, recurring.ID, "2026-01-05"); inst != nil {
		t.Fatal("expired instance survived cleanup")
	}
	if inst, _ := store.GetInstance(ctx, recurring.ID, recentDate); inst == nil {
		t.Fatal("recent instance was deleted")
	}
}

func TestCleanupPreviewDoesNotDelete(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	old := insertTerminalJob(t, store, "old failed", StatusFailed)
	ageJob(t, store, old.ID, time.Now().AddDate(0, 0, -90))
	recurring := insertDailyJob(t, store)
	if _, err := store.UpsertInstance(ctx, &Instance{
		JobID: recurring.ID, Date: "2026-01-05", Status: StatusMissed,
	}); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}

	result, err := engine.CleanupPreview(ctx, CleanupOptions{RetentionDays: 30})
	if err != nil {
		t.Fatalf("CleanupPreview: %v", err)
	}
	if result.JobsDeleted != 1 || result.InstancesDeleted != 1 {
		t.Fatalf("preview jobs=%d instances=%d, want 1 and 1", result.JobsDeleted, result.InstancesDeleted)
	}

	if job, _ := store.GetJob(ctx, old.ID); job == nil {
		t.Fatal("preview deleted a job")
	}
	if inst, _ := store.GetInstance(ctx, recurring.ID, "2026-01-05"); inst == nil {
		t.Fatal("preview deleted an instance")
	}
}

func TestCleanupStatusFilter(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	failed := insertTerminalJob(t, store, "old failed", StatusFailed)
	ageJob(t, store, failed.ID, time.Now().AddDate(0, 0, -60))
	missed := insertTerminalJob(t, store, "old missed", StatusMissed)
	ageJob(t, store, missed.ID, time.Now().AddDate(0, 0, -60))

	result, err := engine.Cleanup(ctx, CleanupOptions{RetentionDays: 30, Failed: true})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.JobsDeleted != 1 {
		t.Fatalf("deleted %d jobs, want only the failed one", result.JobsDeleted)
	}
	if job, _ := store.GetJob(ctx, failed.ID); job != nil {
		t.Fatal("failed job survived a failed-only cleanup")
	}
	if job, _ := store.GetJob(ctx, missed.ID); job == nil {
		t.Fatal("missed job was deleted by a failed-only cleanup")
	}
}

func TestCleanupFallsBackToConfiguredWindow(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	configured := engine.cfg.Scheduler.RetentionDays
	if configured <= 0 {
		t.Fatalf("fixture retention window = %d", configured)
	}

	old := insertTerminalJob(t, store, "old completed", StatusCompleted)
	ageJob(t, store, old.ID, time.Now().AddDate(0, 0, -configured-30))

	result, err := engine.Cleanup(ctx, CleanupOptions{})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	wantCutoff := time.Now().AddDate(0, 0, -configured)
	if gap := result.Cutoff.Sub(wantCutoff); gap > time.Minute || gap < -time.Minute {
		t.Fatalf("cutoff = %v, want about %v", result.Cutoff, wantCutoff)
	}
	if result.JobsDeleted != 1 {
		t.Fatalf("deleted %d jobs, want 1", result.JobsDeleted)
	}
}

func TestCleanupRequiresRetentionWindow(t *testing.T) {
	engine, _ := engineFixture(t, &artifactLauncher{})
	engine.cfg.Scheduler.RetentionDays = 0

	if _, err := engine.Cleanup(context.Background(), CleanupOptions{}); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("got %v, want validation error for zero retention window", err)
	}
}
