package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"perch/internal/faults"
	"perch/internal/logging"
)

func reconcilerFixture(t *testing.T) (*Reconciler, *Store) {
	t.Helper()
	store := openTestStore(t)
	r := NewReconciler(store, logging.NewNop())
	// Pin the clock well past every occurrence the tests reference.
	r.now = func() time.Time {
		return time.Date(2026, 4, 1, 12, 0, 0, 0, time.Local)
	}
	return r, store
}

func insertDailyJob(t *testing.T, store *Store) *Job {
	t.Helper()
	job, err := store.InsertJob(context.Background(), &Job{
		Name:            "daily nine",
		DurationSeconds: 3600,
		IsRecurring:     true,
		Status:          StatusPending,
		Pattern:         &Pattern{Kind: PatternDaily, Hour: 9, Minute: 0},
	})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	return job
}

func TestEnsureInstanceBackfillsMissed(t *testing.T) {
	r, store := reconcilerFixture(t)
	job := insertDailyJob(t, store)
	ctx := context.Background()

	inst, created, err := r.EnsureInstanceExists(ctx, job.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("EnsureInstanceExists: %v", err)
	}
	if !created || inst == nil {
		t.Fatalf("created=%v inst=%+v, want backfilled instance", created, inst)
	}
	if inst.Status != StatusMissed {
		t.Fatalf("status = %q, want missed when no execution marker exists", inst.Status)
	}
	if inst.Notes != "backfilled" {
		t.Fatalf("notes = %q", inst.Notes)
	}

	// The second call finds the row instead of creating it.
	again, created, err := r.EnsureInstanceExists(ctx, job.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("second EnsureInstanceExists: %v", err)
	}
	if created || again == nil || again.ID != inst.ID {
		t.Fatalf("created=%v again=%+v, want existing row %d", created, again, inst.ID)
	}
}

func TestEnsureInstanceCompletedWhenExecuted(t *testing.T) {
	r, store := reconcilerFixture(t)
	job := insertDailyJob(t, store)
	ctx := context.Background()

	executedAt := time.Date(2026, 3, 10, 9, 0, 12, 0, time.Local)
	if err := store.TouchLastExecuted(ctx, job.ID, executedAt); err != nil {
		t.Fatalf("TouchLastExecuted: %v", err)
	}

	inst, created, err := r.EnsureInstanceExists(ctx, job.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("EnsureInstanceExists: %v", err)
	}
	if !created || inst.Status != StatusCompleted {
		t.Fatalf("created=%v status=%q, want completed from execution marker", created, inst.Status)
	}

	// The marker only proves that one date; other elapsed dates stay missed.
	other, _, err := r.EnsureInstanceExists(ctx, job.ID, "2026-03-11")
	if err != nil {
		t.Fatalf("EnsureInstanceExists 03-11: %v", err)
	}
	if other.Status != StatusMissed {
		t.Fatalf("03-11 status = %q, want missed", other.Status)
	}
}

func TestEnsureInstanceSkipsNonOccurrences(t *testing.T) {
	r, store := reconcilerFixture(t)
	ctx := context.Background()

	// Weekly job firing only on Mondays.
	job, err := store.InsertJob(ctx, &Job{
		Name:            "monday only",
		DurationSeconds: 3600,
		IsRecurring:     true,
		Status:          StatusPending,
		Pattern:         &Pattern{Kind: PatternWeekly, Days: []int{1}, Hour: 9, Minute: 0},
	})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	// 2026-03-10 is a Tuesday.
	inst, created, err := r.EnsureInstanceExists(ctx, job.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("EnsureInstanceExists: %v", err)
	}
	if created || inst != nil {
		t.Fatalf("created=%v inst=%+v for a non-occurrence date", created, inst)
	}

	start := time.Now().Add(-time.Hour)
	oneTime, err := store.InsertJob(ctx, &Job{
		Name: "not recurring", DurationSeconds: 600,
		Status: StatusPending, StartAt: &start,
	})
	if err != nil {
		t.Fatalf("InsertJob one-time: %v", err)
	}
	inst, created, err = r.EnsureInstanceExists(ctx, oneTime.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("EnsureInstanceExists one-time: %v", err)
	}
	if created || inst != nil {
		t.Fatalf("one-time jobs have no instances, got created=%v inst=%+v", created, inst)
	}
}

func TestEnsureInstanceNeverFabricatesFuture(t *testing.T) {
	r, store := reconcilerFixture(t)
	job := insertDailyJob(t, store)
	ctx := context.Background()

	// Same day, but the occurrence window has not elapsed at the pinned
	// clock: 09:00 + 1h capture runs until 10:00; "now" is 09:30.
	r.now = func() time.Time {
		return time.Date(2026, 4, 1, 9, 30, 0, 0, time.Local)
	}
	inst, created, err := r.EnsureInstanceExists(ctx, job.ID, "2026-04-01")
	if err != nil {
		t.Fatalf("EnsureInstanceExists in-progress: %v", err)
	}
	if created || inst != nil {
		t.Fatalf("in-progress occurrence was fabricated: created=%v inst=%+v", created, inst)
	}

	inst, created, err = r.EnsureInstanceExists(ctx, job.ID, "2026-04-02")
	if err != nil {
		t.Fatalf("EnsureInstanceExists future: %v", err)
	}
	if created || inst != nil {
		t.Fatalf("future occurrence was fabricated: created=%v inst=%+v", created, inst)
	}
}

func TestEnsureInstanceValidation(t *testing.T) {
	r, store := reconcilerFixture(t)
	job := insertDailyJob(t, store)
	ctx := context.Background()

	if _, _, err := r.EnsureInstanceExists(ctx, job.ID, "10-03-2026"); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("bad date: got %v, want validation error", err)
	}
	if _, _, err := r.EnsureInstanceExists(ctx, 9999, "2026-03-10"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("missing job: got %v, want not found", err)
	}
}

func TestGetInstancesForRange(t *testing.T) {
	r, store := reconcilerFixture(t)
	job := insertDailyJob(t, store)
	ctx := context.Background()

	// Day 2 of a three-day window never ran; days 1 and 3 did.
	for _, date := range []string{"2026-03-09", "2026-03-11"} {
		day, _ := time.ParseInLocation(DateFormat, date, time.Local)
		started := day.Add(9 * time.Hour)
		completed := started.Add(time.Hour)
		if _, err := store.UpsertInstance(ctx, &Instance{
			JobID: job.ID, Date: date, Status: StatusCompleted,
			StartedAt: &started, CompletedAt: &completed,
		}); err != nil {
			t.Fatalf("UpsertInstance %s: %v", date, err)
		}
	}
	if _, _, err := r.EnsureInstanceExists(ctx, job.ID, "2026-03-10"); err != nil {
		t.Fatalf("EnsureInstanceExists: %v", err)
	}

	instances, err := r.GetInstancesForRange(ctx, "2026-03-09", "2026-03-11")
	if err != nil {
		t.Fatalf("GetInstancesForRange: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("got %d instances, want 3", len(instances))
	}
	byDate := make(map[string]Status, len(instances))
	for _, inst := range instances {
		byDate[inst.Date] = inst.Status
	}
	if byDate["2026-03-09"] != StatusCompleted || byDate["2026-03-11"] != StatusCompleted {
		t.Fatalf("recorded days corrupted by backfill: %v", byDate)
	}
	if byDate["2026-03-10"] != StatusMissed {
		t.Fatalf("gap day = %q, want missed", byDate["2026-03-10"])
	}

	if _, err := r.GetInstancesForRange(ctx, "not-a-date", "2026-03-11"); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("bad range start: got %v, want validation error", err)
	}
}
