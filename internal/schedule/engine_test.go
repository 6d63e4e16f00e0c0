package schedule

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"perch/internal/capture"
	"perch/internal/faults"
	"perch/internal/logging"
	"perch/internal/testsupport"
)

// artifactLauncher fakes a capture subprocess that exits shortly after
// launch, writing every planned media file unless fail is set.
type artifactLauncher struct {
	fail bool
}

func (l *artifactLauncher) Launch(_ context.Context, spec capture.CommandSpec) (capture.Handle, error) {
	h := &artifactHandle{done: make(chan struct{})}
	if l.fail {
		h.waitErr = errors.New("exit status 1")
	} else {
		for _, arg := range spec.Args {
			if strings.HasSuffix(arg, ".wav") || strings.HasSuffix(arg, ".mp4") {
				os.MkdirAll(filepath.Dir(arg), 0o755)
				os.WriteFile(arg, bytes.Repeat([]byte{0x42}, 4096), 0o644)
			}
		}
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(h.done)
	}()
	return h, nil
}

type artifactHandle struct {
	done    chan struct{}
	waitErr error
}

func (h *artifactHandle) PID() int { return 999 }

func (h *artifactHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *artifactHandle) Wait() error {
	<-h.done
	return h.waitErr
}

func (h *artifactHandle) Done() <-chan struct{}   { return h.done }
func (h *artifactHandle) Terminate() error        { return nil }
func (h *artifactHandle) Kill() error             { return nil }
func (h *artifactHandle) WriteStdin([]byte) error { return nil }
func (h *artifactHandle) StderrTail() string      { return "device busy" }

func engineFixture(t *testing.T, launcher capture.Launcher) (*Engine, *Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := openTestStore(t)
	triggers := NewTriggerScheduler(logging.NewNop())
	t.Cleanup(triggers.Shutdown)
	audio := capture.NewAudioSupervisor(cfg, capture.StaticConfig{}, launcher, logging.NewNop())
	video := capture.NewVideoSupervisor(cfg, capture.StaticConfig{}, launcher, logging.NewNop())
	return NewEngine(cfg, store, triggers, audio, video, logging.NewNop()), store
}

func futureTime(d time.Duration) *time.Time {
	at := time.Now().Add(d)
	return &at
}

func waitForStatus(t *testing.T, store *Store, id int64, want Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job != nil && job.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %d never reached status %q", id, want)
}

func TestCreateJobValidation(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()
	daily := &Pattern{Kind: PatternDaily, Hour: 9, Minute: 0}

	cases := []struct {
		name string
		def  JobDefinition
	}{
		{"blank name", JobDefinition{Name: "  ", DurationSeconds: 600, StartAt: futureTime(time.Hour)}},
		{"zero duration", JobDefinition{Name: "dawn", DurationSeconds: 0, StartAt: futureTime(time.Hour)}},
		{"recurring without pattern", JobDefinition{Name: "dawn", DurationSeconds: 600, IsRecurring: true}},
		{"one-time with pattern", JobDefinition{Name: "dawn", DurationSeconds: 600, Pattern: daily, StartAt: futureTime(time.Hour)}},
		{"one-time without start", JobDefinition{Name: "dawn", DurationSeconds: 600}},
		{"one-time start in past", JobDefinition{Name: "dawn", DurationSeconds: 600, StartAt: futureTime(-time.Hour)}},
	}
	for _, tc := range cases {
		if _, err := engine.CreateJob(ctx, tc.def); !errors.Is(err, faults.ErrValidation) {
			t.Errorf("%s: got %v, want validation error", tc.name, err)
		}
	}

	jobs, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("rejected definitions left %d jobs behind", len(jobs))
	}
}

func TestCreateJobArmsTrigger(t *testing.T) {
	engine, _ := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	startAt := futureTime(time.Hour)
	oneTime, err := engine.CreateJob(ctx, JobDefinition{
		Name: "one-off", DurationSeconds: 600, StartAt: startAt,
	})
	if err != nil {
		t.Fatalf("CreateJob one-time: %v", err)
	}
	at, ok := engine.NextFire(oneTime.ID)
	if !ok || !at.Equal(*startAt) {
		t.Fatalf("one-time NextFire = %v, %v; want %v", at, ok, *startAt)
	}

	recurring, err := engine.CreateJob(ctx, JobDefinition{
		Name: "every morning", DurationSeconds: 600, IsRecurring: true,
		Pattern: &Pattern{Kind: PatternDaily, Hour: 6, Minute: 30},
	})
	if err != nil {
		t.Fatalf("CreateJob recurring: %v", err)
	}
	if _, ok := engine.NextFire(recurring.ID); !ok {
		t.Fatal("recurring job was not armed")
	}
}

func TestExecuteOneTimeCompletes(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "soon", DurationSeconds: 600, StartAt: futureTime(80 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	waitForStatus(t, store, job.ID, StatusCompleted)

	stored, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.LastExecutedAt == nil {
		t.Fatal("execution time was not recorded")
	}
	if _, ok := engine.NextFire(job.ID); ok {
		t.Fatal("completed one-time job still has an armed trigger")
	}
}

func TestExecuteRecurringRecordsInstance(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "daily capture", DurationSeconds: 600, IsRecurring: true,
		Pattern: &Pattern{Kind: PatternDaily, Hour: 9, Minute: 0},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	firedAt := time.Date(2026, 3, 18, 9, 0, 0, 0, time.Local)
	engine.execute(job.ID, firedAt)

	inst, err := store.GetInstance(ctx, job.ID, "2026-03-18")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst == nil || inst.Status != StatusCompleted {
		t.Fatalf("instance = %+v, want completed occurrence", inst)
	}
	if inst.StartedAt == nil || inst.CompletedAt == nil {
		t.Fatalf("instance timestamps missing: %+v", inst)
	}

	stored, _ := store.GetJob(ctx, job.ID)
	if stored.Status != StatusPending {
		t.Fatalf("recurring job status = %q, history belongs in instances", stored.Status)
	}
	if _, ok := engine.NextFire(job.ID); !ok {
		t.Fatal("recurring job was not re-armed after firing")
	}
}

func TestExecuteCaptureFailure(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{fail: true})
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "doomed", DurationSeconds: 600, StartAt: futureTime(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	engine.execute(job.ID, time.Now())
	waitForStatus(t, store, job.ID, StatusFailed)
}

func TestExecuteVideoLegFailureIsPartial(t *testing.T) {
	// The video supervisor has no camera address configured, so its leg
	// fails validation while the audio leg proceeds.
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "with camera", DurationSeconds: 600, IsRecurring: true, CaptureVideo: true,
		Pattern: &Pattern{Kind: PatternDaily, Hour: 9, Minute: 0},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	firedAt := time.Date(2026, 3, 18, 9, 0, 0, 0, time.Local)
	engine.execute(job.ID, firedAt)

	inst, err := store.GetInstance(ctx, job.ID, "2026-03-18")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst == nil || inst.Status != StatusCompleted {
		t.Fatalf("instance = %+v, want completed despite video failure", inst)
	}
	if !strings.Contains(inst.Notes, "video capture failed") {
		t.Fatalf("instance notes = %q, want video failure note", inst.Notes)
	}
}

func TestExecuteDeletedJob(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})

	// Fires for jobs removed between arming and firing are dropped.
	engine.execute(12345, time.Now())

	jobs, err := store.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("phantom fire created state: %v", jobs)
	}
}

func TestEngineUpdateJob(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "original", DurationSeconds: 600, StartAt: futureTime(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	duration := 1200
	updated, err := engine.UpdateJob(ctx, job.ID, JobUpdate{DurationSeconds: &duration})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if updated.DurationSeconds != 1200 || updated.Name != "original" {
		t.Fatalf("updated job = %+v", updated)
	}

	bad := 0
	if _, err := engine.UpdateJob(ctx, job.ID, JobUpdate{DurationSeconds: &bad}); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("invalid update: got %v, want validation error", err)
	}
	stored, _ := store.GetJob(ctx, job.ID)
	if stored.DurationSeconds != 1200 {
		t.Fatalf("rejected update changed stored duration to %d", stored.DurationSeconds)
	}

	if _, err := engine.UpdateJob(ctx, 9999, JobUpdate{DurationSeconds: &duration}); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("update of missing job: got %v, want not found", err)
	}
}

func TestDeleteJobDisarmsTrigger(t *testing.T) {
	engine, _ := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "short lived", DurationSeconds: 600, StartAt: futureTime(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := engine.DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, ok := engine.NextFire(job.ID); ok {
		t.Fatal("deleted job still has an armed trigger")
	}
	if _, err := engine.GetJob(ctx, job.ID); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("GetJob after delete: got %v, want not found", err)
	}
	if err := engine.DeleteJob(ctx, job.ID); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("second delete: got %v, want not found", err)
	}
}

func TestRecover(t *testing.T) {
	engine, store := engineFixture(t, &artifactLauncher{})
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	future := time.Now().Add(2 * time.Hour)

	missedJob, err := store.InsertJob(ctx, &Job{
		Name: "elapsed while down", DurationSeconds: 600,
		Status: StatusPending, StartAt: &past,
	})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	futureJob, err := store.InsertJob(ctx, &Job{
		Name: "still ahead", DurationSeconds: 600,
		Status: StatusPending, StartAt: &future,
	})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	recurringJob, err := store.InsertJob(ctx, &Job{
		Name: "every day", DurationSeconds: 600, IsRecurring: true,
		Status:  StatusPending,
		Pattern: &Pattern{Kind: PatternDaily, Hour: 6, Minute: 0},
	})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if err := engine.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	stored, _ := store.GetJob(ctx, missedJob.ID)
	if stored.Status != StatusMissed {
		t.Fatalf("elapsed job status = %q, want missed", stored.Status)
	}
	if _, ok := engine.NextFire(missedJob.ID); ok {
		t.Fatal("missed job must never fire late")
	}
	if _, ok := engine.NextFire(futureJob.ID); !ok {
		t.Fatal("future one-time job was not re-armed")
	}
	if _, ok := engine.NextFire(recurringJob.ID); !ok {
		t.Fatal("recurring job was not re-armed")
	}

	// Recovery is idempotent across back-to-back restarts.
	if err := engine.Recover(ctx); err != nil {
		t.Fatalf("second Recover: %v", err)
	}
	stored, _ = store.GetJob(ctx, missedJob.ID)
	if stored.Status != StatusMissed {
		t.Fatalf("second recovery changed status to %q", stored.Status)
	}
}

// legLauncher tells the audio and video legs apart by their planned
// output suffix so tests can fail one leg independently.
type legLauncher struct {
	audioStartErr error
	videoRunFails bool
	videoLaunches int
}

func (l *legLauncher) Launch(ctx context.Context, spec capture.CommandSpec) (capture.Handle, error) {
	video := false
	for _, arg := range spec.Args {
		if strings.HasSuffix(arg, ".mp4") {
			video = true
		}
	}
	if video {
		l.videoLaunches++
		return (&artifactLauncher{fail: l.videoRunFails}).Launch(ctx, spec)
	}
	if l.audioStartErr != nil {
		return nil, l.audioStartErr
	}
	return (&artifactLauncher{}).Launch(ctx, spec)
}

func engineCameraFixture(t *testing.T, launcher capture.Launcher) (*Engine, *Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := openTestStore(t)
	triggers := NewTriggerScheduler(logging.NewNop())
	t.Cleanup(triggers.Shutdown)
	static := capture.StaticConfig{capture.ConfigKeyCameraAddress: "cam.local:554/stream"}
	audio := capture.NewAudioSupervisor(cfg, static, launcher, logging.NewNop())
	video := capture.NewVideoSupervisor(cfg, static, launcher, logging.NewNop())
	return NewEngine(cfg, store, triggers, audio, video, logging.NewNop()), store
}

func TestExecuteAudioFailureSkipsVideoLeg(t *testing.T) {
	launcher := &legLauncher{audioStartErr: errors.New("device busy")}
	engine, store := engineCameraFixture(t, launcher)
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "both legs", DurationSeconds: 600, IsRecurring: true, CaptureVideo: true,
		Pattern: &Pattern{Kind: PatternDaily, Hour: 9, Minute: 0},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	firedAt := time.Date(2026, 3, 18, 9, 0, 0, 0, time.Local)
	engine.execute(job.ID, firedAt)

	if launcher.videoLaunches != 0 {
		t.Fatalf("video launched %d times despite audio failing to start", launcher.videoLaunches)
	}
	inst, err := store.GetInstance(ctx, job.ID, "2026-03-18")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst == nil || inst.Status != StatusFailed {
		t.Fatalf("instance = %+v, want failed", inst)
	}
}

func TestExecuteVideoRuntimeFailureIsNoted(t *testing.T) {
	launcher := &legLauncher{videoRunFails: true}
	engine, store := engineCameraFixture(t, launcher)
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, JobDefinition{
		Name: "camera drops", DurationSeconds: 600, IsRecurring: true, CaptureVideo: true,
		Pattern: &Pattern{Kind: PatternDaily, Hour: 9, Minute: 0},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	firedAt := time.Date(2026, 3, 18, 9, 0, 0, 0, time.Local)
	engine.execute(job.ID, firedAt)

	if launcher.videoLaunches != 1 {
		t.Fatalf("video launches = %d, want 1", launcher.videoLaunches)
	}
	inst, err := store.GetInstance(ctx, job.ID, "2026-03-18")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst == nil || inst.Status != StatusCompleted {
		t.Fatalf("instance = %+v, want completed with audio intact", inst)
	}
	if !strings.Contains(inst.Notes, "video capture failed") {
		t.Fatalf("instance notes = %q, want video failure note", inst.Notes)
	}
}
