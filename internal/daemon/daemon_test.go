package daemon

import (
	"context"
	"testing"
	"time"

	"perch/internal/logging"
	"perch/internal/schedule"
	"perch/internal/testsupport"
)

func TestDaemonLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if d.Running() {
		t.Fatal("daemon running before Start")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon not running after Start")
	}
	if d.Engine() == nil || d.Reconciler() == nil || d.Audio() == nil || d.Video() == nil || d.Store() == nil {
		t.Fatal("daemon accessors incomplete")
	}

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start on a running daemon accepted")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon still running after Stop")
	}
	// Stop is idempotent.
	d.Stop()
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New first: %v", err)
	}
	defer first.Close()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	defer first.Stop()

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("two daemons acquired the same lock")
	}
}

func TestDaemonStartRecoversTriggers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	stale, err := d.Store().InsertJob(ctx, &schedule.Job{
		Name: "elapsed while down", DurationSeconds: 600,
		Status: schedule.StatusPending, StartAt: &past,
	})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	job, err := d.Store().GetJob(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != schedule.StatusMissed {
		t.Fatalf("status = %q, want missed after recovery", job.Status)
	}
}

func TestDaemonStopReleasesHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.HeartbeatInterval = 1
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the heartbeat loop go around at least once before stopping.
	time.Sleep(1200 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return while the heartbeat loop was running")
	}
}
