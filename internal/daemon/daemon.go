// Package daemon wires the capture supervisors, the schedule engine, and
// the persistence layer into the long-running perchd process, enforcing
// single-instance execution with a lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"perch/internal/admission"
	"perch/internal/capture"
	"perch/internal/config"
	"perch/internal/logging"
	"perch/internal/schedule"
)

type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *schedule.Store
	engine     *schedule.Engine
	reconciler *schedule.Reconciler
	audio      *capture.Supervisor
	video      *capture.Supervisor
	sound      *soundMonitor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc

	heartbeatStop chan struct{}
	wg            sync.WaitGroup
}

// New constructs the daemon and all of its dependencies. The store is
// opened here; callers own Close.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	store, err := schedule.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open schedule store: %w", err)
	}

	launcher := capture.NewExecLauncher()
	audio := capture.NewAudioSupervisor(cfg, store, launcher, logger)
	video := capture.NewVideoSupervisor(cfg, store, launcher, logger)
	video.SetPostProcessor(capture.NewTranscoder(cfg, launcher, logger).ProcessOutputs)

	triggers := schedule.NewTriggerScheduler(logger)
	engine := schedule.NewEngine(cfg, store, triggers, audio, video, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "perchd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		engine:     engine,
		reconciler: schedule.NewReconciler(store, logger),
		audio:      audio,
		video:      video,
		sound:      newSoundMonitor(logger),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the single-instance lock, recovers trigger state, and
// launches the background observers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another perchd instance is already running")
	}

	if err := admission.ValidateStoragePath(d.cfg.Paths.RecordingsDir); err != nil {
		// Recoverable at runtime (USB disk plugged in later); admission
		// re-checks before every capture.
		d.logger.Warn("storage path check failed at startup", logging.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.engine.Recover(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("startup recovery: %w", err)
	}
	d.cancel = cancel

	d.sound.Start(runCtx)
	d.startHeartbeat()

	d.running.Store(true)
	d.logger.Info("perchd started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()),
	)
	return nil
}

// Stop winds the daemon down: triggers first so nothing new fires, then
// any in-flight captures, then the observers and the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.engine.Shutdown()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, sup := range []*capture.Supervisor{d.audio, d.video} {
		if !sup.Status().Active {
			continue
		}
		if outcome, err := sup.Stop(stopCtx); err != nil {
			d.logger.Warn("capture stop failed during shutdown",
				logging.String(logging.FieldResource, string(sup.Class())),
				logging.Error(err),
			)
		} else if outcome != nil {
			d.logger.Info("capture stopped during shutdown",
				logging.String(logging.FieldResource, string(sup.Class())),
				logging.Bool("succeeded", outcome.Succeeded()),
			)
		}
	}

	d.sound.Stop()
	d.stopHeartbeat()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("perchd stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool { return d.running.Load() }

func (d *Daemon) Config() *config.Config           { return d.cfg }
func (d *Daemon) Engine() *schedule.Engine         { return d.engine }
func (d *Daemon) Reconciler() *schedule.Reconciler { return d.reconciler }
func (d *Daemon) Audio() *capture.Supervisor       { return d.audio }
func (d *Daemon) Video() *capture.Supervisor       { return d.video }
func (d *Daemon) Store() *schedule.Store           { return d.store }

// startHeartbeat launches the periodic status log line. The heartbeat is
// an observer only: session completion is signaled by the supervisors'
// monitor goroutines, never inferred from this loop.
func (d *Daemon) startHeartbeat() {
	interval := time.Duration(d.cfg.Scheduler.HeartbeatInterval) * time.Second
	if interval <= 0 {
		return
	}
	d.heartbeatStop = make(chan struct{})
	d.wg.Add(1)
	quit := d.heartbeatStop
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				d.logHeartbeat()
			}
		}
	}()
}

func (d *Daemon) stopHeartbeat() {
	if d.heartbeatStop != nil {
		close(d.heartbeatStop)
		d.heartbeatStop = nil
	}
	d.wg.Wait()
}

func (d *Daemon) logHeartbeat() {
	attrs := []logging.Attr{}
	for _, sup := range []*capture.Supervisor{d.audio, d.video} {
		status := sup.Status()
		if !status.Active {
			continue
		}
		attrs = append(attrs,
			logging.String(string(status.Class)+"_session", status.SessionID.String()),
			logging.Duration(string(status.Class)+"_remaining", status.Remaining),
		)
	}
	if len(attrs) == 0 {
		d.logger.Debug("heartbeat, idle")
		return
	}
	d.logger.Info("heartbeat", logging.Args(attrs...)...)
}
