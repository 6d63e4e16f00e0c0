package capture

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"perch/internal/admission"
	"perch/internal/config"
	"perch/internal/faults"
	"perch/internal/logging"
)

// Class names a capture resource. Each class has exactly one supervisor
// and at most one running session.
type Class string

const (
	ClassAudio Class = "audio"
	ClassVideo Class = "video"
)

// minArtifactBytes is the size below which a finished artifact is
// suspicious: a WAV or MP4 smaller than this holds headers and nothing
// else.
const minArtifactBytes = 1024

// Request asks a supervisor to start a capture session.
type Request struct {
	DurationSeconds int
	AllowOverride   bool
	// JobID and JobName identify the scheduled job that requested the
	// session; both are zero for manual captures.
	JobID   int64
	JobName string
}

// StartInfo reports a successfully launched session.
type StartInfo struct {
	SessionID       uuid.UUID
	PID             int
	StartedAt       time.Time
	DurationSeconds int
	OutputFiles     []string
}

// Outcome is the terminal result of a session, produced exactly once by
// the monitor goroutine.
type Outcome struct {
	SessionID   uuid.UUID
	Class       Class
	StartedAt   time.Time
	EndedAt     time.Time
	OutputFiles []string
	Err         error
}

// Succeeded reports whether the session closed with verified artifacts.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Status is a point-in-time snapshot of a supervisor.
type Status struct {
	Class           Class
	Active          bool
	SessionID       uuid.UUID
	PID             int
	StartedAt       time.Time
	DurationSeconds int
	Elapsed         time.Duration
	Remaining       time.Duration
	OutputFiles     []string
	JobID           int64
	JobName         string
}

type session struct {
	id        uuid.UUID
	startedAt time.Time
	req       Request
	plan      *plan
	handle    Handle

	// outcome is written by the monitor goroutine before done is
	// closed; readers must wait on done first.
	outcome Outcome
	done    chan struct{}
}

// Supervisor owns one capture resource class. All session state lives
// behind its mutex; the monitor goroutine is the only writer of a
// session's terminal state.
type Supervisor struct {
	class       Class
	cfg         *config.Config
	planner     planner
	launcher    Launcher
	logger      *slog.Logger
	stopTimeout time.Duration

	mu          sync.Mutex
	session     *session
	lastOutcome *Outcome

	// onOutcome, when set, is invoked after every session closes. Used
	// by the schedule engine to record job completion.
	onOutcome func(Outcome)
	// postProcess, when set, runs asynchronously on the artifacts of a
	// successful session. The video supervisor hangs transcoding here.
	postProcess func(outputs []string)
}

// NewAudioSupervisor builds the supervisor for the ALSA dual-mono
// capture resource.
func NewAudioSupervisor(cfg *config.Config, source ConfigSource, launcher Launcher, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		class:       ClassAudio,
		cfg:         cfg,
		planner:     &audioPlanner{cfg: cfg, source: source},
		launcher:    launcher,
		logger:      logging.NewComponentLogger(logger, "audio-supervisor"),
		stopTimeout: time.Duration(cfg.Audio.StopTimeoutSeconds) * time.Second,
	}
}

// NewVideoSupervisor builds the supervisor for the RTSP camera capture
// resource.
func NewVideoSupervisor(cfg *config.Config, source ConfigSource, launcher Launcher, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		class:       ClassVideo,
		cfg:         cfg,
		planner:     &videoPlanner{cfg: cfg, source: source},
		launcher:    launcher,
		logger:      logging.NewComponentLogger(logger, "video-supervisor"),
		stopTimeout: time.Duration(cfg.Video.StopTimeoutSeconds) * time.Second,
	}
}

// Class returns the resource class this supervisor owns.
func (s *Supervisor) Class() Class { return s.class }

// SetOutcomeObserver registers a callback invoked after each session
// closes. Must be called before the first Start.
func (s *Supervisor) SetOutcomeObserver(fn func(Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOutcome = fn
}

// SetPostProcessor registers a hook run asynchronously on the artifacts
// of each successful session. Must be called before the first Start.
func (s *Supervisor) SetPostProcessor(fn func(outputs []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postProcess = fn
}

// Start validates the request, runs admission checks, launches the
// capture subprocess, and hands it to a monitor goroutine. It returns
// a conflict error when a session is already running.
func (s *Supervisor) Start(ctx context.Context, req Request) (*StartInfo, error) {
	if err := s.awaitIdle(ctx); err != nil {
		return nil, err
	}

	duration, err := admission.ValidateDuration(req.DurationSeconds, req.AllowOverride)
	if err != nil {
		return nil, err
	}
	req.DurationSeconds = duration

	p, err := s.planner.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.targetDir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrProcess, string(s.class), "start", "create output directory", err)
	}
	if err := admission.RequireDiskSpace(p.forecastBytes, p.targetDir); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return nil, s.conflictError()
	}

	handle, err := s.launcher.Launch(ctx, p.spec)
	if err != nil {
		return nil, faults.Wrap(faults.ErrProcess, string(s.class), "start", "launch capture process", err)
	}

	sess := &session{
		id:        uuid.New(),
		startedAt: time.Now(),
		req:       req,
		plan:      p,
		handle:    handle,
		done:      make(chan struct{}),
	}
	s.session = sess
	go s.monitor(sess)

	s.logger.Info("capture started",
		logging.String(logging.FieldResource, string(s.class)),
		logging.String(logging.FieldSessionID, sess.id.String()),
		logging.Int("pid", handle.PID()),
		logging.Int("duration_seconds", req.DurationSeconds),
		logging.String("outputs", strings.Join(p.outputs, ", ")),
	)

	return &StartInfo{
		SessionID:       sess.id,
		PID:             handle.PID(),
		StartedAt:       sess.startedAt,
		DurationSeconds: req.DurationSeconds,
		OutputFiles:     append([]string(nil), p.outputs...),
	}, nil
}

// Stop ends the running session: graceful first (quit byte on stdin for
// containers that need finalizing, SIGTERM otherwise), force kill after
// the grace period. Stopping an idle supervisor is rejected with
// ErrNotFound. After Stop returns the supervisor is idle.
func (s *Supervisor) Stop(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return nil, faults.Wrap(faults.ErrNotFound, string(s.class), "stop",
			"no active capture session", nil)
	}

	s.logger.Info("stopping capture",
		logging.String(logging.FieldResource, string(s.class)),
		logging.String(logging.FieldSessionID, sess.id.String()),
	)

	if len(sess.plan.quitBytes) > 0 {
		if err := sess.handle.WriteStdin(sess.plan.quitBytes); err == nil {
			if s.awaitDone(ctx, sess, s.stopTimeout) {
				return s.finished(sess), nil
			}
		}
	}

	if err := sess.handle.Terminate(); err != nil {
		s.logger.Warn("terminate signal failed", logging.Error(err))
	}
	if s.awaitDone(ctx, sess, s.stopTimeout) {
		return s.finished(sess), nil
	}

	s.logger.Warn("capture did not stop gracefully, killing",
		logging.String(logging.FieldSessionID, sess.id.String()),
	)
	if err := sess.handle.Kill(); err != nil {
		s.logger.Warn("kill failed", logging.Error(err))
	}
	<-sess.done
	return s.finished(sess), nil
}

// Status reports the current session, reconciling against actual
// process liveness so a crashed subprocess never reads as active.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess == nil || !sess.handle.Alive() {
		return Status{Class: s.class}
	}

	elapsed := time.Since(sess.startedAt)
	remaining := time.Duration(sess.req.DurationSeconds)*time.Second - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Class:           s.class,
		Active:          true,
		SessionID:       sess.id,
		PID:             sess.handle.PID(),
		StartedAt:       sess.startedAt,
		DurationSeconds: sess.req.DurationSeconds,
		Elapsed:         elapsed,
		Remaining:       remaining,
		OutputFiles:     append([]string(nil), sess.plan.outputs...),
		JobID:           sess.req.JobID,
		JobName:         sess.req.JobName,
	}
}

// Wait blocks until the current session closes and returns its outcome.
// When idle it returns the outcome of the most recently finished
// session, or nil if none has run. The fallback closes the race where a
// short session finishes between the caller's Start and Wait.
func (s *Supervisor) Wait(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	sess := s.session
	last := s.lastOutcome
	s.mu.Unlock()
	if sess == nil {
		if last == nil {
			return nil, nil
		}
		outcome := *last
		return &outcome, nil
	}
	select {
	case <-sess.done:
		return s.finished(sess), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// monitor waits for the subprocess to exit, verifies the artifacts, and
// publishes the session outcome. It is the sole writer of terminal
// session state: it clears the supervisor's session slot before closing
// the done channel.
func (s *Supervisor) monitor(sess *session) {
	waitErr := sess.handle.Wait()
	endedAt := time.Now()

	outputs, verifyErr := s.verifyArtifacts(sess.plan.outputs)

	outcome := Outcome{
		SessionID:   sess.id,
		Class:       s.class,
		StartedAt:   sess.startedAt,
		EndedAt:     endedAt,
		OutputFiles: outputs,
	}
	switch {
	case waitErr != nil && len(outputs) == 0:
		outcome.Err = faults.Wrap(faults.ErrProcess, string(s.class), "capture",
			tailMessage(sess.handle.StderrTail()), waitErr)
	case waitErr != nil:
		// Interrupted captures keep whatever was written. A nonzero
		// ffmpeg exit with intact artifacts is a stopped session, not
		// a failed one.
		s.logger.Info("capture interrupted, artifacts retained",
			logging.String(logging.FieldSessionID, sess.id.String()),
			logging.Error(waitErr),
		)
	case verifyErr != nil:
		outcome.Err = verifyErr
	}

	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	observer := s.onOutcome
	postProcess := s.postProcess
	sess.outcome = outcome
	s.lastOutcome = &outcome
	s.mu.Unlock()
	close(sess.done)

	if outcome.Err != nil {
		s.logger.Error("capture failed",
			logging.String(logging.FieldResource, string(s.class)),
			logging.String(logging.FieldSessionID, sess.id.String()),
			logging.Error(outcome.Err),
		)
	} else {
		s.logger.Info("capture finished",
			logging.String(logging.FieldResource, string(s.class)),
			logging.String(logging.FieldSessionID, sess.id.String()),
			logging.Duration("elapsed", endedAt.Sub(sess.startedAt)),
			logging.Int("artifacts", len(outputs)),
		)
		if postProcess != nil {
			go postProcess(outputs)
		}
	}

	if observer != nil {
		observer(outcome)
	}
}

// verifyArtifacts returns the outputs that actually exist on disk. A
// session with no surviving artifacts is a failure; undersized files
// are kept but logged.
func (s *Supervisor) verifyArtifacts(expected []string) ([]string, error) {
	var present []string
	for _, path := range expected {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() < minArtifactBytes {
			s.logger.Warn("artifact suspiciously small",
				logging.String("path", path),
				logging.Int64("bytes", info.Size()),
			)
		}
		present = append(present, path)
	}
	if len(present) == 0 {
		return nil, faults.Wrap(faults.ErrProcess, string(s.class), "verify", "no output artifacts were produced", nil)
	}
	return present, nil
}

// awaitIdle resolves the race between a just-exited subprocess and its
// monitor goroutine: a dead session is given a moment to finish closing
// before Start reports a conflict.
func (s *Supervisor) awaitIdle(ctx context.Context) error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	if sess.handle.Alive() {
		return s.conflictError()
	}
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return s.conflictError()
	}
}

func (s *Supervisor) awaitDone(ctx context.Context, sess *session, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-sess.done:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

func (s *Supervisor) finished(sess *session) *Outcome {
	<-sess.done
	outcome := sess.outcome
	return &outcome
}

func (s *Supervisor) conflictError() error {
	return faults.Wrap(faults.ErrConflict, string(s.class), "start",
		"a capture session is already in progress", nil)
}

func tailMessage(tail string) string {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return "capture process exited with an error"
	}
	lines := strings.Split(tail, "\n")
	return "capture process exited with an error: " + strings.TrimSpace(lines[len(lines)-1])
}

// sanitizeFileName strips characters that would break a filename built
// from a user-supplied label.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "-")
	cleaned := replacer.Replace(name)
	if cleaned == "" {
		return "source"
	}
	return cleaned
}
