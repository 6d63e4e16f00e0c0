package schedule

import (
	"log/slog"
	"sync"
	"time"

	"perch/internal/logging"
)

// TriggerScheduler arms one cancellable timer per registered job. Firing
// happens on the trigger's own goroutine; callbacks must therefore use the
// same persistence and locking primitives as API-driven mutations.
type TriggerScheduler struct {
	logger *slog.Logger

	mu       sync.Mutex
	triggers map[int64]*trigger
	closed   bool
	wg       sync.WaitGroup
}

type trigger struct {
	at     time.Time
	timer  *time.Timer
	cancel chan struct{}
}

// NewTriggerScheduler constructs an empty trigger registry.
func NewTriggerScheduler(logger *slog.Logger) *TriggerScheduler {
	return &TriggerScheduler{
		logger:   logging.NewComponentLogger(logger, "triggers"),
		triggers: make(map[int64]*trigger),
	}
}

// Register arms a trigger for jobID at the given time, replacing any
// existing registration. The callback receives the scheduled fire time.
func (ts *TriggerScheduler) Register(jobID int64, at time.Time, fire func(time.Time)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return
	}
	if existing, ok := ts.triggers[jobID]; ok {
		existing.stop()
		delete(ts.triggers, jobID)
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	tr := &trigger{
		at:     at,
		timer:  time.NewTimer(delay),
		cancel: make(chan struct{}),
	}
	ts.triggers[jobID] = tr

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		select {
		case <-tr.timer.C:
		case <-tr.cancel:
			return
		}

		ts.mu.Lock()
		// Deregister before firing so a recurring callback can re-arm.
		if current, ok := ts.triggers[jobID]; ok && current == tr {
			delete(ts.triggers, jobID)
		}
		closed := ts.closed
		ts.mu.Unlock()
		if closed {
			return
		}

		ts.logger.Debug("trigger fired",
			logging.Int64(logging.FieldJobID, jobID),
			logging.Time("scheduled_for", at),
		)
		// The callback gets its own goroutine, outside the waited
		// group: a fire can block for an entire capture, and Shutdown
		// must not stall behind it.
		go fire(at)
	}()
}

// Deregister cancels the trigger for jobID, reporting whether one was
// armed. Unknown IDs are tolerated: a trigger may already have fired.
func (ts *TriggerScheduler) Deregister(jobID int64) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	tr, ok := ts.triggers[jobID]
	if !ok {
		return false
	}
	tr.stop()
	delete(ts.triggers, jobID)
	return true
}

// NextFire returns the scheduled fire time for jobID, if armed.
func (ts *TriggerScheduler) NextFire(jobID int64) (time.Time, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	tr, ok := ts.triggers[jobID]
	if !ok {
		return time.Time{}, false
	}
	return tr.at, true
}

// Armed returns the number of registered triggers.
func (ts *TriggerScheduler) Armed() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.triggers)
}

// Shutdown cancels every trigger and waits for the timer goroutines.
// Callbacks already launched keep running on their own goroutines.
func (ts *TriggerScheduler) Shutdown() {
	ts.mu.Lock()
	ts.closed = true
	for id, tr := range ts.triggers {
		tr.stop()
		delete(ts.triggers, id)
	}
	ts.mu.Unlock()
	ts.wg.Wait()
}

func (tr *trigger) stop() {
	tr.timer.Stop()
	select {
	case <-tr.cancel:
	default:
		close(tr.cancel)
	}
}
