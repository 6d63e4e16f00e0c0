// Package capture supervises the ffmpeg subprocesses that perform audio
// and video recording.
//
// One Supervisor exists per resource class (audio, video), each guarding
// its session state with its own mutex: at most one capture per class may
// be active at any instant, enforced at the lock rather than advisory. A
// monitor goroutine per session is the only writer of terminal state;
// Start, Stop, and Status reconcile against real subprocess liveness
// before trusting any cached belief.
//
// The Launcher interface isolates subprocess mechanics so tests can
// substitute fakes for ffmpeg.
package capture
