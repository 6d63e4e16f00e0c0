package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// CommandSpec describes a subprocess to launch.
type CommandSpec struct {
	Binary string
	Args   []string
	// WantStdin requests a stdin pipe so a graceful quit byte can be
	// written (ffmpeg finalizes streamed containers on 'q').
	WantStdin bool
	// OnStderrLine, when set, receives each stderr line as it arrives.
	// The tail is retained either way for failure diagnostics.
	OnStderrLine func(string)
}

// Handle exposes control over a launched subprocess.
type Handle interface {
	// PID returns the subprocess identifier.
	PID() int
	// Alive reports liveness without blocking.
	Alive() bool
	// Wait blocks until the subprocess exits and returns its exit error.
	// Safe to call from multiple goroutines.
	Wait() error
	// Done is closed when the subprocess has exited.
	Done() <-chan struct{}
	// Terminate sends the graceful termination signal.
	Terminate() error
	// Kill force-terminates the subprocess.
	Kill() error
	// WriteStdin writes to the subprocess stdin pipe.
	WriteStdin(data []byte) error
	// StderrTail returns the retained tail of stderr output.
	StderrTail() string
}

// Launcher starts capture subprocesses.
type Launcher interface {
	Launch(ctx context.Context, spec CommandSpec) (Handle, error)
}

// NewExecLauncher returns the production launcher backed by os/exec.
func NewExecLauncher() Launcher {
	return execLauncher{}
}

type execLauncher struct{}

const stderrTailLines = 40

func (execLauncher) Launch(ctx context.Context, spec CommandSpec) (Handle, error) {
	if strings.TrimSpace(spec.Binary) == "" {
		return nil, errors.New("binary required")
	}
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	// Detach from the controlling terminal's signal group so an
	// interactive ^C does not reach the capture subprocess.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdin io.WriteCloser
	if spec.WantStdin {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdin = pipe
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	handle := &execHandle{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	go handle.scanStderr(stderr, spec.OnStderrLine)
	go func() {
		handle.waitErr = cmd.Wait()
		close(handle.done)
	}()

	return handle, nil
}

type execHandle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	done    chan struct{}
	waitErr error

	mu   sync.Mutex
	tail []string
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *execHandle) Wait() error {
	<-h.done
	return h.waitErr
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}

func (h *execHandle) Terminate() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	if !h.Alive() {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	if !h.Alive() {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *execHandle) WriteStdin(data []byte) error {
	if h.stdin == nil {
		return errors.New("stdin not piped")
	}
	if _, err := h.stdin.Write(data); err != nil {
		return err
	}
	return nil
}

func (h *execHandle) StderrTail() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Join(h.tail, "\n")
}

func (h *execHandle) scanStderr(r io.Reader, forward func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		h.mu.Lock()
		h.tail = append(h.tail, line)
		if len(h.tail) > stderrTailLines {
			h.tail = h.tail[len(h.tail)-stderrTailLines:]
		}
		h.mu.Unlock()
		if forward != nil {
			forward(line)
		}
	}
}
