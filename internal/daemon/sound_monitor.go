package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"perch/internal/logging"
)

// soundMonitor listens for udev netlink events on the sound subsystem
// and logs attach/detach of audio interfaces. On an unattended host the
// capture card is on USB and can drop; the log trail is how a silent
// WAV gets explained after the fact.
type soundMonitor struct {
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newSoundMonitor(logger *slog.Logger) *soundMonitor {
	return &soundMonitor{logger: logging.NewComponentLogger(logger, "sound-monitor")}
}

// Start begins listening for sound-card hotplug events. Connection
// failure is non-fatal: capture still works, hotplug just goes
// unlogged.
func (m *soundMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket, sound-card hotplug events unavailable",
			logging.Error(err))
		return
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("sound-card monitor started")
}

// Stop shuts the monitor down.
func (m *soundMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.logger.Info("sound-card monitor stopped")
}

// Running reports whether the monitor is active.
func (m *soundMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *soundMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, soundMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error", logging.Error(err))
		}
	}
}

// soundMatcher matches SUBSYSTEM=sound, ACTION=add|remove.
func soundMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

func (m *soundMonitor) handleEvent(uevent netlink.UEvent) {
	name := uevent.Env["DEVNAME"]
	if name == "" {
		name = uevent.KObj
	}
	switch uevent.Action {
	case "add":
		m.logger.Info("audio device attached", logging.String("device", name))
	case "remove":
		m.logger.Warn("audio device detached", logging.String("device", name))
	default:
		m.logger.Debug("sound event",
			logging.String("action", string(uevent.Action)),
			logging.String("device", name),
		)
	}
}
