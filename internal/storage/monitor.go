package storage

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"ripperbot/internal/logging"
)

// Monitor listens for udev block partition events so storage waits can wake
// as soon as a drive is plugged in instead of at the next poll.
type Monitor struct {
	logger *slog.Logger
	events chan string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates an unstarted monitor.
func NewMonitor(logger *slog.Logger) *Monitor {
	return &Monitor{
		logger: logging.NewComponentLogger(logger, "storage-monitor"),
		events: make(chan string, 1),
	}
}

// Events delivers device names of added or changed partitions. Bursts are
// coalesced; a pending notification is never blocked on.
func (m *Monitor) Events() <-chan string {
	if m == nil {
		return nil
	}
	return m.events
}

// Start begins listening for udev netlink events. Failing to open the socket
// is logged and otherwise ignored; polling still works.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; storage detection will poll", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "storage detection waits for the next poll"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

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

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
			)
		}
	}
}

// buildMatcher matches partition add/change events on the block subsystem.
func buildMatcher() netlink.Matcher {
	action := "add|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		return
	}
	m.logger.Debug("block partition event",
		logging.String("device", devname),
		logging.String("action", string(uevent.Action)),
	)
	m.notify(devname)
}

func (m *Monitor) notify(devname string) {
	select {
	case m.events <- devname:
	default:
	}
}

func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
