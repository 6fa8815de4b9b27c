package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"ripperbot/internal/config"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// Status describes the storage root at one point in time.
type Status struct {
	Root    string
	Exists  bool
	Mounted bool
	Ready   bool
}

// Mounter mounts device on target.
type Mounter func(ctx context.Context, device, target string) error

// Option customises a Manager.
type Option func(*Manager)

// WithLister replaces the lsblk-backed partition lister.
func WithLister(l Lister) Option {
	return func(m *Manager) { m.lister = l }
}

// WithMounter replaces the mount command.
func WithMounter(fn Mounter) Option {
	return func(m *Manager) { m.mounter = fn }
}

// WithMountCheck replaces the mountpoint test.
func WithMountCheck(fn func(string) (bool, error)) Option {
	return func(m *Manager) { m.isMountpoint = fn }
}

// WithMonitor wakes WaitReady on block device events.
func WithMonitor(mon *Monitor) Option {
	return func(m *Manager) { m.monitor = mon }
}

// Manager prepares the storage root.
type Manager struct {
	root         string
	requireMount bool
	autoMount    bool
	mountCommand []string
	delay        time.Duration
	lister       Lister
	mounter      Mounter
	isMountpoint func(string) (bool, error)
	monitor      *Monitor
	logger       *slog.Logger
}

// NewManager builds a storage manager from the storage section.
func NewManager(cfg *config.Config, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		root:         cfg.Storage.Root,
		requireMount: cfg.Storage.RequireMount,
		autoMount:    cfg.Storage.AutoMount,
		mountCommand: append([]string(nil), cfg.Storage.MountCommand...),
		delay:        config.Seconds(cfg.Storage.SearchDelay),
		lister:       ListPartitions,
		isMountpoint: IsMountpoint,
		logger:       logging.ForComponent(logger, cfg.Logging.ComponentLevels, "storage"),
	}
	m.mounter = m.runMount
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the storage root.
func (m *Manager) Root() string {
	return m.root
}

// Check inspects the storage root without changing anything.
func (m *Manager) Check() Status {
	st := Status{Root: m.root}
	info, err := os.Stat(m.root)
	if err != nil || !info.IsDir() {
		return st
	}
	st.Exists = true
	if mounted, err := m.isMountpoint(m.root); err == nil {
		st.Mounted = mounted
	}
	st.Ready = st.Mounted || !m.requireMount
	return st
}

// Prepare makes one attempt to get the storage root ready, mounting the first
// removable partition when allowed.
func (m *Manager) Prepare(ctx context.Context) (Status, error) {
	st := m.Check()
	if st.Ready || !m.autoMount {
		return st, nil
	}

	parts, err := m.lister(ctx)
	if err != nil {
		return st, services.Wrap(services.ErrExternalTool, "storage", "list partitions", "", err)
	}
	candidate, ok := FindCandidate(parts)
	if !ok {
		return st, nil
	}
	if candidate.Mountpoint != "" && candidate.Mountpoint != m.root {
		m.logger.Debug("candidate partition mounted elsewhere",
			logging.String("device", candidate.Path),
			logging.String("mountpoint", candidate.Mountpoint),
		)
	}
	if !st.Exists {
		if err := os.MkdirAll(m.root, 0o755); err != nil {
			m.logger.Debug("could not create storage root before mount", logging.Error(err))
		}
	}
	if err := m.mounter(ctx, candidate.Path, m.root); err != nil {
		return st, services.Wrap(services.ErrExternalTool, "storage", "mount", candidate.Path, err)
	}
	m.logger.Info("storage mounted",
		logging.String("device", candidate.Path),
		logging.String("label", candidate.Label),
		logging.String("fstype", candidate.FSType),
		logging.String("root", m.root),
	)
	return m.Check(), nil
}

// WaitReady blocks until the storage root is ready or ctx ends.
func (m *Manager) WaitReady(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		st, err := m.Prepare(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(m.logger, "storage preparation failed", "storage_prepare_failed",
				logging.Error(err),
				logging.Int("attempt", attempt),
				logging.String(logging.FieldErrorHint, "plug in a formatted removable drive or fix storage.mount_command"),
			)
		} else if st.Ready {
			m.logger.Info("storage ready", logging.String("root", st.Root), logging.Bool("mounted", st.Mounted))
			return nil
		} else if attempt == 1 {
			m.logger.Info("waiting for storage",
				logging.String("root", st.Root),
				logging.Bool("exists", st.Exists),
				logging.Duration("poll", m.delay),
			)
		}

		timer := time.NewTimer(m.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case dev := <-m.monitor.Events():
			timer.Stop()
			m.logger.Debug("woken by block device event", logging.String("device", dev))
		case <-timer.C:
		}
	}
}

func (m *Manager) runMount(ctx context.Context, device, target string) error {
	if len(m.mountCommand) == 0 {
		return errors.New("storage.mount_command is empty")
	}
	args := append(append([]string(nil), m.mountCommand[1:]...), device, target)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.mountCommand[0], args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return err
	}
	return nil
}
