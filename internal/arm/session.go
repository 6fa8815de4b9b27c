package arm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gofrs/flock"

	"ripperbot/internal/config"
	"ripperbot/internal/logging"
)

// ErrPortBusy is returned when another process owns the arm.
var ErrPortBusy = errors.New("arm serial port is owned by another process")

// Session is exclusive ownership of the arm: the open port plus a file lock
// other ripperbot processes honour. Ownership can be handed to a worker
// process with Release and must be taken back with Reacquire.
type Session struct {
	cfg      *config.Config
	device   string
	logger   *slog.Logger
	opener   PortOpener
	armOpts  []Option
	lock     *flock.Flock
	port     io.ReadWriteCloser
	arm      *Arm
	identity Identity
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithPortOpener replaces the serial port opener.
func WithPortOpener(opener PortOpener) SessionOption {
	return func(s *Session) {
		if opener != nil {
			s.opener = opener
		}
	}
}

// WithArmOptions forwards options to every Arm the session builds.
func WithArmOptions(opts ...Option) SessionOption {
	return func(s *Session) {
		s.armOpts = append(s.armOpts, opts...)
	}
}

// OpenSession locks, opens and connects to the arm on device.
func OpenSession(ctx context.Context, cfg *config.Config, device string, logger *slog.Logger, opts ...SessionOption) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		device: device,
		logger: logging.LevelFor(logging.NewComponentLogger(logger, "arm-session"), cfg.Logging.ComponentLevels, "arm"),
		opener: OpenSerial,
		lock:   flock.New(cfg.ArmLockPath()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Arm returns the connected arm. It is nil while the session is released.
func (s *Session) Arm() *Arm {
	return s.arm
}

// Device returns the serial device path.
func (s *Session) Device() string {
	return s.device
}

// Identity returns the probe answers from the last connect.
func (s *Session) Identity() Identity {
	return s.identity
}

// Held reports whether this process currently owns the arm.
func (s *Session) Held() bool {
	return s.port != nil
}

// Release closes the port and drops the lock so another process can drive
// the arm. The Arm returned earlier must not be used afterwards.
func (s *Session) Release() error {
	if s.port == nil {
		return nil
	}
	closeErr := s.port.Close()
	s.port = nil
	s.arm = nil
	unlockErr := s.lock.Unlock()
	s.logger.Info("released arm", logging.String("device", s.device))
	return errors.Join(closeErr, unlockErr)
}

// Reacquire reopens the port, reconnects and re-homes the arm.
func (s *Session) Reacquire(ctx context.Context) error {
	if s.port != nil {
		return fmt.Errorf("reacquire %s: session already holds the arm", s.device)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	s.logger.Info("reacquired arm", logging.String("device", s.device))
	return nil
}

// Close releases the arm.
func (s *Session) Close() error {
	return s.Release()
}

func (s *Session) acquire(ctx context.Context) error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w (lock %s)", ErrPortBusy, s.lock.Path())
	}
	port, err := s.opener(s.device, s.cfg.Arm.BaudRate)
	if err != nil {
		s.lock.Unlock()
		return err
	}
	link := NewLink(port, s.cfg.Arm.SequenceModulus, config.Seconds(s.cfg.Arm.ReadTimeout), logging.NewComponentLogger(s.logger, "arm-link"))
	a := New(link, s.cfg, s.logger, s.armOpts...)
	identity, err := a.Connect(ctx)
	if err != nil {
		port.Close()
		s.lock.Unlock()
		return fmt.Errorf("connect to arm on %s: %w", s.device, err)
	}
	s.port = port
	s.arm = a
	s.identity = identity
	return nil
}

// Discover opens a session on the configured device, or probes every
// candidate serial port for the ready token when none is configured. It
// retries every arm.port_search_delay seconds until an arm answers or ctx ends.
func Discover(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...SessionOption) (*Session, error) {
	log := logging.LevelFor(logging.NewComponentLogger(logger, "arm-discovery"), cfg.Logging.ComponentLevels, "arm")
	for {
		devices := []string{cfg.Arm.Device}
		if cfg.Arm.Device == "" {
			ports, err := ListPorts()
			if err != nil {
				log.Warn("serial port enumeration failed", logging.Error(err))
			}
			devices = CandidatePorts(ports)
		}
		for _, device := range devices {
			log.Debug("probing for arm", logging.String("device", device))
			session, err := OpenSession(ctx, cfg, device, logger, opts...)
			if err == nil {
				log.Info("detected arm", logging.String("device", device))
				return session, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrPortBusy) {
				return nil, err
			}
			log.Debug("no arm on port", logging.String("device", device), logging.Error(err))
		}
		log.Info("no arm detected on any serial port, retrying",
			logging.Int("ports_probed", len(devices)),
			logging.Duration("delay", config.Seconds(cfg.Arm.PortSearchDelay)),
		)
		if err := Sleep(ctx, config.Seconds(cfg.Arm.PortSearchDelay)); err != nil {
			return nil, err
		}
	}
}
