package arm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

var (
	// ErrReadTimeout is returned when no response line arrives in time.
	ErrReadTimeout = errors.New("arm read timeout")
	// ErrNotReady is returned when the arm does not send its ready token.
	ErrNotReady = errors.New("arm not ready")
)

const maxLineLength = 512

// Link frames commands onto a byte stream and reads responses back in send
// order. The sequence id is advisory; the firmware echoes it but responses are
// never matched against it.
type Link struct {
	mu          sync.Mutex
	port        io.ReadWriter
	modulus     int
	seq         int
	readTimeout time.Duration
	pending     []byte
	logger      *slog.Logger
	now         func() time.Time
}

// NewLink wraps port. Sequence ids cycle through [1, modulus).
func NewLink(port io.ReadWriter, modulus int, readTimeout time.Duration, logger *slog.Logger) *Link {
	if modulus < 2 {
		modulus = 2
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Link{
		port:        port,
		modulus:     modulus,
		seq:         1,
		readTimeout: readTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Send writes one framed command and blocks for one response line. A missing
// response yields ErrReadTimeout.
func (l *Link) Send(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	frame := "#" + strconv.Itoa(l.nextSequence()) + " " + command
	l.logger.Debug("sending command", logging.String("frame", frame))
	if _, err := io.WriteString(l.port, frame+"\n"); err != nil {
		return "", services.Wrap(services.ErrProtocol, "arm", "send", frame, err)
	}
	resp, err := l.readLine(ctx)
	if err != nil {
		return "", err
	}
	l.logger.Debug("received response", logging.String("frame", frame), logging.String("response", resp))
	return resp, nil
}

// ReadLine reads one unsolicited line, such as the ready token after reset.
func (l *Link) ReadLine(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLine(ctx)
}

func (l *Link) nextSequence() int {
	id := l.seq
	l.seq++
	if l.seq >= l.modulus {
		l.seq = 1
	}
	return id
}

func (l *Link) readLine(ctx context.Context) (string, error) {
	deadline := l.now().Add(l.readTimeout)
	chunk := make([]byte, 64)
	for {
		if idx := bytes.IndexByte(l.pending, '\n'); idx >= 0 {
			line := string(l.pending[:idx])
			l.pending = append(l.pending[:0], l.pending[idx+1:]...)
			return strings.TrimRight(line, "\r"), nil
		}
		if len(l.pending) > maxLineLength {
			l.pending = l.pending[:0]
			return "", services.Wrap(services.ErrProtocol, "arm", "read", fmt.Sprintf("response exceeds %d bytes", maxLineLength), nil)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !l.now().Before(deadline) {
			return "", fmt.Errorf("%w after %s", ErrReadTimeout, l.readTimeout)
		}
		n, err := l.port.Read(chunk)
		if n > 0 {
			l.pending = append(l.pending, chunk[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: port closed", ErrReadTimeout)
			}
			return "", services.Wrap(services.ErrProtocol, "arm", "read", "serial read failed", err)
		}
	}
}
