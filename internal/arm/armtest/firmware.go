// Package armtest provides an in-memory stand-in for the arm firmware so
// packages built on arm.Arm can be tested without hardware.
package armtest

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"ripperbot/internal/arm"
)

// Responder answers one command (without its "#<seq> " prefix). Returning
// ok=false sends nothing back, which the link sees as a read timeout.
type Responder func(command string) (reply string, ok bool)

// Firmware is a scripted arm controller speaking the line protocol.
type Firmware struct {
	mu       sync.Mutex
	respond  Responder
	ready    string
	out      bytes.Buffer
	frames   []string
	commands []string
	opens    int
	closed   bool
}

// NewFirmware returns firmware that answers every command with DefaultReply.
func NewFirmware() *Firmware {
	return &Firmware{ready: "@1"}
}

// SetResponder installs a custom responder. Unhandled commands should fall
// back to DefaultReply.
func (f *Firmware) SetResponder(r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = r
}

// SetReady changes the token sent when the port is opened.
func (f *Firmware) SetReady(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = token
}

// Open behaves like arm.PortOpener.
func (f *Firmware) Open(string, int) (io.ReadWriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out.Reset()
	f.closed = false
	f.opens++
	if f.ready != "" {
		f.out.WriteString(f.ready + "\n")
	}
	return f, nil
}

// Opener returns Open as an arm.PortOpener.
func (f *Firmware) Opener() arm.PortOpener {
	return f.Open
}

// Write consumes one or more framed commands.
func (f *Firmware) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	for _, frame := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if frame == "" {
			continue
		}
		f.frames = append(f.frames, frame)
		seq, command, _ := strings.Cut(frame, " ")
		f.commands = append(f.commands, command)
		responder := f.respond
		if responder == nil {
			responder = DefaultReply
		}
		reply, ok := responder(command)
		if !ok {
			continue
		}
		f.out.WriteString("$" + strings.TrimPrefix(seq, "#") + " " + reply + "\n")
	}
	return len(p), nil
}

// Read returns pending response bytes. An empty buffer reads as (0, nil),
// the same as a serial port read timing out.
func (f *Firmware) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.EOF
	}
	if f.out.Len() == 0 {
		return 0, nil
	}
	return f.out.Read(p)
}

// Close marks the port closed.
func (f *Firmware) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Frames returns every framed command received, including sequence ids.
func (f *Firmware) Frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

// Commands returns every command received without its sequence prefix.
func (f *Firmware) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Opens returns how many times the port was opened.
func (f *Firmware) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Reset forgets recorded commands.
func (f *Firmware) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
	f.commands = nil
}

// DefaultReply answers like an idle arm: not moving, switch released,
// analog inputs at zero.
func DefaultReply(command string) (string, bool) {
	op, _, _ := strings.Cut(command, " ")
	switch op {
	case "P201":
		return "ok uArm", true
	case "P202":
		return "ok 3.2", true
	case "P203":
		return "ok 4.1.0", true
	case "P204":
		return "ok 4.0.1", true
	case "P205":
		return "ok 0A1B2C3D", true
	case "M200":
		return "ok V0", true
	case "P233":
		return "ok V1", true
	case "P241":
		return "OK V0", true
	case "P220":
		return "OK X0 Y150 Z100", true
	default:
		return "ok", true
	}
}
