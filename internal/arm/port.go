package arm

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// portPollTimeout bounds a single blocking read so Link can notice
// cancellation and its own deadline between reads.
const portPollTimeout = 500 * time.Millisecond

// PortOpener opens the byte stream to the arm.
type PortOpener func(device string, baudRate int) (io.ReadWriteCloser, error)

// OpenSerial opens device as an 8N1 serial port.
func OpenSerial(device string, baudRate int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	if err := port.SetReadTimeout(portPollTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	return port, nil
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// ListPorts enumerates serial ports, USB adapters first.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].IsUSB != ports[j].IsUSB {
			return ports[i].IsUSB
		}
		return ports[i].Name < ports[j].Name
	})
	return ports, nil
}

// CandidatePorts filters ports down to the ones an arm can sit behind.
func CandidatePorts(ports []PortInfo) []string {
	var out []string
	for _, p := range ports {
		if p.IsUSB || isCandidateName(p.Name) {
			out = append(out, p.Name)
		}
	}
	return out
}

func isCandidateName(name string) bool {
	for _, prefix := range []string{"/dev/ttyUSB", "/dev/ttyACM", "/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial", "COM"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
