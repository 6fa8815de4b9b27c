package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"ripperbot/internal/arm"
	"ripperbot/internal/calibration"
	"ripperbot/internal/history"
	"ripperbot/internal/pickup"
	"ripperbot/internal/sensor"
)

// trace is the shared ordered record of hardware calls.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

func (t *trace) count(event string) int {
	n := 0
	for _, e := range t.list() {
		if e == event {
			n++
		}
	}
	return n
}

func (t *trace) last() string {
	events := t.list()
	if len(events) == 0 {
		return ""
	}
	return events[len(events)-1]
}

func moveEvent(p arm.Position) string {
	return fmt.Sprintf("move %g,%g,%g", p.X, p.Y, p.Z)
}

type fakeMotion struct {
	tr *trace
}

func (m *fakeMotion) MoveAndWait(_ context.Context, p arm.Position) error {
	m.tr.add("%s", moveEvent(p))
	return nil
}

func (m *fakeMotion) Origin(context.Context) error {
	m.tr.add("origin")
	return nil
}

func (m *fakeMotion) Pump(_ context.Context, on bool) error {
	if on {
		m.tr.add("pump on")
	} else {
		m.tr.add("pump off")
	}
	return nil
}

// fakeProber answers pickups from outcomes in order; Picked once exhausted.
type fakeProber struct {
	tr       *trace
	outcomes []pickup.Outcome
	calls    int
}

func (p *fakeProber) Pickup(_ context.Context, target arm.Position, zMin float64) (pickup.Result, error) {
	p.tr.add("pickup %g,%g z_min %g", target.X, target.Y, zMin)
	outcome := pickup.Picked
	if p.calls < len(p.outcomes) {
		outcome = p.outcomes[p.calls]
	}
	p.calls++
	res := pickup.Result{Outcome: outcome, Position: arm.WithZ(target, zMin), Iterations: 5}
	switch outcome {
	case pickup.Picked:
		res.LastSwitch = arm.Value(true)
	case pickup.NotFound:
		res.LastSwitch = arm.Value(false)
	default:
		res.LastSwitch = arm.Unreadable[bool]("garbage")
	}
	return res, nil
}

// fakeSensor reports a disc on every call until limit is reached, then
// cancels the run.
type fakeSensor struct {
	limit  int
	calls  int
	cancel context.CancelFunc
}

func (s *fakeSensor) WaitForDisc(ctx context.Context) (sensor.Measurement, error) {
	s.calls++
	if s.limit > 0 && s.calls > s.limit {
		s.cancel()
		return sensor.Measurement{}, ctx.Err()
	}
	return sensor.Measurement{Present: true, Signal: 0.4}, nil
}

type fakeHardware struct {
	motion *fakeMotion
	prober *fakeProber
	sensor *fakeSensor
}

func (h *fakeHardware) Motion() Motion     { return h.motion }
func (h *fakeHardware) Sensor() DiscSensor { return h.sensor }
func (h *fakeHardware) Prober() Prober     { return h.prober }

// fakeDrive fails operations according to its funcs, which receive the
// 1-based call count for that operation.
type fakeDrive struct {
	tr       *trace
	openErr  func(n int) error
	closeErr func(n int) error
	imageErr error
	opens    int
	closes   int
	images   int
}

func (d *fakeDrive) OpenTray(context.Context) error {
	d.opens++
	d.tr.add("open tray")
	if d.openErr != nil {
		return d.openErr(d.opens)
	}
	return nil
}

func (d *fakeDrive) CloseTray(context.Context) error {
	d.closes++
	d.tr.add("close tray")
	if d.closeErr != nil {
		return d.closeErr(d.closes)
	}
	return nil
}

func (d *fakeDrive) Image(_ context.Context, root, id string) error {
	d.images++
	d.tr.add("image %s", id)
	return d.imageErr
}

func always(err error) func(int) error {
	return func(int) error { return err }
}

type fakeCamera struct {
	dir   string
	err   error
	photo image.Image
	shots []string
}

func (c *fakeCamera) Acquire(context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	path := filepath.Join(c.dir, fmt.Sprintf("photo-%d.jpg", len(c.shots)))
	if c.photo != nil {
		if err := imaging.Save(c.photo, path); err != nil {
			return "", err
		}
	} else if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		return "", err
	}
	c.shots = append(c.shots, path)
	return path, nil
}

type fakeCover struct {
	err     error
	markers []calibration.Markers
}

func (c *fakeCover) WriteFromFile(_ context.Context, dir, photo string, markers calibration.Markers) (string, error) {
	c.markers = append(c.markers, markers)
	if c.err != nil {
		return "", c.err
	}
	if _, err := os.Stat(photo); err != nil {
		return "", err
	}
	return filepath.Join(dir, "cover.png"), nil
}

type fakeStatus struct {
	labels []string
}

func (s *fakeStatus) Show(label string) { s.labels = append(s.labels, label) }

func (s *fakeStatus) shown(label string) bool {
	for _, l := range s.labels {
		if l == label {
			return true
		}
	}
	return false
}

type fakeRecorder struct {
	begun    []string
	states   []string
	outcomes map[string]history.Outcome
}

func (r *fakeRecorder) Begin(_ context.Context, id, _ string, _ time.Time) error {
	r.begun = append(r.begun, id)
	return nil
}

func (r *fakeRecorder) UpdateState(_ context.Context, _ string, state string) error {
	r.states = append(r.states, state)
	return nil
}

func (r *fakeRecorder) Finish(_ context.Context, id string, out history.Outcome) error {
	if r.outcomes == nil {
		r.outcomes = map[string]history.Outcome{}
	}
	r.outcomes[id] = out
	return nil
}

type fakeCalibrator struct {
	failures int
	err      error
	calls    int
	markers  calibration.Markers
}

func (c *fakeCalibrator) Calibrate(context.Context) (calibration.Markers, error) {
	c.calls++
	if c.calls <= c.failures {
		if c.err != nil {
			return calibration.Markers{}, c.err
		}
		return calibration.Markers{}, errors.New("markers not visible")
	}
	return c.markers, nil
}

type fakeNotifier struct {
	sorted []string
	fatal  []error
}

func (n *fakeNotifier) NotifySorted(_ context.Context, id, tray string, _ []string) error {
	n.sorted = append(n.sorted, id+":"+tray)
	return nil
}

func (n *fakeNotifier) NotifyFatal(_ context.Context, err error, _ string) error {
	n.fatal = append(n.fatal, err)
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }
