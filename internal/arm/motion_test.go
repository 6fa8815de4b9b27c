package arm_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"ripperbot/internal/arm"
	"ripperbot/internal/arm/armtest"
	"ripperbot/internal/config"
	"ripperbot/internal/logging"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Arm.ReadTimeout = 0.05
	return &cfg
}

func noSleep(context.Context, time.Duration) error { return nil }

// newResetArm opens the firmware as if it had just reset, with the ready
// token still pending on the port.
func newResetArm(t *testing.T, fw *armtest.Firmware) (*arm.Arm, *arm.Link) {
	t.Helper()
	cfg := newTestConfig(t)
	port, err := fw.Open("", 0)
	if err != nil {
		t.Fatalf("open firmware: %v", err)
	}
	link := arm.NewLink(port, cfg.Arm.SequenceModulus, config.Seconds(cfg.Arm.ReadTimeout), nil)
	return arm.New(link, cfg, nil, arm.WithSleeper(noSleep)), link
}

// newArm returns an arm whose ready token has already been consumed, so
// every following read is a command response.
func newArm(t *testing.T, fw *armtest.Firmware) *arm.Arm {
	t.Helper()
	a, link := newResetArm(t, fw)
	line, err := link.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("read ready token: %v", err)
	}
	if line != "@1" {
		t.Fatalf("ready token = %q, want @1", line)
	}
	return a
}

func TestConnectProbesThenHomes(t *testing.T) {
	fw := armtest.NewFirmware()
	a, _ := newResetArm(t, fw)

	id, err := a.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	want := arm.Identity{DeviceName: "uArm", Hardware: "3.2", Software: "4.1.0", API: "4.0.1", UID: "0A1B2C3D"}
	if id != want {
		t.Fatalf("identity = %+v, want %+v", id, want)
	}

	wantFrames := []string{
		"#1 P201", "#2 P202", "#3 P203", "#4 P204", "#5 P205",
		"#6 M231 V0",
		"#7 M232 V0",
		"#8 G0 X0 Y150 Z100 F0",
		"#9 G202 N3 V90",
		"#10 G0 X0 Y150 Z100 F0",
	}
	if got := fw.Frames(); !reflect.DeepEqual(got, wantFrames) {
		t.Fatalf("frames = %v, want %v", got, wantFrames)
	}
}

func TestConnectRejectsWrongReadyToken(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetReady("@5")
	a, _ := newResetArm(t, fw)

	_, err := a.Connect(context.Background())
	if !errors.Is(err, arm.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if len(fw.Frames()) != 0 {
		t.Fatalf("no probes expected after failed handshake, got %v", fw.Frames())
	}
}

func TestConnectWithoutReadyTokenIsNotReady(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetReady("")
	a, _ := newResetArm(t, fw)

	if _, err := a.Connect(context.Background()); !errors.Is(err, arm.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestProbeToleratesMalformedResponses(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetResponder(func(cmd string) (string, bool) {
		if cmd == "P203" {
			return "", true
		}
		if cmd == "P205" {
			return "", false
		}
		return armtest.DefaultReply(cmd)
	})
	a := newArm(t, fw)

	id, err := a.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if id.Software != "" || id.UID != "" {
		t.Fatalf("expected unparsed fields to stay empty, got %+v", id)
	}
	if id.DeviceName != "uArm" || id.API != "4.0.1" {
		t.Fatalf("expected parsed fields, got %+v", id)
	}
}

func TestResponsesFollowReadyToken(t *testing.T) {
	fw := armtest.NewFirmware()
	a := newArm(t, fw)

	moving, err := a.Moving(context.Background())
	if err != nil {
		t.Fatalf("Moving: %v", err)
	}
	if v, ok := moving.Get(); !ok || v {
		t.Fatalf("expected idle arm, got %v (raw %q)", moving, moving.Raw())
	}
	if strings.Contains(moving.Raw(), "@") {
		t.Fatalf("ready token leaked into a response: %q", moving.Raw())
	}
}

func TestMoveCommandsFormatting(t *testing.T) {
	fw := armtest.NewFirmware()
	a := newArm(t, fw)
	ctx := context.Background()

	if err := a.MoveAbs(ctx, arm.Position{X: -99, Y: 79, Z: 99.5}, 100); err != nil {
		t.Fatalf("MoveAbs: %v", err)
	}
	if err := a.MoveRel(ctx, arm.Position{Z: -1}, 50); err != nil {
		t.Fatalf("MoveRel: %v", err)
	}
	if err := a.Pump(ctx, true); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if err := a.Grip(ctx, true); err != nil {
		t.Fatalf("Grip: %v", err)
	}
	if err := a.DigitalOut(ctx, 9, true); err != nil {
		t.Fatalf("DigitalOut: %v", err)
	}
	if err := a.ServoAbs(ctx, 3, 45.5); err != nil {
		t.Fatalf("ServoAbs: %v", err)
	}

	want := []string{
		"G0 X-99 Y79 Z99.5 F100",
		"G204 X0 Y0 Z-1 F50",
		"M231 V1",
		"M232 V1",
		"M240 N9 V1",
		"G202 N3 V45.5",
	}
	if got := fw.Commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
}

func TestAnalogReadParsesValue(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetResponder(func(cmd string) (string, bool) {
		if cmd == "P241 N3" {
			return "ok V512.5", true
		}
		return "ok garbage", true
	})
	a := newArm(t, fw)

	reading, err := a.AnalogRead(context.Background(), 3)
	if err != nil {
		t.Fatalf("AnalogRead: %v", err)
	}
	if v, ok := reading.Get(); !ok || v != 512.5 {
		t.Fatalf("reading = %v", reading)
	}

	reading, err = a.AnalogRead(context.Background(), 4)
	if err != nil {
		t.Fatalf("AnalogRead: %v", err)
	}
	if reading.OK() {
		t.Fatalf("expected unreadable, got %v", reading)
	}
	if !strings.Contains(reading.Raw(), "garbage") {
		t.Fatalf("expected raw response kept, got %q", reading.Raw())
	}
}

func TestAnalogReadTimeoutIsUnreadable(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetResponder(func(string) (string, bool) { return "", false })
	a := newArm(t, fw)

	reading, err := a.AnalogRead(context.Background(), 3)
	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if reading.OK() {
		t.Fatalf("expected unreadable reading, got %v", reading)
	}
}

func TestSwitchStateAndPos(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetResponder(func(cmd string) (string, bool) {
		switch cmd {
		case "P233":
			return "ok V0", true
		case "P220":
			return "ok X-99.5 Y79 Z42", true
		}
		return armtest.DefaultReply(cmd)
	})
	a := newArm(t, fw)
	ctx := context.Background()

	sw, err := a.SwitchState(ctx)
	if err != nil {
		t.Fatalf("SwitchState: %v", err)
	}
	if v, ok := sw.Get(); !ok || v {
		t.Fatalf("expected switch V0 to read false, got %v", sw)
	}

	pos, err := a.Pos(ctx)
	if err != nil {
		t.Fatalf("Pos: %v", err)
	}
	if p, ok := pos.Get(); !ok || p != (arm.Position{X: -99.5, Y: 79, Z: 42}) {
		t.Fatalf("unexpected position %v", pos)
	}
}

func TestSwitchStateUnknownResponse(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetResponder(func(cmd string) (string, bool) {
		if cmd == "P233" {
			return "ok V?", true
		}
		return armtest.DefaultReply(cmd)
	})
	a := newArm(t, fw)

	sw, err := a.SwitchState(context.Background())
	if err != nil {
		t.Fatalf("SwitchState: %v", err)
	}
	if sw.OK() {
		t.Fatalf("expected unreadable switch state, got %v", sw)
	}
}

func TestWaitForMoveEndReturnsWhenStopped(t *testing.T) {
	fw := armtest.NewFirmware()
	polls := 0
	fw.SetResponder(func(cmd string) (string, bool) {
		if cmd == "M200" {
			polls++
			if polls < 3 {
				return "ok V1", true
			}
			return "ok V0", true
		}
		return armtest.DefaultReply(cmd)
	})
	a := newArm(t, fw)

	stopped, err := a.WaitForMoveEnd(context.Background())
	if err != nil {
		t.Fatalf("WaitForMoveEnd: %v", err)
	}
	if !stopped || polls != 3 {
		t.Fatalf("stopped=%v polls=%d, want true after 3 polls", stopped, polls)
	}
}

func TestWaitForMoveEndTimesOutWithoutError(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetResponder(func(cmd string) (string, bool) {
		if cmd == "M200" {
			return "ok V1", true
		}
		return armtest.DefaultReply(cmd)
	})
	a := newArm(t, fw)

	stopped, err := a.WaitForMoveEnd(context.Background())
	if err != nil {
		t.Fatalf("timeout must be logged, not returned: %v", err)
	}
	if stopped {
		t.Fatal("expected timeout")
	}
	if got := len(fw.Commands()); got != 300 {
		t.Fatalf("expected 300 polls for 60s at 200ms, got %d", got)
	}
}

func TestWaitForMoveEndKeepsPollingUnknownState(t *testing.T) {
	fw := armtest.NewFirmware()
	polls := 0
	fw.SetResponder(func(cmd string) (string, bool) {
		polls++
		if polls == 1 {
			return "ok V?", true
		}
		return "ok V0", true
	})
	a := newArm(t, fw)

	stopped, err := a.WaitForMoveEnd(context.Background())
	if err != nil || !stopped {
		t.Fatalf("stopped=%v err=%v", stopped, err)
	}
	if polls != 2 {
		t.Fatalf("expected 2 polls, got %d", polls)
	}
}

func TestComponentLevelEnablesArmDebug(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"
	cfg.Logging.ComponentLevels = map[string]string{"arm": "debug"}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	fw := armtest.NewFirmware()
	fw.SetReady("")
	polls := 0
	fw.SetResponder(func(cmd string) (string, bool) {
		polls++
		if polls == 1 {
			return "ok V?", true
		}
		return armtest.DefaultReply(cmd)
	})
	port, _ := fw.Open("", 0)
	link := arm.NewLink(port, cfg.Arm.SequenceModulus, config.Seconds(cfg.Arm.ReadTimeout), nil)
	a := arm.New(link, cfg, logger, arm.WithSleeper(noSleep))
	if _, err := a.WaitForMoveEnd(context.Background()); err != nil {
		t.Fatalf("WaitForMoveEnd: %v", err)
	}
	logging.ForComponent(logger, cfg.Logging.ComponentLevels, "pickup").Debug("pickup detail")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "ripperbot.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "unreadable motion state") {
		t.Fatalf("expected arm debug line in log:\n%s", out)
	}
	if strings.Contains(out, "pickup detail") {
		t.Fatalf("components without an override should stay at info:\n%s", out)
	}
}

func TestSessionReleaseAndReacquire(t *testing.T) {
	fw := armtest.NewFirmware()
	cfg := newTestConfig(t)
	ctx := context.Background()

	session, err := arm.OpenSession(ctx, cfg, "/dev/ttyACM0", nil, arm.WithPortOpener(fw.Opener()), arm.WithArmOptions(arm.WithSleeper(noSleep)))
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if !session.Held() || session.Arm() == nil {
		t.Fatal("expected session to hold the arm")
	}
	if session.Identity().DeviceName != "uArm" {
		t.Fatalf("unexpected identity %+v", session.Identity())
	}

	if _, err := arm.OpenSession(ctx, cfg, "/dev/ttyACM0", nil, arm.WithPortOpener(fw.Opener())); !errors.Is(err, arm.ErrPortBusy) {
		t.Fatalf("expected ErrPortBusy for second owner, got %v", err)
	}

	if err := session.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if session.Held() || session.Arm() != nil {
		t.Fatal("expected session to be released")
	}

	other, err := arm.OpenSession(ctx, cfg, "/dev/ttyACM0", nil, arm.WithPortOpener(fw.Opener()))
	if err != nil {
		t.Fatalf("worker should be able to take the arm after release: %v", err)
	}
	if err := session.Reacquire(ctx); !errors.Is(err, arm.ErrPortBusy) {
		t.Fatalf("expected reacquire to fail while worker holds the arm, got %v", err)
	}
	if err := other.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fw.Reset()
	if err := session.Reacquire(ctx); err != nil {
		t.Fatalf("Reacquire: %v", err)
	}
	commands := fw.Commands()
	if len(commands) == 0 || commands[len(commands)-1] != "G0 X0 Y150 Z100 F0" {
		t.Fatalf("expected reacquire to re-home the arm, got %v", commands)
	}
	if fw.Opens() != 3 {
		t.Fatalf("expected 3 port opens, got %d", fw.Opens())
	}
}

func TestCandidatePortsPrefersUSB(t *testing.T) {
	ports := []arm.PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true},
		{Name: "/dev/ttyUSB1"},
	}
	got := arm.CandidatePorts(ports)
	want := []string{"/dev/ttyACM0", "/dev/ttyUSB1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CandidatePorts = %v, want %v", got, want)
	}
}
