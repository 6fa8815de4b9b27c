package arm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ripperbot/internal/config"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

const readyToken = "@1"

var (
	analogPattern   = regexp.MustCompile(`(?i)OK V([-.0-9]+)`)
	positionPattern = regexp.MustCompile(`(?i)OK X([-.0-9]+) Y([-.0-9]+) Z([-.0-9]+)`)
)

// Identity holds the diagnostic probe answers gathered on connect.
type Identity struct {
	DeviceName string
	Hardware   string
	Software   string
	API        string
	UID        string
}

// Sender is the request/response primitive Arm is built on.
type Sender interface {
	Send(ctx context.Context, command string) (string, error)
	ReadLine(ctx context.Context) (string, error)
}

// Sleeper pauses between polls. It returns early with ctx.Err() on shutdown.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Arm issues firmware opcodes over a Sender.
type Arm struct {
	link       Sender
	speed      float64
	interval   time.Duration
	maxPolls   int
	home       Position
	homeServo  int
	servoAngle float64
	logger     *slog.Logger
	sleep      Sleeper
}

// Option customises an Arm.
type Option func(*Arm)

// WithSleeper replaces the poll delay implementation.
func WithSleeper(s Sleeper) Option {
	return func(a *Arm) {
		if s != nil {
			a.sleep = s
		}
	}
}

// New builds an Arm from the [arm] and [positions] config sections.
func New(link Sender, cfg *config.Config, logger *slog.Logger, opts ...Option) *Arm {
	interval := config.Seconds(cfg.Arm.MoveWaitInterval)
	maxPolls := 1
	if interval > 0 {
		maxPolls = max(1, int(math.Round(cfg.Arm.MoveWaitTimeout/cfg.Arm.MoveWaitInterval)))
	}
	a := &Arm{
		link:       link,
		speed:      cfg.Arm.DefaultSpeed,
		interval:   interval,
		maxPolls:   maxPolls,
		home:       FromPoint(cfg.Positions.Origin),
		homeServo:  cfg.Arm.HomeServo,
		servoAngle: cfg.Arm.HomeServoAngle,
		logger:     logging.ForComponent(logger, cfg.Logging.ComponentLevels, "arm"),
		sleep:      Sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultSpeed returns the configured feed rate.
func (a *Arm) DefaultSpeed() float64 {
	return a.speed
}

// Connect waits for the ready token, runs the identity probes and homes the
// arm. A missing or wrong ready token is reported as ErrNotReady.
func (a *Arm) Connect(ctx context.Context) (Identity, error) {
	line, err := a.link.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			return Identity{}, fmt.Errorf("%w: no ready token: %w", ErrNotReady, err)
		}
		return Identity{}, err
	}
	if strings.TrimSpace(line) != readyToken {
		a.logger.Error("arm did not signal ready",
			logging.String("response", line),
			logging.String(logging.FieldEventType, "arm_not_ready"),
			logging.String(logging.FieldErrorHint, "power cycle the arm and check the serial device"),
		)
		return Identity{}, fmt.Errorf("%w: got %q", ErrNotReady, line)
	}

	id, err := a.Probe(ctx)
	if err != nil {
		return Identity{}, err
	}
	a.logger.Info("arm connected",
		logging.String("device_name", id.DeviceName),
		logging.String("hw_version", id.Hardware),
		logging.String("sw_version", id.Software),
		logging.String("api_version", id.API),
		logging.String("uid", id.UID),
	)
	if err := a.Origin(ctx); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Probe issues the five read-only identity queries. Unparseable answers are
// logged and left empty.
func (a *Arm) Probe(ctx context.Context) (Identity, error) {
	var id Identity
	queries := []struct {
		cmd  string
		dest *string
	}{
		{"P201", &id.DeviceName},
		{"P202", &id.Hardware},
		{"P203", &id.Software},
		{"P204", &id.API},
		{"P205", &id.UID},
	}
	for _, q := range queries {
		resp, err := a.exec(ctx, q.cmd)
		if err != nil {
			return Identity{}, err
		}
		field, ok := responseField(resp, 2)
		if !ok {
			a.logger.Warn("unparseable probe response",
				logging.String("command", q.cmd),
				logging.String("response", resp),
				logging.String(logging.FieldEventType, "arm_probe_unparsed"),
				logging.String(logging.FieldErrorHint, "check firmware version"),
				logging.String(logging.FieldImpact, "diagnostics only"),
			)
			continue
		}
		*q.dest = field
	}
	return id, nil
}

// Origin returns the arm to its home pose: pump off, grip off, move home,
// set the home servo, then move home again so the final pose is reached after
// the servo and grip settle.
func (a *Arm) Origin(ctx context.Context) error {
	if err := a.Pump(ctx, false); err != nil {
		return err
	}
	if err := a.Grip(ctx, false); err != nil {
		return err
	}
	if err := a.MoveAbs(ctx, a.home, 0); err != nil {
		return err
	}
	if err := a.ServoAbs(ctx, a.homeServo, a.servoAngle); err != nil {
		return err
	}
	return a.MoveAbs(ctx, a.home, 0)
}

// MoveAbs starts an absolute move. The firmware acknowledges receipt, not
// completion.
func (a *Arm) MoveAbs(ctx context.Context, p Position, speed float64) error {
	_, err := a.exec(ctx, "G0 "+formatXYZF(p, speed))
	return err
}

// MoveRel starts a move relative to the current pose.
func (a *Arm) MoveRel(ctx context.Context, delta Position, speed float64) error {
	_, err := a.exec(ctx, "G204 "+formatXYZF(delta, speed))
	return err
}

// Moving queries whether a move is still in progress.
func (a *Arm) Moving(ctx context.Context) (Reading[bool], error) {
	resp, err := a.exec(ctx, "M200")
	if err != nil {
		return Reading[bool]{}, err
	}
	return parseFlag(resp), nil
}

// WaitForMoveEnd polls the motion state until the arm reports stopped. On
// timeout it logs and returns false; callers carry on regardless, so a false
// return means the final pose is not guaranteed.
func (a *Arm) WaitForMoveEnd(ctx context.Context) (bool, error) {
	for range a.maxPolls {
		moving, err := a.Moving(ctx)
		if err != nil {
			return false, err
		}
		if v, ok := moving.Get(); ok && !v {
			return true, nil
		}
		if !moving.OK() {
			a.logger.Debug("unreadable motion state", logging.String("response", moving.Raw()))
		}
		if err := a.sleep(ctx, a.interval); err != nil {
			return false, err
		}
	}
	a.logger.Error("timed out waiting for arm to stop moving",
		logging.Duration("waited", time.Duration(a.maxPolls)*a.interval),
		logging.String(logging.FieldEventType, "arm_move_timeout"),
		logging.String(logging.FieldErrorHint, "check for obstructions or a stalled axis"),
	)
	return false, nil
}

// MoveAndWait starts an absolute move at the default speed and waits for it.
func (a *Arm) MoveAndWait(ctx context.Context, p Position) error {
	if err := a.MoveAbs(ctx, p, a.speed); err != nil {
		return err
	}
	_, err := a.WaitForMoveEnd(ctx)
	return err
}

// ServoAbs sets servo id to angle degrees.
func (a *Arm) ServoAbs(ctx context.Context, id int, angle float64) error {
	_, err := a.exec(ctx, fmt.Sprintf("G202 N%d V%s", id, formatNumber(angle)))
	return err
}

// Pump switches the suction pump.
func (a *Arm) Pump(ctx context.Context, on bool) error {
	_, err := a.exec(ctx, "M231 V"+flag(on))
	return err
}

// Grip switches the mechanical gripper.
func (a *Arm) Grip(ctx context.Context, on bool) error {
	_, err := a.exec(ctx, "M232 V"+flag(on))
	return err
}

// DigitalOut drives a digital output pin.
func (a *Arm) DigitalOut(ctx context.Context, pin int, on bool) error {
	_, err := a.exec(ctx, fmt.Sprintf("M240 N%d V%s", pin, flag(on)))
	return err
}

// AnalogRead samples an analog input pin.
func (a *Arm) AnalogRead(ctx context.Context, pin int) (Reading[float64], error) {
	resp, err := a.exec(ctx, fmt.Sprintf("P241 N%d", pin))
	if err != nil {
		return Reading[float64]{}, err
	}
	m := analogPattern.FindStringSubmatch(resp)
	if m == nil {
		return Unreadable[float64](resp), nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Unreadable[float64](resp), nil
	}
	return Value(v), nil
}

// SwitchState queries the gripper limit switch. The reading is the raw level
// (true for V1); polarity is the caller's concern.
func (a *Arm) SwitchState(ctx context.Context) (Reading[bool], error) {
	resp, err := a.exec(ctx, "P233")
	if err != nil {
		return Reading[bool]{}, err
	}
	reading := parseFlag(resp)
	if !reading.OK() {
		a.logger.Warn("unknown switch state response",
			logging.String("response", resp),
			logging.String(logging.FieldEventType, "arm_switch_unparsed"),
			logging.String(logging.FieldErrorHint, "check limit switch wiring"),
			logging.String(logging.FieldImpact, "pickup may report an inconsistent result"),
		)
	}
	return reading, nil
}

// Pos queries the current effector position.
func (a *Arm) Pos(ctx context.Context) (Reading[Position], error) {
	resp, err := a.exec(ctx, "P220")
	if err != nil {
		return Reading[Position]{}, err
	}
	m := positionPattern.FindStringSubmatch(resp)
	if m == nil {
		return Unreadable[Position](resp), nil
	}
	var coords [3]float64
	for i := range coords {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return Unreadable[Position](resp), nil
		}
		coords[i] = v
	}
	return Value(Position{X: coords[0], Y: coords[1], Z: coords[2]}), nil
}

// exec sends a command. Read timeouts are protocol faults: they are logged
// and surface as an empty response so the caller's parser reports the value
// as unreadable. Write failures and cancellation are returned.
func (a *Arm) exec(ctx context.Context, command string) (string, error) {
	resp, err := a.link.Send(ctx, command)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, ErrReadTimeout) {
		logging.WarnWithContext(a.logger, "no response from arm", "arm_read_timeout",
			logging.String("command", command),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the serial cable and arm power"),
			logging.String(logging.FieldImpact, "command result treated as unreadable"),
		)
		return "", nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", services.Wrap(services.ErrProtocol, "arm", command, "", err)
}

func parseFlag(resp string) Reading[bool] {
	field, ok := responseField(resp, 2)
	if !ok {
		return Unreadable[bool](resp)
	}
	switch strings.ToUpper(field) {
	case "V1":
		return Value(true)
	case "V0":
		return Value(false)
	default:
		return Unreadable[bool](resp)
	}
}

// responseField returns the space separated field at idx. Responses look like
// "$<seq> ok V1".
func responseField(resp string, idx int) (string, bool) {
	fields := strings.Split(strings.TrimSpace(resp), " ")
	if idx >= len(fields) || fields[idx] == "" {
		return "", false
	}
	return fields[idx], true
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
