// Package pickup grasps a disc of unknown height by descending in fixed steps
// until the gripper limit switch closes.
package pickup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ripperbot/internal/arm"
	"ripperbot/internal/config"
	"ripperbot/internal/logging"
)

// Outcome is the result of one pickup attempt.
type Outcome int

const (
	// Picked means the switch closed before reaching z_min.
	Picked Outcome = iota
	// NotFound means z_min was reached with the switch reading released.
	NotFound
	// Inconsistent means the switch could not be read at the terminal step,
	// which points at a sensor or protocol fault rather than an empty tray.
	Inconsistent
)

func (o Outcome) String() string {
	switch o {
	case Picked:
		return "picked"
	case NotFound:
		return "not_found"
	case Inconsistent:
		return "inconsistent"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	// ErrNotFound matches failures where nothing was contacted.
	ErrNotFound = errors.New("no disc contacted before z min")
	// ErrInconsistent matches failures where the switch state was unreadable.
	ErrInconsistent = errors.New("limit switch state unreadable at z min")
)

// Err maps an outcome to its sentinel error; Picked maps to nil.
func (o Outcome) Err() error {
	switch o {
	case NotFound:
		return ErrNotFound
	case Inconsistent:
		return ErrInconsistent
	default:
		return nil
	}
}

// Result describes where a pickup ended.
type Result struct {
	Outcome    Outcome
	Position   arm.Position
	Iterations int
	LastSwitch arm.Reading[bool]
}

// Motion is the subset of the arm the probe drives.
type Motion interface {
	MoveAbs(ctx context.Context, p arm.Position, speed float64) error
	WaitForMoveEnd(ctx context.Context) (bool, error)
	SwitchState(ctx context.Context) (arm.Reading[bool], error)
}

// Prober runs descent probes.
type Prober struct {
	motion    Motion
	step      float64
	speed     float64
	activeLow bool
	logger    *slog.Logger
}

// NewProber builds a Prober from the [pickup] config section.
func NewProber(motion Motion, cfg *config.Config, logger *slog.Logger) *Prober {
	return &Prober{
		motion:    motion,
		step:      cfg.Pickup.Step,
		speed:     cfg.Arm.DefaultSpeed,
		activeLow: cfg.Pickup.SwitchActiveLow,
		logger:    logging.ForComponent(logger, cfg.Logging.ComponentLevels, "pickup"),
	}
}

// Pickup moves to target, then descends by step until the switch triggers or
// z reaches zMin. No further moves are issued once the switch triggers. The
// descent is bounded by (target.Z - zMin) / step iterations.
func (p *Prober) Pickup(ctx context.Context, target arm.Position, zMin float64) (Result, error) {
	res := Result{Position: target}
	if err := p.moveAndWait(ctx, target); err != nil {
		return res, err
	}

	pos := target
	for pos.Z > zMin {
		pos = arm.WithZ(pos, pos.Z-p.step)
		res.Iterations++
		res.Position = pos
		if err := p.moveAndWait(ctx, pos); err != nil {
			return res, err
		}
		sw, err := p.motion.SwitchState(ctx)
		if err != nil {
			return res, err
		}
		res.LastSwitch = sw
		if p.triggered(sw) {
			res.Outcome = Picked
			p.logger.Info("disc contacted",
				logging.Float64("z", pos.Z),
				logging.Int("iterations", res.Iterations),
			)
			return res, nil
		}
	}

	if res.Iterations > 0 && !res.LastSwitch.OK() {
		res.Outcome = Inconsistent
		p.logger.Error("limit switch unreadable at z min",
			logging.Float64("x", pos.X),
			logging.Float64("y", pos.Y),
			logging.Float64("z", pos.Z),
			logging.Float64("z_min", zMin),
			logging.String("switch", res.LastSwitch.String()),
			logging.String(logging.FieldEventType, "pickup_inconsistent"),
			logging.String(logging.FieldErrorHint, "inspect the limit switch and serial link"),
			logging.Alert("hardware_fault"),
		)
		return res, nil
	}

	res.Outcome = NotFound
	p.logger.Error("reached z min without contacting a disc",
		logging.Float64("z_min", zMin),
		logging.Int("iterations", res.Iterations),
		logging.String(logging.FieldEventType, "pickup_not_found"),
		logging.String(logging.FieldErrorHint, "check the tray holds a disc and the z min setting"),
	)
	return res, nil
}

func (p *Prober) triggered(sw arm.Reading[bool]) bool {
	level, ok := sw.Get()
	if !ok {
		return false
	}
	return level != p.activeLow
}

func (p *Prober) moveAndWait(ctx context.Context, pos arm.Position) error {
	if err := p.motion.MoveAbs(ctx, pos, p.speed); err != nil {
		return err
	}
	_, err := p.motion.WaitForMoveEnd(ctx)
	return err
}
