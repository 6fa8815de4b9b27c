// Package sensor detects a disc in the source tray with a differential
// LED/photodiode measurement that cancels ambient light.
package sensor

import (
	"context"
	"log/slog"
	"time"

	"ripperbot/internal/arm"
	"ripperbot/internal/config"
	"ripperbot/internal/logging"
)

// IO is the subset of the arm's I/O the sensor needs.
type IO interface {
	DigitalOut(ctx context.Context, pin int, on bool) error
	AnalogRead(ctx context.Context, pin int) (arm.Reading[float64], error)
}

// Measurement is one differential sample.
type Measurement struct {
	Off     arm.Reading[float64]
	On      arm.Reading[float64]
	Signal  float64
	Present bool
}

// Present reports whether the illuminated reading exceeds the dark reading by
// strictly more than threshold.
func Present(off, on, threshold float64) bool {
	return on-off > threshold
}

// Detector polls the disc presence sensor.
type Detector struct {
	io        IO
	ledPin    int
	sensorPin int
	threshold float64
	settle    time.Duration
	poll      time.Duration
	sleep     arm.Sleeper
	logger    *slog.Logger
}

// NewDetector builds a Detector from the [sensor] config section.
func NewDetector(io IO, cfg *config.Config, logger *slog.Logger, sleep arm.Sleeper) *Detector {
	if sleep == nil {
		sleep = arm.Sleep
	}
	return &Detector{
		io:        io,
		ledPin:    cfg.Sensor.LEDPin,
		sensorPin: cfg.Sensor.SensorPin,
		threshold: cfg.Sensor.Threshold,
		settle:    config.Seconds(cfg.Sensor.SettleDelay),
		poll:      config.Seconds(cfg.Sensor.PollInterval),
		sleep:     sleep,
		logger:    logging.ForComponent(logger, cfg.Logging.ComponentLevels, "sensor"),
	}
}

// Measure takes one dark and one illuminated reading. Either reading being
// unreadable yields a not-present measurement.
func (d *Detector) Measure(ctx context.Context) (Measurement, error) {
	var m Measurement
	if err := d.io.DigitalOut(ctx, d.ledPin, false); err != nil {
		return m, err
	}
	off, err := d.io.AnalogRead(ctx, d.sensorPin)
	if err != nil {
		return m, err
	}
	m.Off = off
	if err := d.sleep(ctx, d.settle); err != nil {
		return m, err
	}
	if err := d.io.DigitalOut(ctx, d.ledPin, true); err != nil {
		return m, err
	}
	on, err := d.io.AnalogRead(ctx, d.sensorPin)
	if err != nil {
		return m, err
	}
	m.On = on

	offValue, offOK := off.Get()
	onValue, onOK := on.Get()
	if !offOK || !onOK {
		d.logger.Debug("unreadable sensor sample", logging.String("off", off.String()), logging.String("on", on.String()))
		return m, nil
	}
	m.Signal = onValue - offValue
	m.Present = Present(offValue, onValue, d.threshold)
	d.logger.Debug("sensor sample",
		logging.Int("sensor_pin", d.sensorPin),
		logging.Int("led_pin", d.ledPin),
		logging.Float64("led_off", offValue),
		logging.Float64("led_on", onValue),
		logging.Float64("signal", m.Signal),
	)
	return m, nil
}

// IsDiscPresent takes one measurement.
func (d *Detector) IsDiscPresent(ctx context.Context) (bool, error) {
	m, err := d.Measure(ctx)
	if err != nil {
		return false, err
	}
	return m.Present, nil
}

// WaitForDisc polls until a disc is present. There is no timeout; only ctx
// cancellation ends the wait early.
func (d *Detector) WaitForDisc(ctx context.Context) (Measurement, error) {
	for {
		m, err := d.Measure(ctx)
		if err != nil {
			return m, err
		}
		if m.Present {
			d.logger.Info("disc detected in source tray", logging.Float64("signal", m.Signal))
			return m, nil
		}
		if err := d.sleep(ctx, d.poll); err != nil {
			return m, err
		}
	}
}
