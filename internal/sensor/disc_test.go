package sensor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ripperbot/internal/arm"
	"ripperbot/internal/config"
	"ripperbot/internal/sensor"
)

func TestPresentIsStrictlyGreater(t *testing.T) {
	cases := []struct {
		off, on float64
		want    bool
	}{
		{10, 250, true},
		{10, 150, false},
		{0, 200, false},
		{0, 200.5, true},
		{300, 100, false},
	}
	for _, tc := range cases {
		if got := sensor.Present(tc.off, tc.on, 200); got != tc.want {
			t.Fatalf("Present(%v, %v, 200) = %v, want %v", tc.off, tc.on, got, tc.want)
		}
	}
}

type fakeIO struct {
	led      bool
	dark     []arm.Reading[float64]
	lit      []arm.Reading[float64]
	calls    []string
	readErr  error
	darkIdx  int
	litIdx   int
	litReads int
}

func (f *fakeIO) DigitalOut(_ context.Context, pin int, on bool) error {
	f.led = on
	if on {
		f.calls = append(f.calls, "led_on")
	} else {
		f.calls = append(f.calls, "led_off")
	}
	return nil
}

func (f *fakeIO) AnalogRead(_ context.Context, pin int) (arm.Reading[float64], error) {
	if f.readErr != nil {
		return arm.Reading[float64]{}, f.readErr
	}
	f.calls = append(f.calls, "read")
	if f.led {
		f.litReads++
		r := f.lit[min(f.litIdx, len(f.lit)-1)]
		f.litIdx++
		return r, nil
	}
	r := f.dark[min(f.darkIdx, len(f.dark)-1)]
	f.darkIdx++
	return r, nil
}

func newDetector(io sensor.IO, sleeps *[]time.Duration) *sensor.Detector {
	cfg := config.Default()
	return sensor.NewDetector(io, &cfg, nil, func(_ context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	})
}

func TestMeasureOrdersLEDAndReads(t *testing.T) {
	io := &fakeIO{
		dark: []arm.Reading[float64]{arm.Value(10.0)},
		lit:  []arm.Reading[float64]{arm.Value(250.0)},
	}
	var sleeps []time.Duration
	d := newDetector(io, &sleeps)

	m, err := d.Measure(context.Background())
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if !m.Present || m.Signal != 240 {
		t.Fatalf("unexpected measurement %+v", m)
	}
	want := []string{"led_off", "read", "led_on", "read"}
	if len(io.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", io.calls, want)
	}
	for i := range want {
		if io.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", io.calls, want)
		}
	}
	if len(sleeps) != 1 || sleeps[0] != 300*time.Millisecond {
		t.Fatalf("expected one settle delay of 300ms, got %v", sleeps)
	}
}

func TestUnreadableReadingIsNotPresent(t *testing.T) {
	io := &fakeIO{
		dark: []arm.Reading[float64]{arm.Unreadable[float64]("")},
		lit:  []arm.Reading[float64]{arm.Value(900.0)},
	}
	d := newDetector(io, nil)

	present, err := d.IsDiscPresent(context.Background())
	if err != nil {
		t.Fatalf("IsDiscPresent: %v", err)
	}
	if present {
		t.Fatal("unreadable dark reading must not count as present")
	}
}

func TestWaitForDiscPollsUntilPresent(t *testing.T) {
	io := &fakeIO{
		dark: []arm.Reading[float64]{arm.Value(10.0)},
		lit: []arm.Reading[float64]{
			arm.Value(20.0),
			arm.Unreadable[float64]("timeout"),
			arm.Value(150.0),
			arm.Value(260.0),
		},
	}
	var sleeps []time.Duration
	d := newDetector(io, &sleeps)

	m, err := d.WaitForDisc(context.Background())
	if err != nil {
		t.Fatalf("WaitForDisc: %v", err)
	}
	if !m.Present || io.litReads != 4 {
		t.Fatalf("expected detection on 4th sample, got %+v after %d samples", m, io.litReads)
	}
	// one settle per sample plus one poll delay per miss
	if len(sleeps) != 7 {
		t.Fatalf("expected 7 sleeps, got %d", len(sleeps))
	}
}

func TestWaitForDiscStopsOnCancel(t *testing.T) {
	io := &fakeIO{
		dark: []arm.Reading[float64]{arm.Value(10.0)},
		lit:  []arm.Reading[float64]{arm.Value(20.0)},
	}
	cfg := config.Default()
	ctx, cancel := context.WithCancel(context.Background())
	samples := 0
	d := sensor.NewDetector(io, &cfg, nil, func(ctx context.Context, _ time.Duration) error {
		samples++
		if samples == 5 {
			cancel()
		}
		return ctx.Err()
	})

	if _, err := d.WaitForDisc(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestReadErrorPropagates(t *testing.T) {
	boom := errors.New("port closed")
	d := newDetector(&fakeIO{readErr: boom}, nil)
	if _, err := d.IsDiscPresent(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
