package arm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ripperbot/internal/arm"
	"ripperbot/internal/arm/armtest"
)

func TestSendCyclesSequenceWithoutZero(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetReady("")
	port, _ := fw.Open("", 0)
	link := arm.NewLink(port, 5, time.Second, nil)

	for range 10 {
		if _, err := link.Send(context.Background(), "M200"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	var ids []string
	for _, frame := range fw.Frames() {
		id, _, _ := strings.Cut(frame, " ")
		ids = append(ids, id)
	}
	want := "#1 #2 #3 #4 #1 #2 #3 #4 #1 #2"
	if got := strings.Join(ids, " "); got != want {
		t.Fatalf("sequence ids = %q, want %q", got, want)
	}
}

func TestSendDefaultModulusNeverEmitsZero(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetReady("")
	port, _ := fw.Open("", 0)
	link := arm.NewLink(port, 100, time.Second, nil)

	seen := map[string]int{}
	for range 99 {
		if _, err := link.Send(context.Background(), "M200"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for _, frame := range fw.Frames() {
		id, _, _ := strings.Cut(frame, " ")
		if id == "#0" {
			t.Fatal("sequence id 0 emitted")
		}
		seen[id]++
	}
	if len(seen) != 99 {
		t.Fatalf("expected 99 distinct ids in one cycle, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("id %s repeated %d times within one cycle", id, n)
		}
	}
}

func TestSendReturnsResponseLine(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetReady("")
	port, _ := fw.Open("", 0)
	link := arm.NewLink(port, 100, time.Second, nil)

	resp, err := link.Send(context.Background(), "P241 N3")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != "$1 OK V0" {
		t.Fatalf("unexpected response %q", resp)
	}
	if frames := fw.Frames(); len(frames) != 1 || frames[0] != "#1 P241 N3" {
		t.Fatalf("unexpected frames %v", frames)
	}
}

func TestSendTimesOutWithoutResponse(t *testing.T) {
	fw := armtest.NewFirmware()
	fw.SetReady("")
	fw.SetResponder(func(string) (string, bool) { return "", false })
	port, _ := fw.Open("", 0)
	link := arm.NewLink(port, 100, 20*time.Millisecond, nil)

	_, err := link.Send(context.Background(), "M200")
	if !errors.Is(err, arm.ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	fw := armtest.NewFirmware()
	port, _ := fw.Open("", 0)
	link := arm.NewLink(port, 100, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := link.Send(ctx, "M200"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fw.Frames()) != 0 {
		t.Fatal("no frame should be written after cancellation")
	}
}

func TestReadLineSplitsBufferedLines(t *testing.T) {
	fw := armtest.NewFirmware()
	port, _ := fw.Open("", 0)
	link := arm.NewLink(port, 100, time.Second, nil)

	line, err := link.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "@1" {
		t.Fatalf("expected ready token, got %q", line)
	}
	resp, err := link.Send(context.Background(), "P201")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != "$1 ok uArm" {
		t.Fatalf("unexpected response %q", resp)
	}
}
