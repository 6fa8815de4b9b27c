package services_test

import (
	"errors"
	"strings"
	"testing"

	"ripperbot/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "drive", "close_tray", "eject -t failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"drive", "close_tray", "eject -t failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pickup", services.Wrap(services.ErrPickup, "pickup", "source", "not found", nil), true},
		{"configuration", services.Wrap(services.ErrConfiguration, "config", "load", "bad", nil), true},
		{"imaging", services.Wrap(services.ErrExternalTool, "drive", "image", "failed", nil), false},
		{"protocol", services.Wrap(services.ErrProtocol, "arm", "send", "timeout", nil), false},
	}
	for _, tc := range cases {
		if got := services.IsFatal(tc.err); got != tc.want {
			t.Fatalf("%s: IsFatal = %v, want %v", tc.name, got, tc.want)
		}
	}
}
