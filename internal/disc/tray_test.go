package disc

import (
	"testing"
)

func TestDriveStatusString(t *testing.T) {
	tests := []struct {
		status DriveStatus
		want   string
	}{
		{DriveStatusNoInfo, "no_info"},
		{DriveStatusNoDisc, "no_disc"},
		{DriveStatusTrayOpen, "tray_open"},
		{DriveStatusNotReady, "not_ready"},
		{DriveStatusDiscOK, "disc_ok"},
		{DriveStatus(99), "unknown(99)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.status.String()
			if got != tt.want {
				t.Errorf("DriveStatus(%d).String() = %q, want %q", int(tt.status), got, tt.want)
			}
		})
	}
}

func TestCheckDriveStatusEmptyPath(t *testing.T) {
	if _, err := CheckDriveStatus(""); err == nil {
		t.Fatal("expected error for empty device path")
	}
}

func TestCheckDriveStatusInvalidPath(t *testing.T) {
	if _, err := CheckDriveStatus("/dev/nonexistent_device_12345"); err == nil {
		t.Fatal("expected error for nonexistent device")
	}
}
