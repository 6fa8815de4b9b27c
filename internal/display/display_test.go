package display

import (
	"os"
	"testing"

	"ripperbot/internal/logging"
	"ripperbot/internal/testsupport"
)

func TestShowWritesNormalisedLabel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Display.Enabled = true
	line := New(cfg, logging.NewNop())

	line.Show("  imaging   ...")
	data, err := os.ReadFile(cfg.Display.Path)
	if err != nil {
		t.Fatalf("read display: %v", err)
	}
	if string(data) != LabelImaging+"\n" {
		t.Fatalf("display = %q", data)
	}
	line.Show(LabelMoveToDest)
	if line.Last() != LabelMoveToDest {
		t.Fatalf("Last = %q", line.Last())
	}
}

func TestDisabledLineOnlyTracks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Display.Enabled = false
	line := New(cfg, logging.NewNop())
	line.Show(LabelPickupSource)
	if _, err := os.Stat(cfg.Display.Path); !os.IsNotExist(err) {
		t.Fatalf("expected no display file, stat err=%v", err)
	}
	if line.Last() != LabelPickupSource {
		t.Fatalf("Last = %q", line.Last())
	}
}

func TestNilLineIsSafe(t *testing.T) {
	var line *Line
	line.Show("anything")
	if line.Last() != "" {
		t.Fatal("nil line should report no label")
	}
}
