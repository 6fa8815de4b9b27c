package calibration_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ripperbot/internal/calibration"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	want := calibration.Markers{
		DiskCenter: calibration.Point{X: 1012, Y: 760},
		DiskEdge:   calibration.Point{X: 1012, Y: 1290},
	}
	if err := calibration.Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	compact := strings.Join(strings.Fields(string(data)), "")
	if compact != `{"disk_center":[1012,760],"disk_edge":[1012,1290]}` {
		t.Fatalf("unexpected file layout %s", data)
	}

	got, err := calibration.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestParseRequiresBothKeys(t *testing.T) {
	for _, doc := range []string{
		`{"disk_center":[1,2]}`,
		`{"disk_edge":[1,2]}`,
		`{}`,
	} {
		if _, err := calibration.Parse([]byte(doc)); !errors.Is(err, calibration.ErrIncomplete) {
			t.Fatalf("Parse(%s): expected ErrIncomplete, got %v", doc, err)
		}
	}
}

func TestParseRejectsMalformedPoints(t *testing.T) {
	for _, doc := range []string{
		`{"disk_center":[1,2,3],"disk_edge":[1,2]}`,
		`{"disk_center":"1,2","disk_edge":[1,2]}`,
		`not json`,
	} {
		if _, err := calibration.Parse([]byte(doc)); err == nil {
			t.Fatalf("Parse(%s): expected error", doc)
		}
	}
}

func TestParseRoundsFractionalPixels(t *testing.T) {
	m, err := calibration.Parse([]byte(`{"disk_center":[100.4,99.6],"disk_edge":[100,150]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.DiskCenter != (calibration.Point{X: 100, Y: 100}) {
		t.Fatalf("unexpected centre %v", m.DiskCenter)
	}
}

func TestFromDetectionsIsAllOrNothing(t *testing.T) {
	detected := map[int]calibration.Point{5: {X: 100, Y: 100}, 7: {X: 1, Y: 1}}
	if _, err := calibration.FromDetections(detected, 5, 2); !errors.Is(err, calibration.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	detected[2] = calibration.Point{X: 100, Y: 150}
	m, err := calibration.FromDetections(detected, 5, 2)
	if err != nil {
		t.Fatalf("FromDetections: %v", err)
	}
	if m.DiskCenter.Dist(m.DiskEdge) != 50 {
		t.Fatalf("unexpected markers %+v", m)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := calibration.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error")
	}
}
