package cover

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/logging"
)

var testMarkers = calibration.Markers{
	DiskCenter: calibration.Point{X: 100, Y: 100},
	DiskEdge:   calibration.Point{X: 100, Y: 150},
}

type fixedFinder struct {
	circles []Circle
	err     error
	minR    int
	maxR    int
}

func (f *fixedFinder) FindCircles(_ image.Image, minR, maxR int) ([]Circle, error) {
	f.minR, f.maxR = minR, maxR
	return f.circles, f.err
}

func transparent(img *image.NRGBA, x, y int) bool {
	return img.NRGBAAt(x, y) == (color.NRGBA{})
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestRadiusFromMarkers(t *testing.T) {
	r := BaseRadius(testMarkers, -10)
	if r != 40 {
		t.Fatalf("BaseRadius = %d, want 40", r)
	}
	if hole := HoleRadius(r, 0.125); hole != 5 {
		t.Fatalf("HoleRadius = %d, want 5", hole)
	}
}

func TestBaseRadiusTruncatesDistance(t *testing.T) {
	m := calibration.Markers{DiskCenter: calibration.Point{X: 0, Y: 0}, DiskEdge: calibration.Point{X: 3, Y: 3}}
	if r := BaseRadius(m, 0); r != 4 {
		t.Fatalf("BaseRadius = %d, want 4", r)
	}
}

func TestSelectCirclePrefersCombinedError(t *testing.T) {
	candidates := []Circle{{X: 130, Y: 130, R: 40}, {X: 102, Y: 101, R: 41}}
	got, ok := SelectCircle(candidates, testMarkers.DiskCenter, 40)
	if !ok || got != (Circle{X: 102, Y: 101, R: 41}) {
		t.Fatalf("SelectCircle = %v %t", got, ok)
	}
}

func TestSelectCircleTieKeepsFirst(t *testing.T) {
	candidates := []Circle{{X: 101, Y: 100, R: 40}, {X: 100, Y: 100, R: 41}}
	got, _ := SelectCircle(candidates, testMarkers.DiskCenter, 40)
	if got != candidates[0] {
		t.Fatalf("expected first candidate on tie, got %v", got)
	}
	if _, ok := SelectCircle(nil, testMarkers.DiskCenter, 40); ok {
		t.Fatal("expected no selection from empty candidates")
	}
}

func TestRadiusBounds(t *testing.T) {
	minR, maxR := RadiusBounds(300, 0.02)
	if minR != 294 || maxR != 306 {
		t.Fatalf("RadiusBounds = %d..%d", minR, maxR)
	}
	minR, maxR = RadiusBounds(1, 0.5)
	if minR != 1 || maxR != 2 {
		t.Fatalf("small RadiusBounds = %d..%d", minR, maxR)
	}
}

func TestComputeRefinesAndMasks(t *testing.T) {
	photo := solid(200, 200, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	finder := &fixedFinder{circles: []Circle{{X: 130, Y: 130, R: 40}, {X: 102, Y: 101, R: 41}}}
	geom := Geometry{RadiusFix: -10, HoleRatio: 0.125, RadiusTolerance: 0.02}

	res, err := Compute(photo, testMarkers, geom, finder)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if finder.minR != 39 || finder.maxR != 41 {
		t.Fatalf("search window = %d..%d", finder.minR, finder.maxR)
	}
	if !res.Refined || res.Chosen != (Circle{X: 102, Y: 101, R: 41}) {
		t.Fatalf("unexpected choice %+v", res)
	}
	if res.Hole != 5 {
		t.Fatalf("hole = %d, want 5", res.Hole)
	}
	b := res.Image.Bounds()
	if b.Dx() != 82 || b.Dy() != 82 {
		t.Fatalf("crop size = %v", b)
	}
	// centre is the hole, corners are outside the disc
	if !transparent(res.Image, 41, 41) || !transparent(res.Image, 0, 0) {
		t.Fatal("expected transparent hole and corners")
	}
	// ring pixel keeps the photo colour
	if got := res.Image.NRGBAAt(41+20, 41); got != (color.NRGBA{R: 200, G: 10, B: 10, A: 255}) {
		t.Fatalf("ring pixel = %v", got)
	}
}

func TestComputeFallsBackWithoutCircles(t *testing.T) {
	photo := solid(200, 200, color.NRGBA{A: 255})
	res, err := Compute(photo, testMarkers, Geometry{RadiusFix: -10, HoleRatio: 0.125}, &fixedFinder{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Refined || res.Chosen != (Circle{X: 100, Y: 100, R: 40}) {
		t.Fatalf("expected calibrated fallback, got %+v", res)
	}
}

func TestComputeRejectsNonPositiveRadius(t *testing.T) {
	photo := solid(10, 10, color.NRGBA{A: 255})
	if _, err := Compute(photo, testMarkers, Geometry{RadiusFix: -60}, nil); err == nil {
		t.Fatal("expected error for negative radius")
	}
}

func TestComputePropagatesFinderError(t *testing.T) {
	photo := solid(10, 10, color.NRGBA{A: 255})
	boom := errors.New("boom")
	if _, err := Compute(photo, testMarkers, Geometry{RadiusFix: -10}, &fixedFinder{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected finder error, got %v", err)
	}
}

func TestAnnulusOutOfBoundsIsTransparent(t *testing.T) {
	photo := solid(50, 50, color.NRGBA{G: 255, A: 255})
	out := Annulus(photo, 5, 5, 20, 2)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 40 {
		t.Fatalf("crop size = %v", out.Bounds())
	}
	// (10,20) maps to photo (-5,5), inside the ring but off the photo
	if !transparent(out, 10, 20) {
		t.Fatal("expected out-of-bounds pixel to be transparent")
	}
	// (25,20) maps to photo (10,5), inside the ring
	if got := out.NRGBAAt(25, 20); got.G != 255 || got.A != 255 {
		t.Fatalf("in-bounds ring pixel = %v", got)
	}
}

func TestAnnulusHonoursNonZeroOrigin(t *testing.T) {
	base := solid(100, 100, color.NRGBA{B: 255, A: 255})
	sub := base.SubImage(image.Rect(10, 10, 60, 60))
	out := Annulus(sub, 25, 25, 10, 0)
	if got := out.NRGBAAt(10, 15); got.B != 255 {
		t.Fatalf("expected copied pixel, got %v", got)
	}
}

func syntheticDisc(w, h, cx, cy, r int) *image.NRGBA {
	img := solid(w, h, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	return img
}

func TestHoughFinderLocatesSyntheticDisc(t *testing.T) {
	img := syntheticDisc(200, 200, 100, 100, 40)
	finder := NewHoughFinder(config.Default().Cover)

	circles, err := finder.FindCircles(img, 39, 41)
	if err != nil {
		t.Fatalf("FindCircles: %v", err)
	}
	if len(circles) == 0 {
		t.Fatal("expected at least one circle")
	}
	c := circles[0]
	if abs(c.X-100) > 1 || abs(c.Y-100) > 1 || c.R < 39 || c.R > 41 {
		t.Fatalf("strongest circle = %v", c)
	}
}

func TestHoughFinderBlankImage(t *testing.T) {
	circles, err := NewHoughFinder(config.Default().Cover).FindCircles(solid(80, 80, color.NRGBA{A: 255}), 20, 22)
	if err != nil {
		t.Fatalf("FindCircles: %v", err)
	}
	if len(circles) != 0 {
		t.Fatalf("expected no circles, got %v", circles)
	}
}

func TestHoughFinderRejectsBadWindow(t *testing.T) {
	if _, err := NewHoughFinder(config.Default().Cover).FindCircles(solid(10, 10, color.NRGBA{}), 5, 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriterStoresPNG(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.Cover.MaskRadiusFix = -10

	photoPath := filepath.Join(t.TempDir(), "photo.png")
	if err := imaging.Save(syntheticDisc(200, 200, 100, 100, 40), photoPath); err != nil {
		t.Fatalf("save photo: %v", err)
	}

	w := NewWriter(&cfg, NewHoughFinder(cfg.Cover), logging.NewNop())
	path, err := w.WriteFromFile(context.Background(), filepath.Join(cfg.Storage.Root, "cap-1"), photoPath, testMarkers)
	if err != nil {
		t.Fatalf("WriteFromFile: %v", err)
	}
	if path != filepath.Join(cfg.Storage.Root, "cap-1", "cover.png") {
		t.Fatalf("unexpected path %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open cover: %v", err)
	}
	defer f.Close()
	img, err := imaging.Decode(f)
	if err != nil {
		t.Fatalf("decode cover: %v", err)
	}
	if d := img.Bounds().Dx(); d < 78 || d > 82 {
		t.Fatalf("cover width = %d", d)
	}
}

func TestWriterMissingPhoto(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	w := NewWriter(&cfg, nil, logging.NewNop())
	if _, err := w.WriteFromFile(context.Background(), filepath.Join(cfg.Storage.Root, "cap-2"), filepath.Join(t.TempDir(), "none.jpg"), testMarkers); err == nil {
		t.Fatal("expected error")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
