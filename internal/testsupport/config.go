package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ripperbot/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Delays are zeroed so retry loops spin without sleeping.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Storage.Root = filepath.Join(base, "storage")
	cfgVal.Storage.RequireMount = false
	cfgVal.Storage.UseNetlink = false
	cfgVal.Display.Path = filepath.Join(base, "display", "line1")
	cfgVal.Arm.Device = "/dev/ttyFAKE0"
	cfgVal.Pickup.GrabDelay = 0
	cfgVal.Pickup.ReleaseDelay = 0
	cfgVal.Sensor.SettleDelay = 0
	cfgVal.Drive.SelfCheckDelay = 0
	cfgVal.Vision.CalibrationDelay = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithDriveDevice overrides the optical drive path on the test config.
func WithDriveDevice(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Drive.Device = path
	}
}

// WithStorageRoot overrides the capture destination.
func WithStorageRoot(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Root = path
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external tools
// (eject, archiver, camera) are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"eject", "plastic-archiver.sh", "shoot-photo.sh"}
		}
		for _, name := range names {
			writeStub(b, name, "exit 0\n")
		}
	}
}

// WithStubScript installs an executable named name whose body is the given
// shell script, prepending its directory to PATH.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		writeStub(b, name, body)
	}
}

func writeStub(b *configBuilder, name, body string) {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}

	oldPath := os.Getenv("PATH")
	if filepath.SplitList(oldPath)[0] == binDir {
		return
	}
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		b.t.Fatalf("set PATH: %v", err)
	}
	b.t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
