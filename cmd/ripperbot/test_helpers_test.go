package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ripperbot/internal/config"
	"ripperbot/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	configPath := filepath.Join(homeDir, ".config", "ripperbot", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\ntemp_dir = %q\n\n"+
			"[arm]\ndevice = %q\n\n"+
			"[drive]\ndevice = %q\neject_binary = %q\narchiver_binary = %q\n\n"+
			"[vision]\ncamera_binary = %q\n\n"+
			"[storage]\nroot = %q\nrequire_mount = false\nauto_mount = false\nuse_netlink = false\n\n"+
			"[display]\nenabled = false\n\n"+
			"[logging]\nlevel = \"error\"\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.TempDir,
		cfg.Arm.Device,
		cfg.Drive.Device,
		cfg.Drive.EjectBinary,
		cfg.Drive.ArchiverBinary,
		cfg.Vision.CameraBinary,
		cfg.Storage.Root,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
