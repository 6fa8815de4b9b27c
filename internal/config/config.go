package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	TempDir  string `toml:"temp_dir"`
}

// Arm contains serial link and motion settings for the robot arm.
type Arm struct {
	Device           string  `toml:"device"`
	BaudRate         int     `toml:"baud_rate"`
	ReadTimeout      float64 `toml:"read_timeout"`
	PortSearchDelay  float64 `toml:"port_search_delay"`
	SequenceModulus  int     `toml:"sequence_modulus"`
	DefaultSpeed     float64 `toml:"default_speed"`
	MoveWaitInterval float64 `toml:"move_wait_interval"`
	MoveWaitTimeout  float64 `toml:"move_wait_timeout"`
	HomeServo        int     `toml:"home_servo"`
	HomeServoAngle   float64 `toml:"home_servo_angle"`
}

// Point3 is an [x, y, z] coordinate in millimetres.
type Point3 [3]float64

// Positions contains the named arm poses. They are read-only once loaded.
type Positions struct {
	Origin     Point3 `toml:"origin"`
	SourceTray Point3 `toml:"source_tray"`
	DriveTray  Point3 `toml:"drive_tray"`
	DoneTray   Point3 `toml:"done_tray"`
	ErrorTray  Point3 `toml:"error_tray"`
}

// Pickup contains the descent probe and suction gripper settings.
type Pickup struct {
	SourceZMin      float64 `toml:"source_z_min"`
	DriveZMin       float64 `toml:"drive_z_min"`
	Step            float64 `toml:"step"`
	SwitchActiveLow bool    `toml:"switch_active_low"`
	GrabDelay       float64 `toml:"grab_delay"`
	ReleaseDelay    float64 `toml:"release_delay"`
}

// Sensor contains the differential disc presence sensor settings.
type Sensor struct {
	LEDPin       int     `toml:"led_pin"`
	SensorPin    int     `toml:"sensor_pin"`
	Threshold    float64 `toml:"threshold"`
	SettleDelay  float64 `toml:"settle_delay"`
	PollInterval float64 `toml:"poll_interval"`
}

// Drive contains optical drive and imaging tool settings.
type Drive struct {
	Device         string  `toml:"device"`
	EjectBinary    string  `toml:"eject_binary"`
	ArchiverBinary string  `toml:"archiver_binary"`
	CloseAttempts  int     `toml:"close_attempts"`
	SelfCheckDelay float64 `toml:"self_check_delay"`
}

// Vision contains camera and calibration marker settings.
type Vision struct {
	CameraBinary     string  `toml:"camera_binary"`
	ArucoDictionary  string  `toml:"aruco_dictionary"`
	CenterMarkerID   int     `toml:"center_marker_id"`
	EdgeMarkerID     int     `toml:"edge_marker_id"`
	CalibrationDelay float64 `toml:"calibration_delay"`
	KeepPhotos       bool    `toml:"keep_photos"`
}

// Cover contains the mask geometry and circle search tuning constants.
type Cover struct {
	FileName        string  `toml:"file_name"`
	MaskRadiusFix   int     `toml:"mask_radius_fix"`
	HoleRatio       float64 `toml:"hole_ratio"`
	RadiusTolerance float64 `toml:"radius_tolerance"`
	BlurSigma       float64 `toml:"blur_sigma"`
	EdgeThreshold   float64 `toml:"edge_threshold"`
	VoteThreshold   float64 `toml:"vote_threshold"`
	MinDistance     int     `toml:"min_distance"`
	MaxCircles      int     `toml:"max_circles"`
}

// Storage contains capture destination settings.
type Storage struct {
	Root         string   `toml:"root"`
	RequireMount bool     `toml:"require_mount"`
	AutoMount    bool     `toml:"auto_mount"`
	MountCommand []string `toml:"mount_command"`
	SearchDelay  float64  `toml:"search_delay"`
	UseNetlink   bool     `toml:"use_netlink"`
}

// Workflow contains capture loop policy.
type Workflow struct {
	Isolation    string `toml:"isolation"`
	WorkerBinary string `toml:"worker_binary"`
}

// Display contains the status line output settings.
type Display struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Sorted         bool   `toml:"sorted"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	CaptureLogs     bool              `toml:"capture_logs"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for ripperbot.
//
// Configuration sections by subsystem:
//   - Paths: state, log and scratch directories
//   - Arm: serial link, sequencing and move polling
//   - Positions: named arm poses
//   - Pickup: descent probe and suction timing
//   - Sensor: differential disc presence sensor
//   - Drive: tray actuation, imaging tool and self-check
//   - Vision: camera tool and calibration markers
//   - Cover: mask geometry and circle search tuning
//   - Storage: capture destination and mounting
//   - Workflow: in-process or isolated worker captures
//   - Display: status line
//   - Notifications: ntfy push notification settings
//   - Logging: log format and levels
type Config struct {
	Paths         Paths         `toml:"paths"`
	Arm           Arm           `toml:"arm"`
	Positions     Positions     `toml:"positions"`
	Pickup        Pickup        `toml:"pickup"`
	Sensor        Sensor        `toml:"sensor"`
	Drive         Drive         `toml:"drive"`
	Vision        Vision        `toml:"vision"`
	Cover         Cover         `toml:"cover"`
	Storage       Storage       `toml:"storage"`
	Workflow      Workflow      `toml:"workflow"`
	Display       Display       `toml:"display"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ripperbot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to. The storage
// root is left alone because it is usually a removable mount.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CalibrationPath returns where the run's calibration markers are persisted.
func (c *Config) CalibrationPath() string {
	return filepath.Join(c.Paths.StateDir, "calibration.json")
}

// HistoryPath returns the capture history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// ArmLockPath returns the lock file guarding exclusive serial port ownership.
func (c *Config) ArmLockPath() string {
	return filepath.Join(c.Paths.StateDir, "arm.lock")
}

// DaemonLockPath returns the lock file guarding the single supervisor instance.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "ripperbot.lock")
}

// CaptureDir returns the per-capture output directory under the storage root.
func (c *Config) CaptureDir(captureID string) string {
	return filepath.Join(c.Storage.Root, captureID)
}

// Seconds converts a fractional seconds setting into a duration.
func Seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
