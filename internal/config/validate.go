package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateArm(); err != nil {
		return err
	}
	if err := c.validatePickup(); err != nil {
		return err
	}
	if err := c.validateSensor(); err != nil {
		return err
	}
	if err := c.validateDrive(); err != nil {
		return err
	}
	if err := c.validateCover(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateArm() error {
	if c.Arm.BaudRate <= 0 {
		return errors.New("arm.baud_rate must be positive")
	}
	if c.Arm.ReadTimeout <= 0 {
		return errors.New("arm.read_timeout must be positive")
	}
	if c.Arm.SequenceModulus < 2 {
		return errors.New("arm.sequence_modulus must be at least 2")
	}
	if c.Arm.DefaultSpeed < 0 {
		return errors.New("arm.default_speed must not be negative")
	}
	if c.Arm.MoveWaitInterval <= 0 {
		return errors.New("arm.move_wait_interval must be positive")
	}
	if c.Arm.MoveWaitTimeout < c.Arm.MoveWaitInterval {
		return errors.New("arm.move_wait_timeout must be at least arm.move_wait_interval")
	}
	if c.Arm.PortSearchDelay < 0 {
		return errors.New("arm.port_search_delay must not be negative")
	}
	return nil
}

func (c *Config) validatePickup() error {
	if c.Pickup.Step <= 0 {
		return errors.New("pickup.step must be positive")
	}
	if c.Pickup.SourceZMin >= c.Positions.SourceTray[2] {
		return fmt.Errorf("pickup.source_z_min (%g) must be below positions.source_tray z (%g)", c.Pickup.SourceZMin, c.Positions.SourceTray[2])
	}
	if c.Pickup.DriveZMin >= c.Positions.DriveTray[2] {
		return fmt.Errorf("pickup.drive_z_min (%g) must be below positions.drive_tray z (%g)", c.Pickup.DriveZMin, c.Positions.DriveTray[2])
	}
	if c.Pickup.GrabDelay < 0 || c.Pickup.ReleaseDelay < 0 {
		return errors.New("pickup.grab_delay and pickup.release_delay must not be negative")
	}
	return nil
}

func (c *Config) validateSensor() error {
	if c.Sensor.LEDPin < 0 || c.Sensor.SensorPin < 0 {
		return errors.New("sensor pins must not be negative")
	}
	if c.Sensor.SettleDelay < 0 {
		return errors.New("sensor.settle_delay must not be negative")
	}
	if c.Sensor.PollInterval <= 0 {
		return errors.New("sensor.poll_interval must be positive")
	}
	return nil
}

func (c *Config) validateDrive() error {
	if c.Drive.CloseAttempts < 1 {
		return errors.New("drive.close_attempts must be at least 1")
	}
	if c.Drive.SelfCheckDelay <= 0 {
		return errors.New("drive.self_check_delay must be positive")
	}
	if c.Vision.CalibrationDelay <= 0 {
		return errors.New("vision.calibration_delay must be positive")
	}
	if c.Vision.CenterMarkerID == c.Vision.EdgeMarkerID {
		return errors.New("vision.center_marker_id and vision.edge_marker_id must differ")
	}
	return nil
}

func (c *Config) validateCover() error {
	if c.Cover.HoleRatio <= 0 || c.Cover.HoleRatio >= 1 {
		return errors.New("cover.hole_ratio must be between 0 and 1")
	}
	if c.Cover.RadiusTolerance <= 0 || c.Cover.RadiusTolerance >= 0.5 {
		return errors.New("cover.radius_tolerance must be between 0 and 0.5")
	}
	if c.Cover.BlurSigma < 0 {
		return errors.New("cover.blur_sigma must not be negative")
	}
	if c.Cover.EdgeThreshold <= 0 {
		return errors.New("cover.edge_threshold must be positive")
	}
	if c.Cover.VoteThreshold <= 0 || c.Cover.VoteThreshold > 1 {
		return errors.New("cover.vote_threshold must be between 0 and 1")
	}
	if c.Cover.MinDistance < 1 {
		return errors.New("cover.min_distance must be at least 1")
	}
	if c.Cover.MaxCircles < 1 {
		return errors.New("cover.max_circles must be at least 1")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.AutoMount && len(c.Storage.MountCommand) == 0 {
		return errors.New("storage.mount_command must be set when storage.auto_mount is enabled")
	}
	if c.Storage.SearchDelay <= 0 {
		return errors.New("storage.search_delay must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	switch c.Workflow.Isolation {
	case IsolationInProcess, IsolationWorker:
		return nil
	default:
		return fmt.Errorf("workflow.isolation: unsupported value %q (want %q or %q)", c.Workflow.Isolation, IsolationInProcess, IsolationWorker)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	for component, level := range c.Logging.ComponentLevels {
		if !validLevel(level) {
			return fmt.Errorf("logging.component_levels.%s: unsupported level %q", component, level)
		}
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
