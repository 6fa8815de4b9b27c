package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeArm()
	c.normalizeDrive()
	c.normalizeVision()
	c.normalizeCover()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeArm() {
	c.Arm.Device = strings.TrimSpace(c.Arm.Device)
	if c.Arm.BaudRate == 0 {
		c.Arm.BaudRate = defaultBaudRate
	}
	if c.Arm.SequenceModulus == 0 {
		c.Arm.SequenceModulus = defaultSequenceModulus
	}
	if c.Arm.MoveWaitInterval == 0 {
		c.Arm.MoveWaitInterval = defaultMoveWaitInterval
	}
	if c.Arm.MoveWaitTimeout == 0 {
		c.Arm.MoveWaitTimeout = defaultMoveWaitTimeout
	}
}

func (c *Config) normalizeDrive() {
	c.Drive.Device = strings.TrimSpace(c.Drive.Device)
	if c.Drive.Device == "" {
		c.Drive.Device = defaultDriveDevice
	}
	c.Drive.EjectBinary = strings.TrimSpace(c.Drive.EjectBinary)
	if c.Drive.EjectBinary == "" {
		c.Drive.EjectBinary = defaultEjectBinary
	}
	c.Drive.ArchiverBinary = strings.TrimSpace(c.Drive.ArchiverBinary)
	if c.Drive.ArchiverBinary == "" {
		c.Drive.ArchiverBinary = defaultArchiverBinary
	}
}

func (c *Config) normalizeVision() {
	c.Vision.CameraBinary = strings.TrimSpace(c.Vision.CameraBinary)
	if c.Vision.CameraBinary == "" {
		c.Vision.CameraBinary = defaultCameraBinary
	}
	c.Vision.ArucoDictionary = strings.ToUpper(strings.TrimSpace(c.Vision.ArucoDictionary))
	if c.Vision.ArucoDictionary == "" {
		c.Vision.ArucoDictionary = defaultArucoDictionary
	}
}

func (c *Config) normalizeCover() {
	c.Cover.FileName = strings.TrimSpace(c.Cover.FileName)
	if c.Cover.FileName == "" {
		c.Cover.FileName = defaultCoverFileName
	}
	if c.Cover.MaxCircles == 0 {
		c.Cover.MaxCircles = defaultMaxCircles
	}
}

func (c *Config) normalizeStorage() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		c.Storage.Root = defaultStorageRoot
	}
	var err error
	if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
		return fmt.Errorf("storage.root: %w", err)
	}
	cleaned := c.Storage.MountCommand[:0]
	for _, part := range c.Storage.MountCommand {
		if part = strings.TrimSpace(part); part != "" {
			cleaned = append(cleaned, part)
		}
	}
	c.Storage.MountCommand = cleaned
	return nil
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.Isolation = strings.ToLower(strings.TrimSpace(c.Workflow.Isolation))
	if c.Workflow.Isolation == "" {
		c.Workflow.Isolation = defaultIsolation
	}
	c.Workflow.WorkerBinary = strings.TrimSpace(c.Workflow.WorkerBinary)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.ComponentLevels) > 0 {
		levels := make(map[string]string, len(c.Logging.ComponentLevels))
		for component, level := range c.Logging.ComponentLevels {
			component = strings.ToLower(strings.TrimSpace(component))
			if component == "" {
				continue
			}
			levels[component] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.ComponentLevels = levels
	}
}
