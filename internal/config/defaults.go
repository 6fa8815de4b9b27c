package config

const (
	defaultConfigPath          = "~/.config/ripperbot/config.toml"
	defaultStateDir            = "~/.local/share/ripperbot"
	defaultLogDir              = "~/.local/share/ripperbot/logs"
	defaultTempDir             = "~/.local/share/ripperbot/tmp"
	defaultBaudRate            = 115200
	defaultReadTimeout         = 30.0
	defaultPortSearchDelay     = 10.0
	defaultSequenceModulus     = 100
	defaultArmSpeed            = 100.0
	defaultMoveWaitInterval    = 0.2
	defaultMoveWaitTimeout     = 60.0
	defaultHomeServo           = 3
	defaultHomeServoAngle      = 90.0
	defaultSourceZMin          = 20.0
	defaultDriveZMin           = 1.0
	defaultPickupStep          = 1.0
	defaultGrabDelay           = 2.0
	defaultReleaseDelay        = 3.0
	defaultLEDPin              = 9
	defaultSensorPin           = 3
	defaultSensorThreshold     = 200.0
	defaultSensorSettleDelay   = 0.3
	defaultSensorPollInterval  = 0.3
	defaultDriveDevice         = "/dev/cdrom"
	defaultEjectBinary         = "eject"
	defaultArchiverBinary      = "plastic-archiver.sh"
	defaultCloseAttempts       = 3
	defaultSelfCheckDelay      = 5.0
	defaultCameraBinary        = "shoot-photo.sh"
	defaultArucoDictionary     = "DICT_6X6_250"
	defaultCenterMarkerID      = 5
	defaultEdgeMarkerID        = 2
	defaultCalibrationDelay    = 3.0
	defaultCoverFileName       = "cover.png"
	defaultMaskRadiusFix       = -230
	defaultHoleRatio           = 0.125
	defaultRadiusTolerance     = 0.02
	defaultBlurSigma           = 2.0
	defaultEdgeThreshold       = 60.0
	defaultVoteThreshold       = 0.35
	defaultMinDistance         = 20
	defaultMaxCircles          = 16
	defaultStorageRoot         = "/mnt/storage"
	defaultStorageSearchDelay  = 10.0
	defaultIsolation           = IsolationInProcess
	defaultDisplayPath         = "/run/fred/line1"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Capture isolation modes for [workflow] isolation.
const (
	IsolationInProcess = "inprocess"
	IsolationWorker    = "worker"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			TempDir:  defaultTempDir,
		},
		Arm: Arm{
			BaudRate:         defaultBaudRate,
			ReadTimeout:      defaultReadTimeout,
			PortSearchDelay:  defaultPortSearchDelay,
			SequenceModulus:  defaultSequenceModulus,
			DefaultSpeed:     defaultArmSpeed,
			MoveWaitInterval: defaultMoveWaitInterval,
			MoveWaitTimeout:  defaultMoveWaitTimeout,
			HomeServo:        defaultHomeServo,
			HomeServoAngle:   defaultHomeServoAngle,
		},
		Positions: Positions{
			Origin:     Point3{0, 150, 100},
			SourceTray: Point3{-99, 79, 100},
			DriveTray:  Point3{27, 185, 53},
			DoneTray:   Point3{-259, 211, 100},
			ErrorTray:  Point3{150, 300, 53},
		},
		Pickup: Pickup{
			SourceZMin:      defaultSourceZMin,
			DriveZMin:       defaultDriveZMin,
			Step:            defaultPickupStep,
			SwitchActiveLow: true,
			GrabDelay:       defaultGrabDelay,
			ReleaseDelay:    defaultReleaseDelay,
		},
		Sensor: Sensor{
			LEDPin:       defaultLEDPin,
			SensorPin:    defaultSensorPin,
			Threshold:    defaultSensorThreshold,
			SettleDelay:  defaultSensorSettleDelay,
			PollInterval: defaultSensorPollInterval,
		},
		Drive: Drive{
			Device:         defaultDriveDevice,
			EjectBinary:    defaultEjectBinary,
			ArchiverBinary: defaultArchiverBinary,
			CloseAttempts:  defaultCloseAttempts,
			SelfCheckDelay: defaultSelfCheckDelay,
		},
		Vision: Vision{
			CameraBinary:     defaultCameraBinary,
			ArucoDictionary:  defaultArucoDictionary,
			CenterMarkerID:   defaultCenterMarkerID,
			EdgeMarkerID:     defaultEdgeMarkerID,
			CalibrationDelay: defaultCalibrationDelay,
		},
		Cover: Cover{
			FileName:        defaultCoverFileName,
			MaskRadiusFix:   defaultMaskRadiusFix,
			HoleRatio:       defaultHoleRatio,
			RadiusTolerance: defaultRadiusTolerance,
			BlurSigma:       defaultBlurSigma,
			EdgeThreshold:   defaultEdgeThreshold,
			VoteThreshold:   defaultVoteThreshold,
			MinDistance:     defaultMinDistance,
			MaxCircles:      defaultMaxCircles,
		},
		Storage: Storage{
			Root:         defaultStorageRoot,
			RequireMount: true,
			AutoMount:    true,
			MountCommand: []string{"sudo", "mount"},
			SearchDelay:  defaultStorageSearchDelay,
			UseNetlink:   true,
		},
		Workflow: Workflow{
			Isolation: defaultIsolation,
		},
		Display: Display{
			Enabled: true,
			Path:    defaultDisplayPath,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Sorted:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format:      defaultLogFormat,
			Level:       defaultLogLevel,
			CaptureLogs: true,
		},
	}
}
