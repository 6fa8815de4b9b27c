package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"ripperbot/internal/arm"
	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/deps"
	"ripperbot/internal/disc"
	"ripperbot/internal/storage"
	"ripperbot/internal/vision"
)

// portLister is swapped in tests.
var portLister = arm.ListPorts

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStorage reports whether the capture root is usable right now.
func CheckStorage(cfg *config.Config) Result {
	const name = "Storage"
	st := storage.NewManager(cfg, nil).Check()
	switch {
	case st.Ready:
		detail := st.Root
		if st.Mounted {
			detail += " (mounted)"
		}
		return Result{Name: name, Passed: true, Detail: detail}
	case !st.Exists:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", st.Root)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a mountpoint)", st.Root)}
	}
}

// CheckArmPort verifies that the configured serial device exists, or that at
// least one candidate port is present when discovery is used.
func CheckArmPort(cfg *config.Config) Result {
	const name = "Arm port"
	if device := strings.TrimSpace(cfg.Arm.Device); device != "" {
		if _, err := os.Stat(device); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", device, err)}
		}
		return Result{Name: name, Passed: true, Detail: device}
	}
	ports, err := portLister()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("enumerate ports: %v", err)}
	}
	candidates := arm.CandidatePorts(ports)
	if len(candidates) == 0 {
		return Result{Name: name, Detail: "no USB serial ports found"}
	}
	return Result{Name: name, Passed: true, Detail: "discovery: " + strings.Join(candidates, ", ")}
}

// CheckDrive queries the drive tray state. An open tray or missing disc is
// fine; an unreadable device is not.
func CheckDrive(device string) Result {
	const name = "Optical drive"
	status, err := disc.CheckDriveStatus(device)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", device, status)}
}

// CheckCalibration reports the last saved calibration. A missing file only
// means no run has calibrated yet.
func CheckCalibration(path string) Result {
	const name = "Calibration"
	markers, err := calibration.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Name: name, Passed: true, Detail: "not calibrated yet"}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("center %s, edge %s, radius %.0f px",
		markers.DiskCenter, markers.DiskEdge, markers.DiskCenter.Dist(markers.DiskEdge))}
}

// CheckMarkerDetector reports whether calibration can succeed in this build.
func CheckMarkerDetector() Result {
	const name = "Marker detector"
	if !vision.OpenCVEnabled {
		return Result{Name: name, Detail: "built without the opencv tag; calibration cannot complete"}
	}
	return Result{Name: name, Passed: true, Detail: "OpenCV ArUco"}
}

// CheckSystemDeps lists the external programs the configured run needs.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "eject",
			Command:     cfg.Drive.EjectBinary,
			ConfigKey:   "drive.eject_binary",
			Description: "Opens and closes the drive tray",
		},
		{
			Name:        "Archiver",
			Command:     cfg.Drive.ArchiverBinary,
			ConfigKey:   "drive.archiver_binary",
			Description: "Images the disc",
		},
		{
			Name:        "Camera",
			Command:     cfg.Vision.CameraBinary,
			ConfigKey:   "vision.camera_binary",
			Description: "Photographs the disc in the open tray",
		},
		{
			Name:        "lsblk",
			Command:     "lsblk",
			Description: "Finds removable storage to mount",
			Optional:    !cfg.Storage.AutoMount,
		},
	}
	if cfg.Storage.AutoMount && len(cfg.Storage.MountCommand) > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "Mount",
			Command:     cfg.Storage.MountCommand[0],
			ConfigKey:   "storage.mount_command",
			Description: "Mounts removable storage",
		})
	}
	if cfg.Workflow.Isolation == config.IsolationWorker && cfg.Workflow.WorkerBinary != "" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Worker",
			Command:     cfg.Workflow.WorkerBinary,
			ConfigKey:   "workflow.worker_binary",
			Description: "Runs isolated captures",
		})
	}
	return deps.CheckBinaries(requirements)
}
