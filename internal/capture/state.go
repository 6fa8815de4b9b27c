package capture

import (
	"path/filepath"
	"time"
)

// State is a capture machine state.
type State string

const (
	StateWaitingForDisc   State = "waiting_for_disc"
	StatePickedFromSource State = "picked_from_source"
	StateLoadedInDrive    State = "loaded_in_drive"
	StateSelfChecked      State = "self_checked"
	StateImaging          State = "imaging"
	StateImagedSuccess    State = "imaged_success"
	StateImagedFail       State = "imaged_fail"
	StateCoverCaptured    State = "cover_captured"
	StateSorted           State = "sorted"
)

// Tray names a sorting destination.
type Tray string

const (
	TrayDone  Tray = "done"
	TrayError Tray = "error"
)

// Job is the single in-flight capture.
type Job struct {
	ID            string
	StorageRoot   string
	State         State
	Tray          Tray
	Imaged        bool
	CoverPath     string
	Problems      []string
	CloseFailures int
	StartedAt     time.Time
}

// NewJob starts a job bound for the done tray.
func NewJob(id, storageRoot string, now time.Time) *Job {
	return &Job{
		ID:          id,
		StorageRoot: storageRoot,
		State:       StateWaitingForDisc,
		Tray:        TrayDone,
		StartedAt:   now,
	}
}

// Dir is where everything produced for this capture is stored.
func (j *Job) Dir() string {
	return filepath.Join(j.StorageRoot, j.ID)
}

// fail redirects the disc to the error tray and records why.
func (j *Job) fail(problem string) {
	j.Tray = TrayError
	j.Problems = append(j.Problems, problem)
}
