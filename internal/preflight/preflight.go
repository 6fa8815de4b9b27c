package preflight

import (
	"context"

	"ripperbot/internal/config"
	"ripperbot/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check that applies to cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckStorage(cfg),
		CheckArmPort(cfg),
		CheckDrive(cfg.Drive.Device),
		CheckCalibration(cfg.CalibrationPath()),
		CheckMarkerDetector(),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromDependency(status))
	}
	return results
}

// Failed returns the failed results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromDependency(s deps.Status) Result {
	r := Result{Name: s.Name, Passed: s.Available || s.Optional}
	switch {
	case s.Available:
		r.Detail = s.Path
	case s.Optional:
		r.Detail = s.Detail + " (optional)"
	default:
		r.Detail = s.Detail
	}
	return r
}
