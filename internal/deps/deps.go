package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement is an external program ripperbot shells out to.
type Requirement struct {
	Name        string
	Command     string
	ConfigKey   string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	ConfigKey   string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// CheckBinaries resolves every requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			ConfigKey:   req.ConfigKey,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch path, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
			if req.ConfigKey != "" {
				status.Detail += " (set " + req.ConfigKey + ")"
			}
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required entries that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

// Summary renders missing requirements as one line, or "" when all are present.
func Summary(statuses []Status) string {
	missing := Missing(statuses)
	if len(missing) == 0 {
		return ""
	}
	parts := make([]string, 0, len(missing))
	for _, s := range missing {
		parts = append(parts, s.Name+": "+s.Detail)
	}
	return strings.Join(parts, "; ")
}
