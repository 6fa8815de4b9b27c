package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"ripperbot/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var (
	statusLabels = map[statusKind]string{
		statusInfo:  "INFO",
		statusOK:    "OK",
		statusWarn:  "WARN",
		statusError: "ERROR",
	}
	statusColors = map[statusKind]text.Colors{
		statusInfo:  {text.FgBlue},
		statusOK:    {text.FgGreen},
		statusWarn:  {text.FgYellow},
		statusError: {text.FgRed},
	}
	sectionColors = text.Colors{text.FgBlue}
)

// renderStatusLine formats "  label:   [KIND] message". Colour is applied
// explicitly so the output does not depend on go-pretty's environment probe.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	status := "[" + statusLabels[kind] + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	if colorize {
		return text.Escape(line, statusColors[kind].EscapeSeq())
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		seq := sectionColors.EscapeSeq()
		return []string{text.Escape(line, seq), text.Escape(rule, seq)}
	}
	return []string{line, rule}
}

// supervisorStatus maps the lock probe to a status line.
func supervisorStatus(running bool, err error) (statusKind, string) {
	switch {
	case err != nil:
		return statusWarn, err.Error()
	case running:
		return statusOK, "Running"
	default:
		return statusInfo, "Not running"
	}
}

func checkKind(r preflight.Result) statusKind {
	if r.Passed {
		return statusOK
	}
	return statusError
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
