// Package logging assembles structured slog loggers for the daemon, the
// capture worker and the CLI.
//
// It owns the console and JSON handlers, per-component level overrides, and
// context helpers that tag log lines with the in-flight capture ID and machine
// state. Captures can tee their output into a JSON log file stored next to
// the disc image.
package logging
