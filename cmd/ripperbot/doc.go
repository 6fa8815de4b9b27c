// Package main hosts the ripperbot CLI entrypoint and command graph.
//
// The Cobra command tree starts the supervisor, runs isolated capture
// workers, and exposes the arm, sensor and calibration steps individually so
// an operator can bring up new hardware one piece at a time. Configuration
// resolution and logger setup live in commandContext so subcommands only do
// their own work.
//
// Keep this package lean: behavior belongs in the internal packages, and
// commands here only wire and render it.
package main
