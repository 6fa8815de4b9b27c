// Package daemon coordinates the long-running ripperbot supervisor.
//
// It wires configuration, the capture history, storage detection, the arm
// session and the capture machine into a single lifecycle with flock-based
// locking to prevent multiple instances. Assembly of the per-disc processor
// lives here too so the supervisor and the isolated worker build identical
// pipelines.
//
// Keep orchestration logic here: the capture sequence itself belongs to
// internal/capture while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
