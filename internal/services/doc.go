// Package services defines shared utilities consumed by the capture machine
// and its hardware collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp capture IDs and machine states for logging.
//   - Structured error markers plus the Wrap helper so callers can tell
//     protocol, precondition, pickup, and processing faults apart.
package services
