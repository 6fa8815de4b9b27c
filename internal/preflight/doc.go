// Package preflight provides readiness checks for the hardware, external
// programs and filesystem paths ripperbot depends on.
//
// These checks run in two contexts:
//   - The supervisor logs a snapshot of RunAll before taking the arm, so a
//     missing camera script shows up before the first disc is picked.
//   - The CLI "ripperbot status" command renders the same results as a table.
//
// Checks never block on hardware motion; they only open devices read-only.
package preflight
