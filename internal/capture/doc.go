// Package capture runs the per-disc lifecycle: wait for a disc, pick it,
// load and image it, photograph the cover, and sort it into the done or
// error tray.
//
// A Machine owns the run: it performs the once-per-run drive self-check and
// camera calibration, then loops over discs. Each disc is handed to a Runner,
// either in process or in an isolated worker that temporarily takes over the
// arm. Processing faults only redirect a disc to the error tray; pickup
// faults stop the loop because the physical state can no longer be trusted.
package capture
