// Package storage makes sure the capture destination is mounted before the
// capture loop starts.
//
// Readiness means the storage root exists and, when required, is a
// mountpoint. If it is not, the first removable data partition reported by
// lsblk is mounted on it. Waiting wakes early on udev block events.
package storage
