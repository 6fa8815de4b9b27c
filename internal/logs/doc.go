// Package logs reads log files for the CLI: the last N lines of a file and a
// polling follower that survives the supervisor swapping its current-log
// pointer or truncating a file.
package logs
