// Package history records every capture in a SQLite ledger for operators.
//
// One row per capture id: when it started, the last machine state reached,
// which tray the disc was sorted into and why. The capture loop never reads
// from the ledger to decide what to do next.
//
// Schema changes bump schemaVersion in schema.go; operators delete the
// database to adopt the new schema.
package history
