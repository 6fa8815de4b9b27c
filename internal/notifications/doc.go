// Package notifications pushes capture outcomes and fatal faults to an ntfy
// topic. Without a topic every call is a no-op.
package notifications
