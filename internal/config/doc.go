// Package config loads, normalizes, and validates ripperbot configuration data.
//
// It supplies defaults matching the reference hardware build (tray positions,
// sensor pins, pump timing, mask geometry), expands user paths, and reads TOML
// files. The Config value is built once at process start and passed by
// pointer into every component constructor; nothing mutates it afterwards.
package config
