// Package staging keeps the scratch directory tidy. Camera photos land there
// and are removed after each capture, but a crash mid-capture can strand them.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ripperbot/internal/logging"
)

// Result contains the outcome of a cleanup pass.
type Result struct {
	Removed []string
	Freed   int64
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Entry describes one item in the scratch directory.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	IsDir   bool
}

// CleanStale removes entries in dir last modified more than maxAge ago.
func CleanStale(ctx context.Context, dir string, maxAge time.Duration, logger *slog.Logger) Result {
	var result Result
	entries, err := List(dir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(entry.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: entry.Path, Error: err})
			logger.Warn("failed to remove stale scratch entry",
				logging.String("path", entry.Path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scratch_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check paths.temp_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, entry.Path)
		result.Freed += entry.Size
		logger.Info("removed stale scratch entry",
			logging.String("path", entry.Path),
			logging.Duration("age", time.Since(entry.ModTime)),
			logging.String(logging.FieldEventType, "scratch_cleanup"),
		)
	}
	return result
}

// List returns the scratch directory contents, oldest first. A missing
// directory is empty.
func List(dir string) ([]Entry, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, de.Name())
		size := info.Size()
		if de.IsDir() {
			size, _ = dirSize(path)
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    size,
			IsDir:   de.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ModTime.Before(entries[j].ModTime) })
	return entries, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
