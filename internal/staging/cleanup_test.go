package staging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ripperbot/internal/staging"
)

func touch(t *testing.T, path string, size int, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestCleanStaleRemovesOldPhotos(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "photo-old.jpg")
	fresh := filepath.Join(dir, "photo-new.jpg")
	touch(t, old, 100, 48*time.Hour)
	touch(t, fresh, 50, time.Minute)

	result := staging.CleanStale(context.Background(), dir, 24*time.Hour, nil)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("removed = %v, want only %s", result.Removed, old)
	}
	if result.Freed != 100 {
		t.Fatalf("freed = %d, want 100", result.Freed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh photo should remain: %v", err)
	}
}

func TestCleanStaleRemovesDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "leftover")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	touch(t, filepath.Join(sub, "a.jpg"), 10, 0)
	when := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(sub, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result := staging.CleanStale(context.Background(), dir, time.Hour, nil)
	if len(result.Removed) != 1 || result.Freed != 10 {
		t.Fatalf("result = %+v", result)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatalf("directory should be gone, stat err=%v", err)
	}
}

func TestListMissingDirectory(t *testing.T) {
	entries, err := staging.List(filepath.Join(t.TempDir(), "absent"))
	if err != nil || entries != nil {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
}

func TestListOrdersOldestFirst(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.jpg"), 1, time.Minute)
	touch(t, filepath.Join(dir, "a.jpg"), 1, time.Hour)

	entries, err := staging.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.jpg" {
		t.Fatalf("entries = %+v", entries)
	}
}
