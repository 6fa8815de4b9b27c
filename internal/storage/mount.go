package storage

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsMountpoint reports whether path is the root of a mounted filesystem:
// its device differs from its parent's, or it is the same inode as its
// parent (the filesystem root).
func IsMountpoint(path string) (bool, error) {
	path = filepath.Clean(path)
	var self, parent unix.Stat_t
	if err := unix.Lstat(path, &self); err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if self.Mode&unix.S_IFMT == unix.S_IFLNK {
		return false, nil
	}
	if err := unix.Lstat(filepath.Join(path, ".."), &parent); err != nil {
		return false, fmt.Errorf("stat parent of %s: %w", path, err)
	}
	if self.Dev != parent.Dev {
		return true, nil
	}
	return self.Ino == parent.Ino, nil
}
