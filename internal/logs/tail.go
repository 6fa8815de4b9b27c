package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Last returns up to n trailing lines of path and the offset just past them.
// A missing file yields no lines and offset zero.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if n <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, n)
	count, next := 0, 0
	offset, err := scanLines(file, func(line string) {
		ring[next] = line
		next = (next + 1) % n
		if count < n {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == n {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%n])
	}
	return lines, offset, nil
}

// Follow polls path from offset and calls emit for every new line until ctx
// ends. A file that shrinks is read again from the start, and a file that
// does not exist yet is waited for.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, emit func(string)) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	end, err := scanLines(file, emit)
	if err != nil {
		return offset, err
	}
	return end, nil
}

// scanLines feeds complete lines from the file's current position to fn and
// returns the offset after the last complete line. A trailing partial line is
// left for the next read.
func scanLines(file *os.File, fn func(string)) (int64, error) {
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		fn(strings.TrimSuffix(line[:len(line)-1], "\r"))
	}
}
