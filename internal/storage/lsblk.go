package storage

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// lsblkColumns are requested in this order from lsblk -P.
const lsblkColumns = "NAME,PATH,TYPE,RM,FSTYPE,LABEL,MOUNTPOINT"

// Partition is one block device row reported by lsblk.
type Partition struct {
	Name       string
	Path       string
	Type       string
	Removable  bool
	FSType     string
	Label      string
	Mountpoint string
}

// Lister reports block devices.
type Lister func(ctx context.Context) ([]Partition, error)

// ListPartitions runs lsblk and parses its pairs output.
func ListPartitions(ctx context.Context) ([]Partition, error) {
	output, err := exec.CommandContext(ctx, "lsblk", "-P", "-o", lsblkColumns).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run lsblk: %w", err)
	}
	return ParseLSBLK(string(output)), nil
}

// ParseLSBLK parses lsblk -P output into partitions.
func ParseLSBLK(output string) []Partition {
	var parts []Partition
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data := parseLSBLKKeyValueLine(line)
		if len(data) == 0 {
			continue
		}
		path := data["PATH"]
		if path == "" && data["NAME"] != "" {
			path = "/dev/" + data["NAME"]
		}
		parts = append(parts, Partition{
			Name:       data["NAME"],
			Path:       path,
			Type:       data["TYPE"],
			Removable:  data["RM"] == "1",
			FSType:     data["FSTYPE"],
			Label:      data["LABEL"],
			Mountpoint: data["MOUNTPOINT"],
		})
	}
	return parts
}

// FindCandidate returns the first removable partition carrying a filesystem
// other than a disc image format.
func FindCandidate(parts []Partition) (Partition, bool) {
	for _, p := range parts {
		if p.Type != "part" || !p.Removable {
			continue
		}
		switch p.FSType {
		case "", "iso9660", "udf", "swap":
			continue
		}
		return p, true
	}
	return Partition{}, false
}

// parseLSBLKKeyValueLine splits KEY="value" pairs; values may contain spaces.
func parseLSBLKKeyValueLine(line string) map[string]string {
	result := make(map[string]string)
	for len(line) > 0 {
		line = strings.TrimLeft(line, " \t")
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			break
		}
		key := line[:eq]
		rest := line[eq+1:]
		var value string
		if strings.HasPrefix(rest, "\"") {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				value = rest[1:]
				rest = ""
			} else {
				value = rest[1 : end+1]
				rest = rest[end+2:]
			}
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}
			value = rest[:end]
			rest = rest[end:]
		}
		result[key] = unescapeLSBLK(value)
		line = rest
	}
	return result
}

// unescapeLSBLK decodes the \xNN escapes lsblk uses in pairs output.
func unescapeLSBLK(value string) string {
	if !strings.Contains(value, `\x`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) && value[i+1] == 'x' {
			if c, err := strconv.ParseUint(value[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(c))
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}
