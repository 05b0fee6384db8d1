package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir and its parents if missing
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// ExpandPath resolves a leading ~ against the home directory. Config files
// use it for the store and cache locations.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// IsWritableDir reports whether dir exists (or can be created) and accepts
// new files
func IsWritableDir(dir string) bool {
	if EnsureDir(dir) != nil {
		return false
	}
	probe, err := os.CreateTemp(dir, ".photofeed-probe-*")
	if err != nil {
		return false
	}
	probe.Close()
	return os.Remove(probe.Name()) == nil
}
