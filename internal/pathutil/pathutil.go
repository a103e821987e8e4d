// Package pathutil implements the slash-separated, root-relative path
// conventions shared by every storage backend and the transfer engine: a
// trailing separator marks a directory, and "" or "/" is the root.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// JoinDir concatenates a base directory and a child name with exactly one
// separator.
func JoinDir(base, name string) string {
	switch {
	case base == "" || base == "/":
		return name
	case strings.HasSuffix(base, "/"):
		return base + name
	default:
		return base + "/" + name
	}
}

// EnsureDir guarantees a trailing separator on a directory path.
func EnsureDir(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// ParentDir returns the immediate parent directory of a path (with its
// trailing separator), or false when the path is already at the root.
func ParentDir(path string) (string, bool) {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", false
	}
	parent := trimmed[:idx+1]
	if parent == "" || parent == "/" {
		return "", false
	}
	return parent, true
}

// BaseName returns the last segment of a path, ignoring any trailing
// separator.
func BaseName(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// SplitName splits a file name into stem and extension, keeping only the
// last dot-delimited suffix as the extension. Names beginning with a dot and
// extensionless names have no extension; the returned extension includes its
// leading dot when present.
func SplitName(name string) (stem, ext string) {
	if strings.HasPrefix(name, ".") {
		return name, ""
	}
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

// ExpandHome expands a leading "~", "~/" or "~\" prefix to the current
// user's home directory. Paths without the prefix are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
