package chess

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/adrg/xdg"
)

var ErrEngineNotFound = errors.New("unable to locate Stockfish executable")

// LocateOptions controls engine discovery. An explicit path disables
// every other lookup.
type LocateOptions struct {
	ExplicitPath string
	// BundledDirs are searched, in order, for the platform's bundled names.
	BundledDirs []string
	GOOS        string
}

// BundledDirs are <exe dir>/engines and <data dir>/engines.
func BundledDirs(dataDir string) []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "engines"))
	}
	if strings.TrimSpace(dataDir) != "" {
		dirs = append(dirs, filepath.Join(dataDir, "engines"))
	}
	return dirs
}

func Locate(opts LocateOptions) (string, error) {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	if explicit := strings.TrimSpace(opts.ExplicitPath); explicit != "" {
		if resolved, ok := resolveCandidate(explicit, goos); ok {
			return resolved, nil
		}
		return "", fmt.Errorf("%w at %s", ErrEngineNotFound, explicit)
	}

	if found, err := exec.LookPath("stockfish"); err == nil {
		return found, nil
	}

	for _, dir := range opts.BundledDirs {
		for _, name := range bundledNames(goos) {
			if resolved, ok := resolveCandidate(filepath.Join(dir, name), goos); ok {
				return resolved, nil
			}
		}
	}
	return "", ErrEngineNotFound
}

func bundledNames(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"stockfish-macos"}
	case "windows":
		return []string{"stockfish-windows", "stockfish-windows.exe", "stockfish.exe"}
	default:
		return []string{"stockfish-linux", "stockfish"}
	}
}

func expandHome(path string) string {
	if path == "~" {
		return xdg.Home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(xdg.Home, path[2:])
	}
	return path
}

func resolveCandidate(path, goos string) (string, bool) {
	expanded, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", false
	}
	info, err := os.Stat(expanded)
	if err == nil {
		if info.IsDir() {
			return findExecutableInDir(expanded, goos)
		}
		if isExecutable(info, expanded, goos) {
			return expanded, true
		}
	}
	if located, err := exec.LookPath(path); err == nil {
		return located, true
	}
	return "", false
}

// findExecutableInDir walks dir in sorted order, descending into
// subdirectories as they are met.
func findExecutableInDir(dir, goos string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if nested, ok := findExecutableInDir(full, goos); ok {
				return nested, true
			}
			continue
		}
		if !strings.Contains(strings.ToLower(entry.Name()), "stockfish") {
			continue
		}
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if isExecutable(info, full, goos) {
			return full, true
		}
	}
	return "", false
}

func isExecutable(info os.FileInfo, path, goos string) bool {
	if info.IsDir() {
		return false
	}
	if goos == "windows" {
		return strings.HasSuffix(strings.ToLower(path), ".exe") || info.Mode()&0o111 != 0
	}
	return info.Mode()&0o111 != 0
}
