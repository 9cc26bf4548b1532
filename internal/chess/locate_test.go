package chess

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func touch(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX permission bits")
	}
}

func TestLocateExplicitFile(t *testing.T) {
	skipOnWindows(t)
	path := filepath.Join(t.TempDir(), "my-engine")
	touch(t, path, 0o755)

	got, err := Locate(LocateOptions{ExplicitPath: path})
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	if got != path {
		t.Fatalf("got %q want %q", got, path)
	}
}

func TestLocateExplicitNonExecutableFile(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("PATH", "")
	path := filepath.Join(t.TempDir(), "stockfish")
	touch(t, path, 0o644)

	_, err := Locate(LocateOptions{ExplicitPath: path})
	if !errors.Is(err, ErrEngineNotFound) {
		t.Fatalf("expected ErrEngineNotFound, got %v", err)
	}
}

func TestLocateExplicitDirectorySearchesRecursively(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "README"), 0o644)
	touch(t, filepath.Join(root, "a", "stockfish-notes.txt"), 0o644)
	want := filepath.Join(root, "b", "bin", "Stockfish-17")
	touch(t, want, 0o755)
	touch(t, filepath.Join(root, "c", "stockfish"), 0o755)

	got, err := Locate(LocateOptions{ExplicitPath: root})
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	if got != want {
		t.Fatalf("expected first sorted match %q, got %q", want, got)
	}
}

func TestLocateExplicitPathDisablesFallbacks(t *testing.T) {
	skipOnWindows(t)
	pathDir := t.TempDir()
	touch(t, filepath.Join(pathDir, "stockfish"), 0o755)
	t.Setenv("PATH", pathDir)

	_, err := Locate(LocateOptions{ExplicitPath: filepath.Join(t.TempDir(), "absent")})
	if !errors.Is(err, ErrEngineNotFound) {
		t.Fatalf("expected ErrEngineNotFound, got %v", err)
	}
}

func TestLocatePrefersPATH(t *testing.T) {
	skipOnWindows(t)
	pathDir := t.TempDir()
	onPath := filepath.Join(pathDir, "stockfish")
	touch(t, onPath, 0o755)
	t.Setenv("PATH", pathDir)

	bundled := t.TempDir()
	touch(t, filepath.Join(bundled, "stockfish-linux"), 0o755)

	got, err := Locate(LocateOptions{BundledDirs: []string{bundled}, GOOS: "linux"})
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	if got != onPath {
		t.Fatalf("got %q want %q", got, onPath)
	}
}

func TestLocateBundledPerPlatform(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("PATH", "")
	bundled := t.TempDir()
	mac := filepath.Join(bundled, "stockfish-macos")
	linux := filepath.Join(bundled, "stockfish-linux")
	touch(t, mac, 0o755)
	touch(t, linux, 0o755)

	got, err := Locate(LocateOptions{BundledDirs: []string{filepath.Join(bundled, "missing"), bundled}, GOOS: "darwin"})
	if err != nil || got != mac {
		t.Fatalf("darwin: got %q, %v", got, err)
	}
	got, err = Locate(LocateOptions{BundledDirs: []string{bundled}, GOOS: "linux"})
	if err != nil || got != linux {
		t.Fatalf("linux: got %q, %v", got, err)
	}
}

func TestLocateNothingFound(t *testing.T) {
	t.Setenv("PATH", "")
	_, err := Locate(LocateOptions{BundledDirs: []string{t.TempDir()}, GOOS: "linux"})
	if !errors.Is(err, ErrEngineNotFound) {
		t.Fatalf("expected ErrEngineNotFound, got %v", err)
	}
}

func TestBundledNames(t *testing.T) {
	if got := bundledNames("windows"); len(got) != 3 || got[2] != "stockfish.exe" {
		t.Fatalf("unexpected windows names %v", got)
	}
	if got := bundledNames("freebsd"); got[0] != "stockfish-linux" {
		t.Fatalf("unexpected fallback names %v", got)
	}
}
