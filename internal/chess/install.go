package chess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/briandowns/spinner"
	"go.uber.org/zap"
)

const (
	StockfishSource = "https://github.com/official-stockfish/Stockfish"
	spinnerCharSet  = 31
)

var ErrToolMissing = errors.New("required build tool not found")

var stockfishBuildScript = heredoc.Doc(`
	cd src
	make -j profile-build
	mv stockfish ../engine-binary
`)

type InstallOptions struct {
	// DataDir receives engines/<binary>; sources are cloned under DataDir/src.
	DataDir string
	Source  string
	// Progress receives the spinner; nil disables it.
	Progress io.Writer
	// Verbose streams build output to Progress instead of the spinner.
	Verbose bool
	Logger  *zap.Logger
}

// InstallPath is where Install places the engine binary.
func InstallPath(dataDir string) string {
	name := "stockfish"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(dataDir, "engines", name)
}

// Install clones Stockfish and builds it with its own Makefile.
func Install(ctx context.Context, opts InstallOptions) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.DataDir) == "" {
		return "", fmt.Errorf("install: data directory is empty")
	}
	source := opts.Source
	if source == "" {
		source = StockfishSource
	}
	for _, tool := range []string{"git", "make", "sh"} {
		if _, err := exec.LookPath(tool); err != nil {
			return "", fmt.Errorf("%w: %s", ErrToolMissing, tool)
		}
	}

	srcRoot := filepath.Join(opts.DataDir, "src")
	if err := os.MkdirAll(srcRoot, 0o755); err != nil {
		return "", fmt.Errorf("create source dir: %w", err)
	}
	workDir, err := os.MkdirTemp(srcRoot, "stockfish-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	stop := startSpinner(opts, "Downloading Stockfish ")
	logger.Info("engine_install_clone", zap.String("source", source), zap.String("dir", workDir))
	if err := runStep(ctx, opts, "", nil, "git", "clone", "--depth", "1", source, workDir); err != nil {
		stop()
		return "", fmt.Errorf("clone stockfish: %w", err)
	}
	stop()

	stop = startSpinner(opts, "Building Stockfish ")
	logger.Info("engine_install_build", zap.String("dir", workDir))
	err = runStep(ctx, opts, workDir, strings.NewReader(stockfishBuildScript), "sh")
	stop()
	if err != nil {
		return "", fmt.Errorf("build stockfish: %w", err)
	}

	target := InstallPath(opts.DataDir)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create engine dir: %w", err)
	}
	if err := os.Rename(filepath.Join(workDir, "engine-binary"), target); err != nil {
		return "", fmt.Errorf("move engine binary: %w", err)
	}
	logger.Info("engine_installed", zap.String("path", target))
	return target, nil
}

func startSpinner(opts InstallOptions, prefix string) func() {
	if opts.Progress == nil || opts.Verbose {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[spinnerCharSet], 100*time.Millisecond, spinner.WithWriter(opts.Progress))
	s.Prefix = prefix
	s.Start()
	return s.Stop
}

func runStep(ctx context.Context, opts InstallOptions, dir string, stdin io.Reader, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	var tail tailBuffer
	cmd.Stdout = &tail
	cmd.Stderr = &tail
	if opts.Verbose && opts.Progress != nil {
		cmd.Stdout = io.MultiWriter(opts.Progress, &tail)
		cmd.Stderr = io.MultiWriter(opts.Progress, &tail)
	}
	if err := cmd.Run(); err != nil {
		if out := tail.String(); out != "" {
			return fmt.Errorf("%s: %w\n%s", name, err, out)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// tailBuffer keeps the last few KiB of command output for error reports.
type tailBuffer struct {
	buf []byte
}

const tailLimit = 4 << 10

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > tailLimit {
		b.buf = b.buf[len(b.buf)-tailLimit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
