package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitFromEnvWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chess.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { globalLogger = zap.NewNop() })

	if err := InitFromEnv(); err != nil {
		t.Fatalf("init: %v", err)
	}
	L().Info("chess_hidden")
	L().Warn("chess_visible", zap.Int("ply", 3))
	Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(raw)
	if strings.Contains(out, "chess_hidden") {
		t.Fatalf("info entry leaked at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"chess_visible"`) || !strings.Contains(out, `"ply":3`) {
		t.Fatalf("missing warn entry: %s", out)
	}
}

func TestWithDebugOverridesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("LOG_LEVEL", "error")
	t.Cleanup(func() { globalLogger = zap.NewNop() })

	if err := InitFromEnv(WithDebug(true)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !L().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug level not enabled")
	}
}

func TestInitWithoutSinksIsNop(t *testing.T) {
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Cleanup(func() { globalLogger = zap.NewNop() })

	if err := InitFromEnv(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if L().Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected a no-op logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"TRACE":   zapcore.DebugLevel,
		" warn ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
