package uci

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const fakeEngineScript = `#!/bin/sh
while read -r line; do
  echo "$line" >> "%LOG%"
  case "$line" in
    uci) echo "id name FakeFish 1"; echo "option name UCI_Elo type spin default 1350 min 1350 max 2850"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*)
      echo "info depth 1 seldepth 1 score cp 35 nodes 20 pv e7e5 g1f3"
      echo "info depth 2 seldepth 2 score cp 41 nodes 80 pv e7e5 g1f3 b8c6"
      echo "bestmove e7e5 ponder g1f3" ;;
    quit) exit 0 ;;
  esac
done
`

const dyingEngineScript = `#!/bin/sh
while read -r line; do
  case "$line" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) exit 3 ;;
  esac
done
`

func writeEngine(t *testing.T, body string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell engine requires a POSIX sh")
	}
	dir := t.TempDir()
	logPath := filepath.Join(dir, "commands.log")
	script := strings.ReplaceAll(body, "%LOG%", logPath)
	path := filepath.Join(dir, "stockfish")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	return path, logPath
}

func readCommands(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestSessionHandshakeAndSearch(t *testing.T) {
	path, logPath := writeEngine(t, fakeEngineScript)
	ctx := context.Background()

	s, err := NewSession(ctx, path, Options{LimitStrength: true, Elo: 1500}, nil)
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	defer s.Close()

	if got := s.Name(); got != "FakeFish 1" {
		t.Fatalf("unexpected engine name %q", got)
	}
	if err := s.NewGame(ctx); err != nil {
		t.Fatalf("NewGame error: %v", err)
	}

	resp, err := s.Search(ctx, SearchRequest{
		Moves:  []string{"e2e4"},
		Limits: Limits{MoveTimeMillis: 100},
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if resp.BestMove != "e7e5" || resp.Ponder != "g1f3" {
		t.Fatalf("unexpected bestmove %+v", resp)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].EvalCP != 41 {
		t.Fatalf("expected the deepest info line to win, got %+v", resp.Candidates)
	}
	if got := len(resp.Candidates[0].Principal); got != 3 {
		t.Fatalf("expected 3 pv moves, got %d", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	cmds := readCommands(t, logPath)
	want := []string{
		"uci",
		"setoption name UCI_LimitStrength value true",
		"setoption name UCI_Elo value 1500",
		"isready",
		"ucinewgame",
		"isready",
		"position startpos moves e2e4",
		"go movetime 100",
		"quit",
	}
	if strings.Join(cmds, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected command log:\n got %q\nwant %q", cmds, want)
	}
}

func TestSessionConfigureTogglesStrength(t *testing.T) {
	path, logPath := writeEngine(t, fakeEngineScript)
	ctx := context.Background()

	s, err := NewSession(ctx, path, Options{LimitStrength: true, Elo: 2000}, nil)
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if err := s.Configure(ctx, Options{LimitStrength: false}); err != nil {
		t.Fatalf("Configure error: %v", err)
	}
	s.Close()

	cmds := readCommands(t, logPath)
	found := false
	for _, c := range cmds {
		if c == "setoption name UCI_LimitStrength value false" {
			found = true
		}
	}
	if !found {
		t.Fatalf("strength limit was not disabled: %q", cmds)
	}
}

func TestSessionReportsDeadEngine(t *testing.T) {
	path, _ := writeEngine(t, dyingEngineScript)
	ctx := context.Background()

	s, err := NewSession(ctx, path, Options{}, nil)
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	defer s.Close()

	_, err = s.Search(ctx, SearchRequest{Limits: Limits{MoveTimeMillis: 50}})
	if err == nil {
		t.Fatalf("expected error from exiting engine")
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Alive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Alive() {
		t.Fatalf("session should report the engine as gone")
	}
}

func TestNewSessionMissingBinary(t *testing.T) {
	_, err := NewSession(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{}, nil)
	if err == nil {
		t.Fatalf("expected start error")
	}
}

func TestValidateOptions(t *testing.T) {
	if err := validateOptions(Options{LimitStrength: true}); err == nil {
		t.Fatalf("expected error when limiting strength without elo")
	}
	if err := validateOptions(Options{Threads: -1}); err == nil {
		t.Fatalf("expected error for negative threads")
	}
	if err := validateOptions(Options{LimitStrength: true, Elo: 1350}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildGoTokens(t *testing.T) {
	got, err := buildGoTokens(Limits{MoveTimeMillis: 500})
	if err != nil {
		t.Fatalf("buildGoTokens error: %v", err)
	}
	if strings.Join(got, " ") != "go movetime 500" {
		t.Fatalf("unexpected tokens %q", got)
	}
	if _, err := buildGoTokens(Limits{}); !errors.Is(err, ErrNoLimits) {
		t.Fatalf("expected ErrNoLimits, got %v", err)
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("unexpected %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := buildPositionCommand(fen, []string{"a1a2"}); got != "position fen "+fen+" moves a1a2\n" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestParseInfoMate(t *testing.T) {
	mv, cand, ok := parseInfo("info depth 12 multipv 2 score mate -3 pv h7h6 d1h5")
	if !ok {
		t.Fatalf("expected info to parse")
	}
	if mv != 2 || cand.Mate != -3 || cand.EvalCP != -mateValue || cand.Move != "h7h6" {
		t.Fatalf("unexpected parse: %d %+v", mv, cand)
	}
	if _, _, ok := parseInfo("info string NNUE evaluation enabled"); ok {
		t.Fatalf("info without pv must be ignored")
	}
}
