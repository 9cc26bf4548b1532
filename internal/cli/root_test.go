package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/ascii-chess/internal/config"
	"github.com/park285/ascii-chess/internal/spectate"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

type result struct {
	out string
	err error
	cfg *config.AppConfig
}

func execute(t *testing.T, ctx context.Context, input string, args ...string) result {
	t.Helper()
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_TO_CONSOLE", "false")

	dataDir := t.TempDir()
	var loaded *config.AppConfig
	load := func() (*config.AppConfig, error) {
		cfg := config.Defaults()
		cfg.DataDir = dataDir
		cfg.ExportDir = t.TempDir()
		cfg.PlayerName = "tester"
		loaded = cfg
		return cfg, nil
	}
	var out, errOut bytes.Buffer
	root := newRoot(IO{In: strings.NewReader(input), Out: &out, Err: &errOut}, load)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(ctx)
	return result{out: out.String(), err: err, cfg: loaded}
}

func TestFlagsOverrideConfig(t *testing.T) {
	res := execute(t, context.Background(), "", "history",
		"--think-time", "1.5",
		"--min-rating", "1400",
		"--max-rating", "2000",
		"--ascii-only",
		"--no-auto-install",
		"--player", "alice",
		"--engine-path", "/opt/stockfish",
	)
	require.NoError(t, res.err)
	cfg := res.cfg
	assert.Equal(t, 1500*time.Millisecond, cfg.ThinkTime)
	assert.Equal(t, 1400, cfg.MinRating)
	assert.Equal(t, 2000, cfg.MaxRating)
	assert.True(t, cfg.AsciiOnly)
	assert.False(t, cfg.AutoInstall)
	assert.Equal(t, "alice", cfg.PlayerName)
	assert.Equal(t, "/opt/stockfish", cfg.StockfishPath)
}

func TestInvalidFlagsAreConfigErrors(t *testing.T) {
	res := execute(t, context.Background(), "", "history", "--min-rating", "2500", "--max-rating", "2000")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "config")

	res = execute(t, context.Background(), "", "history", "--think-time", "0")
	require.Error(t, res.err)
}

func TestHistoryWithoutGames(t *testing.T) {
	res := execute(t, context.Background(), "", "history", "--limit", "3")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "No finished games yet.")
}

func TestShowMissingGame(t *testing.T) {
	res := execute(t, context.Background(), "", "show", "5")
	require.Error(t, res.err)
	assert.Equal(t, "game 5 not found", res.err.Error())

	res = execute(t, context.Background(), "", "show", "abc")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "invalid game id")
}

func TestPlayWithoutEngineFails(t *testing.T) {
	res := execute(t, context.Background(), "", "--engine-path", t.TempDir(), "--no-auto-install")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "locate engine")
}

func TestWatchRendersPublishedGame(t *testing.T) {
	srv := spectate.NewServer("127.0.0.1:0", nil, nil)
	addr, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	srv.Publish(chessdto.Snapshot{
		SessionUUID: "abc",
		PlayerName:  "tester",
		EngineName:  "Stockfish 17",
		EngineElo:   1800,
		Phase:       "awaiting_input",
		MovesSAN:    []string{"e4", "c5"},
		MovesUCI:    []string{"e2e4", "c7c5"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	res := execute(t, ctx, "", "watch", addr, "--interval", "20ms", "--ascii-only")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Waiting for a game at "+addr)
	assert.Contains(t, res.out, "Watching "+addr+": tester vs Stockfish 17")
	assert.Contains(t, res.out, "Enemy rating (Elo): 1800")
	assert.Contains(t, res.out, " 1. e4      c5")
}

type boardSource struct{}

func (boardSource) RenderPNG(context.Context) ([]byte, error) { return []byte("\x89PNG board"), nil }

func (boardSource) PGN() (string, error) { return "1. e4 c5 *\n", nil }

func TestWatchMirrorsBoardAndPGN(t *testing.T) {
	srv := spectate.NewServer("127.0.0.1:0", boardSource{}, nil)
	addr, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	srv.Publish(chessdto.Snapshot{
		SessionUUID: "abc",
		Phase:       "awaiting_input",
		MovesSAN:    []string{"e4", "c5"},
		MovesUCI:    []string{"e2e4", "c7c5"},
	})

	dir := t.TempDir()
	pngPath := filepath.Join(dir, "board.png")
	pgnPath := filepath.Join(dir, "game.pgn")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	res := execute(t, ctx, "", "watch", addr, "--interval", "20ms", "--ascii-only", "--png", pngPath, "--pgn", pgnPath)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Sicilian")

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG board", string(png))
	pgn, err := os.ReadFile(pgnPath)
	require.NoError(t, err)
	assert.Equal(t, "1. e4 c5 *\n", string(pgn))
}
