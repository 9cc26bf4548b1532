package chesspresenter

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/ascii-chess/internal/history"
	"github.com/park285/ascii-chess/internal/msgcat"
	svc "github.com/park285/ascii-chess/internal/service/chess"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

func newTestFormatter(unicode bool) *Formatter {
	return NewFormatter(msgcat.MustDefault(), unicode, WithRand(rand.New(rand.NewPCG(7, 7))))
}

func TestBoardASCII(t *testing.T) {
	f := newTestFormatter(false)
	got := strings.Split(f.Board(nchess.NewGame().Position().Board()), "\n")
	want := []string{
		"  a b c d e f g h",
		"8 r n b q k b n r 8",
		"7 p p p p p p p p 7",
		"6 · : · : · : · : 6",
		"5 : · : · : · : · 5",
		"4 · : · : · : · : 4",
		"3 : · : · : · : · 3",
		"2 P P P P P P P P 2",
		"1 R N B Q K B N R 1",
		"  a b c d e f g h",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("board mismatch (-want +got):\n%s", diff)
	}
}

func TestBoardUnicodeAfterMove(t *testing.T) {
	f := newTestFormatter(true)
	stack := history.New()
	mv, err := stack.Parse("e4")
	require.NoError(t, err)
	_, err = stack.Record(history.Human, mv)
	require.NoError(t, err)

	lines := strings.Split(f.Board(stack.Position().Board()), "\n")
	assert.Equal(t, "8 ♜ ♞ ♝ ♛ ♚ ♝ ♞ ♜ 8", lines[1])
	assert.Equal(t, "4 · : · : ♙ : · : 4", lines[5])
	assert.Equal(t, "2 ♙ ♙ ♙ ♙ · ♙ ♙ ♙ 2", lines[7])
}

func TestMovesPanel(t *testing.T) {
	f := newTestFormatter(false)
	assert.Equal(t, "Moves (White/Black):\n<no moves yet>", f.Moves(nil))

	got := strings.Split(f.Moves([]string{"e4", "e5", "Nf3"}), "\n")
	want := []string{
		"Moves (White/Black):",
		fmt.Sprintf("%2d. %-7s %-7s", 1, "e4", "e5"),
		fmt.Sprintf("%2d. %-7s %-7s", 2, "Nf3", ""),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, " 1. e4      e5     ", got[1])
}

func TestErrorNotices(t *testing.T) {
	f := newTestFormatter(false)
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: Ke9", svc.ErrInvalidMove), "Illegal move: Ke9."},
		{svc.ErrEmptyInput, "Please enter a move."},
		{history.ErrEmptyHistory, "Nothing to undo."},
		{history.ErrEmptyRedoBuffer, "Nothing to redo."},
		{history.ErrRedoFailed, "Redo failed."},
		{svc.ErrEngineThinking, "Cannot undo while Enemy is thinking."},
		{svc.ErrDebugDisabled, "Debug commands are disabled."},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, f.Error(tc.err, " Ke9 "), "err=%v", tc.err)
	}
	assert.True(t, strings.HasPrefix(f.Error(svc.ErrEngineTimeout, ""), "Enemy took too long"))
	assert.Contains(t, f.Error(svc.ErrEngineUnavailable, ""), "Press Enter")
}

func TestResponsePrompts(t *testing.T) {
	f := newTestFormatter(false)

	prompt, status := f.Response(&svc.Response{Command: svc.CommandUndo})
	assert.Equal(t, "Undone. Player to move.", prompt)
	assert.Empty(t, status)

	prompt, _ = f.Response(&svc.Response{Command: svc.CommandRedo})
	assert.Equal(t, "Redone. Player to move.", prompt)

	eval := -350
	prompt, status = f.Response(&svc.Response{Command: svc.CommandMove, EngineSAN: "Qh4#", EngineEval: &eval})
	assert.Equal(t, "Enter move in SAN (e.g. Nf3, O-O, cxd4, ff, help).", prompt)
	require.True(t, strings.HasPrefix(status, "Qh4#. "))
	assert.Contains(t, msgcat.MustDefault().List(msgcat.TauntEngineGood), strings.TrimPrefix(status, "Qh4#. "))

	prompt, _ = f.Response(&svc.Response{Command: svc.CommandHint, Hint: &svc.Hint{MoveSAN: "Nf3", EvalCP: 35, Principal: []string{"Nf3", "Nc6", "Bb5"}}})
	assert.Equal(t, "Hint: Nf3 (+0.35), line: Nf3 Nc6 Bb5", prompt)

	prompt, _ = f.Response(&svc.Response{Command: svc.CommandSave, Export: &svc.ExportPaths{PGN: "a.pgn", PNG: "a.png"}})
	assert.Equal(t, "Saved a.pgn and a.png", prompt)
}

func TestResultAnnouncements(t *testing.T) {
	f := newTestFormatter(false)

	mate := &svc.Result{Outcome: nchess.BlackWon, Reason: svc.ReasonCheckmate, Termination: "Checkmate"}
	assert.Equal(t, "Enemy wins!\nReason: Checkmate\nResult: 0-1", f.Result(mate, nil, 0))

	draw := &svc.Result{Outcome: nchess.Draw, Reason: svc.ReasonDraw, Termination: "Threefold Repetition"}
	assert.Equal(t, "Draw.\nReason: Threefold Repetition\nResult: 1/2-1/2", f.Result(draw, nil, 0))

	resign := &svc.Result{Outcome: nchess.BlackWon, Reason: svc.ReasonResignation, Termination: "Resignation"}
	profile := &chessdto.ChessProfile{Rating: 1188, GamesPlayed: 1}
	assert.Equal(t, "Player forfeited. Enemy wins.\nYour rating: 1188 (-12)", f.Result(resign, profile, -12))

	forced := &svc.Result{Outcome: nchess.WhiteWon, Reason: svc.ReasonForced, Termination: "Forced"}
	assert.Equal(t, "Player wins!", f.Result(forced, nil, 0))
	assert.Empty(t, f.Result(nil, nil, 0))
}

func TestScreenLayout(t *testing.T) {
	f := newTestFormatter(false)
	v := View{
		Board:   nchess.NewGame().Position().Board(),
		Moves:   []string{"e4"},
		Rating:  1500,
		Opening: "B00 King's Pawn",
		Prompt:  "Enter move in SAN (e.g. Nf3, O-O, cxd4, ff, help).",
		Input:   "",
		Status:  "Calculating...",
	}
	lines := strings.Split(strings.TrimRight(f.Screen(v, 40, 30), "\n"), "\n")
	assert.Equal(t, "  a b c d e f g h"+strings.Repeat(" ", 30-17)+" Moves (White/Black):", lines[0])
	assert.Contains(t, lines[1], " 1. e4")
	assert.Contains(t, lines, "Enemy rating (Elo): 1500")
	assert.Contains(t, lines, "Opening: B00 King's Pawn")
	assert.Contains(t, lines, "Input: ")
	assert.Equal(t, "Enemy: Calculating...", lines[len(lines)-1])

	short := strings.Split(strings.TrimRight(f.Screen(v, 40, 10), "\n"), "\n")
	assert.True(t, strings.HasPrefix(short[1], "8 r n b q k b n r 8"))
	assert.Len(t, short, 8+6, "top block cut to 80% of 10 rows")
}

func TestPresenterWrites(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf, newTestFormatter(false))
	p.Title()
	out := buf.String()
	require.True(t, strings.HasPrefix(out, clearScreen))
	assert.Contains(t, out, "< ASCII Chess >")
	assert.Contains(t, out, strings.Repeat("=", titleWidth))

	buf.Reset()
	p.Render(View{Rating: 1350, Prompt: "go"})
	assert.Contains(t, buf.String(), "Enemy rating (Elo): 1350")
	assert.NotContains(t, buf.String(), "Enemy: ")
}

func TestHistoryAndProfileText(t *testing.T) {
	f := newTestFormatter(false)
	assert.Equal(t, "No finished games yet.", f.History(nil))

	out := f.History([]chessdto.GameSummary{{ID: 3, Result: "win", EngineElo: 1500, Moves: 41, Method: "Checkmate", Opening: "C20 King's Pawn Game"}})
	assert.Contains(t, out, "#3")
	assert.Contains(t, out, "W")
	assert.Contains(t, out, "Stockfish (1500)")
	assert.Contains(t, out, "C20 King's Pawn Game")

	profile := f.Profile(&chessdto.ChessProfile{PlayerName: "tester", Rating: 1230, GamesPlayed: 4, Wins: 3, Losses: 1, Streak: 3, StreakType: "win"})
	assert.Contains(t, profile, "tester: rating 1230")
	assert.Contains(t, profile, "Record: 3W 1L 0D (4 games)")
	assert.Contains(t, profile, "Streak: 3 wins")

	game := f.Game(chessdto.GameSummary{ID: 9, Result: "draw", Method: "Stalemate"}, "[Event \"ASCII Chess\"]\n\n1. e4 *\n")
	assert.True(t, strings.HasPrefix(game, "Game #9: D by Stalemate\n"))
	assert.Contains(t, game, "1. e4 *")
}

func TestMaterialText(t *testing.T) {
	f := newTestFormatter(false)
	assert.Empty(t, f.Material(chessdto.MaterialScore{White: 39, Black: 39}, chessdto.CapturedPieces{}))
	got := f.Material(
		chessdto.MaterialScore{White: 38, Black: 35},
		chessdto.CapturedPieces{White: []string{"p", "n"}, Black: []string{"p"}},
	)
	assert.Equal(t, "White +4 / Black +1  White took N P / Black took P", got)
}

func TestFormatEval(t *testing.T) {
	assert.Equal(t, "+0.35", FormatEval(35, 0))
	assert.Equal(t, "-1.20", FormatEval(-120, 0))
	assert.Equal(t, "#3", FormatEval(0, 3))
	assert.Equal(t, "#-2", FormatEval(0, -2))
}

func TestSnapshotView(t *testing.T) {
	f := newTestFormatter(false)
	v, err := f.SnapshotView(chessdto.Snapshot{
		PlayerName: "tester",
		EngineElo:  1600,
		Phase:      svc.AwaitingEngine.String(),
		MovesSAN:   []string{"e4"},
		MovesUCI:   []string{"e2e4"},
	}, "127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "Watching 127.0.0.1:8080: tester vs Stockfish", v.Prompt)
	assert.Equal(t, "Calculating...", v.Status)
	assert.Equal(t, 1600, v.Rating)
	assert.Equal(t, nchess.WhitePawn, v.Board.Piece(nchess.E4))

	v, err = f.SnapshotView(chessdto.Snapshot{Result: "1-0", Termination: "Checkmate"}, "x")
	require.NoError(t, err)
	assert.Equal(t, "Result: 1-0 (Checkmate)", v.Status)

	_, err = f.SnapshotView(chessdto.Snapshot{MovesUCI: []string{"e2e5"}}, "x")
	assert.Error(t, err)
}

func TestSnapshotViewClassifiesOpening(t *testing.T) {
	f := newTestFormatter(false)
	v, err := f.SnapshotView(chessdto.Snapshot{
		MovesSAN: []string{"e4", "e5", "Nf3", "Nc6", "Bb5"},
		MovesUCI: []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"},
	}, "x")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(v.Opening), "ruy lopez")

	v, err = f.SnapshotView(chessdto.Snapshot{
		Opening:  "B20 Sicilian Defense",
		MovesUCI: []string{"e2e4", "c7c5"},
	}, "x")
	require.NoError(t, err)
	assert.Equal(t, "B20 Sicilian Defense", v.Opening)
}
