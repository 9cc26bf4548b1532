package chesspresenter

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/ascii-chess/internal/history"
	"github.com/park285/ascii-chess/internal/msgcat"
	svc "github.com/park285/ascii-chess/internal/service/chess"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

const (
	fileHeader           = "  a b c d e f g h"
	lightSquare          = "·"
	darkSquare           = ":"
	moveColumnWidth      = 7
	materialScoreNeutral = 39
	capturedRecentLimit  = 3
)

var unicodePieces = map[nchess.Piece]string{
	nchess.WhitePawn:   "♙",
	nchess.WhiteKnight: "♘",
	nchess.WhiteBishop: "♗",
	nchess.WhiteRook:   "♖",
	nchess.WhiteQueen:  "♕",
	nchess.WhiteKing:   "♔",
	nchess.BlackPawn:   "♟",
	nchess.BlackKnight: "♞",
	nchess.BlackBishop: "♝",
	nchess.BlackRook:   "♜",
	nchess.BlackQueen:  "♛",
	nchess.BlackKing:   "♚",
}

var asciiPieces = map[nchess.Piece]string{
	nchess.WhitePawn:   "P",
	nchess.WhiteKnight: "N",
	nchess.WhiteBishop: "B",
	nchess.WhiteRook:   "R",
	nchess.WhiteQueen:  "Q",
	nchess.WhiteKing:   "K",
	nchess.BlackPawn:   "p",
	nchess.BlackKnight: "n",
	nchess.BlackBishop: "b",
	nchess.BlackRook:   "r",
	nchess.BlackQueen:  "q",
	nchess.BlackKing:   "k",
}

// Formatter turns session state into terminal text.
type Formatter struct {
	cat     *msgcat.Catalog
	unicode bool
	rng     *rand.Rand
}

type FormatterOption func(*Formatter)

// WithRand fixes the taunt source.
func WithRand(rng *rand.Rand) FormatterOption {
	return func(f *Formatter) { f.rng = rng }
}

func NewFormatter(cat *msgcat.Catalog, unicode bool, opts ...FormatterOption) *Formatter {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	f := &Formatter{cat: cat, unicode: unicode}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Formatter) Catalog() *msgcat.Catalog { return f.cat }

// Text renders a catalog message.
func (f *Formatter) Text(key string, data any) string {
	return f.cat.Text(key, data)
}

// Board draws the position with White at the bottom and rank labels on
// both sides.
func (f *Formatter) Board(board *nchess.Board) string {
	lines := make([]string, 0, 10)
	lines = append(lines, fileHeader)
	for rank := nchess.Rank8; ; rank-- {
		row := make([]string, 0, 10)
		label := strconv.Itoa(int(rank) + 1)
		row = append(row, label)
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			piece := nchess.NoPiece
			if board != nil {
				piece = board.Piece(nchess.NewSquare(file, rank))
			}
			if piece == nchess.NoPiece {
				if (int(rank)+int(file))%2 == 1 {
					row = append(row, lightSquare)
				} else {
					row = append(row, darkSquare)
				}
				continue
			}
			row = append(row, f.glyph(piece))
		}
		row = append(row, label)
		lines = append(lines, strings.Join(row, " "))
		if rank == nchess.Rank1 {
			break
		}
	}
	lines = append(lines, fileHeader)
	return strings.Join(lines, "\n")
}

func (f *Formatter) glyph(piece nchess.Piece) string {
	if f.unicode {
		if g, ok := unicodePieces[piece]; ok {
			return g
		}
	}
	if g, ok := asciiPieces[piece]; ok {
		return g
	}
	return "?"
}

// Moves lists the game in White/Black pairs.
func (f *Formatter) Moves(san []string) string {
	lines := []string{f.Text("info.moves_header", nil)}
	if len(san) == 0 {
		lines = append(lines, f.Text("info.no_moves", nil))
		return strings.Join(lines, "\n")
	}
	for idx := 0; idx < len(san); idx += 2 {
		black := ""
		if idx+1 < len(san) {
			black = san[idx+1]
		}
		lines = append(lines, fmt.Sprintf("%2d. %-*s %-*s", idx/2+1, moveColumnWidth, san[idx], moveColumnWidth, black))
	}
	return strings.Join(lines, "\n")
}

// Response describes an accepted input as a prompt line and an enemy
// status line.
func (f *Formatter) Response(resp *svc.Response) (prompt, status string) {
	prompt = f.Text("prompt.default", nil)
	if resp == nil {
		return prompt, ""
	}
	if resp.EngineSAN != "" {
		status = f.Text("status.played", map[string]any{
			"SAN":   resp.EngineSAN,
			"Taunt": f.cat.Taunt(resp.EngineEval, f.rng),
		})
	}
	switch resp.Command {
	case svc.CommandUndo:
		prompt = f.Text("notice.undone", nil)
	case svc.CommandRedo:
		prompt = f.Text("notice.redone", nil)
	case svc.CommandHint:
		prompt = f.Hint(resp.Hint)
	case svc.CommandHelp:
		prompt = f.Help(false)
	case svc.CommandSave:
		prompt = f.Saved(resp.Export)
	}
	return prompt, status
}

// Help is the command summary. Debug commands are listed only when enabled.
func (f *Formatter) Help(debug bool) string {
	text := f.Text("help", nil)
	if debug {
		text += f.Text("help_debug", nil)
	}
	return strings.TrimRight(text, "\n")
}

func (f *Formatter) Hint(h *svc.Hint) string {
	if h == nil {
		return f.Text("notice.engine_unavailable", map[string]any{"Err": "no suggestion"})
	}
	data := map[string]any{"SAN": h.MoveSAN, "Eval": FormatEval(h.EvalCP, h.Mate)}
	if len(h.Principal) > 1 {
		data["Line"] = strings.Join(h.Principal, " ")
		return f.Text("notice.hint_line", data)
	}
	return f.Text("notice.hint", data)
}

func (f *Formatter) Saved(paths *svc.ExportPaths) string {
	if paths == nil {
		return f.Text("prompt.default", nil)
	}
	if paths.PNG != "" {
		return f.Text("notice.saved_png", map[string]any{"PGN": paths.PGN, "PNG": paths.PNG})
	}
	return f.Text("notice.saved", map[string]any{"PGN": paths.PGN})
}

// Error maps a rejected input to the notice shown in the prompt line.
func (f *Formatter) Error(err error, input string) string {
	switch {
	case err == nil:
		return f.Text("prompt.default", nil)
	case errors.Is(err, svc.ErrEmptyInput):
		return f.Text("notice.empty", nil)
	case errors.Is(err, svc.ErrInvalidMove):
		return f.Text("notice.illegal", map[string]any{"Input": strings.TrimSpace(input)})
	case errors.Is(err, history.ErrEmptyHistory):
		return f.Text("notice.nothing_to_undo", nil)
	case errors.Is(err, history.ErrEmptyRedoBuffer):
		return f.Text("notice.nothing_to_redo", nil)
	case errors.Is(err, history.ErrRedoFailed):
		return f.Text("notice.redo_failed", nil)
	case errors.Is(err, svc.ErrEngineThinking):
		return f.Text("notice.busy", nil)
	case errors.Is(err, svc.ErrGameFinished):
		return f.Text("notice.finished", nil)
	case errors.Is(err, svc.ErrDebugDisabled):
		return f.Text("notice.debug_disabled", nil)
	case errors.Is(err, svc.ErrEngineTimeout):
		return f.Text("notice.engine_timeout", nil) + " " + f.Text("prompt.retry", nil)
	case errors.Is(err, svc.ErrEngineUnavailable):
		return f.Text("notice.engine_unavailable", map[string]any{"Err": err.Error()}) + " " + f.Text("prompt.retry", nil)
	default:
		return f.Text("notice.error", map[string]any{"Err": err.Error()})
	}
}

// Result announces a finished game.
func (f *Formatter) Result(result *svc.Result, profile *chessdto.ChessProfile, delta int) string {
	if result == nil {
		return ""
	}
	var lines []string
	switch {
	case result.Reason == svc.ReasonResignation:
		lines = append(lines, f.Text("result.forfeit", nil))
	case result.PlayerWon():
		lines = append(lines, f.Text("result.player_wins", nil))
	case result.EngineWon():
		lines = append(lines, f.Text("result.engine_wins", nil))
	default:
		lines = append(lines, f.Text("result.draw", nil))
	}
	if result.Reason != svc.ReasonResignation && result.Reason != svc.ReasonForced {
		if result.Termination != "" {
			lines = append(lines, f.Text("result.reason", map[string]any{"Reason": result.Termination}))
		}
		lines = append(lines, f.Text("result.score", map[string]any{"Score": result.Score()}))
	}
	if profile != nil && profile.GamesPlayed > 0 {
		lines = append(lines, f.Text("result.rating", map[string]any{
			"Rating": profile.Rating,
			"Delta":  formatDelta(delta),
		}))
	}
	return strings.Join(lines, "\n")
}

// Profile summarises a player's record against the engine.
func (f *Formatter) Profile(profile *chessdto.ChessProfile) string {
	if profile == nil {
		return "No games recorded yet."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: rating %d\n", profile.PlayerName, profile.Rating))
	sb.WriteString(fmt.Sprintf("Record: %dW %dL %dD (%d games)\n", profile.Wins, profile.Losses, profile.Draws, profile.GamesPlayed))
	if profile.Streak > 1 {
		sb.WriteString(fmt.Sprintf("Streak: %d %s\n", profile.Streak, formatStreakSuffix(profile.StreakType)))
	}
	if profile.LastEngineElo > 0 {
		sb.WriteString(fmt.Sprintf("Last opponent: Elo %d", profile.LastEngineElo))
		if !profile.LastPlayedAt.IsZero() {
			sb.WriteString(", " + formatShortTime(profile.LastPlayedAt))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *Formatter) History(games []chessdto.GameSummary) string {
	if len(games) == 0 {
		return "No finished games yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent games\n")
	for _, game := range games {
		sb.WriteString(fmt.Sprintf("#%-4d %-4s %s  vs %s (%d)  %d plies",
			game.ID, formatResultBadge(game.Result), formatShortTime(game.EndedAt),
			defaultString(game.EngineName, "Stockfish"), game.EngineElo, game.Moves))
		if game.Method != "" {
			sb.WriteString("  " + game.Method)
		}
		sb.WriteString("\n")
		if game.Opening != "" {
			sb.WriteString("      " + game.Opening + "\n")
		}
		if d := formatGameDuration(time.Duration(game.DurationSec * float64(time.Second))); d != "" {
			sb.WriteString("      took " + d + "\n")
		}
	}
	return sb.String()
}

// Game prints an archived game's header lines followed by its PGN.
func (f *Formatter) Game(game chessdto.GameSummary, pgn string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Game #%d: %s", game.ID, formatResultBadge(game.Result)))
	if game.Method != "" {
		sb.WriteString(" by " + game.Method)
	}
	sb.WriteString("\n")
	if !game.StartedAt.IsZero() {
		sb.WriteString("Started: " + formatShortTime(game.StartedAt) + "\n")
	}
	if d := formatGameDuration(time.Duration(game.DurationSec * float64(time.Second))); d != "" {
		sb.WriteString("Duration: " + d + "\n")
	}
	if game.Hints > 0 || game.Undos > 0 {
		sb.WriteString(fmt.Sprintf("Hints: %d, undos: %d\n", game.Hints, game.Undos))
	}
	if strings.TrimSpace(pgn) != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(pgn))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Material reports points captured by each side and the latest captures.
func (f *Formatter) Material(score chessdto.MaterialScore, captured chessdto.CapturedPieces) string {
	var parts []string
	if s := formatMaterial(score); s != "" {
		parts = append(parts, s)
	}
	if s := formatCaptured(captured); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "  ")
}

// FormatEval renders centipawns as pawns ("+0.35") and mates as "#3".
func FormatEval(cp, mate int) string {
	if mate != 0 {
		return fmt.Sprintf("#%d", mate)
	}
	return fmt.Sprintf("%+.2f", float64(cp)/100)
}

func formatDelta(delta int) string {
	if delta == 0 {
		return "±0"
	}
	return fmt.Sprintf("%+d", delta)
}

func formatStreakSuffix(streakType string) string {
	switch strings.ToLower(strings.TrimSpace(streakType)) {
	case "win":
		return "wins"
	case "loss":
		return "losses"
	case "draw":
		return "draws"
	default:
		return "games"
	}
}

func formatResultBadge(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "win":
		return "W"
	case "loss":
		return "L"
	case "draw":
		return "D"
	default:
		return "?"
	}
}

func formatShortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatGameDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatMaterial(score chessdto.MaterialScore) string {
	whiteCaptured := materialScoreNeutral - score.Black
	blackCaptured := materialScoreNeutral - score.White
	if whiteCaptured < 0 {
		whiteCaptured = 0
	}
	if blackCaptured < 0 {
		blackCaptured = 0
	}

	var parts []string
	if whiteCaptured > 0 {
		parts = append(parts, fmt.Sprintf("White +%d", whiteCaptured))
	}
	if blackCaptured > 0 {
		parts = append(parts, fmt.Sprintf("Black +%d", blackCaptured))
	}
	return strings.Join(parts, " / ")
}

func formatCaptured(captured chessdto.CapturedPieces) string {
	white := formatCapturedSequence(recentPieces(captured.White, capturedRecentLimit))
	black := formatCapturedSequence(recentPieces(captured.Black, capturedRecentLimit))
	if white == "" && black == "" {
		return ""
	}
	var parts []string
	if white != "" {
		parts = append(parts, "White took "+white)
	}
	if black != "" {
		parts = append(parts, "Black took "+black)
	}
	return strings.Join(parts, " / ")
}

func formatCapturedSequence(order []string) string {
	if len(order) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(order))
	for _, token := range order {
		if t := strings.ToUpper(strings.TrimSpace(token)); t != "" {
			tokens = append(tokens, t)
		}
	}
	return strings.Join(tokens, " ")
}

// recentPieces returns the last limit entries, newest first.
func recentPieces(order []string, limit int) []string {
	if len(order) == 0 || limit <= 0 {
		return nil
	}
	if len(order) > limit {
		order = order[len(order)-limit:]
	}
	result := make([]string, len(order))
	for i := range order {
		result[i] = order[len(order)-1-i]
	}
	return result
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
