package chesspresenter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/term"

	"github.com/park285/ascii-chess/internal/chess/openingbook"
	"github.com/park285/ascii-chess/internal/history"
	svc "github.com/park285/ascii-chess/internal/service/chess"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

const clearScreen = "\033[2J\033[H"

const (
	titleWidth, titleHeight   = 80, 24
	screenWidth, screenHeight = 100, 30
)

const pawnArt = `⠀⠀⠀⡀⠀⠄⠀⠀⢀⠀⠀⡀⠀⠠⠀⠀⠀⡀⠀⠄⠀⠀⠄⠀⠀⢀⠀⠠⠀⠀
⠁⠀⠄⠀⠀⠄⠈⠀⡀⠀⠄⠀⠠⠀⠀⠁⡀⠀⠀⠄⠈⠀⡀⠈⢀⠀⠀⠠⠀⠁
⠐⠀⠀⠐⠀⠀⠐⠀⠀⠄⠀⢐⡰⡜⡝⡵⣲⢔⠀⠀⠐⠀⠀⠄⠀⠀⠂⠀⠐⠀
⠄⠀⠁⡀⠈⠀⠠⠈⠀⠀⠐⣸⢜⢜⢜⢎⡗⡯⣇⠁⢀⠀⠁⡀⠐⠀⡀⠁⠀⠄
⠀⠀⠂⠀⠀⠂⠀⠄⠀⠁⢀⢺⡪⡮⣪⣳⢽⣝⡇⠄⠀⠠⠀⠀⠠⠀⠀⠠⠀⠠
⠀⠂⠀⠈⢀⠀⠁⢀⠀⠁⠀⠀⡽⡽⣳⡽⣗⣏⠀⠀⠐⠀⠀⠂⠀⠀⠂⢀⠀⠂
⠄⠀⠁⠠⠀⠀⠄⠀⠀⠄⠁⠙⠊⡯⣾⣺⡵⠋⠃⠁⢀⠈⠀⠠⠈⠀⡀⠀⠀⠄
⠀⠐⠀⢀⠀⠂⠀⠐⠀⠀⠄⠀⠀⣟⢼⣞⣿⠀⠀⠂⠀⠀⠄⠀⠐⠀⠀⠐⠀⠀
⠁⠀⠄⠀⢀⠀⠈⢀⠀⠁⠀⠈⢐⡽⣜⣞⣿⡀⠠⠀⠈⢀⠀⠈⢀⠀⠁⢀⠈⠀
⠐⠀⠀⠐⠀⠀⠐⠀⠀⠄⠈⢀⢮⢯⢞⡾⡽⣧⡀⠀⠂⠀⠀⠐⠀⠀⠄⠀⠀⠂
⡀⠀⠁⡀⠀⠁⡀⠐⠀⢀⠐⣨⢿⢽⡽⣾⣻⢷⡅⢀⠠⠀⠁⡀⠈⠀⡀⠈⢀⠀
⠀⠀⠂⠀⠀⠂⠀⠠⠀⣖⡯⣺⢝⣗⢯⢗⡽⣳⢯⣗⡷⠀⠀⠀⠠⠀⠀⠠⠀⠀
⠈⠀⡀⠈⠀⡀⠂⠀⠀⠺⠽⠽⣝⣞⡽⡽⣝⢷⠯⠷⠛⠀⠈⠀⡀⠀⠂⠀⠐⠀
⠄⠀⠀⠄⠀⠀⠄⠈⠀⡀⠀⠄⠀⠀⢀⠀⠀⢀⠀⠠⠀⠈⠀⡀⠀⠠⠀⠁⠀⠄
⢀⠀⠁⠀⠐⠀⠀⠐⠀⠀⠠⠀⠐⠀⠀⠀⠂⠀⠀⠄⠀⠂⠁⠀⠐⠀⠀⠐⠀⠀`

// View is one full-screen frame of the game.
type View struct {
	Board    *nchess.Board
	Moves    []string
	Rating   int
	Opening  string
	Material string
	Prompt   string
	Input    string
	Status   string
}

// ViewOf builds a frame from session state.
func (f *Formatter) ViewOf(state *svc.SessionState, prompt, status string) View {
	v := View{Prompt: prompt, Status: status}
	if state == nil {
		return v
	}
	snap := state.Snapshot()
	v.Board = state.Board
	v.Moves = state.MovesSAN
	v.Rating = state.EngineElo
	v.Opening = state.Opening
	v.Material = f.Material(snap.Material, snap.Captured)
	return v
}

// SnapshotView rebuilds a frame from a spectator snapshot by replaying its
// moves. A snapshot without an opening name is classified from its moves.
func (f *Formatter) SnapshotView(snap chessdto.Snapshot, addr string) (View, error) {
	stack, err := history.Replay(snap.MovesUCI, history.Human)
	if err != nil {
		return View{}, fmt.Errorf("replay snapshot: %w", err)
	}
	if snap.Opening == "" {
		if label, ok := openingbook.LookupUCI(snap.MovesUCI); ok {
			snap.Opening = label.String()
		}
	}
	v := View{
		Board:    stack.Position().Board(),
		Moves:    snap.MovesSAN,
		Rating:   snap.EngineElo,
		Opening:  snap.Opening,
		Material: f.Material(snap.Material, snap.Captured),
		Prompt: f.Text("info.watching", map[string]any{
			"Addr":   addr,
			"Player": defaultString(snap.PlayerName, "Player"),
			"Engine": defaultString(snap.EngineName, "Stockfish"),
		}),
	}
	switch {
	case snap.Finished():
		v.Status = f.Text("result.score", map[string]any{"Score": snap.Result})
		if snap.Termination != "" {
			v.Status += " (" + snap.Termination + ")"
		}
	case snap.Phase == svc.AwaitingEngine.String():
		v.Status = f.Text("status.calculating", nil)
	}
	return v, nil
}

// Screen lays out the board beside the move list with the info lines
// below. The top block is cut to 80% of the terminal height.
func (f *Formatter) Screen(v View, width, height int) string {
	colsplit := int(float64(width) * 0.75)
	rowsplit := int(float64(height) * 0.8)

	boardLines := strings.Split(f.Board(v.Board), "\n")
	moveLines := strings.Split(f.Moves(v.Moves), "\n")
	rows := max(len(boardLines), len(moveLines))

	top := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		left, right := "", ""
		if i < len(boardLines) {
			left = boardLines[i]
		}
		if i < len(moveLines) {
			right = moveLines[i]
		}
		top = append(top, padRight(left, colsplit)+" "+right)
	}

	info := []string{f.Text("info.rating", map[string]any{"Rating": v.Rating})}
	if v.Opening != "" {
		info = append(info, f.Text("info.opening", map[string]any{"Name": v.Opening}))
	}
	if v.Material != "" {
		info = append(info, v.Material)
	}
	info = append(info,
		v.Prompt,
		f.Text("info.input", map[string]any{"Input": v.Input}),
		"",
	)
	if v.Status != "" {
		info = append(info, f.Text("info.enemy", map[string]any{"Status": v.Status}))
	}
	if rowsplit > 0 && len(top)+len(info) > rowsplit && len(top) > rowsplit {
		top = top[:rowsplit]
	}
	return strings.Join(top, "\n") + "\n" + strings.Join(info, "\n") + "\n"
}

// Title is the start screen: the pawn art and banner centred.
func (f *Formatter) Title(width int) string {
	var sb strings.Builder
	for _, line := range strings.Split(pawnArt, "\n") {
		sb.WriteString(center(line, width))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(center(f.Text("title.banner", nil), width))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", max(width, 0)))
	sb.WriteString("\n")
	return sb.String()
}

// Presenter writes frames to a terminal.
type Presenter struct {
	out  io.Writer
	f    *Formatter
	size func() (int, int, bool)
}

func NewPresenter(out io.Writer, f *Formatter) *Presenter {
	if out == nil {
		out = os.Stdout
	}
	if f == nil {
		f = NewFormatter(nil, SupportsUnicode())
	}
	return &Presenter{out: out, f: f, size: terminalSize(out)}
}

func (p *Presenter) Formatter() *Formatter { return p.f }

func (p *Presenter) Clear() {
	fmt.Fprint(p.out, clearScreen)
}

func (p *Presenter) Title() {
	p.Clear()
	w, _ := p.dimensions(titleWidth, titleHeight)
	fmt.Fprint(p.out, p.f.Title(w))
}

// Render clears the terminal and draws v.
func (p *Presenter) Render(v View) {
	p.Clear()
	w, h := p.dimensions(screenWidth, screenHeight)
	fmt.Fprint(p.out, p.f.Screen(v, w, h))
}

// Println writes lines below the current frame.
func (p *Presenter) Println(lines ...string) {
	for _, line := range lines {
		fmt.Fprintln(p.out, line)
	}
}

// Prompt writes text without a trailing newline.
func (p *Presenter) Prompt(text string) {
	fmt.Fprint(p.out, text)
}

func (p *Presenter) dimensions(fallbackW, fallbackH int) (int, int) {
	if p.size != nil {
		if w, h, ok := p.size(); ok && w > 0 && h > 0 {
			return w, h
		}
	}
	return fallbackW, fallbackH
}

func terminalSize(out io.Writer) func() (int, int, bool) {
	file, ok := out.(*os.File)
	if !ok {
		return nil
	}
	fd := int(file.Fd())
	return func() (int, int, bool) {
		if !term.IsTerminal(fd) {
			return 0, 0, false
		}
		w, h, err := term.GetSize(fd)
		if err != nil {
			return 0, 0, false
		}
		return w, h, true
	}
}

// SupportsUnicode reports whether the locale looks UTF-8 capable.
func SupportsUnicode() bool {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
		if v == "" {
			continue
		}
		return strings.Contains(v, "utf-8") || strings.Contains(v, "utf8")
	}
	return os.Getenv("WT_SESSION") != ""
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}
