package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/park285/ascii-chess/internal/adapter/chesspresenter"
	corechess "github.com/park285/ascii-chess/internal/chess"
	svc "github.com/park285/ascii-chess/internal/service/chess"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

const spinnerCharSet = 14

var errQuit = errors.New("player quit")

type Options struct {
	Strength corechess.Strength
	Resume   bool
	// Publisher also receives every snapshot, e.g. the spectator server.
	Publisher svc.Publisher
	// Spinner forces the thinking spinner on or off. Nil enables it when
	// the output is a terminal.
	Spinner *bool
}

// Runner drives the terminal game loop: title, rating prompt, moves,
// result and "Play again?".
type Runner struct {
	svc       *svc.Service
	f         *chesspresenter.Formatter
	presenter *chesspresenter.Presenter
	out       io.Writer
	lines     <-chan string
	readErr   chan error
	logger    *zap.Logger
	opts      Options
	spin      bool
	thinking  chan struct{}
}

func NewRunner(service *svc.Service, f *chesspresenter.Formatter, in io.Reader, out io.Writer, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	if opts.Strength == (corechess.Strength{}) {
		opts.Strength = corechess.DefaultStrength()
	}
	r := &Runner{
		svc:       service,
		f:         f,
		presenter: chesspresenter.NewPresenter(out, f),
		out:       out,
		readErr:   make(chan error, 1),
		logger:    logger,
		opts:      opts,
		spin:      isTerminal(out),
		thinking:  make(chan struct{}, 1),
	}
	if opts.Spinner != nil {
		r.spin = *opts.Spinner
	}
	r.lines = r.scan(in)
	service.SetPublisher(r)
	return r
}

// Publish signals the loop when the engine starts thinking and forwards the
// snapshot. It never blocks.
func (r *Runner) Publish(snapshot chessdto.Snapshot) {
	if r.opts.Publisher != nil {
		r.opts.Publisher.Publish(snapshot)
	}
	if snapshot.Phase == svc.AwaitingEngine.String() {
		select {
		case r.thinking <- struct{}{}:
		default:
		}
	}
}

// Run plays games until the player quits, declines another game or input
// ends.
func (r *Runner) Run(ctx context.Context) error {
	r.presenter.Title()

	prompt, resumed, err := r.resume(ctx)
	if err != nil {
		return err
	}
	for {
		if !resumed {
			if err := r.newGame(ctx); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}
			prompt = r.f.Text("prompt.default", nil)
		}
		resumed = false

		quit, err := r.play(ctx, prompt)
		if err != nil || quit {
			return err
		}
		again, err := r.playAgain(ctx)
		if err != nil || !again {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

func (r *Runner) resume(ctx context.Context) (string, bool, error) {
	if !r.opts.Resume {
		return "", false, nil
	}
	state, err := r.svc.Resume(ctx)
	switch {
	case errors.Is(err, svc.ErrNothingToResume):
		r.presenter.Println(r.f.Text("notice.nothing_to_resume", nil))
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("resume: %w", err)
	}
	return r.f.Text("notice.resumed", map[string]any{
		"ID":    shortID(state.SessionUUID),
		"Moves": len(state.MovesSAN),
	}), true, nil
}

// newGame resets the session and asks for the engine rating.
func (r *Runner) newGame(ctx context.Context) error {
	state, err := r.svc.Start(ctx)
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	rating, err := r.askRating(ctx, state.EngineElo)
	if err != nil {
		return err
	}
	if rating == state.EngineElo {
		return nil
	}
	if _, err := r.svc.SetRating(ctx, rating); err != nil {
		r.presenter.Println(r.f.Error(err, ""))
	}
	return nil
}

func (r *Runner) askRating(ctx context.Context, current int) (int, error) {
	bounds := map[string]any{
		"Min":     r.opts.Strength.Min,
		"Max":     r.opts.Strength.Max,
		"Default": current,
	}
	for {
		r.presenter.Prompt(r.f.Text("prompt.rating", bounds))
		line, err := r.readLine(ctx)
		if err != nil {
			return 0, err
		}
		text := strings.TrimSpace(line)
		switch strings.ToLower(text) {
		case "":
			return current, nil
		case "quit", "exit":
			return 0, errQuit
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			r.presenter.Println(r.f.Text("prompt.rating_number", nil))
			continue
		}
		if !r.opts.Strength.Contains(n) {
			r.presenter.Println(r.f.Text("prompt.rating_range", bounds))
			continue
		}
		return n, nil
	}
}

// play runs one game. It reports quit when the player left instead of
// finishing.
func (r *Runner) play(ctx context.Context, prompt string) (bool, error) {
	status := ""
	if state := r.svc.State(); state != nil && state.Phase == svc.AwaitingEngine {
		resp, err := r.submit(ctx, "")
		prompt, status = r.describe(resp, err, "")
		if resp.Finished() {
			r.announce(resp)
			return false, nil
		}
	}
	for {
		r.presenter.Render(r.f.ViewOf(r.svc.State(), prompt, status))
		line, err := r.readLine(ctx)
		if err != nil {
			if _, qerr := r.svc.Quit(context.WithoutCancel(ctx)); qerr != nil {
				r.logger.Warn("chess_quit_failed", zap.Error(qerr))
			}
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return true, nil
			}
			return true, err
		}

		if svc.ParseCommand(line).Kind == svc.CommandHint {
			r.presenter.Render(r.f.ViewOf(r.svc.State(), prompt, r.f.Text("status.calculating", nil)))
		}
		resp, err := r.submit(ctx, line)
		if err == nil && resp.Quit {
			r.presenter.Println("", r.f.Text("notice.exiting", nil))
			return true, nil
		}
		prompt, status = r.describe(resp, err, line)
		if resp.Finished() {
			r.announce(resp)
			return false, nil
		}
	}
}

func (r *Runner) describe(resp *svc.Response, err error, input string) (string, string) {
	if err != nil {
		r.logger.Debug("chess_input_rejected", zap.String("input", input), zap.Error(err))
		return r.f.Error(err, input), ""
	}
	prompt, status := r.f.Response(resp)
	if resp.Command == svc.CommandHelp {
		prompt = r.f.Help(r.svc.DebugCommands())
	}
	return prompt, status
}

// submit runs one input through the service. When the engine starts its
// search the thinking frame is drawn and the spinner runs until the reply.
func (r *Runner) submit(ctx context.Context, line string) (*svc.Response, error) {
	select {
	case <-r.thinking:
	default:
	}

	type outcome struct {
		resp *svc.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := r.svc.Submit(ctx, line)
		done <- outcome{resp: resp, err: err}
	}()

	stop := func() {}
	spinning := false
	for {
		select {
		case res := <-done:
			stop()
			return res.resp, res.err
		case <-r.thinking:
			if spinning {
				continue
			}
			spinning = true
			r.presenter.Render(r.f.ViewOf(r.svc.State(), r.f.Text("status.thinking", nil), r.f.Text("status.calculating", nil)))
			stop = r.startSpinner()
		}
	}
}

func (r *Runner) startSpinner() func() {
	if !r.spin {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[spinnerCharSet], 100*time.Millisecond, spinner.WithWriter(r.out))
	s.Prefix = " "
	s.Start()
	return s.Stop
}

// announce draws the final position and the result lines.
func (r *Runner) announce(resp *svc.Response) {
	state := resp.State
	_, status := r.f.Response(resp)
	r.presenter.Render(r.f.ViewOf(state, "", status))

	var profile *chessdto.ChessProfile
	if resp.Profile != nil {
		dto := svc.ProfileDTO(resp.Profile)
		profile = &dto
	}
	r.presenter.Println(r.f.Result(state.Result, profile, resp.RatingDelta))
	r.logger.Info("chess_game_announced",
		zap.String("session_uuid", state.SessionUUID),
		zap.String("outcome", string(state.Result.Outcome)),
		zap.String("reason", string(state.Result.Reason)),
		zap.Int64("game_id", resp.GameID),
	)
}

// playAgain asks until the answer is yes or no. "save" exports the game
// that just ended.
func (r *Runner) playAgain(ctx context.Context) (bool, error) {
	for {
		r.presenter.Prompt(r.f.Text("prompt.play_again", nil))
		line, err := r.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return false, nil
			}
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no", "quit", "exit":
			return false, nil
		case "save":
			resp, err := r.svc.Submit(ctx, "save")
			if err != nil {
				r.presenter.Println(r.f.Error(err, line))
				continue
			}
			r.presenter.Println(r.f.Saved(resp.Export))
		default:
			r.presenter.Println(r.f.Text("prompt.play_again_invalid", nil))
		}
	}
}

// scan feeds input lines to the loop so reads can be abandoned on cancel.
func (r *Runner) scan(in io.Reader) <-chan string {
	lines := make(chan string)
	if in == nil {
		close(lines)
		r.readErr <- io.EOF
		return lines
	}
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimRight(sc.Text(), "\r")
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		r.readErr <- err
	}()
	return lines
}

func (r *Runner) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-r.lines:
		if ok {
			return line, nil
		}
		err := <-r.readErr
		r.readErr <- err
		return "", err
	}
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
