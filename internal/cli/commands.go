package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/ascii-chess/internal/adapter/chesspresenter"
	corechess "github.com/park285/ascii-chess/internal/chess"
	"github.com/park285/ascii-chess/internal/chessbuilder"
	"github.com/park285/ascii-chess/internal/msgcat"
	svcchess "github.com/park285/ascii-chess/internal/service/chess"
	"github.com/park285/ascii-chess/internal/spectate"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

// ascii-chess install
func (e *env) installCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Build Stockfish from source into the data directory",
		Args:  cobra.NoArgs,
		Long: heredoc.Doc(`
			install clones Stockfish, builds it with make and moves the
			binary into <data dir>/engines, where it is found on the next
			start. git, make and a C++ compiler must be on PATH.`),
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, _ := cmd.Flags().GetString("source")
			verbose, _ := cmd.Flags().GetBool("verbose")
			path, err := corechess.Install(cmd.Context(), corechess.InstallOptions{
				DataDir:  e.cfg.DataDir,
				Source:   source,
				Progress: e.io.Err,
				Verbose:  verbose,
				Logger:   e.logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.io.Out, "Stockfish installed at %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("source", "", "Git URL to build from (default: official repository)")
	cmd.Flags().BoolP("verbose", "v", false, "Stream build output instead of a spinner")
	return cmd
}

// ascii-chess history [--limit N]
func (e *env) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			deps, err := e.offline(cmd)
			if err != nil {
				return err
			}
			defer e.closeDeps(deps)

			ctx := cmd.Context()
			games, err := deps.Service.History(ctx, limit)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			summaries := make([]chessdto.GameSummary, 0, len(games))
			for _, g := range games {
				summaries = append(summaries, svcchess.GameSummary(g))
			}
			fmt.Fprintln(e.io.Out, deps.Formatter.History(summaries))

			profile, err := deps.Service.Profile(ctx)
			switch {
			case errors.Is(err, svcchess.ErrProfileNotFound):
			case err != nil:
				return fmt.Errorf("load profile: %w", err)
			default:
				dto := svcchess.ProfileDTO(profile)
				fmt.Fprintln(e.io.Out)
				fmt.Fprintln(e.io.Out, deps.Formatter.Profile(&dto))
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 0, "Number of games to list (default from config)")
	return cmd
}

// ascii-chess show <id> [--png file]
func (e *env) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a finished game's PGN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid game id %q", args[0])
			}
			pngPath, _ := cmd.Flags().GetString("png")

			deps, err := e.offline(cmd)
			if err != nil {
				return err
			}
			defer e.closeDeps(deps)

			ctx := cmd.Context()
			game, err := deps.Service.Game(ctx, id)
			if err != nil {
				if errors.Is(err, svcchess.ErrGameNotFound) {
					return fmt.Errorf("game %d not found", id)
				}
				return fmt.Errorf("load game %d: %w", id, err)
			}
			fmt.Fprintln(e.io.Out, deps.Formatter.Game(svcchess.GameSummary(game), game.PGN))

			if pngPath == "" {
				return nil
			}
			data, err := deps.Service.RenderGamePNG(ctx, game)
			if err != nil {
				return fmt.Errorf("render game %d: %w", id, err)
			}
			if err := os.WriteFile(pngPath, data, 0o644); err != nil {
				return fmt.Errorf("write png: %w", err)
			}
			fmt.Fprintf(e.io.Out, "Saved %s\n", pngPath)
			return nil
		},
	}
	cmd.Flags().String("png", "", "Also render the final position to this PNG file")
	return cmd
}

// ascii-chess watch <addr> [--png file] [--pgn file]
func (e *env) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <addr>",
		Short: "Follow a game served with --spectate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			pngPath, _ := cmd.Flags().GetString("png")
			pgnPath, _ := cmd.Flags().GetString("pgn")
			cat, err := msgcat.New(e.cfg.MessagesDir)
			if err != nil {
				return fmt.Errorf("load messages: %w", err)
			}
			f := chesspresenter.NewFormatter(cat, !e.cfg.AsciiOnly && chesspresenter.SupportsUnicode())
			presenter := chesspresenter.NewPresenter(e.io.Out, f)
			addr := args[0]
			ctx := cmd.Context()

			presenter.Clear()
			presenter.Println(f.Text("info.waiting", map[string]any{"Addr": addr}))
			client := spectate.NewClient(addr)
			return client.Watch(ctx, interval, func(snap chessdto.Snapshot) {
				view, err := f.SnapshotView(snap, addr)
				if err != nil {
					e.logger.Warn("watch_snapshot_invalid", zap.Error(err))
					return
				}
				presenter.Render(view)
				if pngPath != "" {
					e.mirror(pngPath, func() ([]byte, error) { return client.BoardPNG(ctx) })
				}
				if pgnPath != "" {
					e.mirror(pgnPath, func() ([]byte, error) {
						pgn, err := client.PGN(ctx)
						return []byte(pgn), err
					})
				}
			})
		},
	}
	cmd.Flags().Duration("interval", 500*time.Millisecond, "Polling interval")
	cmd.Flags().String("png", "", "Keep this file updated with the served board image")
	cmd.Flags().String("pgn", "", "Keep this file updated with the served PGN")
	return cmd
}

// mirror writes what fetch returns to path. Failures are logged and the
// previous file is left alone.
func (e *env) mirror(path string, fetch func() ([]byte, error)) {
	data, err := fetch()
	if err != nil {
		e.logger.Warn("watch_fetch_failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.logger.Warn("watch_write_failed", zap.String("path", path), zap.Error(err))
	}
}

func (e *env) offline(cmd *cobra.Command) (*chessbuilder.Deps, error) {
	if e.cfg.DatabaseURL == "" {
		e.logger.Info("archive_in_memory", zap.String("hint", "set DATABASE_URL to keep finished games"))
	}
	return chessbuilder.New(cmd.Context(), e.cfg, chessbuilder.Options{Offline: true}, e.logger)
}

func (e *env) closeDeps(deps *chessbuilder.Deps) {
	if err := deps.Close(); err != nil {
		e.logger.Warn("shutdown_failed", zap.Error(err))
	}
}
