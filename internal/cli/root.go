package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/ascii-chess/internal/app"
	"github.com/park285/ascii-chess/internal/chessbuilder"
	"github.com/park285/ascii-chess/internal/config"
	"github.com/park285/ascii-chess/internal/obslog"
)

// IO is where commands read and write. Tests swap in buffers.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// env is filled by the persistent pre-run before any command body runs.
type env struct {
	io     IO
	cfg    *config.AppConfig
	logger *zap.Logger
	// load replaces config.Load in tests.
	load func() (*config.AppConfig, error)
}

func Root(streams IO) *cobra.Command {
	return newRoot(streams, config.Load)
}

func newRoot(streams IO, load func() (*config.AppConfig, error)) *cobra.Command {
	e := &env{io: streams, load: load, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "ascii-chess",
		Short: "Play chess against Stockfish in the terminal",
		Long: heredoc.Doc(`
			ascii-chess draws the board as text and lets you play White
			against a local Stockfish engine.

			Enter moves in SAN (e4, Nf3, O-O, exd5, e8=Q). Commands during a
			game: ff or resign, undo, redo, hint, save, help and quit.

			Settings come from $XDG_CONFIG_HOME/ascii-chess/config.yaml (or
			CHESS_CONFIG), then CHESS_* environment variables, then flags.`),
		Args: cobra.NoArgs,

		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			obslog.Sync()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			resume, _ := cmd.Flags().GetBool("resume")
			return e.play(cmd, resume)
		},
	}

	pf := root.PersistentFlags()
	pf.String("engine-path", "", "Stockfish binary, or a directory searched for one")
	pf.Float64("think-time", config.Defaults().ThinkTime.Seconds(), "Seconds per engine move")
	pf.Bool("ascii-only", false, "Use ASCII piece letters instead of Unicode glyphs")
	pf.Int("min-rating", config.Defaults().MinRating, "Lowest engine Elo allowed")
	pf.Int("max-rating", config.Defaults().MaxRating, "Highest engine Elo allowed")
	pf.Bool("no-auto-install", false, "Never build Stockfish automatically")
	pf.String("player", "", "Player name for the profile and history (default $USER)")
	pf.BoolP("trace", "t", false, "Debug-level logging")

	root.Flags().Bool("resume", false, "Continue the last unfinished game")
	root.Flags().String("spectate", "", "Serve the game for spectators on this address, e.g. 127.0.0.1:8080")

	root.AddCommand(e.installCmd())
	root.AddCommand(e.historyCmd())
	root.AddCommand(e.showCmd())
	root.AddCommand(e.watchCmd())
	return root
}

// setup layers flags over the loaded config and starts logging.
func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := e.load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("engine-path") {
		cfg.StockfishPath, _ = flags.GetString("engine-path")
	}
	if flags.Changed("think-time") {
		secs, _ := flags.GetFloat64("think-time")
		cfg.ThinkTime = time.Duration(secs * float64(time.Second))
	}
	if flags.Changed("ascii-only") {
		cfg.AsciiOnly, _ = flags.GetBool("ascii-only")
	}
	if flags.Changed("min-rating") {
		cfg.MinRating, _ = flags.GetInt("min-rating")
	}
	if flags.Changed("max-rating") {
		cfg.MaxRating, _ = flags.GetInt("max-rating")
	}
	if flags.Changed("no-auto-install") {
		off, _ := flags.GetBool("no-auto-install")
		cfg.AutoInstall = !off
	}
	if flags.Changed("player") {
		cfg.PlayerName, _ = flags.GetString("player")
	}
	if flags.Changed("spectate") {
		cfg.SpectateAddr, _ = flags.GetString("spectate")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	e.cfg = cfg

	trace, _ := flags.GetBool("trace")
	if err := obslog.InitFromEnv(obslog.WithDebug(trace)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	e.logger = obslog.L()
	e.logger.Debug("config_loaded",
		zap.String("file", cfg.ConfigFile),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
	)
	return nil
}

// play builds the full stack and runs the game loop.
func (e *env) play(cmd *cobra.Command, resume bool) error {
	ctx := cmd.Context()
	deps, err := chessbuilder.New(ctx, e.cfg, chessbuilder.Options{Progress: e.io.Err}, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			e.logger.Warn("shutdown_failed", zap.Error(cerr))
		}
	}()

	opts := app.Options{Strength: deps.Strength, Resume: resume}
	if deps.Spectator != nil {
		opts.Publisher = deps.Spectator
	}
	runner := app.NewRunner(deps.Service, deps.Formatter, e.io.In, e.io.Out, opts, e.logger)
	return runner.Run(ctx)
}
