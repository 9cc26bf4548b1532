package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/ascii-chess/internal/adapter/chesspresenter"
	corechess "github.com/park285/ascii-chess/internal/chess"
	"github.com/park285/ascii-chess/internal/config"
	"github.com/park285/ascii-chess/internal/msgcat"
	"github.com/park285/ascii-chess/internal/service/cache"
	svcchess "github.com/park285/ascii-chess/internal/service/chess"
	"github.com/park285/ascii-chess/internal/spectate"
)

const cachePrefix = "ascii-chess:"

// Options control how much of the stack New brings up.
type Options struct {
	// Offline skips the engine. The service can still read the archive and
	// render finished games, but refuses to play.
	Offline bool
	// Progress receives the install spinner when the engine is built.
	Progress io.Writer
}

type Deps struct {
	Service   *svcchess.Service
	Engine    *corechess.Engine
	Cache     cache.Store
	Repo      svcchess.Repository
	DB        *sql.DB
	Catalog   *msgcat.Catalog
	Formatter *chesspresenter.Formatter
	Spectator *spectate.Server
	Strength  corechess.Strength
}

func New(ctx context.Context, cfg *config.AppConfig, opts Options, logger *zap.Logger) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deps = &Deps{Strength: corechess.Strength{Min: cfg.MinRating, Max: cfg.MaxRating}}
	defer func() {
		if err != nil {
			if cerr := deps.Close(); cerr != nil {
				logger.Warn("chessbuilder_cleanup_failed", zap.Error(cerr))
			}
			deps = nil
		}
	}()

	// Messages
	deps.Catalog, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		return deps, fmt.Errorf("load messages: %w", err)
	}
	deps.Formatter = chesspresenter.NewFormatter(deps.Catalog, !cfg.AsciiOnly && chesspresenter.SupportsUnicode())

	// Engine
	var engine svcchess.Engine = offlineEngine{}
	if !opts.Offline {
		deps.Engine, err = openEngine(ctx, cfg, deps.Strength, opts.Progress, logger)
		if err != nil {
			return deps, err
		}
		engine = deps.Engine
	}

	// Cache (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cconf, perr := parseRedisURL(cfg.RedisURL)
		if perr != nil {
			return deps, fmt.Errorf("parse redis url: %w", perr)
		}
		redisCache, cerr := cache.NewCacheService(*cconf, logger)
		if cerr != nil {
			return deps, fmt.Errorf("init cache: %w", cerr)
		}
		deps.Cache = redisCache
	} else {
		deps.Cache = cache.NewMemoryCache()
	}

	// Repository (Postgres optional)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		deps.DB, err = openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return deps, err
		}
		deps.Repo = svcchess.NewRepository(deps.DB)
	} else {
		deps.Repo = svcchess.NewMemoryRepository()
	}

	svcCfg := svcchess.Config{
		PlayerName:    cfg.PlayerName,
		SessionTTL:    cfg.SessionTTL,
		HistoryLimit:  cfg.HistoryLimit,
		DebugCommands: cfg.DebugCommands,
		ExportDir:     cfg.ExportDir,
	}
	renderer := svcchess.NewBoardRenderer(svcchess.WithPieceDir(filepath.Join(cfg.DataDir, "pieces")))
	deps.Service, err = svcchess.NewService(engine, deps.Cache, deps.Repo, renderer, svcCfg, logger)
	if err != nil {
		return deps, err
	}

	if addr := strings.TrimSpace(cfg.SpectateAddr); addr != "" && !opts.Offline {
		deps.Spectator = spectate.NewServer(addr, deps.Service, logger)
		if _, err = deps.Spectator.Start(); err != nil {
			deps.Spectator = nil
			return deps, err
		}
	}
	return deps, nil
}

// openEngine finds Stockfish, building it when allowed, and starts it.
func openEngine(ctx context.Context, cfg *config.AppConfig, strength corechess.Strength, progress io.Writer, logger *zap.Logger) (*corechess.Engine, error) {
	locate := corechess.LocateOptions{
		ExplicitPath: cfg.StockfishPath,
		BundledDirs:  corechess.BundledDirs(cfg.DataDir),
	}
	path, err := corechess.Locate(locate)
	if errors.Is(err, corechess.ErrEngineNotFound) && cfg.AutoInstall && strings.TrimSpace(cfg.StockfishPath) == "" {
		logger.Info("engine_auto_install", zap.String("data_dir", cfg.DataDir))
		path, err = corechess.Install(ctx, corechess.InstallOptions{
			DataDir:  cfg.DataDir,
			Progress: progress,
			Logger:   logger,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("locate engine: %w", err)
	}

	engine, err := corechess.NewEngine(ctx, corechess.EngineConfig{
		Path:      path,
		Locate:    locate,
		ThinkTime: cfg.ThinkTime,
		Strength:  strength,
		Threads:   cfg.EngineThreads,
		HashMB:    cfg.EngineHashMB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return engine, nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := svcchess.Migrate(pingCtx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases everything New opened. All errors are reported.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var result *multierror.Error
	if d.Spectator != nil {
		if err := d.Spectator.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close spectator: %w", err))
		}
	}
	if d.Engine != nil {
		if err := d.Engine.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close engine: %w", err))
		}
	}
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close cache: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close postgres: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func parseRedisURL(raw string) (*cache.CacheConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	pass, _ := u.User.Password()
	if u.Scheme == "unix" {
		if u.Path == "" {
			return nil, fmt.Errorf("unix socket path is empty")
		}
		db := 0
		if v := u.Query().Get("db"); v != "" {
			if db, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("invalid db %q", v)
			}
		}
		return &cache.CacheConfig{Network: "unix", Host: u.Path, Password: pass, DB: db, Prefix: cachePrefix}, nil
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if db, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid db %q", p)
		}
	}
	return &cache.CacheConfig{
		Host:     host,
		Port:     port,
		Password: pass,
		DB:       db,
		TLS:      u.Scheme == "rediss",
		Prefix:   cachePrefix,
	}, nil
}

// offlineEngine backs archive-only commands.
type offlineEngine struct{}

func (offlineEngine) Name() string { return "Stockfish" }

func (offlineEngine) Rating() int { return corechess.DefaultRating }

func (offlineEngine) SetRating(context.Context, int) (int, error) {
	return 0, svcchess.ErrEngineUnavailable
}

func (offlineEngine) NewGame(context.Context) error { return svcchess.ErrEngineUnavailable }

func (offlineEngine) ChooseMove(context.Context, []string) (corechess.Reply, error) {
	return corechess.Reply{}, svcchess.ErrEngineUnavailable
}

func (offlineEngine) Hint(context.Context, []string) (corechess.Reply, error) {
	return corechess.Reply{}, svcchess.ErrEngineUnavailable
}
