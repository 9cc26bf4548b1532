package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/ascii-chess/internal/chess/uci"
)

var ErrNoBestMove = errors.New("engine returned no move")

type EngineConfig struct {
	// Path is the resolved binary. A relaunch falls back to Locate when
	// Path no longer starts.
	Path      string
	Locate    LocateOptions
	ThinkTime time.Duration
	Strength  Strength
	Threads   int
	HashMB    int
}

// Reply is one completed engine search.
type Reply struct {
	Move      string
	Ponder    string
	EvalCP    int
	Mate      int
	Principal []string
	Duration  time.Duration
}

// Engine owns the Stockfish subprocess. Searches are serialised.
type Engine struct {
	mu      sync.Mutex
	cfg     EngineConfig
	rating  int
	session *uci.Session
	logger  *zap.Logger
}

func NewEngine(ctx context.Context, cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Strength == (Strength{}) {
		cfg.Strength = DefaultStrength()
	}
	if err := cfg.Strength.Validate(); err != nil {
		return nil, err
	}
	if cfg.ThinkTime <= 0 {
		cfg.ThinkTime = DefaultThinkTime
	}
	if strings.TrimSpace(cfg.Path) == "" {
		path, err := Locate(cfg.Locate)
		if err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	e := &Engine{
		cfg:    cfg,
		rating: cfg.Strength.Default(),
		logger: logger,
	}
	if err := e.launch(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Path
}

func (e *Engine) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.Name()
}

func (e *Engine) Rating() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rating
}

func (e *Engine) Strength() Strength {
	return e.cfg.Strength
}

func (e *Engine) ThinkTime() time.Duration {
	return e.cfg.ThinkTime
}

// SetRating clamps rating into the configured bounds and applies it.
func (e *Engine) SetRating(ctx context.Context, rating int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rating = e.cfg.Strength.Clamp(rating)
	if err := e.ensureSession(ctx); err != nil {
		return e.rating, err
	}
	if err := e.session.Configure(ctx, e.limitedOptions()); err != nil {
		return e.rating, fmt.Errorf("configure engine strength: %w", err)
	}
	e.logger.Debug("engine_rating_set", zap.Int("elo", e.rating))
	return e.rating, nil
}

func (e *Engine) NewGame(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureSession(ctx); err != nil {
		return err
	}
	return e.session.NewGame(ctx)
}

// ChooseMove runs one rated search for the position reached by moves.
func (e *Engine) ChooseMove(ctx context.Context, moves []string) (Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureSession(ctx); err != nil {
		return Reply{}, err
	}
	reply, err := e.search(ctx, moves, e.cfg.ThinkTime)
	if err != nil {
		return Reply{}, err
	}
	e.logger.Info("engine_move",
		zap.String("move", reply.Move),
		zap.Int("eval_cp", reply.EvalCP),
		zap.Int("elo", e.rating),
		zap.Int("ply", len(moves)),
		zap.Duration("duration", reply.Duration),
	)
	return reply, nil
}

// Hint searches at full strength for twice the think time. The rated
// strength is restored before returning, including on failure.
func (e *Engine) Hint(ctx context.Context, moves []string) (reply Reply, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureSession(ctx); err != nil {
		return Reply{}, err
	}
	if err := e.session.Configure(ctx, e.fullOptions()); err != nil {
		return Reply{}, fmt.Errorf("unlock engine strength: %w", err)
	}
	defer func() {
		if restoreErr := e.restoreStrength(ctx); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()

	reply, err = e.search(ctx, moves, e.cfg.ThinkTime*hintTimeFactor)
	if err != nil {
		return Reply{}, err
	}
	e.logger.Info("engine_hint",
		zap.String("move", reply.Move),
		zap.Int("eval_cp", reply.EvalCP),
		zap.Int("ply", len(moves)),
	)
	return reply, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}

func (e *Engine) search(ctx context.Context, moves []string, think time.Duration) (Reply, error) {
	searchCtx, cancel := context.WithTimeout(ctx, think+searchGrace)
	defer cancel()

	start := time.Now()
	resp, err := e.session.Search(searchCtx, uci.SearchRequest{
		Moves:  moves,
		Limits: uci.Limits{MoveTimeMillis: moveTimeMillis(think)},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// drain the late bestmove so the next search does not read it
			drainCtx, drainCancel := context.WithTimeout(context.WithoutCancel(ctx), searchGrace)
			_ = e.session.EnsureReady(drainCtx)
			drainCancel()
		}
		return Reply{}, err
	}
	move := strings.TrimSpace(resp.BestMove)
	if move == "" || move == "(none)" || move == "0000" {
		return Reply{}, ErrNoBestMove
	}

	reply := Reply{
		Move:     move,
		Ponder:   resp.Ponder,
		Duration: time.Since(start),
	}
	if len(resp.Candidates) > 0 {
		best := resp.Candidates[0]
		reply.EvalCP = best.EvalCP
		reply.Mate = best.Mate
		reply.Principal = append([]string(nil), best.Principal...)
	}
	return reply, nil
}

// ensureSession relaunches a dead subprocess. Callers hold e.mu.
func (e *Engine) ensureSession(ctx context.Context) error {
	if e.session != nil && e.session.Alive() {
		return nil
	}
	if e.session != nil {
		e.logger.Warn("engine_process_lost", zap.String("path", e.cfg.Path))
		_ = e.session.Close()
		e.session = nil
	}
	return e.launch(ctx)
}

func (e *Engine) launch(ctx context.Context) error {
	path := e.cfg.Path
	session, err := uci.NewSession(ctx, path, e.limitedOptions(), e.logger)
	if err != nil {
		relocated, locateErr := Locate(e.cfg.Locate)
		if locateErr != nil || relocated == path {
			return fmt.Errorf("launch engine %s: %w", path, err)
		}
		path = relocated
		session, err = uci.NewSession(ctx, path, e.limitedOptions(), e.logger)
		if err != nil {
			return fmt.Errorf("launch engine %s: %w", path, err)
		}
	}
	e.cfg.Path = path
	e.session = session
	e.logger.Info("engine_started",
		zap.String("path", path),
		zap.String("name", session.Name()),
		zap.Int("elo", e.rating),
	)
	return nil
}

func (e *Engine) restoreStrength(ctx context.Context) error {
	if e.session == nil || !e.session.Alive() {
		// a relaunched session starts rated
		return nil
	}
	if err := e.session.Configure(ctx, e.limitedOptions()); err != nil {
		return fmt.Errorf("restore engine strength: %w", err)
	}
	return nil
}

func (e *Engine) limitedOptions() uci.Options {
	return uci.Options{
		Threads:       e.cfg.Threads,
		HashMB:        e.cfg.HashMB,
		LimitStrength: true,
		Elo:           e.rating,
	}
}

func (e *Engine) fullOptions() uci.Options {
	return uci.Options{
		Threads: e.cfg.Threads,
		HashMB:  e.cfg.HashMB,
	}
}
