package chess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	corechess "github.com/park285/ascii-chess/internal/chess"
	"github.com/park285/ascii-chess/internal/chess/openingbook"
	"github.com/park285/ascii-chess/internal/domain"
	"github.com/park285/ascii-chess/internal/history"
	"github.com/park285/ascii-chess/internal/service/cache"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

var (
	ErrNoSession         = errors.New("no chess session started")
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidMove       = errors.New("invalid chess move")
	ErrEngineThinking    = errors.New("engine is thinking")
	ErrGameFinished      = errors.New("chess game already finished")
	ErrGameNotFound      = errors.New("chess game not found")
	ErrProfileNotFound   = errors.New("chess profile not found")
	ErrDuplicateGame     = errors.New("chess game already recorded")
	ErrEngineUnavailable = errors.New("chess engine unavailable")
	ErrEngineTimeout     = errors.New("chess engine timeout")
	ErrDebugDisabled     = errors.New("debug commands disabled")
	ErrNothingToResume   = errors.New("no saved chess session")
)

const (
	defaultPlayerRating  = 1200
	kFactor              = 24
	profileCacheTTL      = 6 * time.Hour
	defaultSessionTTL    = 7 * 24 * time.Hour
	defaultHistoryLimit  = 10
	maxHistoryLimit      = 50
	maxHintLine          = 6
	playerLabelRuneLimit = 24
	defaultPlayerLabel   = "Player"
)

// Engine is the move source for the Black side.
type Engine interface {
	Name() string
	Rating() int
	SetRating(ctx context.Context, rating int) (int, error)
	NewGame(ctx context.Context) error
	ChooseMove(ctx context.Context, moves []string) (corechess.Reply, error)
	Hint(ctx context.Context, moves []string) (corechess.Reply, error)
}

// Publisher receives a snapshot after every state change. Publish must not
// block or call back into the Service.
type Publisher interface {
	Publish(snapshot chessdto.Snapshot)
}

type Config struct {
	PlayerName    string
	SessionTTL    time.Duration
	HistoryLimit  int
	DebugCommands bool
	ExportDir     string
}

// Service is the session controller: one human (White) against the engine
// (Black), driven one input line at a time.
type Service struct {
	mu        sync.Mutex
	engine    Engine
	cache     cache.Store
	repo      Repository
	renderer  BoardRenderer
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	current *session
}

type session struct {
	uuid       string
	stack      *history.Stack
	phase      Phase
	searching  bool
	result     *Result
	engineName string
	engineElo  int
	startedAt  time.Time
	updatedAt  time.Time
	hints      int
	undos      int
	latency    time.Duration
	lastMove   *MoveHighlight
}

type sessionPayload struct {
	SessionUUID string    `json:"session_uuid"`
	PlayerName  string    `json:"player_name"`
	EngineElo   int       `json:"engine_elo"`
	Moves       []string  `json:"moves"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Hints       int       `json:"hints,omitempty"`
	Undos       int       `json:"undos,omitempty"`
}

type lastSessionPointer struct {
	SessionUUID string `json:"session_uuid"`
}

type SessionState struct {
	SessionUUID string
	PlayerName  string
	EngineName  string
	EngineElo   int
	Phase       Phase
	Result      *Result
	MovesSAN    []string
	MovesUCI    []string
	FEN         string
	Turn        nchess.Color
	Board       *nchess.Board
	LastMove    *MoveHighlight
	Material    MaterialScore
	Captured    CapturedPieces
	Opening     string
	CanUndo     bool
	CanRedo     bool
	Hints       int
	Undos       int
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// Hint is a full-strength suggestion for White. Evaluations are from
// White's point of view.
type Hint struct {
	MoveUCI   string
	MoveSAN   string
	EvalCP    int
	Mate      int
	Principal []string
	Duration  time.Duration
}

// Response describes what one accepted input did.
type Response struct {
	Command   CommandKind
	State     *SessionState
	PlayerSAN string
	PlayerUCI string
	EngineSAN string
	EngineUCI string
	// EngineEval is the engine's evaluation after its reply, in centipawns
	// from White's side. Nil when the engine did not move.
	EngineEval  *int
	Hint        *Hint
	Tail        *history.Tail
	Export      *ExportPaths
	GameID      int64
	Profile     *domain.ChessProfile
	RatingDelta int
	Quit        bool
}

func (r *Response) Finished() bool {
	return r != nil && r.State != nil && r.State.Phase == Finished
}

func NewService(engine Engine, store cache.Store, repo Repository, renderer BoardRenderer, cfg Config, logger *zap.Logger) (*Service, error) {
	if engine == nil {
		return nil, errors.New("chess engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cache.NewMemoryCache()
	}
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = maxHistoryLimit
	}
	return &Service{
		engine:   engine,
		cache:    store,
		repo:     repo,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
	if s.current != nil {
		s.publishLocked(s.current)
	}
}

func (s *Service) DebugCommands() bool { return s.cfg.DebugCommands }

func (s *Service) PlayerName() string { return s.playerLabel() }

// Start abandons any running game and begins a new one with the player to
// move.
func (s *Service) Start(ctx context.Context) (*SessionState, error) {
	if err := s.engine.NewGame(ctx); err != nil {
		s.logger.Warn("chess_engine_newgame_failed", zap.Error(err))
		return nil, mapEngineError(err)
	}
	now := s.now()
	sess := &session{
		uuid:       uuid.NewString(),
		stack:      history.New(),
		phase:      AwaitingInput,
		engineName: s.engine.Name(),
		engineElo:  s.engine.Rating(),
		startedAt:  now,
		updatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev := s.current; prev != nil && prev.phase != Finished {
		s.deleteSessionLocked(ctx, prev)
	}
	s.current = sess
	s.saveSessionLocked(ctx, sess)
	s.publishLocked(sess)
	s.logger.Info("chess_session_started",
		zap.String("session_uuid", sess.uuid),
		zap.String("player", s.playerLabel()),
		zap.Int("engine_elo", sess.engineElo),
	)
	return s.stateLocked(sess), nil
}

// Resume restores the player's last unfinished game from the cache.
func (s *Service) Resume(ctx context.Context) (*SessionState, error) {
	pointer := &lastSessionPointer{}
	if err := s.cache.Get(ctx, s.lastSessionKey(), pointer); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNothingToResume
		}
		return nil, err
	}
	payload := &sessionPayload{}
	if err := s.cache.Get(ctx, s.sessionKey(pointer.SessionUUID), payload); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNothingToResume
		}
		return nil, err
	}

	stack, err := history.Replay(payload.Moves, history.Human)
	if err == nil && detectResult(stack.Game()) != nil {
		err = ErrGameFinished
	}
	if err != nil {
		s.logger.Warn("chess_session_discarded", zap.String("session_uuid", payload.SessionUUID), zap.Error(err))
		_ = s.cache.Del(ctx, s.sessionKey(payload.SessionUUID), s.lastSessionKey())
		return nil, ErrNothingToResume
	}

	if payload.EngineElo > 0 && payload.EngineElo != s.engine.Rating() {
		if _, err := s.engine.SetRating(ctx, payload.EngineElo); err != nil {
			s.logger.Warn("chess_engine_rating_restore_failed", zap.Error(err))
		}
	}
	if err := s.engine.NewGame(ctx); err != nil {
		s.logger.Warn("chess_engine_newgame_failed", zap.Error(err))
	}

	sess := &session{
		uuid:       payload.SessionUUID,
		stack:      stack,
		phase:      phaseForTurn(stack),
		engineName: s.engine.Name(),
		engineElo:  s.engine.Rating(),
		startedAt:  payload.StartedAt,
		updatedAt:  payload.UpdatedAt,
		hints:      payload.Hints,
		undos:      payload.Undos,
		lastMove:   lastMoveFromStack(stack),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.publishLocked(sess)
	s.logger.Info("chess_session_resumed",
		zap.String("session_uuid", sess.uuid),
		zap.Int("ply", stack.Len()),
		zap.String("phase", sess.phase.String()),
	)
	return s.stateLocked(sess), nil
}

// SetRating applies a new engine Elo. The clamped value is returned.
func (s *Service) SetRating(ctx context.Context, rating int) (int, error) {
	applied, err := s.engine.SetRating(ctx, rating)
	if err != nil {
		return applied, mapEngineError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.current; sess != nil && sess.phase != Finished && sess.stack.Len() == 0 {
		sess.engineElo = applied
		s.saveSessionLocked(ctx, sess)
		s.publishLocked(sess)
	}
	return applied, nil
}

// Submit parses and dispatches one line of input. While the engine owes a
// move after a failed search, resignation and forced results still end the
// game and any other input except quit retries the search.
func (s *Service) Submit(ctx context.Context, input string) (*Response, error) {
	cmd := ParseCommand(input)

	s.mu.Lock()
	started := s.current != nil
	s.mu.Unlock()
	if !started {
		if _, err := s.Start(ctx); err != nil {
			return nil, err
		}
	}

	switch cmd.Kind {
	case CommandQuit:
		return s.Quit(ctx)
	case CommandHelp:
		return &Response{Command: CommandHelp, State: s.State()}, nil
	}

	s.mu.Lock()
	phase, searching := s.current.phase, s.current.searching
	s.mu.Unlock()

	switch phase {
	case Finished:
		if cmd.Kind == CommandSave {
			return s.save(ctx)
		}
		return nil, ErrGameFinished
	case AwaitingEngine:
		if searching {
			return nil, ErrEngineThinking
		}
		if cmd.Kind != CommandResign && !cmd.Kind.IsForced() {
			return s.RetryEngine(ctx)
		}
	}

	if cmd.Kind.IsForced() {
		return s.Force(ctx, forcedOutcomes[cmd.Kind])
	}
	switch cmd.Kind {
	case CommandMove:
		return s.Play(ctx, cmd.Text)
	case CommandResign:
		return s.Resign(ctx)
	case CommandUndo:
		return s.Undo(ctx)
	case CommandRedo:
		return s.Redo(ctx)
	case CommandHint:
		return s.Hint(ctx)
	case CommandSave:
		return s.save(ctx)
	default:
		return nil, ErrEmptyInput
	}
}

// Play applies the player's move and, unless the game ended, runs the
// engine reply. If the engine fails the player's move stays applied and the
// session waits in AwaitingEngine.
func (s *Service) Play(ctx context.Context, moveInput string) (*Response, error) {
	text := strings.TrimSpace(moveInput)
	if text == "" {
		return nil, ErrEmptyInput
	}

	s.mu.Lock()
	sess, err := s.requireInputLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	mv, err := sess.stack.Parse(text)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidMove, text)
	}
	rec, err := sess.stack.Record(history.Human, mv)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidMove, text)
	}
	sess.lastMove = &MoveHighlight{From: mv.S1(), To: mv.S2(), Mover: nchess.White}
	sess.updatedAt = s.now()

	resp := &Response{Command: CommandMove, PlayerSAN: rec.SAN, PlayerUCI: rec.UCI}
	if result := detectResult(sess.stack.Game()); result != nil {
		s.finishLocked(ctx, sess, result, resp)
		s.mu.Unlock()
		return resp, nil
	}
	sess.phase = AwaitingEngine
	s.saveSessionLocked(ctx, sess)
	s.publishLocked(sess)
	s.mu.Unlock()

	return s.engineTurn(ctx, sess, resp)
}

// RetryEngine reruns the engine search owed by a session in AwaitingEngine.
func (s *Service) RetryEngine(ctx context.Context) (*Response, error) {
	s.mu.Lock()
	sess := s.current
	if sess == nil {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	switch {
	case sess.phase == Finished:
		s.mu.Unlock()
		return nil, ErrGameFinished
	case sess.phase != AwaitingEngine:
		s.mu.Unlock()
		return &Response{Command: CommandMove, State: s.stateLocked(sess)}, nil
	}
	s.mu.Unlock()
	return s.engineTurn(ctx, sess, &Response{Command: CommandMove})
}

func (s *Service) engineTurn(ctx context.Context, sess *session, resp *Response) (*Response, error) {
	s.mu.Lock()
	if s.current != sess || sess.phase != AwaitingEngine {
		resp.State = s.stateLocked(sess)
		s.mu.Unlock()
		return resp, nil
	}
	if sess.searching {
		s.mu.Unlock()
		return nil, ErrEngineThinking
	}
	sess.searching = true
	moves := sess.stack.UCI()
	s.mu.Unlock()

	reply, searchErr := s.engine.ChooseMove(ctx, moves)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.searching = false
	if s.current != sess || sess.phase != AwaitingEngine {
		resp.State = s.stateLocked(sess)
		return resp, nil
	}
	if searchErr != nil {
		s.logger.Warn("chess_engine_move_failed",
			zap.Error(searchErr),
			zap.String("session_uuid", sess.uuid),
			zap.Int("ply", len(moves)),
		)
		resp.State = s.stateLocked(sess)
		return resp, mapEngineError(searchErr)
	}

	position := sess.stack.Position()
	mv, err := (nchess.UCINotation{}).Decode(position, strings.ToLower(reply.Move))
	if err == nil {
		var rec history.Record
		rec, err = sess.stack.Record(history.Engine, mv)
		resp.EngineSAN, resp.EngineUCI = rec.SAN, rec.UCI
	}
	if err != nil {
		s.logger.Error("chess_engine_illegal_move",
			zap.String("move", reply.Move),
			zap.String("fen", position.String()),
			zap.Error(err),
		)
		resp.State = s.stateLocked(sess)
		return resp, ErrEngineUnavailable
	}

	eval := -reply.EvalCP
	resp.EngineEval = &eval
	sess.latency += reply.Duration
	sess.lastMove = &MoveHighlight{From: mv.S1(), To: mv.S2(), Mover: nchess.Black}
	sess.updatedAt = s.now()
	sess.phase = AwaitingInput

	if result := detectResult(sess.stack.Game()); result != nil {
		s.finishLocked(ctx, sess, result, resp)
		return resp, nil
	}
	s.saveSessionLocked(ctx, sess)
	s.publishLocked(sess)
	resp.State = s.stateLocked(sess)
	return resp, nil
}

// Resign ends the game as an engine win at any history length, also while
// the engine owes a move after a failed search.
func (s *Service) Resign(ctx context.Context) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireOpenLocked()
	if err != nil {
		return nil, err
	}
	resp := &Response{Command: CommandResign}
	s.finishLocked(ctx, sess, resignationResult(), resp)
	return resp, nil
}

// Force ends the game with a chosen outcome. Forced results are not archived.
func (s *Service) Force(ctx context.Context, outcome nchess.Outcome) (*Response, error) {
	if !s.cfg.DebugCommands {
		return nil, ErrDebugDisabled
	}
	kind := CommandForceDraw
	switch outcome {
	case nchess.WhiteWon:
		kind = CommandForceWin
	case nchess.BlackWon:
		kind = CommandForceLoss
	case nchess.Draw:
	default:
		return nil, fmt.Errorf("cannot force outcome %q", outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireOpenLocked()
	if err != nil {
		return nil, err
	}
	resp := &Response{Command: kind}
	s.finishLocked(ctx, sess, forcedResult(outcome), resp)
	return resp, nil
}

// Undo takes back the player's last move together with the engine reply.
func (s *Service) Undo(ctx context.Context) (*Response, error) {
	return s.step(ctx, CommandUndo)
}

// Redo reapplies the most recently undone move group.
func (s *Service) Redo(ctx context.Context) (*Response, error) {
	return s.step(ctx, CommandRedo)
}

func (s *Service) step(ctx context.Context, kind CommandKind) (*Response, error) {
	s.mu.Lock()
	sess, err := s.requireInputLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var tail history.Tail
	if kind == CommandUndo {
		tail, err = sess.stack.Undo()
	} else {
		tail, err = sess.stack.Redo()
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if kind == CommandUndo {
		sess.undos++
	}
	sess.lastMove = lastMoveFromStack(sess.stack)
	sess.updatedAt = s.now()
	sess.phase = phaseForTurn(sess.stack)
	s.logger.Debug("chess_history_step",
		zap.String("command", kind.String()),
		zap.String("tail", tail.Kind.String()),
		zap.Int("ply", sess.stack.Len()),
	)

	resp := &Response{Command: kind, Tail: &tail}
	if result := detectResult(sess.stack.Game()); result != nil {
		s.finishLocked(ctx, sess, result, resp)
		s.mu.Unlock()
		return resp, nil
	}
	s.saveSessionLocked(ctx, sess)
	s.publishLocked(sess)
	resp.State = s.stateLocked(sess)
	pending := sess.phase == AwaitingEngine
	s.mu.Unlock()

	if pending {
		return s.engineTurn(ctx, sess, resp)
	}
	return resp, nil
}

// Hint asks the engine for the best move at full strength without changing
// the game.
func (s *Service) Hint(ctx context.Context) (*Response, error) {
	s.mu.Lock()
	sess, err := s.requireInputLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sess.searching = true
	moves := sess.stack.UCI()
	game := sess.stack.Game().Clone()
	s.mu.Unlock()

	reply, hintErr := s.engine.Hint(ctx, moves)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.searching = false
	if hintErr != nil {
		s.logger.Warn("chess_engine_hint_failed", zap.Error(hintErr), zap.String("session_uuid", sess.uuid))
		return nil, mapEngineError(hintErr)
	}
	hint, err := buildHint(game, reply)
	if err != nil {
		s.logger.Error("chess_engine_illegal_hint", zap.String("move", reply.Move), zap.Error(err))
		return nil, ErrEngineUnavailable
	}
	sess.hints++
	s.saveSessionLocked(ctx, sess)
	return &Response{Command: CommandHint, Hint: hint, State: s.stateLocked(sess)}, nil
}

// Quit leaves the game. An unfinished game stays in the cache for Resume.
func (s *Service) Quit(ctx context.Context) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &Response{Command: CommandQuit, Quit: true}
	if sess := s.current; sess != nil {
		if sess.phase != Finished {
			s.saveSessionLocked(ctx, sess)
		}
		resp.State = s.stateLocked(sess)
		s.logger.Info("chess_session_quit",
			zap.String("session_uuid", sess.uuid),
			zap.String("phase", sess.phase.String()),
			zap.Int("ply", sess.stack.Len()),
		)
	}
	return resp, nil
}

func (s *Service) State() *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.stateLocked(s.current)
}

func (s *Service) History(ctx context.Context, limit int) ([]*domain.ChessGame, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.GetRecentGames(ctx, s.playerLabel(), limit)
}

func (s *Service) Game(ctx context.Context, id int64) (*domain.ChessGame, error) {
	game, err := s.repo.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

func (s *Service) Profile(ctx context.Context) (*domain.ChessProfile, error) {
	return s.fetchProfile(ctx, true)
}

// PGN returns the current game; unfinished games carry the "*" result.
func (s *Service) PGN() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", ErrNoSession
	}
	return s.pgnLocked(s.current, s.now()), nil
}

func (s *Service) requireInputLocked() (*session, error) {
	sess := s.current
	if sess == nil {
		return nil, ErrNoSession
	}
	switch {
	case sess.phase == Finished:
		return nil, ErrGameFinished
	case sess.phase == AwaitingEngine, sess.searching:
		return nil, ErrEngineThinking
	}
	return sess, nil
}

// requireOpenLocked admits an unfinished session that is not mid-search.
func (s *Service) requireOpenLocked() (*session, error) {
	sess := s.current
	if sess == nil {
		return nil, ErrNoSession
	}
	switch {
	case sess.phase == Finished:
		return nil, ErrGameFinished
	case sess.searching:
		return nil, ErrEngineThinking
	}
	return sess, nil
}

func (s *Service) finishLocked(ctx context.Context, sess *session, result *Result, resp *Response) {
	sess.phase = Finished
	sess.result = result
	sess.updatedAt = s.now()
	if result.Reason == ReasonResignation {
		sess.stack.Game().Resign(nchess.White)
	}
	s.logger.Info("chess_game_finished",
		zap.String("session_uuid", sess.uuid),
		zap.String("result", result.Score()),
		zap.String("reason", string(result.Reason)),
		zap.String("termination", result.Termination),
		zap.Int("ply", sess.stack.Len()),
	)

	if result.Reason != ReasonForced {
		gameID, profile, delta, err := s.persistFinishedGame(ctx, sess)
		if err != nil {
			s.logger.Warn("chess_game_archive_failed", zap.String("session_uuid", sess.uuid), zap.Error(err))
		}
		resp.GameID, resp.Profile, resp.RatingDelta = gameID, profile, delta
	}
	s.deleteSessionLocked(ctx, sess)
	s.publishLocked(sess)
	resp.State = s.stateLocked(sess)
}

func (s *Service) persistFinishedGame(ctx context.Context, sess *session) (int64, *domain.ChessProfile, int, error) {
	game := sess.stack.Game()
	now := s.now()
	record := &domain.ChessGame{
		SessionUUID:   sess.uuid,
		PlayerName:    s.playerLabel(),
		EngineName:    sess.engineName,
		EngineElo:     sess.engineElo,
		Result:        resultToken(sess.result.Outcome),
		ResultMethod:  strings.ToLower(sess.result.Termination),
		MovesUCI:      sess.stack.UCI(),
		MovesSAN:      sess.stack.SAN(),
		PGN:           s.pgnLocked(sess, now),
		FinalFEN:      game.FEN(),
		StartedAt:     sess.startedAt,
		EndedAt:       now,
		Duration:      now.Sub(sess.startedAt),
		Hints:         sess.hints,
		Undos:         sess.undos,
		EngineLatency: sess.latency,
	}
	if label, ok := openingbook.Lookup(game.Moves()); ok {
		record.Opening = label.String()
	}

	gameID, err := s.repo.InsertGame(ctx, record)
	if err != nil {
		if errors.Is(err, ErrDuplicateGame) {
			existing, fetchErr := s.repo.GetGameBySession(ctx, sess.uuid)
			if fetchErr != nil || existing == nil {
				return 0, nil, 0, err
			}
			profile, profErr := s.fetchProfile(ctx, true)
			if profErr != nil && !errors.Is(profErr, ErrProfileNotFound) {
				return existing.ID, nil, 0, profErr
			}
			return existing.ID, profile, 0, nil
		}
		return 0, nil, 0, err
	}

	profile, err := s.fetchProfile(ctx, false)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return gameID, nil, 0, err
	}
	profile, delta := applyGameResult(profile, s.playerLabel(), sess.engineElo, sess.result.Outcome, now)
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return gameID, nil, 0, err
	}
	s.cacheProfile(ctx, profile)
	return gameID, profile, delta, nil
}

func (s *Service) fetchProfile(ctx context.Context, allowCache bool) (*domain.ChessProfile, error) {
	if allowCache {
		cached := &domain.ChessProfile{}
		err := s.cache.Get(ctx, s.profileCacheKey(), cached)
		switch {
		case err == nil && cached.PlayerName != "":
			return cached, nil
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			s.logger.Warn("chess_profile_cache_read_failed", zap.Error(err))
		}
	}
	profile, err := s.repo.GetProfile(ctx, s.playerLabel())
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	s.cacheProfile(ctx, profile)
	return profile, nil
}

func (s *Service) cacheProfile(ctx context.Context, profile *domain.ChessProfile) {
	if profile == nil {
		return
	}
	if err := s.cache.Set(ctx, s.profileCacheKey(), profile, profileCacheTTL); err != nil {
		s.logger.Warn("chess_profile_cache_write_failed", zap.Error(err))
	}
}

func (s *Service) saveSessionLocked(ctx context.Context, sess *session) {
	payload := &sessionPayload{
		SessionUUID: sess.uuid,
		PlayerName:  s.playerLabel(),
		EngineElo:   sess.engineElo,
		Moves:       sess.stack.UCI(),
		StartedAt:   sess.startedAt,
		UpdatedAt:   sess.updatedAt,
		Hints:       sess.hints,
		Undos:       sess.undos,
	}
	if err := s.cache.Set(ctx, s.sessionKey(sess.uuid), payload, s.cfg.SessionTTL); err != nil {
		s.logger.Warn("chess_session_save_failed", zap.String("session_uuid", sess.uuid), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, s.lastSessionKey(), lastSessionPointer{SessionUUID: sess.uuid}, s.cfg.SessionTTL); err != nil {
		s.logger.Warn("chess_session_pointer_save_failed", zap.Error(err))
	}
}

func (s *Service) deleteSessionLocked(ctx context.Context, sess *session) {
	if err := s.cache.Del(ctx, s.sessionKey(sess.uuid), s.lastSessionKey()); err != nil {
		s.logger.Warn("chess_session_delete_failed", zap.String("session_uuid", sess.uuid), zap.Error(err))
	}
}

func (s *Service) publishLocked(sess *session) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(s.stateLocked(sess).Snapshot())
}

func (s *Service) stateLocked(sess *session) *SessionState {
	game := sess.stack.Game()
	position := game.Position()
	state := &SessionState{
		SessionUUID: sess.uuid,
		PlayerName:  s.playerLabel(),
		EngineName:  sess.engineName,
		EngineElo:   sess.engineElo,
		Phase:       sess.phase,
		MovesSAN:    sess.stack.SAN(),
		MovesUCI:    sess.stack.UCI(),
		FEN:         game.FEN(),
		Turn:        position.Turn(),
		Board:       position.Board(),
		CanUndo:     sess.stack.Len() > 0,
		CanRedo:     sess.stack.CanRedo(),
		Hints:       sess.hints,
		Undos:       sess.undos,
		StartedAt:   sess.startedAt,
		UpdatedAt:   sess.updatedAt,
	}
	if sess.result != nil {
		result := *sess.result
		state.Result = &result
	}
	if sess.lastMove != nil {
		last := *sess.lastMove
		state.LastMove = &last
	}
	state.Material, state.Captured = computeMaterial(game)
	if label, ok := openingbook.Lookup(game.Moves()); ok {
		state.Opening = label.String()
	}
	return state
}

func (s *Service) pgnLocked(sess *session, date time.Time) string {
	headers := pgnHeaders{
		Date:     sess.startedAt,
		White:    s.playerLabel(),
		Black:    sess.engineName,
		BlackElo: sess.engineElo,
		Result:   string(nchess.NoOutcome),
	}
	if headers.Date.IsZero() {
		headers.Date = date
	}
	if headers.Black == "" {
		headers.Black = "Stockfish"
	}
	if label, ok := openingbook.Lookup(sess.stack.Game().Moves()); ok {
		headers.ECO, headers.Opening = label.Code, label.Title
	}
	if sess.result != nil {
		headers.Result = sess.result.Score()
		headers.Termination = sess.result.Termination
	}
	return buildPGN(headers, sess.stack.SAN())
}

func (s *Service) playerLabel() string {
	if label := normalizeHUDPlayerLabel(s.cfg.PlayerName); label != "" {
		return label
	}
	return defaultPlayerLabel
}

func (s *Service) sessionKey(sessionUUID string) string {
	return "chess:sessions:" + hashString(strings.TrimSpace(sessionUUID))
}

func (s *Service) lastSessionKey() string {
	return "chess:last:" + hashString(strings.ToLower(s.playerLabel()))
}

func (s *Service) profileCacheKey() string {
	return "chess:profile:" + hashString(strings.ToLower(s.playerLabel()))
}

func buildHint(game *nchess.Game, reply corechess.Reply) (*Hint, error) {
	notation := nchess.UCINotation{}
	position := game.Position()
	mv, err := notation.Decode(position, strings.ToLower(reply.Move))
	if err != nil {
		return nil, err
	}
	hint := &Hint{
		MoveUCI:  strings.ToLower(reply.Move),
		MoveSAN:  nchess.AlgebraicNotation{}.Encode(position, mv),
		EvalCP:   reply.EvalCP,
		Mate:     reply.Mate,
		Duration: reply.Duration,
	}
	line := game.Clone()
	for _, raw := range reply.Principal {
		if len(hint.Principal) >= maxHintLine {
			break
		}
		pos := line.Position()
		pv, err := notation.Decode(pos, strings.ToLower(raw))
		if err != nil {
			break
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, pv)
		if err := line.Move(pv, nil); err != nil {
			break
		}
		hint.Principal = append(hint.Principal, san)
	}
	return hint, nil
}

func phaseForTurn(stack *history.Stack) Phase {
	if stack.Position().Turn() == nchess.Black {
		return AwaitingEngine
	}
	return AwaitingInput
}

func lastMoveFromStack(stack *history.Stack) *MoveHighlight {
	moves := stack.Game().Moves()
	if len(moves) == 0 {
		return nil
	}
	mover := nchess.White
	if len(moves)%2 == 0 {
		mover = nchess.Black
	}
	last := moves[len(moves)-1]
	return &MoveHighlight{From: last.S1(), To: last.S2(), Mover: mover}
}

func mapEngineError(err error) error {
	if err == nil {
		return ErrEngineUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || engineTimeoutMessage(err) {
		return ErrEngineTimeout
	}
	return ErrEngineUnavailable
}

func engineTimeoutMessage(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func normalizeHUDPlayerLabel(raw string) string {
	cleaned := strings.NewReplacer("\r", " ", "\n", " ").Replace(raw)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return ""
	}
	runes := []rune(cleaned)
	if len(runes) > playerLabelRuneLimit {
		return strings.TrimSpace(string(runes[:playerLabelRuneLimit])) + "..."
	}
	return cleaned
}

func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// applyGameResult moves the player's rating as if the engine's configured
// Elo were its true strength.
func applyGameResult(profile *domain.ChessProfile, playerName string, engineElo int, outcome nchess.Outcome, endedAt time.Time) (*domain.ChessProfile, int) {
	if profile == nil {
		profile = &domain.ChessProfile{
			PlayerName: playerName,
			Rating:     defaultPlayerRating,
			CreatedAt:  endedAt,
		}
	}
	prevRating := profile.Rating

	profile.GamesPlayed++
	profile.LastEngineElo = engineElo
	profile.LastPlayedAt = endedAt
	profile.UpdatedAt = endedAt

	var score float64
	resultType := resultToken(outcome)
	switch outcome {
	case nchess.WhiteWon:
		profile.Wins++
		score = 1.0
	case nchess.BlackWon:
		profile.Losses++
	default:
		profile.Draws++
		resultType = "draw"
		score = 0.5
	}

	if profile.StreakType == resultType {
		profile.Streak++
	} else {
		profile.Streak = 1
		profile.StreakType = resultType
	}

	expected := 1 / (1 + math.Pow(10, float64(engineElo-profile.Rating)/400))
	profile.Rating = int(math.Round(float64(profile.Rating) + kFactor*(score-expected)))
	return profile, profile.Rating - prevRating
}
