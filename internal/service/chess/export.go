package chess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/ascii-chess/internal/domain"
	"github.com/park285/ascii-chess/internal/history"
)

var ErrRendererUnavailable = errors.New("board renderer not configured")

// ExportPaths are the files written by Export. PNG is empty when no
// renderer is configured.
type ExportPaths struct {
	PGN string
	PNG string
}

func (s *Service) save(ctx context.Context) (*Response, error) {
	paths, err := s.Export(ctx, "")
	if err != nil {
		return nil, err
	}
	return &Response{Command: CommandSave, Export: paths, State: s.State()}, nil
}

// Export writes the current game as PGN and, when possible, a PNG of the
// board into dir (the configured export directory when dir is empty).
func (s *Service) Export(ctx context.Context, dir string) (*ExportPaths, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = s.cfg.ExportDir
	}
	if dir == "" {
		dir = "."
	}

	s.mu.Lock()
	sess := s.current
	if sess == nil {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	now := s.now()
	pgn := s.pgnLocked(sess, now)
	board, opts := s.renderOptionsLocked(sess)
	base := fmt.Sprintf("chess-%s-%s", now.Format("20060102-150405"), shortID(sess.uuid))
	s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	paths := &ExportPaths{PGN: filepath.Join(dir, base+".pgn")}
	if err := os.WriteFile(paths.PGN, []byte(pgn), 0o644); err != nil {
		return nil, fmt.Errorf("write pgn: %w", err)
	}
	if s.renderer != nil {
		data, err := s.renderer.RenderPNG(ctx, board, opts)
		if err != nil {
			return paths, fmt.Errorf("render board: %w", err)
		}
		paths.PNG = filepath.Join(dir, base+".png")
		if err := os.WriteFile(paths.PNG, data, 0o644); err != nil {
			return paths, fmt.Errorf("write png: %w", err)
		}
	}
	s.logger.Info("chess_game_exported", zap.String("pgn", paths.PGN), zap.String("png", paths.PNG))
	return paths, nil
}

// RenderPNG draws the current position.
func (s *Service) RenderPNG(ctx context.Context) ([]byte, error) {
	if s.renderer == nil {
		return nil, ErrRendererUnavailable
	}
	s.mu.Lock()
	sess := s.current
	if sess == nil {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	board, opts := s.renderOptionsLocked(sess)
	s.mu.Unlock()
	return s.renderer.RenderPNG(ctx, board, opts)
}

// RenderGamePNG draws the final position of an archived game.
func (s *Service) RenderGamePNG(ctx context.Context, game *domain.ChessGame) ([]byte, error) {
	if s.renderer == nil {
		return nil, ErrRendererUnavailable
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	stack, err := history.Replay(game.MovesUCI, history.Human)
	if err != nil {
		return nil, fmt.Errorf("replay game %d: %w", game.ID, err)
	}
	material, _ := computeMaterial(stack.Game())
	opts := RenderOptions{
		Highlight: lastMoveFromStack(stack),
		Material:  material,
		HUDHeader: hudHeader(game.PlayerName, game.EngineName, game.EngineElo),
		HUDTurn:   fmt.Sprintf("%s - %s", strings.ToUpper(game.Result), game.ResultMethod),
	}
	return s.renderer.RenderPNG(ctx, stack.Position().Board(), opts)
}

func (s *Service) renderOptionsLocked(sess *session) (*nchess.Board, RenderOptions) {
	game := sess.stack.Game()
	material, _ := computeMaterial(game)
	opts := RenderOptions{
		Material:  material,
		HUDHeader: hudHeader(s.playerLabel(), sess.engineName, sess.engineElo),
	}
	if sess.lastMove != nil {
		last := *sess.lastMove
		opts.Highlight = &last
	}
	moveNumber := sess.stack.Len()/2 + 1
	switch {
	case sess.result != nil:
		opts.HUDTurn = fmt.Sprintf("%s - %s", sess.result.Score(), sess.result.Termination)
	case sess.phase == AwaitingEngine:
		opts.HUDTurn = fmt.Sprintf("Black to move - Move %d", moveNumber)
	default:
		opts.HUDTurn = fmt.Sprintf("White to move - Move %d", moveNumber)
	}
	return game.Position().Board(), opts
}

func hudHeader(player, engine string, elo int) string {
	if label := normalizeHUDPlayerLabel(player); label != "" {
		player = label
	} else {
		player = defaultPlayerLabel
	}
	if strings.TrimSpace(engine) == "" {
		engine = "Stockfish"
	}
	return fmt.Sprintf("%s vs %s (%d)", player, engine, elo)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
