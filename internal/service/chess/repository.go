package chess

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/park285/ascii-chess/internal/domain"
)

// Repository archives finished games and player profiles. Lookups return
// (nil, nil) when nothing matches.
type Repository interface {
	InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error)
	GetRecentGames(ctx context.Context, playerName string, limit int) ([]*domain.ChessGame, error)
	GetGame(ctx context.Context, id int64) (*domain.ChessGame, error)
	GetGameBySession(ctx context.Context, sessionUUID string) (*domain.ChessGame, error)
	GetProfile(ctx context.Context, playerName string) (*domain.ChessProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.ChessProfile) error
}

const schema = `
CREATE TABLE IF NOT EXISTS chess_games (
	id                BIGSERIAL PRIMARY KEY,
	session_uuid      TEXT NOT NULL UNIQUE,
	player_name       TEXT NOT NULL,
	engine_name       TEXT NOT NULL DEFAULT '',
	engine_elo        INTEGER NOT NULL,
	result            TEXT NOT NULL,
	result_method     TEXT NOT NULL,
	opening           TEXT NOT NULL DEFAULT '',
	moves_uci         JSONB NOT NULL,
	moves_san         JSONB NOT NULL,
	pgn               TEXT NOT NULL,
	final_fen         TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ NOT NULL,
	duration_ms       BIGINT,
	hints             INTEGER NOT NULL DEFAULT 0,
	undos             INTEGER NOT NULL DEFAULT 0,
	engine_latency_ms BIGINT
);
CREATE INDEX IF NOT EXISTS chess_games_player_ended ON chess_games (player_name, ended_at DESC);
CREATE TABLE IF NOT EXISTS chess_profiles (
	player_name     TEXT PRIMARY KEY,
	rating          INTEGER NOT NULL,
	games_played    INTEGER NOT NULL,
	wins            INTEGER NOT NULL,
	losses          INTEGER NOT NULL,
	draws           INTEGER NOT NULL,
	streak          INTEGER NOT NULL,
	streak_type     TEXT NOT NULL,
	last_engine_elo INTEGER NOT NULL,
	last_played_at  TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);`

const gameColumns = `
			id,
			session_uuid,
			player_name,
			engine_name,
			engine_elo,
			result,
			result_method,
			opening,
			moves_uci,
			moves_san,
			pgn,
			final_fen,
			started_at,
			ended_at,
			duration_ms,
			hints,
			undos,
			engine_latency_ms`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Migrate creates the archive tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate chess schema: %w", err)
	}
	return nil
}

func (r *repository) InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil chess game payload")
	}

	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO chess_games (
			session_uuid,
			player_name,
			engine_name,
			engine_elo,
			result,
			result_method,
			opening,
			moves_uci,
			moves_san,
			pgn,
			final_fen,
			started_at,
			ended_at,
			duration_ms,
			hints,
			undos,
			engine_latency_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (session_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.SessionUUID,
		game.PlayerName,
		game.EngineName,
		game.EngineElo,
		game.Result,
		game.ResultMethod,
		game.Opening,
		movesUCI,
		movesSAN,
		game.PGN,
		game.FinalFEN,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
		game.Hints,
		game.Undos,
		game.EngineLatency.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert chess game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetRecentGames(ctx context.Context, playerName string, limit int) ([]*domain.ChessGame, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + gameColumns + `
		FROM chess_games
		WHERE player_name = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, playerName, limit)
	if err != nil {
		return nil, fmt.Errorf("select chess games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ChessGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chess games: %w", err)
	}
	return games, nil
}

func (r *repository) GetGame(ctx context.Context, id int64) (*domain.ChessGame, error) {
	query := `SELECT` + gameColumns + `
		FROM chess_games
		WHERE id = $1`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select chess game: %w", err)
	}
	return game, nil
}

func (r *repository) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.ChessGame, error) {
	query := `SELECT` + gameColumns + `
		FROM chess_games
		WHERE session_uuid = $1
		LIMIT 1`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, sessionUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select chess game by session: %w", err)
	}
	return game, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.ChessGame, error) {
	var (
		game         domain.ChessGame
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
		latencyMS    sql.NullInt64
	)
	if err := row.Scan(
		&game.ID,
		&game.SessionUUID,
		&game.PlayerName,
		&game.EngineName,
		&game.EngineElo,
		&game.Result,
		&game.ResultMethod,
		&game.Opening,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&game.FinalFEN,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
		&game.Hints,
		&game.Undos,
		&latencyMS,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chess game: %w", err)
	}
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if latencyMS.Valid {
		game.EngineLatency = time.Duration(latencyMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}

func (r *repository) GetProfile(ctx context.Context, playerName string) (*domain.ChessProfile, error) {
	const query = `
		SELECT
			player_name,
			rating,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_engine_elo,
			last_played_at,
			updated_at,
			created_at
		FROM chess_profiles
		WHERE player_name = $1
		LIMIT 1`

	var profile domain.ChessProfile
	err := r.db.QueryRowContext(ctx, query, playerName).Scan(
		&profile.PlayerName,
		&profile.Rating,
		&profile.GamesPlayed,
		&profile.Wins,
		&profile.Losses,
		&profile.Draws,
		&profile.Streak,
		&profile.StreakType,
		&profile.LastEngineElo,
		&profile.LastPlayedAt,
		&profile.UpdatedAt,
		&profile.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select chess profile: %w", err)
	}
	return &profile, nil
}

func (r *repository) UpsertProfile(ctx context.Context, profile *domain.ChessProfile) error {
	if profile == nil {
		return fmt.Errorf("nil chess profile payload")
	}
	const query = `
		INSERT INTO chess_profiles (
			player_name,
			rating,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_engine_elo,
			last_played_at,
			updated_at,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (player_name)
		DO UPDATE SET
			rating = EXCLUDED.rating,
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			streak = EXCLUDED.streak,
			streak_type = EXCLUDED.streak_type,
			last_engine_elo = EXCLUDED.last_engine_elo,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	_, err := r.db.ExecContext(
		ctx,
		query,
		profile.PlayerName,
		profile.Rating,
		profile.GamesPlayed,
		profile.Wins,
		profile.Losses,
		profile.Draws,
		profile.Streak,
		profile.StreakType,
		profile.LastEngineElo,
		profile.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chess profile: %w", err)
	}
	return nil
}
