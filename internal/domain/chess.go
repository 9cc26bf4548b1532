package domain

import "time"

// ChessGame is a finished game as stored in the archive.
type ChessGame struct {
	ID            int64
	SessionUUID   string
	PlayerName    string
	EngineName    string
	EngineElo     int
	Result        string
	ResultMethod  string
	Opening       string
	MovesUCI      []string
	MovesSAN      []string
	PGN           string
	FinalFEN      string
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
	Hints         int
	Undos         int
	EngineLatency time.Duration
}

// ChessProfile tracks a player's results against the engine. Rating moves
// with each finished game as if the engine's configured Elo were its rating.
type ChessProfile struct {
	PlayerName    string
	Rating        int
	GamesPlayed   int
	Wins          int
	Losses        int
	Draws         int
	Streak        int
	StreakType    string
	LastEngineElo int
	LastPlayedAt  time.Time
	UpdatedAt     time.Time
	CreatedAt     time.Time
}
