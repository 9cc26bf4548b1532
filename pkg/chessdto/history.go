package chessdto

import "time"

// GameSummary is one archived game as printed by the history command.
type GameSummary struct {
	ID          int64     `json:"id"`
	SessionUUID string    `json:"session_uuid"`
	PlayerName  string    `json:"player_name"`
	EngineName  string    `json:"engine_name,omitempty"`
	EngineElo   int       `json:"engine_elo"`
	Result      string    `json:"result"`
	Method      string    `json:"method"`
	Opening     string    `json:"opening,omitempty"`
	Moves       int       `json:"moves"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	DurationSec float64   `json:"duration_sec"`
	Hints       int       `json:"hints"`
	Undos       int       `json:"undos"`
}
