package chessdto

import "time"

type MaterialScore struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// CapturedPieces holds piece letters (q, r, b, n, p) taken by each side.
type CapturedPieces struct {
	White []string `json:"white"`
	Black []string `json:"black"`
}

// Snapshot is the read-only view of a running session served to
// spectators.
type Snapshot struct {
	SessionUUID string         `json:"session_uuid"`
	PlayerName  string         `json:"player_name"`
	EngineName  string         `json:"engine_name,omitempty"`
	EngineElo   int            `json:"engine_elo"`
	Phase       string         `json:"phase"`
	Turn        string         `json:"turn"`
	FEN         string         `json:"fen"`
	MovesSAN    []string       `json:"moves_san"`
	MovesUCI    []string       `json:"moves_uci"`
	LastMove    string         `json:"last_move,omitempty"`
	Opening     string         `json:"opening,omitempty"`
	Material    MaterialScore  `json:"material"`
	Captured    CapturedPieces `json:"captured"`
	Result      string         `json:"result,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Termination string         `json:"termination,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (s Snapshot) Finished() bool {
	return s.Result != ""
}
