package chessdto

import "time"

type ChessProfile struct {
	PlayerName    string    `json:"player_name"`
	Rating        int       `json:"rating"`
	GamesPlayed   int       `json:"games_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	Streak        int       `json:"streak"`
	StreakType    string    `json:"streak_type"`
	LastEngineElo int       `json:"last_engine_elo"`
	LastPlayedAt  time.Time `json:"last_played_at"`
}
