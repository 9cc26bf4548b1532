package chess

import (
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/ascii-chess/internal/domain"
	"github.com/park285/ascii-chess/pkg/chessdto"
)

func (st *SessionState) Snapshot() chessdto.Snapshot {
	if st == nil {
		return chessdto.Snapshot{}
	}
	snap := chessdto.Snapshot{
		SessionUUID: st.SessionUUID,
		PlayerName:  st.PlayerName,
		EngineName:  st.EngineName,
		EngineElo:   st.EngineElo,
		Phase:       st.Phase.String(),
		Turn:        colorName(st.Turn),
		FEN:         st.FEN,
		MovesSAN:    append([]string{}, st.MovesSAN...),
		MovesUCI:    append([]string{}, st.MovesUCI...),
		Opening:     st.Opening,
		Material:    chessdto.MaterialScore{White: st.Material.White, Black: st.Material.Black},
		Captured: chessdto.CapturedPieces{
			White: pieceLetters(st.Captured.ByWhite),
			Black: pieceLetters(st.Captured.ByBlack),
		},
		UpdatedAt: st.UpdatedAt,
	}
	if n := len(st.MovesUCI); n > 0 {
		snap.LastMove = st.MovesUCI[n-1]
	}
	if st.Result != nil {
		snap.Result = st.Result.Score()
		snap.Reason = string(st.Result.Reason)
		snap.Termination = st.Result.Termination
	}
	return snap
}

func GameSummary(g *domain.ChessGame) chessdto.GameSummary {
	if g == nil {
		return chessdto.GameSummary{}
	}
	return chessdto.GameSummary{
		ID:          g.ID,
		SessionUUID: g.SessionUUID,
		PlayerName:  g.PlayerName,
		EngineName:  g.EngineName,
		EngineElo:   g.EngineElo,
		Result:      g.Result,
		Method:      g.ResultMethod,
		Opening:     g.Opening,
		Moves:       len(g.MovesSAN),
		StartedAt:   g.StartedAt,
		EndedAt:     g.EndedAt,
		DurationSec: g.Duration.Seconds(),
		Hints:       g.Hints,
		Undos:       g.Undos,
	}
}

func ProfileDTO(p *domain.ChessProfile) chessdto.ChessProfile {
	if p == nil {
		return chessdto.ChessProfile{}
	}
	return chessdto.ChessProfile{
		PlayerName:    p.PlayerName,
		Rating:        p.Rating,
		GamesPlayed:   p.GamesPlayed,
		Wins:          p.Wins,
		Losses:        p.Losses,
		Draws:         p.Draws,
		Streak:        p.Streak,
		StreakType:    p.StreakType,
		LastEngineElo: p.LastEngineElo,
		LastPlayedAt:  p.LastPlayedAt,
	}
}

func pieceLetters(types []nchess.PieceType) []string {
	out := make([]string, 0, len(types))
	for _, pt := range types {
		out = append(out, strings.ToLower(pieceLetter(pt)))
	}
	return out
}

func pieceLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "K"
	case nchess.Queen:
		return "Q"
	case nchess.Rook:
		return "R"
	case nchess.Bishop:
		return "B"
	case nchess.Knight:
		return "N"
	case nchess.Pawn:
		return "P"
	default:
		return ""
	}
}
