package chess

import (
	"sort"

	nchess "github.com/corentings/chess/v2"
)

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

// startingMaterial is the per-side total with all pieces on the board.
const startingMaterial = 8*1 + 2*3 + 2*3 + 2*5 + 9

type MaterialScore struct {
	White int
	Black int
}

// Diff is White's material advantage.
func (m MaterialScore) Diff() int {
	return m.White - m.Black
}

func InitialMaterialScore() MaterialScore {
	return MaterialScore{White: startingMaterial, Black: startingMaterial}
}

// CapturedPieces lists what each side has taken, in capture order.
type CapturedPieces struct {
	ByWhite []nchess.PieceType
	ByBlack []nchess.PieceType
}

func (c CapturedPieces) IsEmpty() bool {
	return len(c.ByWhite) == 0 && len(c.ByBlack) == 0
}

// Sorted returns the pieces taken by color, most valuable first.
func (c CapturedPieces) Sorted(color nchess.Color) []nchess.PieceType {
	src := c.ByWhite
	if color == nchess.Black {
		src = c.ByBlack
	}
	out := append([]nchess.PieceType(nil), src...)
	sort.SliceStable(out, func(i, j int) bool {
		return pieceValues[out[i]] > pieceValues[out[j]]
	})
	return out
}

func computeMaterial(game *nchess.Game) (MaterialScore, CapturedPieces) {
	var captured CapturedPieces
	if game == nil || game.Position() == nil {
		return InitialMaterialScore(), captured
	}

	var score MaterialScore
	for _, piece := range game.Position().Board().SquareMap() {
		switch piece.Color() {
		case nchess.White:
			score.White += pieceValues[piece.Type()]
		case nchess.Black:
			score.Black += pieceValues[piece.Type()]
		}
	}

	positions := game.Positions()
	for i, mv := range game.Moves() {
		if i >= len(positions) {
			break
		}
		if !mv.HasTag(nchess.Capture) && !mv.HasTag(nchess.EnPassant) {
			continue
		}
		pos := positions[i]
		target := mv.S2()
		if mv.HasTag(nchess.EnPassant) {
			if pos.Turn() == nchess.White {
				target = nchess.NewSquare(target.File(), target.Rank()-1)
			} else {
				target = nchess.NewSquare(target.File(), target.Rank()+1)
			}
		}
		taken := pos.Board().Piece(target)
		if taken == nchess.NoPiece || taken.Type() == nchess.King {
			continue
		}
		if pos.Turn() == nchess.White {
			captured.ByWhite = append(captured.ByWhite, taken.Type())
		} else {
			captured.ByBlack = append(captured.ByBlack, taken.Type())
		}
	}
	return score, captured
}
