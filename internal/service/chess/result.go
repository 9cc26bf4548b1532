package chess

import (
	nchess "github.com/corentings/chess/v2"
)

// Phase is where a session sits in the turn cycle.
type Phase int

const (
	AwaitingInput Phase = iota
	AwaitingEngine
	Finished
)

func (p Phase) String() string {
	switch p {
	case AwaitingInput:
		return "awaiting_input"
	case AwaitingEngine:
		return "awaiting_engine"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Reason is the coarse cause of a finished game.
type Reason string

const (
	ReasonCheckmate   Reason = "checkmate"
	ReasonStalemate   Reason = "stalemate"
	ReasonDraw        Reason = "draw"
	ReasonResignation Reason = "resignation"
	ReasonForced      Reason = "forced"
)

// Result is the final outcome of a session. Termination is the display name
// of the rule that ended the game, e.g. "Threefold Repetition".
type Result struct {
	Outcome     nchess.Outcome
	Reason      Reason
	Termination string
}

// Score is the PGN result token.
func (r Result) Score() string {
	switch r.Outcome {
	case nchess.WhiteWon, nchess.BlackWon, nchess.Draw:
		return string(r.Outcome)
	default:
		return string(nchess.NoOutcome)
	}
}

func (r Result) PlayerWon() bool { return r.Outcome == nchess.WhiteWon }

func (r Result) EngineWon() bool { return r.Outcome == nchess.BlackWon }

func (r Result) IsDraw() bool { return r.Outcome == nchess.Draw }

// detectResult reports the oracle's terminal state. Threefold repetition and
// the fifty-move rule are claimed as soon as they become available.
func detectResult(game *nchess.Game) *Result {
	if game == nil {
		return nil
	}
	if game.Outcome() == nchess.NoOutcome {
		for _, method := range game.EligibleDraws() {
			if method != nchess.ThreefoldRepetition && method != nchess.FiftyMoveRule {
				continue
			}
			if err := game.Draw(method); err == nil {
				break
			}
		}
	}
	outcome := game.Outcome()
	if outcome == nchess.NoOutcome {
		return nil
	}
	method := game.Method()
	reason := ReasonDraw
	switch method {
	case nchess.Checkmate:
		reason = ReasonCheckmate
	case nchess.Stalemate:
		reason = ReasonStalemate
	case nchess.Resignation:
		reason = ReasonResignation
	}
	return &Result{
		Outcome:     outcome,
		Reason:      reason,
		Termination: terminationTitle(method),
	}
}

func resignationResult() *Result {
	return &Result{Outcome: nchess.BlackWon, Reason: ReasonResignation, Termination: "Resignation"}
}

func forcedResult(outcome nchess.Outcome) *Result {
	return &Result{Outcome: outcome, Reason: ReasonForced, Termination: "Forced"}
}

func terminationTitle(method nchess.Method) string {
	switch method {
	case nchess.Checkmate:
		return "Checkmate"
	case nchess.Stalemate:
		return "Stalemate"
	case nchess.Resignation:
		return "Resignation"
	case nchess.DrawOffer:
		return "Draw Offer"
	case nchess.ThreefoldRepetition:
		return "Threefold Repetition"
	case nchess.FivefoldRepetition:
		return "Fivefold Repetition"
	case nchess.FiftyMoveRule:
		return "Fifty Moves"
	case nchess.SeventyFiveMoveRule:
		return "Seventyfive Moves"
	case nchess.InsufficientMaterial:
		return "Insufficient Material"
	default:
		return "Unknown"
	}
}

// resultToken is the archive form of an outcome, from the player's side.
func resultToken(outcome nchess.Outcome) string {
	switch outcome {
	case nchess.WhiteWon:
		return "win"
	case nchess.BlackWon:
		return "loss"
	case nchess.Draw:
		return "draw"
	default:
		return "unknown"
	}
}

func colorName(c nchess.Color) string {
	switch c {
	case nchess.White:
		return "white"
	case nchess.Black:
		return "black"
	default:
		return ""
	}
}
