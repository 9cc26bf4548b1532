package history

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrEmptyHistory    = errors.New("nothing to undo")
	ErrEmptyRedoBuffer = errors.New("nothing to redo")
	ErrRedoFailed      = errors.New("redo failed")
	ErrIllegalMove     = errors.New("illegal move")
)

// Mover identifies which side of the session produced a ply.
type Mover int

const (
	Human Mover = iota
	Engine
)

func (m Mover) String() string {
	if m == Engine {
		return "engine"
	}
	return "human"
}

// Record is a single applied ply. FEN is the position after the move.
type Record struct {
	Ply   int
	Mover Mover
	SAN   string
	UCI   string
	FEN   string
}

// TailKind tells how many plies an undo/redo step covers.
type TailKind int

const (
	SinglePly TailKind = iota + 1
	PairedTail
)

func (k TailKind) String() string {
	switch k {
	case SinglePly:
		return "single"
	case PairedTail:
		return "paired"
	default:
		return "none"
	}
}

// Tail is the group of records moved between the applied timeline and the
// redo buffer. Records are kept in applied order.
type Tail struct {
	Kind    TailKind
	Records []Record
}

// Stack is the applied move timeline plus the redo buffer, bound to a live
// oracle position that always matches the top record.
type Stack struct {
	game    *nchess.Game
	applied []Record
	redo    []Tail
}

func New() *Stack {
	return &Stack{game: nchess.NewGame()}
}

// tailKind encodes the pairing rule: the last two plies always belong to
// opposite colours, so they are popped together whenever both exist.
func tailKind(n int) TailKind {
	switch {
	case n >= 2:
		return PairedTail
	case n == 1:
		return SinglePly
	default:
		return 0
	}
}

func (s *Stack) Game() *nchess.Game { return s.game }

func (s *Stack) Position() *nchess.Position { return s.game.Position() }

func (s *Stack) Len() int { return len(s.applied) }

func (s *Stack) RedoLen() int {
	n := 0
	for _, t := range s.redo {
		n += len(t.Records)
	}
	return n
}

func (s *Stack) CanRedo() bool { return len(s.redo) > 0 }

func (s *Stack) Records() []Record {
	return append([]Record(nil), s.applied...)
}

func (s *Stack) Last() (Record, bool) {
	if len(s.applied) == 0 {
		return Record{}, false
	}
	return s.applied[len(s.applied)-1], true
}

func (s *Stack) SAN() []string {
	out := make([]string, len(s.applied))
	for i, r := range s.applied {
		out[i] = r.SAN
	}
	return out
}

func (s *Stack) UCI() []string {
	out := make([]string, len(s.applied))
	for i, r := range s.applied {
		out[i] = r.UCI
	}
	return out
}

// Parse decodes SAN first and falls back to UCI against the live position.
func (s *Stack) Parse(text string) (*nchess.Move, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, ErrIllegalMove
	}
	pos := s.game.Position()
	if mv, err := (nchess.AlgebraicNotation{}).Decode(pos, raw); err == nil {
		return mv, nil
	}
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); err == nil {
		return mv, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
}

// Record applies an oracle-validated move and clears the redo buffer.
func (s *Stack) Record(mover Mover, mv *nchess.Move) (Record, error) {
	rec, err := s.push(mover, mv)
	if err != nil {
		return Record{}, err
	}
	s.redo = nil
	return rec, nil
}

func (s *Stack) push(mover Mover, mv *nchess.Move) (Record, error) {
	if mv == nil {
		return Record{}, ErrIllegalMove
	}
	pos := s.game.Position()
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	uci := strings.ToLower(nchess.UCINotation{}.Encode(pos, mv))
	if err := s.game.Move(mv, nil); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, err)
	}
	rec := Record{
		Ply:   len(s.applied) + 1,
		Mover: mover,
		SAN:   san,
		UCI:   uci,
		FEN:   s.game.FEN(),
	}
	s.applied = append(s.applied, rec)
	return rec, nil
}

// Undo pops the tail onto the redo buffer and rebuilds the live position
// by replaying what remains from the initial position.
func (s *Stack) Undo() (Tail, error) {
	kind := tailKind(len(s.applied))
	if kind == 0 {
		return Tail{}, ErrEmptyHistory
	}
	size := 1
	if kind == PairedTail {
		size = 2
	}
	cut := len(s.applied) - size
	remaining := append([]Record(nil), s.applied[:cut]...)
	game, err := replayRecords(remaining)
	if err != nil {
		return Tail{}, err
	}
	tail := Tail{Kind: kind, Records: append([]Record(nil), s.applied[cut:]...)}
	s.applied = remaining
	s.game = game
	s.redo = append(s.redo, tail)
	return tail, nil
}

// Redo reapplies the most recently undone tail. On oracle rejection the
// position and both buffers are left as they were.
func (s *Stack) Redo() (Tail, error) {
	if len(s.redo) == 0 {
		return Tail{}, ErrEmptyRedoBuffer
	}
	tail := s.redo[len(s.redo)-1]
	savedGame := s.game.Clone()
	savedApplied := len(s.applied)

	for _, rec := range tail.Records {
		mv, err := (nchess.UCINotation{}).Decode(s.game.Position(), rec.UCI)
		if err == nil {
			_, err = s.push(rec.Mover, mv)
		}
		if err != nil {
			s.game = savedGame
			s.applied = s.applied[:savedApplied]
			return Tail{}, fmt.Errorf("%w: %s: %v", ErrRedoFailed, rec.SAN, err)
		}
	}
	s.redo = s.redo[:len(s.redo)-1]
	return tail, nil
}

// Replay rebuilds the stack from a saved UCI move list, alternating movers
// starting with first.
func Replay(moves []string, first Mover) (*Stack, error) {
	s := New()
	mover := first
	for _, raw := range moves {
		mv, err := (nchess.UCINotation{}).Decode(s.game.Position(), strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", raw, err)
		}
		if _, err := s.push(mover, mv); err != nil {
			return nil, err
		}
		if mover == Human {
			mover = Engine
		} else {
			mover = Human
		}
	}
	return s, nil
}

func replayRecords(records []Record) (*nchess.Game, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, rec := range records {
		mv, err := notation.Decode(game.Position(), rec.UCI)
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", rec.UCI, err)
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", rec.UCI, err)
		}
	}
	return game, nil
}
