package openingbook

import (
	"fmt"
	"strings"
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Label names the deepest ECO opening reached by a move sequence.
type Label struct {
	Code  string
	Title string
}

func (l Label) String() string {
	if l.Code == "" {
		return l.Title
	}
	return fmt.Sprintf("%s %s", l.Code, l.Title)
}

func book() *opening.BookECO {
	ecoOnce.Do(func() {
		ecoBook = opening.NewBookECO()
	})
	return ecoBook
}

// Lookup classifies already-applied game moves.
func Lookup(moves []*chesslib.Move) (Label, bool) {
	if len(moves) == 0 {
		return Label{}, false
	}
	eco := book().Find(moves)
	if eco == nil {
		return Label{}, false
	}
	return Label{Code: eco.Code(), Title: eco.Title()}, true
}

// LookupUCI replays a UCI move list from the initial position and classifies it.
// Moves after the first undecodable one are ignored.
func LookupUCI(history []string) (Label, bool) {
	game, err := buildGame(history)
	if err != nil {
		return Label{}, false
	}
	return Lookup(game.Moves())
}

func buildGame(history []string) (*chesslib.Game, error) {
	game := chesslib.NewGame()
	notation := chesslib.UCINotation{}
	for _, raw := range history {
		mv, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			if len(game.Moves()) == 0 {
				return nil, fmt.Errorf("decode move %s: %w", raw, err)
			}
			break
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", raw, err)
		}
	}
	return game, nil
}
