package chess

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

type CommandKind int

const (
	CommandEmpty CommandKind = iota
	CommandMove
	CommandResign
	CommandQuit
	CommandUndo
	CommandRedo
	CommandHint
	CommandHelp
	CommandSave
	CommandForceWin
	CommandForceLoss
	CommandForceDraw
)

func (k CommandKind) String() string {
	switch k {
	case CommandMove:
		return "move"
	case CommandResign:
		return "resign"
	case CommandQuit:
		return "quit"
	case CommandUndo:
		return "undo"
	case CommandRedo:
		return "redo"
	case CommandHint:
		return "hint"
	case CommandHelp:
		return "help"
	case CommandSave:
		return "save"
	case CommandForceWin:
		return "force_win"
	case CommandForceLoss:
		return "force_loss"
	case CommandForceDraw:
		return "force_draw"
	default:
		return "empty"
	}
}

// IsForced reports whether k is one of the debug result commands.
func (k CommandKind) IsForced() bool {
	return k == CommandForceWin || k == CommandForceLoss || k == CommandForceDraw
}

var forcedOutcomes = map[CommandKind]nchess.Outcome{
	CommandForceWin:  nchess.WhiteWon,
	CommandForceLoss: nchess.BlackWon,
	CommandForceDraw: nchess.Draw,
}

// Command is one parsed line of player input. Text keeps the raw move for
// CommandMove.
type Command struct {
	Kind CommandKind
	Text string
}

var commandWords = map[string]CommandKind{
	"ff":     CommandResign,
	"resign": CommandResign,
	"quit":   CommandQuit,
	"exit":   CommandQuit,
	"undo":   CommandUndo,
	"redo":   CommandRedo,
	"hint":   CommandHint,
	"help":   CommandHelp,
	"?":      CommandHelp,
	"save":   CommandSave,
	"export": CommandSave,
	"/win":   CommandForceWin,
	"/lose":  CommandForceLoss,
	"/draw":  CommandForceDraw,
}

// ParseCommand classifies input. Anything that is not a command word is
// treated as a move and left for the oracle to judge.
func ParseCommand(input string) Command {
	text := strings.TrimSpace(input)
	if text == "" {
		return Command{Kind: CommandEmpty}
	}
	if kind, ok := commandWords[strings.ToLower(text)]; ok {
		return Command{Kind: kind, Text: text}
	}
	return Command{Kind: CommandMove, Text: text}
}
