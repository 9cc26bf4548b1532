package history

import (
	"errors"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func play(t *testing.T, s *Stack, moves ...string) {
	t.Helper()
	mover := Human
	if s.Len()%2 == 1 {
		mover = Engine
	}
	for _, text := range moves {
		mv, err := s.Parse(text)
		require.NoError(t, err, "parse %s", text)
		_, err = s.Record(mover, mv)
		require.NoError(t, err, "record %s", text)
		if mover == Human {
			mover = Engine
		} else {
			mover = Human
		}
	}
}

func topFEN(s *Stack) string {
	if rec, ok := s.Last(); ok {
		return rec.FEN
	}
	return startFEN
}

func TestUndoUntilEmptyRestoresInitialPosition(t *testing.T) {
	line := []string{"e4", "e5", "Nf3", "Nc6", "Bb5", "a6", "Ba4", "Nf6", "O-O"}
	for n := 0; n <= len(line); n++ {
		s := New()
		play(t, s, line[:n]...)
		for {
			if _, err := s.Undo(); err != nil {
				require.ErrorIs(t, err, ErrEmptyHistory)
				break
			}
			require.Equal(t, topFEN(s), s.Game().FEN(), "live position must match top record")
		}
		require.Equal(t, 0, s.Len())
		require.Equal(t, startFEN, s.Game().FEN(), "n=%d", n)
	}
}

func TestRedoRestoresPositionAtAnyDepth(t *testing.T) {
	line := []string{"d4", "d5", "c4", "e6", "Nc3", "Nf6", "Bg5", "Be7"}
	for n := 1; n <= len(line); n++ {
		s := New()
		play(t, s, line[:n]...)
		before := s.Game().FEN()
		beforeUCI := s.UCI()

		_, err := s.Undo()
		require.NoError(t, err)
		_, err = s.Redo()
		require.NoError(t, err)

		require.Equal(t, before, s.Game().FEN(), "n=%d", n)
		if diff := cmp.Diff(beforeUCI, s.UCI()); diff != "" {
			t.Fatalf("uci mismatch after redo (-want +got):\n%s", diff)
		}
		require.False(t, s.CanRedo())
	}
}

func TestRecordAfterUndoClearsRedo(t *testing.T) {
	s := New()
	play(t, s, "e4", "e5")

	_, err := s.Undo()
	require.NoError(t, err)
	require.True(t, s.CanRedo())

	play(t, s, "d4")
	_, err = s.Redo()
	require.ErrorIs(t, err, ErrEmptyRedoBuffer)
	require.Equal(t, []string{"d4"}, s.SAN())
}

func TestUndoOnEmptyHistoryLeavesStateUnchanged(t *testing.T) {
	s := New()
	_, err := s.Undo()
	require.ErrorIs(t, err, ErrEmptyHistory)
	require.Equal(t, startFEN, s.Game().FEN())
	require.Equal(t, 0, s.RedoLen())

	_, err = s.Redo()
	require.ErrorIs(t, err, ErrEmptyRedoBuffer)
}

func TestOddHistoryUndoesTrailingPair(t *testing.T) {
	s := New()
	play(t, s, "e4", "e5", "Nf3")

	tail, err := s.Undo()
	require.NoError(t, err)
	require.Equal(t, PairedTail, tail.Kind)
	if diff := cmp.Diff([]string{"e5", "Nf3"}, []string{tail.Records[0].SAN, tail.Records[1].SAN}); diff != "" {
		t.Fatalf("unexpected tail (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"e4"}, s.SAN())
	require.Equal(t, nchess.Black, s.Position().Turn())

	_, err = s.Redo()
	require.NoError(t, err)
	require.Equal(t, []string{"e4", "e5", "Nf3"}, s.SAN())
	require.Equal(t, topFEN(s), s.Game().FEN())
}

func TestSinglePlyTail(t *testing.T) {
	s := New()
	play(t, s, "e4")

	tail, err := s.Undo()
	require.NoError(t, err)
	require.Equal(t, SinglePly, tail.Kind)
	require.Len(t, tail.Records, 1)
	require.Equal(t, Human, tail.Records[0].Mover)
	require.Equal(t, startFEN, s.Game().FEN())
}

func TestRepeatedUndoThenRedoIsLIFO(t *testing.T) {
	s := New()
	play(t, s, "e4", "c5", "Nf3", "d6")

	_, err := s.Undo()
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err)
	require.Equal(t, 4, s.RedoLen())

	first, err := s.Redo()
	require.NoError(t, err)
	require.Equal(t, "e4", first.Records[0].SAN)
	second, err := s.Redo()
	require.NoError(t, err)
	require.Equal(t, "Nf3", second.Records[0].SAN)
	require.Equal(t, []string{"e4", "c5", "Nf3", "d6"}, s.SAN())
}

func TestParseAcceptsSANAndUCI(t *testing.T) {
	s := New()
	_, err := s.Parse("Nf3")
	require.NoError(t, err)
	_, err = s.Parse("E2E4")
	require.NoError(t, err)

	_, err = s.Parse("Ke2")
	require.True(t, errors.Is(err, ErrIllegalMove))
	_, err = s.Parse("   ")
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestReplayAlternatesMovers(t *testing.T) {
	s, err := Replay([]string{"e2e4", "e7e5", "g1f3"}, Human)
	require.NoError(t, err)
	recs := s.Records()
	require.Len(t, recs, 3)
	require.Equal(t, Human, recs[0].Mover)
	require.Equal(t, Engine, recs[1].Mover)
	require.Equal(t, Human, recs[2].Mover)
	require.Equal(t, 3, recs[2].Ply)

	_, err = Replay([]string{"e2e5"}, Human)
	require.Error(t, err)
}

func TestRedoRollsBackWhenOracleRejects(t *testing.T) {
	s := New()
	play(t, s, "e4", "e5")
	_, err := s.Undo()
	require.NoError(t, err)

	s.redo[0].Records[1].UCI = "a1a8"
	_, err = s.Redo()
	require.ErrorIs(t, err, ErrRedoFailed)
	require.Equal(t, 0, s.Len())
	require.Equal(t, startFEN, s.Game().FEN())
	require.Equal(t, 2, s.RedoLen())
}
