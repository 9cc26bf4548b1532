package msgcat

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmbedded(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	out, err := c.Render("prompt.rating", map[string]any{"Min": 1350, "Max": 2850, "Default": 1500})
	require.NoError(t, err)
	assert.Equal(t, "Set Enemy Elo (1350-2850, default 1500): ", out)

	out, err = c.Render("notice.illegal", map[string]any{"Input": "Ke9"})
	require.NoError(t, err)
	assert.Equal(t, "Illegal move: Ke9.", out)

	_, err = c.Render("notice.illegal", map[string]any{})
	assert.Error(t, err, "missing template data must fail")

	_, err = c.Render("no.such.key", nil)
	assert.Error(t, err)
	assert.Equal(t, "no.such.key", c.Text("no.such.key", nil))
}

func TestListKeepsOrder(t *testing.T) {
	c := MustDefault()
	neutral := c.List(TauntNeutral)
	require.Len(t, neutral, 4)
	assert.Equal(t, "Your move looks... interesting.", neutral[0])
	assert.Equal(t, "Maybe try a different opening next time.", neutral[3])
	assert.Len(t, c.List(TauntEngineGood), 3)
	assert.Len(t, c.List(TauntPlayerGood), 3)
}

func TestTauntSet(t *testing.T) {
	cp := func(v int) *int { return &v }
	cases := []struct {
		eval *int
		want string
	}{
		{nil, TauntNeutral},
		{cp(0), TauntNeutral},
		{cp(100), TauntNeutral},
		{cp(-100), TauntNeutral},
		{cp(101), TauntPlayerGood},
		{cp(-101), TauntEngineGood},
		{cp(-3000), TauntEngineGood},
	}
	for _, tc := range cases {
		if got := TauntSet(tc.eval); got != tc.want {
			t.Fatalf("TauntSet(%v) = %s, want %s", tc.eval, got, tc.want)
		}
	}
}

func TestTauntPicksFromMatchingSet(t *testing.T) {
	c := MustDefault()
	rng := rand.New(rand.NewPCG(1, 2))
	bad := -500
	engineGood := c.List(TauntEngineGood)
	for i := 0; i < 20; i++ {
		assert.Contains(t, engineGood, c.Taunt(&bad, rng))
	}
	assert.Contains(t, c.List(TauntNeutral), c.Taunt(nil, nil))
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "notice:\n  undone: \"Taken back.\"\ntaunts:\n  neutral:\n    - \"Hmm.\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(override), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x: y"), 0o644))

	c, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "Taken back.", c.Text("notice.undone", nil))
	assert.Equal(t, []string{"Hmm."}, c.List(TauntNeutral))
	assert.Equal(t, "Redone. Player to move.", c.Text("notice.redone", nil))
}

func TestOverrideDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("help: one\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("help: two\n"), 0o644))

	_, err := New(dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "duplicate override key"))
}

func TestRejectsNonStringLeaves(t *testing.T) {
	_, _, err := parseYAMLToFlat([]byte("limits:\n  max: 3\n"))
	require.Error(t, err)
}
