package emulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/perception"
)

func newDemo(t *testing.T) *Sim {
	t.Helper()
	s, err := NewSim(DemoWorld())
	require.NoError(t, err)
	return s
}

func observe(t *testing.T, s *Sim) models.Observation {
	t.Helper()
	text, err := s.State()
	require.NoError(t, err)
	obs, err := perception.Parse(text)
	require.NoError(t, err, text)
	return obs
}

func press(t *testing.T, s *Sim, tokens ...models.Token) {
	t.Helper()
	for _, tok := range tokens {
		require.NoError(t, s.Press(tok))
	}
}

func TestSim_StartState(t *testing.T) {
	obs := observe(t, newDemo(t))

	assert.Equal(t, "Player House", obs.MapName)
	assert.Equal(t, models.Coord{X: 1, Y: 4}, obs.Position)
	assert.Equal(t, models.Up, obs.Facing)
	assert.Equal(t, []models.Direction{models.Up, models.Right}, obs.Walkable)
	assert.Equal(t, models.TerrainNPC, obs.TerrainAt(models.Coord{X: 3, Y: 3}))
	assert.Equal(t, models.TerrainDoor, obs.TerrainAt(models.Coord{X: 3, Y: 5}))
	assert.True(t, obs.Free())
}

func TestSim_BlockedAndWarp(t *testing.T) {
	s := newDemo(t)

	press(t, s, models.TokenLeft)
	obs := observe(t, s)
	assert.Equal(t, models.Coord{X: 1, Y: 4}, obs.Position)
	assert.Equal(t, models.Left, obs.Facing)

	press(t, s, models.TokenRight, models.TokenRight, models.TokenDown)
	obs = observe(t, s)
	assert.Equal(t, "Littleroot Town", obs.MapName)
	assert.Equal(t, models.Coord{X: 3, Y: 2}, obs.Position)
}

func TestSim_DialogueAndLedge(t *testing.T) {
	s := newDemo(t)
	press(t, s, models.TokenRight, models.TokenRight, models.TokenDown) // into town at (3,2)
	press(t, s, models.TokenRight, models.TokenRight, models.TokenRight, models.TokenDown, models.TokenRight)

	obs := observe(t, s)
	assert.Equal(t, models.Coord{X: 6, Y: 3}, obs.Position)
	assert.Equal(t, models.Right, obs.Facing)
	assert.NotContains(t, obs.Walkable, models.Right)

	press(t, s, models.TokenA)
	obs = observe(t, s)
	require.True(t, obs.InDialogue)
	assert.Equal(t, "Welcome to Littleroot Town!", obs.DialogueText)

	press(t, s, models.TokenUp) // ignored while talking
	press(t, s, models.TokenA)
	obs = observe(t, s)
	assert.False(t, obs.InDialogue)
	assert.Equal(t, models.Coord{X: 6, Y: 3}, obs.Position)

	press(t, s, models.TokenLeft, models.TokenLeft, models.TokenDown)
	obs = observe(t, s)
	assert.Equal(t, models.Coord{X: 4, Y: 4}, obs.Position)
	assert.NotContains(t, obs.Walkable, models.Down, "ledges are never walkable")

	press(t, s, models.TokenDown)
	_, pos := s.Position()
	assert.Equal(t, models.Coord{X: 4, Y: 6}, pos)
}

func TestSim_Battle(t *testing.T) {
	w := DemoWorld()
	w.BattleEvery = 1
	w.BattleTurns = 2
	s, err := NewSim(w)
	require.NoError(t, err)

	press(t, s, models.TokenRight, models.TokenRight, models.TokenDown) // town (3,2)
	press(t, s, models.TokenDown, models.TokenDown)                     // grass at (3,4)

	obs := observe(t, s)
	require.True(t, obs.InBattle)
	press(t, s, models.TokenUp)
	_, pos := s.Position()
	assert.Equal(t, models.Coord{X: 3, Y: 4}, pos, "no walking during a battle")

	press(t, s, models.TokenA, models.TokenA)
	assert.False(t, observe(t, s).InBattle)
}

func TestSim_Corrupt(t *testing.T) {
	s := newDemo(t)
	s.Corrupt(2)
	for i := 0; i < 2; i++ {
		text, err := s.State()
		require.NoError(t, err)
		_, err = perception.Parse(text)
		var malformed *perception.MalformedStateError
		assert.ErrorAs(t, err, &malformed)
	}
	observe(t, s)
}

func TestNewSim_BadStart(t *testing.T) {
	w := DemoWorld()
	w.Start = "Nowhere"
	_, err := NewSim(w)
	assert.Error(t, err)

	w = DemoWorld()
	w.At = models.Coord{X: 0, Y: 0}
	_, err = NewSim(w)
	assert.Error(t, err)
}
