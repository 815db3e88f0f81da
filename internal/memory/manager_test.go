package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/overworld-agent/internal/models"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(models.LongTermPlan{Milestones: []string{"Leave the house", "Visit the lab"}}, nil)
	require.NoError(t, err)
	return m
}

func TestEnqueueActions_InvalidTokenLeavesQueue(t *testing.T) {
	m := newManager(t)

	err := m.EnqueueActions([]string{"UP", "A", "FOO"})
	var invalid *InvalidTokenError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "FOO", invalid.Token)
	assert.Equal(t, 2, invalid.Index)
	assert.Equal(t, 0, m.QueueLen())

	require.NoError(t, m.EnqueueActions([]string{"LEFT", "B"}))
	for _, bad := range [][]string{{"up"}, {"A", ""}, {"WAIT", "JUMP", "A"}} {
		require.Error(t, m.EnqueueActions(bad))
	}
	assert.Equal(t, []models.Token{models.TokenLeft, models.TokenB}, m.PendingActions())
}

func TestQueueFIFO(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.EnqueueActions([]string{"UP", "A"}))
	require.NoError(t, m.EnqueueActions([]string{"WAIT"}))

	var got []models.Token
	for {
		tok, ok := m.PopNextAction()
		if !ok {
			break
		}
		got = append(got, tok)
	}
	assert.Equal(t, []models.Token{models.TokenUp, models.TokenA, models.TokenWait}, got)

	_, ok := m.PopNextAction()
	assert.False(t, ok)
}

func TestPopThenReenqueueRestoresOrder(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.EnqueueActions([]string{"A"}))
	before := m.PendingActions()

	tok, ok := m.PopNextAction()
	require.True(t, ok)
	require.NoError(t, m.EnqueueActions([]string{string(tok)}))

	assert.Equal(t, before, m.PendingActions())
}

func TestUpdateGoalStatus_ArrivalCompletes(t *testing.T) {
	m := newManager(t)
	_, err := m.AddGoal(models.Goal{
		ID:          "g1",
		Description: "walk to the door",
		Status:      models.GoalActive,
		Target:      &models.Target{X: 5, Y: 6},
	})
	require.NoError(t, err)

	_, changed := m.UpdateGoalStatus(models.Observation{Position: models.Coord{X: 5, Y: 7}})
	assert.False(t, changed)
	_, active := m.ActiveGoal()
	assert.True(t, active)

	tr, changed := m.UpdateGoalStatus(models.Observation{Position: models.Coord{X: 5, Y: 6}})
	require.True(t, changed)
	assert.Equal(t, "g1", tr.GoalID)
	assert.Equal(t, models.GoalActive, tr.From)
	assert.Equal(t, models.GoalCompleted, tr.To)

	_, active = m.ActiveGoal()
	assert.False(t, active)

	_, changed = m.UpdateGoalStatus(models.Observation{Position: models.Coord{X: 5, Y: 6}})
	assert.False(t, changed)
}

func TestUpdateGoalStatus_TargetMap(t *testing.T) {
	m := newManager(t)
	_, err := m.AddGoal(models.Goal{ID: "lab", Status: models.GoalActive, Target: &models.Target{X: 2, Y: 2, Map: "Birch Lab"}})
	require.NoError(t, err)

	_, changed := m.UpdateGoalStatus(models.Observation{MapName: "Littleroot Town", Position: models.Coord{X: 2, Y: 2}})
	assert.False(t, changed)
	_, changed = m.UpdateGoalStatus(models.Observation{MapName: "BIRCH LAB", Position: models.Coord{X: 2, Y: 2}})
	assert.True(t, changed)
}

func TestUpdateGoalStatus_Cues(t *testing.T) {
	m := newManager(t)
	_, err := m.AddGoal(models.Goal{
		ID:             "clock",
		Status:         models.GoalActive,
		CompletionCues: []string{"clock is set"},
		FailureCues:    []string{"you can't"},
	})
	require.NoError(t, err)

	tr, changed := m.UpdateGoalStatus(models.Observation{InDialogue: true, DialogueText: "MOM: The Clock is set!"})
	require.True(t, changed)
	assert.Equal(t, models.GoalCompleted, tr.To)

	_, err = m.AddGoal(models.Goal{ID: "leave", FailureCues: []string{"you can't"}})
	require.NoError(t, err)
	g, ok := m.ActivateNextGoal()
	require.True(t, ok)
	assert.Equal(t, "leave", g.ID)

	tr, changed = m.UpdateGoalStatus(models.Observation{InDialogue: true, DialogueText: "You can't leave yet."})
	require.True(t, changed)
	assert.Equal(t, models.GoalFailed, tr.To)
}

func TestUpdateGoalStatus_CompletionBeforeFailure(t *testing.T) {
	m := newManager(t)
	_, err := m.AddGoal(models.Goal{
		ID:       "g",
		Status:   models.GoalActive,
		Target:   &models.Target{X: 1, Y: 1},
		MaxSteps: 1,
	})
	require.NoError(t, err)

	tr, changed := m.UpdateGoalStatus(models.Observation{Position: models.Coord{X: 1, Y: 1}})
	require.True(t, changed)
	assert.Equal(t, models.GoalCompleted, tr.To)
}

func TestUpdateGoalStatus_MaxSteps(t *testing.T) {
	m := newManager(t)
	_, err := m.AddGoal(models.Goal{ID: "g", Status: models.GoalActive, MaxSteps: 3})
	require.NoError(t, err)

	obs := models.Observation{Position: models.Coord{X: 9, Y: 9}}
	for i := 0; i < 2; i++ {
		_, changed := m.UpdateGoalStatus(obs)
		require.False(t, changed)
	}
	tr, changed := m.UpdateGoalStatus(obs)
	require.True(t, changed)
	assert.Equal(t, models.GoalFailed, tr.To)
	assert.Equal(t, 3, m.Goals()[0].Steps)
}

func TestUpdateGoalStatus_Expressions(t *testing.T) {
	m := newManager(t)
	_, err := m.AddGoal(models.Goal{
		ID:           "route",
		Status:       models.GoalActive,
		CompleteWhen: `map_name == "Route 101" && y < 5`,
		FailWhen:     "in_battle",
	})
	require.NoError(t, err)

	_, changed := m.UpdateGoalStatus(models.Observation{MapName: "Route 101", Position: models.Coord{X: 0, Y: 9}})
	assert.False(t, changed)

	tr, changed := m.UpdateGoalStatus(models.Observation{MapName: "Route 101", Position: models.Coord{X: 0, Y: 9}, InBattle: true})
	require.True(t, changed)
	assert.Equal(t, models.GoalFailed, tr.To)

	_, err = m.AddGoal(models.Goal{ID: "bad", CompleteWhen: "x +"})
	assert.Error(t, err)
	assert.Len(t, m.Goals(), 1)
}

func TestGoalTransitionsAreMonotonic(t *testing.T) {
	m := newManager(t)
	_, err := m.AddGoal(models.Goal{ID: "a"})
	require.NoError(t, err)
	_, err = m.AddGoal(models.Goal{ID: "b"})
	require.NoError(t, err)

	require.NoError(t, m.ActivateGoal("a"))
	assert.ErrorIs(t, m.ActivateGoal("b"), ErrGoalActive)
	_, err = m.AddGoal(models.Goal{ID: "c", Status: models.GoalActive})
	assert.ErrorIs(t, err, ErrGoalActive)
	_, err = m.AddGoal(models.Goal{ID: "a"})
	assert.ErrorIs(t, err, ErrDuplicateGoal)
	assert.ErrorIs(t, m.ActivateGoal("missing"), ErrGoalNotFound)

	_, changed := m.UpdateGoalStatus(models.Observation{})
	assert.False(t, changed)

	// Fail "a" through its step budget, then try to bring it back.
	m.goals[0].MaxSteps = 1
	_, changed = m.UpdateGoalStatus(models.Observation{})
	require.True(t, changed)
	assert.ErrorIs(t, m.ActivateGoal("a"), ErrInvalidTransition)

	assert.False(t, CanTransition(models.GoalCompleted, models.GoalActive))
	assert.False(t, CanTransition(models.GoalFailed, models.GoalPending))
	assert.False(t, CanTransition(models.GoalPending, models.GoalCompleted))
	assert.True(t, CanTransition(models.GoalActive, models.GoalFailed))
}

func TestAtMostOneActiveGoal(t *testing.T) {
	m := newManager(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := m.AddGoal(models.Goal{ID: id, MaxSteps: 2})
		require.NoError(t, err)
	}

	for i := 0; i < 12; i++ {
		m.ActivateNextGoal()
		m.UpdateGoalStatus(models.Observation{Position: models.Coord{X: i, Y: i}})

		active := 0
		for _, g := range m.Goals() {
			if g.Status == models.GoalActive {
				active++
			}
		}
		require.LessOrEqual(t, active, 1, "step %d", i)
	}
	for _, g := range m.Goals() {
		assert.Equal(t, models.GoalFailed, g.Status, g.ID)
	}
}

func TestAddGoalGeneratesID(t *testing.T) {
	m := newManager(t)
	id, err := m.AddGoal(models.Goal{Description: "talk to mom"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, models.GoalPending, m.Goals()[0].Status)
}

func TestMovementMemory(t *testing.T) {
	m := newManager(t)
	here := models.Coord{X: 5, Y: 7}

	assert.Equal(t, "", m.MovementMemory(here))

	m.RecordMovement(here, models.TokenUp, models.OutcomeBlocked, here, "Littleroot Town")
	m.RecordMovement(here, models.TokenLeft, models.OutcomeMoved, models.Coord{X: 4, Y: 7}, "Littleroot Town")
	m.RecordMovement(models.Coord{X: 4, Y: 7}, models.TokenUp, models.OutcomeWarped, models.Coord{X: 1, Y: 8}, "Player House")

	assert.Equal(t, "At (5,7): UP -> blocked; LEFT -> moved to (4,7)", m.MovementMemory(here))
	assert.Equal(t, "At (4,7): UP -> warped to Player House (1,8)", m.MovementMemory(models.Coord{X: 4, Y: 7}))
	assert.Len(t, m.MovementRecords(), 3)
}

func TestRecentMovementMemory(t *testing.T) {
	m := newManager(t)
	here := models.Coord{X: 2, Y: 2}
	for _, tok := range []models.Token{models.TokenUp, models.TokenA, models.TokenB, models.TokenA} {
		m.RecordMovement(here, tok, models.OutcomePressed, here, "Birch Lab")
	}

	assert.Equal(t, "At (2,2): B -> pressed; A -> pressed", m.RecentMovementMemory(here, 2))
	assert.Equal(t, m.MovementMemory(here), m.RecentMovementMemory(here, 0))
	assert.Equal(t, m.MovementMemory(here), m.RecentMovementMemory(here, 10))
	assert.Equal(t, "", m.RecentMovementMemory(models.Coord{}, 2))
	assert.Len(t, m.MovementRecords(), 4, "the store keeps everything")
}

func TestLongTermPlanIsCopied(t *testing.T) {
	m := newManager(t)
	plan := m.LongTermPlan()
	plan.Milestones[0] = "changed"
	assert.Equal(t, "Leave the house", m.LongTermPlan().Milestones[0])

	m.SetLongTermPlan(models.LongTermPlan{Milestones: []string{"Beat Roxanne"}})
	assert.Equal(t, []string{"Beat Roxanne"}, m.LongTermPlan().Milestones)
}

func TestRestore(t *testing.T) {
	snap := &models.Snapshot{
		SessionID: "s1",
		Plan:      models.LongTermPlan{Milestones: []string{"Visit the lab"}},
		Goals: []models.Goal{
			{ID: "done", Status: models.GoalCompleted},
			{ID: "now", Status: models.GoalActive, Steps: 4},
			{ID: "later", Status: models.GoalPending},
		},
		Movements: []models.MovementRecord{
			{From: models.Coord{X: 1, Y: 1}, Token: models.TokenUp, Outcome: models.OutcomeBlocked, To: models.Coord{X: 1, Y: 1}},
		},
		Queue: []models.Token{models.TokenA, models.TokenLeft},
	}

	m, err := Restore(snap, nil)
	require.NoError(t, err)

	g, ok := m.ActiveGoal()
	require.True(t, ok)
	assert.Equal(t, "now", g.ID)
	assert.Equal(t, 4, g.Steps)
	assert.Equal(t, "At (1,1): UP -> blocked", m.MovementMemory(models.Coord{X: 1, Y: 1}))
	assert.Equal(t, []models.Token{models.TokenA, models.TokenLeft}, m.PendingActions())
	assert.Equal(t, []string{"Visit the lab"}, m.LongTermPlan().Milestones)

	snap.Queue = []models.Token{"JUMP"}
	_, err = Restore(snap, nil)
	assert.Error(t, err)
}
