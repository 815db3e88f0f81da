package tui

import (
	"context"
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/overworld-agent/internal/emulator"
	"github.com/tatianab/overworld-agent/internal/engine"
	"github.com/tatianab/overworld-agent/internal/memory"
	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/oracle"
)

type simDriver struct{ sim *emulator.Sim }

func (d simDriver) State(context.Context) (string, error) { return d.sim.State() }
func (d simDriver) Press(_ context.Context, t models.Token) error {
	return d.sim.Press(t)
}

func newTestModel(t *testing.T, maxSteps int) model {
	t.Helper()
	sim, err := emulator.NewSim(emulator.DemoWorld())
	require.NoError(t, err)
	mem, err := memory.NewManager(models.LongTermPlan{}, nil)
	require.NoError(t, err)

	up := oracle.Func(func(context.Context, oracle.Request) (oracle.Proposal, error) {
		return oracle.Proposal{Actions: []string{"UP"}, Rationale: "north"}, nil
	})
	planner := engine.NewPlanner(up, mem, 0, 0, nil)
	sess := engine.NewSession(simDriver{sim}, simDriver{sim}, mem, planner, engine.Options{SessionID: "tui-test"})
	return newModel(context.Background(), sess, mem, maxSteps)
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestModel_StepsUntilDone(t *testing.T) {
	m := newTestModel(t, 2)

	m, cmd := update(t, m, startMsg{})
	require.NotNil(t, cmd)
	assert.True(t, m.stepping)

	m, cmd = update(t, m, cmd())
	require.NotNil(t, cmd)
	assert.Contains(t, m.stepLog, "UP")
	assert.Contains(t, m.stepLog, "[oracle] north")

	m, cmd = update(t, m, cmd())
	assert.Nil(t, cmd)
	assert.Equal(t, stateDone, m.state)
	assert.Contains(t, m.View(), "finished")
}

func TestModel_CommandsWaitForStep(t *testing.T) {
	m := newTestModel(t, 0)
	m, cmd := update(t, m, startMsg{})
	require.NotNil(t, cmd)

	m.textInput.SetValue("/goal talk to mom")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"/goal talk to mom"}, m.queued)
	assert.Empty(t, m.memory.Goals())

	m.textInput.SetValue("/pause")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m, cmd = update(t, m, cmd())
	assert.Nil(t, cmd)
	assert.Equal(t, statePaused, m.state)
	require.Len(t, m.memory.Goals(), 1)
	assert.Equal(t, "talk to mom", m.memory.Goals()[0].Description)

	m.textInput.SetValue("/resume")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotNil(t, cmd)
	assert.Equal(t, stateRunning, m.state)
}

func TestModel_Save(t *testing.T) {
	tmp := t.TempDir()
	old := models.SaveDir
	models.SaveDir = tmp
	defer func() { models.SaveDir = old }()

	m := newTestModel(t, 0)
	m.command("/save demo")
	assert.Equal(t, "saved demo", m.notice)

	_, err := os.Stat(tmp + "/demo/session.yaml")
	assert.NoError(t, err)

	m.command("/dance")
	assert.Contains(t, m.notice, "unknown command")
}
