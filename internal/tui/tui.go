// Package tui is a live view of a running agent session. The operator can
// pause the loop, push new goals and save snapshots between steps.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/overworld-agent/internal/engine"
	"github.com/tatianab/overworld-agent/internal/memory"
	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/perception"
)

type sessionState int

const (
	stateRunning sessionState = iota
	statePaused
	stateDone
	stateError
)

type model struct {
	ctx       context.Context
	state     sessionState
	session   *engine.Session
	memory    *memory.Manager
	maxSteps  int
	stepping  bool
	queued    []string
	last      *engine.StepResult
	textInput textinput.Model
	viewport  viewport.Model
	err       error
	stepLog   string
	notice    string
	width     int
	height    int
}

var (
	tokenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8700"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func newModel(ctx context.Context, sess *engine.Session, mem *memory.Manager, maxSteps int) model {
	ti := textinput.New()
	ti.Placeholder = "/pause, /resume, /goal <text>, /save <name>, /quit"
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 60

	return model{
		ctx:       ctx,
		state:     stateRunning,
		session:   sess,
		memory:    mem,
		maxSteps:  maxSteps,
		textInput: ti,
	}
}

type startMsg struct{}

type stepMsg struct {
	result engine.StepResult
	err    error
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, func() tea.Msg { return startMsg{} })
}

// next starts one session step unless one is already in flight.
func (m *model) next() tea.Cmd {
	if m.stepping || m.state != stateRunning {
		return nil
	}
	if m.maxSteps > 0 && m.session.Steps() >= m.maxSteps {
		m.state = stateDone
		return nil
	}
	m.stepping = true
	sess, ctx := m.session, m.ctx
	return func() tea.Msg {
		res, err := sess.Step(ctx)
		return stepMsg{result: res, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			if input == "" {
				return m, nil
			}
			if input == "/quit" {
				return m, tea.Quit
			}
			// memory is only touched between steps
			if m.stepping {
				m.queued = append(m.queued, input)
				m.notice = "queued: " + input
				return m, nil
			}
			m.command(input)
			cmd = m.next()
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(int(float64(msg.Width)*0.6), msg.Height-6)
		} else {
			m.viewport.Width = int(float64(msg.Width) * 0.6)
			m.viewport.Height = msg.Height - 6
		}
		m.viewport.SetContent(m.stepLog)

	case startMsg:
		cmd = m.next()
		return m, cmd

	case stepMsg:
		m.stepping = false
		if msg.err != nil {
			if m.ctx.Err() != nil {
				m.state = stateDone
				return m, nil
			}
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.record(msg.result)
		for _, input := range m.queued {
			m.command(input)
		}
		m.queued = nil
		cmd = m.next()
		return m, cmd
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *model) record(res engine.StepResult) {
	m.last = &res

	line := fmt.Sprintf("%4d ", res.Step) + tokenStyle.Render(string(res.Token))
	if res.Observed {
		line += fmt.Sprintf(" %s %s", res.Observation.MapName, res.Observation.Position)
	}
	if res.Outcome != "" {
		line += " (last: " + string(res.Outcome) + ")"
	}
	if res.Decision != nil {
		line += fmt.Sprintf(" [%s]", res.Decision.Source)
		if res.Decision.Rationale != "" {
			line += " " + res.Decision.Rationale
		}
	}
	if res.Transition != nil {
		line += "\n     " + warnStyle.Render(fmt.Sprintf("goal %s: %s -> %s (%s)", res.Transition.GoalID, res.Transition.From, res.Transition.To, res.Transition.Reason))
	}
	if res.Err != nil {
		line += "\n     " + warnStyle.Render(res.Err.Error())
	}

	m.stepLog += logStyle.Render(line) + "\n"
	m.viewport.SetContent(m.stepLog)
	m.viewport.GotoBottom()
}

// command applies an operator command. It must not run while a step is in flight.
func (m *model) command(input string) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/pause":
		if m.state == stateRunning {
			m.state = statePaused
		}
		m.notice = "paused"
	case "/resume":
		if m.state == statePaused {
			m.state = stateRunning
		}
		m.notice = "running"
	case "/goal":
		if arg == "" {
			m.notice = "usage: /goal <description>"
			return
		}
		id, err := m.memory.AddGoal(models.Goal{Description: arg})
		if err != nil {
			m.notice = err.Error()
			return
		}
		m.notice = "added goal " + id
	case "/save":
		if arg == "" {
			arg = "current"
		}
		if err := m.session.Snapshot().Save(arg); err != nil {
			m.notice = "save failed: " + err.Error()
			return
		}
		m.notice = "saved " + arg
	default:
		m.notice = "unknown command " + name
	}
}

func (m model) View() string {
	if m.state == stateError {
		return fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.\n", m.err)
	}

	status := "running"
	switch m.state {
	case statePaused:
		status = "paused"
	case stateDone:
		status = "finished"
	}
	header := titleStyle.Render("AGENT "+m.session.ID()) + "  " + status
	if m.notice != "" {
		header += "  " + helpStyle.Render(m.notice)
	}

	mainView := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewport.View(),
		m.renderState(),
	)
	help := helpStyle.Render("Commands: /pause, /resume, /goal <text>, /save <name>, /quit")

	return "\n" + lipgloss.JoinVertical(lipgloss.Left,
		header,
		mainView,
		"\n"+m.textInput.View(),
		"\n"+help,
	) + "\n"
}

func (m model) renderState() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GOAL") + "\n")
	if g, ok := m.activeGoal(); ok {
		fmt.Fprintf(&b, "%s\n%s (%d steps)\n\n", g.ID, g.Description, g.Steps)
	} else {
		b.WriteString("(none)\n\n")
	}

	if m.last != nil && m.last.Observed {
		obs := m.last.Observation
		b.WriteString(titleStyle.Render("MAP") + "\n")
		fmt.Fprintf(&b, "%s %s facing %s\n", obs.MapName, obs.Position, obs.Facing)
		if grid := perception.RenderGrid(obs); grid != "" {
			b.WriteString(grid + "\n")
		}
		walkable := make([]string, 0, len(obs.Walkable))
		for _, d := range obs.Walkable {
			walkable = append(walkable, string(d))
		}
		fmt.Fprintf(&b, "walkable: %s\n", strings.Join(walkable, " "))
		if obs.InBattle {
			b.WriteString(warnStyle.Render("IN BATTLE") + "\n")
		}
		if obs.InDialogue {
			fmt.Fprintf(&b, "%s %s\n", warnStyle.Render("DIALOGUE"), obs.DialogueText)
		}
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("QUEUE") + "\n")
	if m.last != nil && m.last.QueueLen > 0 {
		fmt.Fprintf(&b, "%d pending\n", m.last.QueueLen)
	} else {
		b.WriteString("(empty)\n")
	}

	stateWidth := int(float64(m.width) * 0.38)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(b.String())
}

// activeGoal reads the goal from the last step result while a step is in
// flight, and from memory otherwise.
func (m model) activeGoal() (models.Goal, bool) {
	if m.stepping {
		if m.last != nil && m.last.Goal != nil {
			return *m.last.Goal, true
		}
		return models.Goal{}, false
	}
	return m.memory.ActiveGoal()
}

// Run shows the session until it finishes maxSteps (zero means forever) or
// the operator quits.
func Run(ctx context.Context, sess *engine.Session, mem *memory.Manager, maxSteps int) error {
	p := tea.NewProgram(newModel(ctx, sess, mem, maxSteps), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
