// Package memory owns the per-session agent state: the goal stack, the
// pending action queue and the movement history.
package memory

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/models"
)

// validTransitions lists the allowed goal status changes. Completed and
// failed goals are terminal.
var validTransitions = map[models.GoalStatus]map[models.GoalStatus]bool{
	models.GoalPending: {
		models.GoalActive: true,
	},
	models.GoalActive: {
		models.GoalCompleted: true,
		models.GoalFailed:    true,
	},
	models.GoalCompleted: {},
	models.GoalFailed:    {},
}

// CanTransition reports whether a goal may move from one status to another.
func CanTransition(from, to models.GoalStatus) bool {
	return validTransitions[from][to]
}

// Transition records one goal status change.
type Transition struct {
	GoalID string
	From   models.GoalStatus
	To     models.GoalStatus
	Reason string
}

// Manager is the single owner of goals, the action queue and movement memory
// for one agent session. It is not safe for concurrent use: the session loop
// is its only caller.
type Manager struct {
	goals    []*models.Goal
	active   int
	queue    []models.Token
	movement map[models.Coord][]string
	records  []models.MovementRecord
	plan     models.LongTermPlan
	criteria *Criteria
	logger   *zap.Logger
}

// NewManager creates an empty manager carrying the given long-term plan.
func NewManager(plan models.LongTermPlan, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	criteria, err := NewCriteria()
	if err != nil {
		return nil, fmt.Errorf("failed to build goal criteria: %w", err)
	}
	return &Manager{
		active:   -1,
		movement: make(map[models.Coord][]string),
		plan:     plan,
		criteria: criteria,
		logger:   logger,
	}, nil
}

// LongTermPlan returns the milestones the session is working towards.
func (m *Manager) LongTermPlan() models.LongTermPlan {
	return models.LongTermPlan{Milestones: append([]string(nil), m.plan.Milestones...)}
}

// SetLongTermPlan replaces the plan. Only higher-level goal setting calls this.
func (m *Manager) SetLongTermPlan(plan models.LongTermPlan) {
	m.plan = plan
}

// AddGoal pushes a goal onto the stack. An empty ID gets a generated one and
// an empty status means pending. A goal may be added as active only when no
// other goal is active.
func (m *Manager) AddGoal(g models.Goal) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if m.find(g.ID) >= 0 {
		return "", fmt.Errorf("%w: %s", ErrDuplicateGoal, g.ID)
	}
	if g.Status == "" {
		g.Status = models.GoalPending
	}
	if _, ok := validTransitions[g.Status]; !ok {
		return "", fmt.Errorf("goal %s: unknown status %q", g.ID, g.Status)
	}
	if g.Status == models.GoalActive && m.active >= 0 {
		return "", fmt.Errorf("%w: cannot add %s", ErrGoalActive, g.ID)
	}
	for _, expr := range []string{g.CompleteWhen, g.FailWhen} {
		if expr == "" {
			continue
		}
		if err := m.criteria.Compile(expr); err != nil {
			return "", fmt.Errorf("goal %s: %w", g.ID, err)
		}
	}

	g.CompletionCues = append([]string(nil), g.CompletionCues...)
	g.FailureCues = append([]string(nil), g.FailureCues...)
	m.goals = append(m.goals, &g)
	if g.Status == models.GoalActive {
		m.active = len(m.goals) - 1
	}
	m.logger.Debug("goal added", zap.String("goal", g.ID), zap.String("status", string(g.Status)))
	return g.ID, nil
}

// Goals returns a copy of every goal in stack order.
func (m *Manager) Goals() []models.Goal {
	out := make([]models.Goal, 0, len(m.goals))
	for _, g := range m.goals {
		out = append(out, *g)
	}
	return out
}

// ActiveGoal returns the single active goal, if any.
func (m *Manager) ActiveGoal() (models.Goal, bool) {
	if m.active < 0 {
		return models.Goal{}, false
	}
	return *m.goals[m.active], true
}

// ActivateGoal moves a pending goal to active.
func (m *Manager) ActivateGoal(id string) error {
	i := m.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, id)
	}
	if m.active >= 0 {
		return fmt.Errorf("%w: %s", ErrGoalActive, m.goals[m.active].ID)
	}
	g := m.goals[i]
	if !CanTransition(g.Status, models.GoalActive) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, g.Status, models.GoalActive)
	}
	g.Status = models.GoalActive
	m.active = i
	m.logger.Info("goal activated", zap.String("goal", id), zap.String("description", g.Description))
	return nil
}

// ActivateNextGoal activates the first pending goal when nothing is active.
func (m *Manager) ActivateNextGoal() (models.Goal, bool) {
	if m.active >= 0 {
		return models.Goal{}, false
	}
	for _, g := range m.goals {
		if g.Status == models.GoalPending {
			if err := m.ActivateGoal(g.ID); err != nil {
				return models.Goal{}, false
			}
			return *g, true
		}
	}
	return models.Goal{}, false
}

// UpdateGoalStatus checks the active goal against obs and applies at most one
// transition to completed or failed.
func (m *Manager) UpdateGoalStatus(obs models.Observation) (Transition, bool) {
	if m.active < 0 {
		return Transition{}, false
	}
	g := m.goals[m.active]
	g.Steps++

	to, reason := m.evaluate(g, obs)
	if to == "" {
		return Transition{}, false
	}

	t := Transition{GoalID: g.ID, From: g.Status, To: to, Reason: reason}
	g.Status = to
	m.active = -1
	m.logger.Info("goal transition",
		zap.String("goal", t.GoalID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("reason", t.Reason),
	)
	return t, true
}

func (m *Manager) evaluate(g *models.Goal, obs models.Observation) (models.GoalStatus, string) {
	if g.Target != nil && obs.Position.X == g.Target.X && obs.Position.Y == g.Target.Y &&
		(g.Target.Map == "" || strings.EqualFold(g.Target.Map, obs.MapName)) {
		return models.GoalCompleted, "reached target " + obs.Position.String()
	}
	if cue, ok := matchCue(obs.DialogueText, g.CompletionCues); ok {
		return models.GoalCompleted, "dialogue cue " + cue
	}
	if m.holds(g, g.CompleteWhen, obs) {
		return models.GoalCompleted, "complete_when " + g.CompleteWhen
	}

	if cue, ok := matchCue(obs.DialogueText, g.FailureCues); ok {
		return models.GoalFailed, "dialogue cue " + cue
	}
	if m.holds(g, g.FailWhen, obs) {
		return models.GoalFailed, "fail_when " + g.FailWhen
	}
	if g.MaxSteps > 0 && g.Steps >= g.MaxSteps {
		return models.GoalFailed, fmt.Sprintf("step budget %d exhausted", g.MaxSteps)
	}
	return "", ""
}

func (m *Manager) holds(g *models.Goal, expr string, obs models.Observation) bool {
	if expr == "" {
		return false
	}
	ok, err := m.criteria.Eval(expr, obs)
	if err != nil {
		m.logger.Warn("goal expression failed", zap.String("goal", g.ID), zap.Error(err))
		return false
	}
	return ok
}

func matchCue(text string, cues []string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, cue := range cues {
		if cue != "" && strings.Contains(lower, strings.ToLower(cue)) {
			return cue, true
		}
	}
	return "", false
}

func (m *Manager) find(id string) int {
	for i, g := range m.goals {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// EnqueueActions appends tokens to the end of the queue. If any token is
// outside the vocabulary nothing is added and an *InvalidTokenError is returned.
func (m *Manager) EnqueueActions(tokens []string) error {
	valid := make([]models.Token, 0, len(tokens))
	for i, s := range tokens {
		t, ok := models.ParseToken(s)
		if !ok {
			return &InvalidTokenError{Token: s, Index: i}
		}
		valid = append(valid, t)
	}
	m.queue = append(m.queue, valid...)
	if len(valid) > 0 {
		m.logger.Debug("actions enqueued", zap.Strings("tokens", tokens), zap.Int("queue", len(m.queue)))
	}
	return nil
}

// PopNextAction removes and returns the head of the queue.
func (m *Manager) PopNextAction() (models.Token, bool) {
	if len(m.queue) == 0 {
		return "", false
	}
	t := m.queue[0]
	m.queue = m.queue[1:]
	return t, true
}

// QueueLen is the number of actions awaiting dispatch.
func (m *Manager) QueueLen() int {
	return len(m.queue)
}

// PendingActions returns a copy of the queue, head first.
func (m *Manager) PendingActions() []models.Token {
	return append([]models.Token(nil), m.queue...)
}

// RecordMovement appends what happened when token was dispatched at from.
func (m *Manager) RecordMovement(from models.Coord, token models.Token, outcome models.Outcome, to models.Coord, mapName string) {
	var entry string
	switch outcome {
	case models.OutcomeMoved:
		entry = fmt.Sprintf("%s -> moved to %s", token, to)
	case models.OutcomeWarped:
		entry = fmt.Sprintf("%s -> warped to %s %s", token, mapName, to)
	default:
		entry = fmt.Sprintf("%s -> %s", token, outcome)
	}
	m.movement[from] = append(m.movement[from], entry)
	m.records = append(m.records, models.MovementRecord{
		From: from, Token: token, Outcome: outcome, To: to, Map: mapName,
	})
}

// MovementMemory returns the accumulated history at c, or "" when nothing has
// been recorded there.
func (m *Manager) MovementMemory(c models.Coord) string {
	return m.RecentMovementMemory(c, 0)
}

// RecentMovementMemory is MovementMemory limited to the last n entries at c.
// n <= 0 means all of them.
func (m *Manager) RecentMovementMemory(c models.Coord, n int) string {
	entries := m.movement[c]
	if len(entries) == 0 {
		return ""
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return fmt.Sprintf("At %s: %s", c, strings.Join(entries, "; "))
}

// MovementRecords returns every recorded movement in order.
func (m *Manager) MovementRecords() []models.MovementRecord {
	return append([]models.MovementRecord(nil), m.records...)
}

// Restore rebuilds a manager from a saved snapshot.
func Restore(snap *models.Snapshot, logger *zap.Logger) (*Manager, error) {
	m, err := NewManager(snap.Plan, logger)
	if err != nil {
		return nil, err
	}
	for _, g := range snap.Goals {
		if _, err := m.AddGoal(g); err != nil {
			return nil, fmt.Errorf("failed to restore goal: %w", err)
		}
	}
	for _, r := range snap.Movements {
		m.RecordMovement(r.From, r.Token, r.Outcome, r.To, r.Map)
	}
	queue := make([]string, 0, len(snap.Queue))
	for _, t := range snap.Queue {
		queue = append(queue, string(t))
	}
	if err := m.EnqueueActions(queue); err != nil {
		return nil, fmt.Errorf("failed to restore queue: %w", err)
	}
	return m, nil
}
