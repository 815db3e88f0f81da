// Package engine runs the agent's decision loop: the Planner turns an
// Observation into a safe action sequence and the Session dispatches one
// action per step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/memory"
	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/oracle"
)

// Memory is the goal, queue and movement state the loop reads and mutates.
type Memory interface {
	ActiveGoal() (models.Goal, bool)
	ActivateNextGoal() (models.Goal, bool)
	UpdateGoalStatus(obs models.Observation) (memory.Transition, bool)
	EnqueueActions(tokens []string) error
	PopNextAction() (models.Token, bool)
	QueueLen() int
	MovementMemory(c models.Coord) string
	RecentMovementMemory(c models.Coord, n int) string
	RecordMovement(from models.Coord, token models.Token, outcome models.Outcome, to models.Coord, mapName string)
	LongTermPlan() models.LongTermPlan

	Goals() []models.Goal
	PendingActions() []models.Token
	MovementRecords() []models.MovementRecord
}

var _ Memory = (*memory.Manager)(nil)

// RejectionError means a proposal was unsafe or unusable. It is a normal
// branch of planning and is replaced by the fallback action.
type RejectionError struct {
	Token  string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Token == "" {
		return "proposal rejected: " + e.Reason
	}
	return fmt.Sprintf("proposal rejected: %s: %s", e.Token, e.Reason)
}

// Source says where a decision came from.
type Source string

const (
	SourceOracle   Source = "oracle"
	SourceFallback Source = "fallback"
	SourceDialogue Source = "dialogue"
)

// Decision is what the planner enqueued.
type Decision struct {
	Actions   []models.Token
	Source    Source
	Rationale string
	Reason    string // why the fallback was used
}

const (
	DefaultOracleTimeout = 10 * time.Second
	DefaultMaxPlanLength = 4
	// RecentMovements is how many entries per tile the oracle sees.
	RecentMovements = 5
)

// Planner asks the oracle for a proposal, validates it against the current
// Observation and enqueues either the proposal or a deterministic fallback.
type Planner struct {
	oracle  oracle.Oracle
	memory  Memory
	timeout time.Duration
	maxLen  int
	logger  *zap.Logger
}

func NewPlanner(o oracle.Oracle, mem Memory, timeout time.Duration, maxLen int, logger *zap.Logger) *Planner {
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxPlanLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		oracle:  o,
		memory:  mem,
		timeout: timeout,
		maxLen:  maxLen,
		logger:  logger,
	}
}

// Plan enqueues at least one action for obs. The only error it returns is the
// parent context's, in which case nothing was enqueued.
func (p *Planner) Plan(ctx context.Context, obs models.Observation, history []string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if obs.InDialogue {
		d := Decision{Actions: []models.Token{models.TokenA}, Source: SourceDialogue, Reason: "dialogue active"}
		return d, p.enqueue(d)
	}

	proposal, err := p.ask(ctx, obs, history)
	if ctx.Err() != nil {
		return Decision{}, ctx.Err()
	}

	var d Decision
	if err == nil {
		var actions []models.Token
		actions, err = p.validate(proposal, obs)
		if err == nil {
			d = Decision{Actions: actions, Source: SourceOracle, Rationale: proposal.Rationale}
		}
	}
	if err != nil {
		var rejected *RejectionError
		if errors.As(err, &rejected) {
			p.logger.Warn("unsafe action rejected", zap.String("token", rejected.Token), zap.String("reason", rejected.Reason))
		} else {
			p.logger.Warn("oracle failed", zap.Error(err))
		}
		d = Decision{
			Actions:   []models.Token{Fallback(obs)},
			Source:    SourceFallback,
			Rationale: proposal.Rationale,
			Reason:    err.Error(),
		}
	}
	return d, p.enqueue(d)
}

func (p *Planner) enqueue(d Decision) error {
	tokens := make([]string, 0, len(d.Actions))
	for _, t := range d.Actions {
		tokens = append(tokens, string(t))
	}
	if err := p.memory.EnqueueActions(tokens); err != nil {
		return fmt.Errorf("enqueue %v: %w", tokens, err)
	}
	p.logger.Debug("actions planned",
		zap.Strings("actions", tokens),
		zap.String("source", string(d.Source)),
		zap.String("rationale", d.Rationale),
	)
	return nil
}

// ask runs the oracle call with the planner's timeout. A result arriving
// after the deadline is dropped.
func (p *Planner) ask(ctx context.Context, obs models.Observation, history []string) (oracle.Proposal, error) {
	req := oracle.Request{
		Observation: obs,
		Memory:      p.nearbyMemory(obs.Position),
		Plan:        p.memory.LongTermPlan(),
		History:     history,
		MaxActions:  p.maxLen,
	}
	if g, ok := p.memory.ActiveGoal(); ok {
		req.Goal = &g
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		proposal oracle.Proposal
		err      error
	}
	done := make(chan result, 1)
	go func() {
		proposal, err := p.oracle.Propose(callCtx, req)
		done <- result{proposal, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return oracle.Proposal{}, fmt.Errorf("%w after %s", oracle.ErrTimeout, p.timeout)
		}
		return r.proposal, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return oracle.Proposal{}, err
		}
		return oracle.Proposal{}, fmt.Errorf("%w after %s", oracle.ErrTimeout, p.timeout)
	}
}

func (p *Planner) nearbyMemory(pos models.Coord) string {
	var lines []string
	for _, c := range append([]models.Coord{pos}, pos.Neighbors()...) {
		if m := p.memory.RecentMovementMemory(c, RecentMovements); m != "" {
			lines = append(lines, m)
		}
	}
	return strings.Join(lines, "\n")
}

// validate checks the proposal against the vocabulary and, outside battle and
// dialogue, the first action against the walkable set.
func (p *Planner) validate(proposal oracle.Proposal, obs models.Observation) ([]models.Token, error) {
	if len(proposal.Actions) == 0 {
		return nil, &RejectionError{Reason: "empty proposal"}
	}
	actions := proposal.Actions
	if len(actions) > p.maxLen {
		actions = actions[:p.maxLen]
	}

	tokens := make([]models.Token, 0, len(actions))
	for _, a := range actions {
		t, ok := models.ParseToken(a)
		if !ok {
			return nil, &RejectionError{Token: a, Reason: "not a valid button"}
		}
		tokens = append(tokens, t)
	}

	if d, ok := tokens[0].Direction(); ok && obs.Free() && !obs.CanWalk(d) {
		return nil, &RejectionError{Token: string(tokens[0]), Reason: "direction is not walkable"}
	}
	return tokens, nil
}

// Fallback is the deterministic action used whenever the oracle cannot be
// trusted: A in dialogue, else the first walkable direction in UP, DOWN,
// LEFT, RIGHT order, else WAIT.
func Fallback(obs models.Observation) models.Token {
	if obs.InDialogue {
		return models.TokenA
	}
	if d, ok := obs.FirstWalkable(); ok {
		return d.Token()
	}
	return models.TokenWait
}
