package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/journal"
	"github.com/tatianab/overworld-agent/internal/memory"
	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/perception"
)

// StateSource returns the formatted game state text.
type StateSource interface {
	State(ctx context.Context) (string, error)
}

// Controller sends one button press to the game.
type Controller interface {
	Press(ctx context.Context, token models.Token) error
}

const (
	DefaultStateRetries   = 3
	DefaultBackoff        = 100 * time.Millisecond
	DefaultJournalTimeout = 2 * time.Second
	maxBackoff            = 5 * time.Second
	historySize           = 8
)

// StepResult is what happened during one Session.Step.
type StepResult struct {
	SessionID   string
	Step        int
	Time        time.Time
	Observation models.Observation
	Observed    bool // false when every state fetch failed
	Outcome     models.Outcome
	Transition  *memory.Transition
	Goal        *models.Goal
	Decision    *Decision
	Token       models.Token
	Dispatched  bool
	QueueLen    int
	Err         error // state or control failure that was recovered from
}

// Summary is a one-line description of the step.
func (r StepResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d", r.Step)
	if r.Observed {
		fmt.Fprintf(&b, " %s %s", r.Observation.MapName, r.Observation.Position)
	}
	fmt.Fprintf(&b, " %s", r.Token)
	if r.Decision != nil {
		fmt.Fprintf(&b, " [%s]", r.Decision.Source)
	}
	return b.String()
}

// Options configures a Session. Zero values get defaults.
type Options struct {
	SessionID    string
	StateRetries int
	// Backoff is the pause after a step whose state could not be read. It
	// doubles with each consecutive failure up to five seconds.
	Backoff        time.Duration
	JournalTimeout time.Duration
	Journal        journal.Sink
	OnStep         func(StepResult)
	Logger         *zap.Logger
}

type pending struct {
	from    models.Coord
	mapName string
	token   models.Token
	free    bool
}

// Session is the dispatcher: one observation, at most one decision and at
// most one button press per step, strictly in that order.
type Session struct {
	id      string
	state   StateSource
	control Controller
	memory  Memory
	planner *Planner
	retries int
	backoff time.Duration
	journal journal.Sink
	timeout time.Duration
	onStep  func(StepResult)
	logger  *zap.Logger

	step     int
	failures int
	last     *pending
	history  []string
}

func NewSession(state StateSource, control Controller, mem Memory, planner *Planner, opts Options) *Session {
	s := &Session{
		id:      opts.SessionID,
		state:   state,
		control: control,
		memory:  mem,
		planner: planner,
		retries: opts.StateRetries,
		backoff: opts.Backoff,
		journal: opts.Journal,
		timeout: opts.JournalTimeout,
		onStep:  opts.OnStep,
		logger:  opts.Logger,
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.retries <= 0 {
		s.retries = DefaultStateRetries
	}
	if s.backoff <= 0 {
		s.backoff = DefaultBackoff
	}
	if s.journal == nil {
		s.journal = journal.Nop{}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultJournalTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	return s
}

func (s *Session) ID() string { return s.id }

// Steps is the number of steps taken so far.
func (s *Session) Steps() int { return s.step }

// Step runs Fetch, RecordOutcome, UpdateGoal, Plan (if the queue is empty)
// and Dispatch. It only fails when ctx is done.
func (s *Session) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	s.step++
	res := StepResult{SessionID: s.id, Step: s.step, Time: time.Now()}
	log := s.logger.With(zap.Int("step", s.step))

	obs, err := s.fetch(ctx, log)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.failures++
		delay := s.delay()
		log.Warn("state unavailable, waiting",
			zap.Int("failures", s.failures),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		s.last = nil
		res.Token = models.TokenWait
		res.Err = err
		res.QueueLen = s.memory.QueueLen()
		s.finish(ctx, res)
		sleep(ctx, delay)
		return res, nil
	}
	s.failures = 0
	res.Observation = obs
	res.Observed = true

	if s.last != nil {
		res.Outcome = Outcome(s.last.from, s.last.mapName, s.last.token, s.last.free, obs)
		s.memory.RecordMovement(s.last.from, s.last.token, res.Outcome, obs.Position, obs.MapName)
		s.last = nil
	}

	if t, ok := s.memory.UpdateGoalStatus(obs); ok {
		res.Transition = &t
	}
	if g, ok := s.memory.ActivateNextGoal(); ok {
		log.Info("next goal", zap.String("goal", g.ID), zap.String("description", g.Description))
	}

	if s.memory.QueueLen() == 0 {
		d, err := s.planner.Plan(ctx, obs, s.history)
		if err != nil {
			return res, err
		}
		res.Decision = &d
	}

	token, ok := s.memory.PopNextAction()
	if !ok {
		d, err := s.planner.Plan(ctx, obs, s.history)
		if err != nil {
			return res, err
		}
		res.Decision = &d
		if token, ok = s.memory.PopNextAction(); !ok {
			token = models.TokenWait
		}
	}
	res.Token = token

	if token != models.TokenWait {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.control.Press(ctx, token); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn("press failed", zap.String("token", string(token)), zap.Error(err))
			res.Err = err
		} else {
			res.Dispatched = true
			s.last = &pending{from: obs.Position, mapName: obs.MapName, token: token, free: obs.Free()}
		}
	}

	if g, ok := s.memory.ActiveGoal(); ok {
		res.Goal = &g
	}
	res.QueueLen = s.memory.QueueLen()
	log.Debug("step done",
		zap.String("token", string(token)),
		zap.Bool("dispatched", res.Dispatched),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("queue", res.QueueLen),
	)
	s.finish(ctx, res)
	return res, nil
}

// fetch asks for the formatted state until it parses or retries run out.
func (s *Session) fetch(ctx context.Context, log *zap.Logger) (models.Observation, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		text, err := s.state.State(ctx)
		if err == nil {
			var obs models.Observation
			obs, err = perception.Parse(text)
			if err == nil {
				return obs, nil
			}
		}
		if ctx.Err() != nil {
			return models.Observation{}, ctx.Err()
		}
		var malformed *perception.MalformedStateError
		if errors.As(err, &malformed) {
			log.Debug("malformed state", zap.Int("attempt", attempt), zap.String("marker", malformed.Marker), zap.Error(err))
		} else {
			log.Debug("state request failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		lastErr = err
	}
	return models.Observation{}, fmt.Errorf("no usable state after %d attempts: %w", s.retries, lastErr)
}

// delay is the backoff after the current run of consecutive fetch failures.
func (s *Session) delay() time.Duration {
	d := s.backoff
	for i := 1; i < s.failures && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Session) finish(ctx context.Context, res StepResult) {
	s.history = append(s.history, historyLine(res))
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.journal.Publish(pubCtx, entry(res)); err != nil {
		s.logger.Warn("journal publish failed", zap.Error(err))
	}
	if s.onStep != nil {
		s.onStep(res)
	}
}

func historyLine(res StepResult) string {
	if !res.Observed {
		return fmt.Sprintf("step %d: state unreadable, waited", res.Step)
	}
	line := fmt.Sprintf("step %d: at %s on %s pressed %s", res.Step, res.Observation.Position, res.Observation.MapName, res.Token)
	if res.Outcome != "" {
		line = fmt.Sprintf("%s (previous input %s)", line, res.Outcome)
	}
	return line
}

func entry(res StepResult) journal.Entry {
	e := journal.Entry{
		SessionID:  res.SessionID,
		Step:       res.Step,
		Time:       res.Time,
		Map:        res.Observation.MapName,
		X:          res.Observation.Position.X,
		Y:          res.Observation.Position.Y,
		InBattle:   res.Observation.InBattle,
		InDialogue: res.Observation.InDialogue,
		Token:      string(res.Token),
		Dispatched: res.Dispatched,
		Outcome:    string(res.Outcome),
	}
	if res.Goal != nil {
		e.Goal = res.Goal.ID
	}
	if res.Transition != nil {
		e.Transition = fmt.Sprintf("%s %s->%s", res.Transition.GoalID, res.Transition.From, res.Transition.To)
	}
	if res.Decision != nil {
		e.Source = string(res.Decision.Source)
		e.Rationale = res.Decision.Rationale
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// Run steps until ctx is done or, when steps > 0, that many steps have run.
// A cancelled context ends the run without error.
func (s *Session) Run(ctx context.Context, steps int) error {
	for i := 0; steps <= 0 || i < steps; i++ {
		if _, err := s.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Snapshot captures goals, movement memory and the queue.
func (s *Session) Snapshot() *models.Snapshot {
	return &models.Snapshot{
		SessionID: s.id,
		Steps:     s.step,
		Plan:      s.memory.LongTermPlan(),
		Goals:     s.memory.Goals(),
		Movements: s.memory.MovementRecords(),
		Queue:     s.memory.PendingActions(),
	}
}

// Outcome classifies what the input pressed at from did, judged from the
// next observation.
func Outcome(from models.Coord, mapName string, token models.Token, free bool, obs models.Observation) models.Outcome {
	if obs.MapName != mapName {
		return models.OutcomeWarped
	}
	d, directional := token.Direction()
	if !directional || !free {
		if obs.Position != from {
			return models.OutcomeMoved
		}
		return models.OutcomePressed
	}
	switch obs.Position {
	case from:
		return models.OutcomeBlocked
	case from.Step(d):
		return models.OutcomeMoved
	}
	return models.OutcomeWarped
}
