// Package oracle asks an external language model which buttons to press next.
//
// Three backends are available: Gemini (the primary hosted model), any
// OpenAI-compatible chat completions API (the alternate hosted model), and a
// local OpenAI-compatible server such as Ollama. The backend is picked once
// when a session is built.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/tatianab/overworld-agent/internal/models"
)

var (
	ErrTimeout           = errors.New("oracle timed out")
	ErrUnavailable       = errors.New("oracle unavailable")
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// Request is everything the oracle sees when asked for a decision.
type Request struct {
	Goal        *models.Goal
	Observation models.Observation
	Memory      string // movement memory for the player's tile and its neighbours
	Plan        models.LongTermPlan
	History     []string // most recent dispatched steps, oldest first
	MaxActions  int
}

// Proposal is the oracle's suggested action sequence. Actions have been
// trimmed and upper-cased but not checked against the vocabulary.
type Proposal struct {
	Actions   []string `yaml:"actions"`
	Rationale string   `yaml:"rationale"`
}

// Oracle proposes the next actions for a request.
type Oracle interface {
	Propose(ctx context.Context, req Request) (Proposal, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, req Request) (Proposal, error)

func (f Func) Propose(ctx context.Context, req Request) (Proposal, error) {
	return f(ctx, req)
}

// classify maps transport failures onto the package sentinels. A cancelled
// context is returned unchanged so callers can tell a stop from a failure.
func classify(ctx context.Context, backend string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", backend, ErrTimeout)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return err
	}
	return fmt.Errorf("%s: %w: %v", backend, ErrUnavailable, err)
}
