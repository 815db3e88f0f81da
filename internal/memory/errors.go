package memory

import (
	"errors"
	"fmt"
)

var (
	ErrGoalNotFound      = errors.New("goal not found")
	ErrGoalActive        = errors.New("another goal is already active")
	ErrInvalidTransition = errors.New("invalid goal transition")
	ErrDuplicateGoal     = errors.New("duplicate goal id")
)

// InvalidTokenError is returned by EnqueueActions when a token is outside the
// action vocabulary. The queue is left untouched.
type InvalidTokenError struct {
	Token string
	Index int
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid action token %q at position %d", e.Token, e.Index)
}
