// Package journal publishes one entry per agent step so the run can be
// followed or replayed from outside the process.
package journal

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Entry is the flattened record of one step.
type Entry struct {
	SessionID  string
	Step       int
	Time       time.Time
	Map        string
	X, Y       int
	InBattle   bool
	InDialogue bool
	Token      string
	Dispatched bool
	Outcome    string // movement outcome of the previous step
	Goal       string
	Transition string
	Source     string // oracle, fallback or dialogue; empty when the queue was used
	Rationale  string
	Error      string
}

// Values renders e as string fields.
func (e Entry) Values() map[string]any {
	v := map[string]any{
		"session":     e.SessionID,
		"step":        strconv.Itoa(e.Step),
		"time":        e.Time.UTC().Format(time.RFC3339Nano),
		"map":         e.Map,
		"x":           strconv.Itoa(e.X),
		"y":           strconv.Itoa(e.Y),
		"in_battle":   strconv.FormatBool(e.InBattle),
		"in_dialogue": strconv.FormatBool(e.InDialogue),
		"token":       e.Token,
		"dispatched":  strconv.FormatBool(e.Dispatched),
	}
	for key, value := range map[string]string{
		"outcome":    e.Outcome,
		"goal":       e.Goal,
		"transition": e.Transition,
		"source":     e.Source,
		"rationale":  e.Rationale,
		"error":      e.Error,
	} {
		if value != "" {
			v[key] = value
		}
	}
	return v
}

// Sink receives step entries in order.
type Sink interface {
	Publish(ctx context.Context, e Entry) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, Entry) error { return nil }
func (Nop) Close() error { return nil }

// Recorder keeps entries in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Publish(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Entries returns a copy of everything published so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}
