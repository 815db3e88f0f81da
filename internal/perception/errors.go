package perception

import "fmt"

// MalformedStateError reports a formatted state that is missing a required
// section or contains a line the section grammar cannot read.
type MalformedStateError struct {
	Marker string // the section marker that was missing or unparseable
	Reason string
	Err    error
}

func (e *MalformedStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed state at %q: %s: %v", e.Marker, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed state at %q: %s", e.Marker, e.Reason)
}

func (e *MalformedStateError) Unwrap() error {
	return e.Err
}
