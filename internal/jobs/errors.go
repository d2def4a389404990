package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown job ids and for completed jobs whose
// result file no longer exists.
var ErrNotFound = errors.New("job not found")

// InputError rejects a submission before any job is created.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError reports a request that needs a completed job.
type StateError struct {
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("podcast generation not completed. Current status: %s", e.Status)
}

// TransitionError reports an edge the state machine does not allow.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}
