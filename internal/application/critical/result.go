package critical

import (
	"fmt"
)

// Outcome tags how a critical interaction ended
type Outcome string

const (
	// OutcomeSucceeded means the body ran, the write (if any) was accepted and the postcondition held
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFetchFailed means the entity could not be read
	OutcomeFetchFailed Outcome = "fetch_failed"
	// OutcomePreconditionFailed means the fresh entity did not satisfy the precondition; nothing ran
	OutcomePreconditionFailed Outcome = "precondition_failed"
	// OutcomeBodyFailed means the body returned an error or panicked; nothing was written
	OutcomeBodyFailed Outcome = "body_failed"
	// OutcomePersistFailed means the store rejected the write, typically a version conflict
	OutcomePersistFailed Outcome = "persist_failed"
	// OutcomePostconditionFailed means everything ran but the final state is not the expected one
	OutcomePostconditionFailed Outcome = "postcondition_failed"
)

// Result is the tagged outcome of Perform. Entity is the last state the
// engine observed: the fetched entity, or the written one after a persist.
// Value is only meaningful once the body ran. Persisted reports whether the
// store accepted a write.
type Result[T, R any] struct {
	Outcome   Outcome
	Entity    *T
	Value     R
	Err       error
	Persisted bool
}

// Success reports whether the interaction fully succeeded
func (r Result[T, R]) Success() bool {
	return r.Outcome == OutcomeSucceeded
}

// BodyRan reports whether the body was invoked
func (r Result[T, R]) BodyRan() bool {
	switch r.Outcome {
	case OutcomeFetchFailed, OutcomePreconditionFailed:
		return false
	default:
		return true
	}
}

// Error returns Err, or a descriptive error for outcomes that carry none
func (r Result[T, R]) Error() error {
	if r.Err != nil {
		return r.Err
	}
	switch r.Outcome {
	case OutcomeSucceeded:
		return nil
	case OutcomePreconditionFailed:
		return ErrPreconditionFailed
	case OutcomePostconditionFailed:
		return ErrPostconditionFailed
	default:
		return fmt.Errorf("critical interaction %s", r.Outcome)
	}
}

// PanicError carries a value recovered from a panicking body
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("critical interaction body panicked: %v", e.Value)
}

// Unwrap exposes a panicked error value to errors.Is and errors.As
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
