package critical

import "errors"

var (
	// ErrPreconditionFailed is reported for interactions whose precondition did not hold
	ErrPreconditionFailed = errors.New("critical: precondition not met")

	// ErrPostconditionFailed is reported when the final entity state was not the expected one
	ErrPostconditionFailed = errors.New("critical: postcondition not met")

	// ErrNilBody is returned when an interaction has no body
	ErrNilBody = errors.New("critical: interaction body is nil")

	// ErrNilEntity is returned when a store returns neither an entity nor an error
	ErrNilEntity = errors.New("critical: store returned nil entity")
)
