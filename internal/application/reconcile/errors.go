package reconcile

import "errors"

var (
	// ErrFatalRun wraps errors that make a whole run unusable: the candidate
	// query failed, or the submission driver hit a non-conflict store error.
	ErrFatalRun = errors.New("reconcile: fatal run failure")

	// ErrRunInterrupted is returned when the run context ends before every candidate was visited
	ErrRunInterrupted = errors.New("reconcile: run interrupted")

	// ErrInvalidCallback is returned for a status callback without deposit or status
	ErrInvalidCallback = errors.New("reconcile: invalid status callback")

	// ErrUnmappedTerm is returned when a pushed term is not in the repository's mapping
	ErrUnmappedTerm = errors.New("reconcile: status term not mapped for repository")
)
