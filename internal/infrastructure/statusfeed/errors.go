// Package statusfeed resolves a deposit's status reference into a local
// deposit status by fetching the repository's status document, extracting
// the repository's status term and mapping it through a per-repository table.
package statusfeed

import "errors"

var (
	// ErrNilStatusRef is returned before any network call when the reference is empty
	ErrNilStatusRef = errors.New("statusfeed: status reference is empty")

	// ErrResolutionFailed wraps fetch failures, timeouts and non-2xx responses
	ErrResolutionFailed = errors.New("statusfeed: status resolution failed")

	// ErrUnparseableDocument is returned when the body is neither valid Atom nor valid JSON
	ErrUnparseableDocument = errors.New("statusfeed: unparseable status document")

	// ErrUnknownRepository is returned when no configuration exists for a repository key
	ErrUnknownRepository = errors.New("statusfeed: unknown repository")
)
