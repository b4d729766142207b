package transfer

import "errors"

var (
	// ErrTransferFailed wraps transport failures
	ErrTransferFailed = errors.New("transfer: transport failed")

	// ErrNoTransport is returned when no transport serves a repository
	ErrNoTransport = errors.New("transfer: no transport for repository")

	// ErrIncompleteTransfer is returned when the submission or repository is missing
	ErrIncompleteTransfer = errors.New("transfer: submission and repository are required")
)
