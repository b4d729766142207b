package deposit

import "context"

// StatusResolver translates a deposit's status reference into a local status.
// resolved is false when the remote document carried no recognizable term.
// A returned error never implies a status; callers must leave the deposit unchanged.
type StatusResolver interface {
	ResolveStatus(ctx context.Context, statusRef string, repository *Repository) (status DepositStatus, resolved bool, err error)
}

// TermMapper maps a repository-specific status term to a local status
type TermMapper interface {
	MapTerm(repository *Repository, term string) (DepositStatus, bool)
}

// Transferer performs one transfer of a submission's package into a repository
// and returns the repository's status reference for it, which may be empty.
type Transferer interface {
	Transfer(ctx context.Context, submission *Submission, repository *Repository) (statusRef string, err error)
}
