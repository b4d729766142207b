package deposit

import "github.com/google/uuid"

// CalculateAggregatedStatus derives a submission's aggregate status from its
// deposits. Only the most recent deposit per target repository counts.
//
//   - no deposits                                   NOT_STARTED
//   - a target without a deposit, or any deposit
//     SUBMITTED or without status                   IN_PROGRESS
//   - every target ACCEPTED                         ACCEPTED
//   - every deposit terminal, at least one REJECTED REJECTED
//   - otherwise (FAILED, nothing in flight)         FAILED
func CalculateAggregatedStatus(s *Submission, deposits []*Deposit) AggregatedDepositStatus {
	latest := make(map[uuid.UUID]*Deposit, len(deposits))
	for _, d := range deposits {
		if d == nil || d.SubmissionID != s.ID {
			continue
		}
		if cur, ok := latest[d.RepositoryID]; !ok || d.CreatedAt.After(cur.CreatedAt) {
			latest[d.RepositoryID] = d
		}
	}
	if len(latest) == 0 {
		return AggregatedNotStarted
	}

	targets := s.Repositories
	if len(targets) == 0 {
		targets = make([]uuid.UUID, 0, len(latest))
		for id := range latest {
			targets = append(targets, id)
		}
	}

	var accepted, rejected, failed, inFlight int
	for _, repoID := range targets {
		d, ok := latest[repoID]
		if !ok {
			inFlight++
			continue
		}
		switch d.Status {
		case DepositStatusAccepted:
			accepted++
		case DepositStatusRejected:
			rejected++
		case DepositStatusFailed:
			failed++
		default:
			inFlight++
		}
	}

	switch {
	case inFlight > 0:
		return AggregatedInProgress
	case accepted == len(targets):
		return AggregatedAccepted
	case failed > 0:
		return AggregatedFailed
	default:
		return AggregatedRejected
	}
}
