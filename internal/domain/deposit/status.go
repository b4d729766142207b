package deposit

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// DepositStatus is the status of a single transfer attempt into one repository.
// The empty value means no status has been reported yet.
type DepositStatus string

const (
	// DepositStatusSubmitted means the transfer was acknowledged and the remote outcome is pending
	DepositStatusSubmitted DepositStatus = "SUBMITTED"
	// DepositStatusAccepted means the repository accepted the deposit
	DepositStatusAccepted DepositStatus = "ACCEPTED"
	// DepositStatusRejected means the repository rejected the deposit
	DepositStatusRejected DepositStatus = "REJECTED"
	// DepositStatusFailed means the last transfer attempt failed and may be retried
	DepositStatusFailed DepositStatus = "FAILED"
)

// AllDepositStatuses returns all valid deposit statuses
func AllDepositStatuses() []DepositStatus {
	return []DepositStatus{
		DepositStatusSubmitted,
		DepositStatusAccepted,
		DepositStatusRejected,
		DepositStatusFailed,
	}
}

// IsValid checks if the status is one of the known values
func (s DepositStatus) IsValid() bool {
	switch s {
	case DepositStatusSubmitted, DepositStatusAccepted, DepositStatusRejected, DepositStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is expected.
// Only ACCEPTED and REJECTED are terminal; FAILED is retryable.
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusAccepted || s == DepositStatusRejected
}

// IsIntermediate is the complement of IsTerminal
func (s DepositStatus) IsIntermediate() bool {
	return !s.IsTerminal()
}

// String returns the string representation of the status
func (s DepositStatus) String() string {
	return string(s)
}

// Scan implements the sql.Scanner interface
func (s *DepositStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("deposit: cannot scan type %T into DepositStatus", value)
	}
	*s = DepositStatus(strings.ToUpper(raw))
	if *s != "" && !s.IsValid() {
		return fmt.Errorf("deposit: invalid deposit status: %s", raw)
	}
	return nil
}

// Value implements the driver.Valuer interface. The absent status is stored as NULL.
func (s DepositStatus) Value() (driver.Value, error) {
	if s == "" {
		return nil, nil
	}
	return string(s), nil
}

// ParseDepositStatus parses a status name, case-insensitively
func ParseDepositStatus(raw string) (DepositStatus, error) {
	s := DepositStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("deposit: invalid deposit status: %q", raw)
	}
	return s, nil
}

// IsTerminalDepositStatus is the nil-safe form of DepositStatus.IsTerminal
func IsTerminalDepositStatus(s *DepositStatus) bool {
	if s == nil {
		return false
	}
	return s.IsTerminal()
}

// AggregatedDepositStatus is the status of a submission derived from its deposits.
// The empty value means the aggregate has never been computed.
type AggregatedDepositStatus string

const (
	// AggregatedNotStarted means no deposit has been attempted
	AggregatedNotStarted AggregatedDepositStatus = "NOT_STARTED"
	// AggregatedInProgress means at least one deposit is still in flight
	AggregatedInProgress AggregatedDepositStatus = "IN_PROGRESS"
	// AggregatedFailed means some deposit failed and nothing is in flight; retryable
	AggregatedFailed AggregatedDepositStatus = "FAILED"
	// AggregatedAccepted means every target repository accepted its deposit
	AggregatedAccepted AggregatedDepositStatus = "ACCEPTED"
	// AggregatedRejected means every deposit finished and at least one was rejected
	AggregatedRejected AggregatedDepositStatus = "REJECTED"
)

// AllAggregatedDepositStatuses returns all valid aggregate statuses
func AllAggregatedDepositStatuses() []AggregatedDepositStatus {
	return []AggregatedDepositStatus{
		AggregatedNotStarted,
		AggregatedInProgress,
		AggregatedFailed,
		AggregatedAccepted,
		AggregatedRejected,
	}
}

// IntermediateAggregatedStatuses returns the non-empty intermediate aggregate statuses
func IntermediateAggregatedStatuses() []AggregatedDepositStatus {
	return []AggregatedDepositStatus{
		AggregatedNotStarted,
		AggregatedInProgress,
		AggregatedFailed,
	}
}

// IsValid checks if the status is one of the known values
func (s AggregatedDepositStatus) IsValid() bool {
	switch s {
	case AggregatedNotStarted, AggregatedInProgress, AggregatedFailed, AggregatedAccepted, AggregatedRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is expected
func (s AggregatedDepositStatus) IsTerminal() bool {
	return s == AggregatedAccepted || s == AggregatedRejected
}

// IsIntermediate is the complement of IsTerminal
func (s AggregatedDepositStatus) IsIntermediate() bool {
	return !s.IsTerminal()
}

// String returns the string representation of the status
func (s AggregatedDepositStatus) String() string {
	return string(s)
}

// Scan implements the sql.Scanner interface
func (s *AggregatedDepositStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("deposit: cannot scan type %T into AggregatedDepositStatus", value)
	}
	*s = AggregatedDepositStatus(strings.ToUpper(raw))
	if *s != "" && !s.IsValid() {
		return fmt.Errorf("deposit: invalid aggregated status: %s", raw)
	}
	return nil
}

// Value implements the driver.Valuer interface. The absent status is stored as NULL.
func (s AggregatedDepositStatus) Value() (driver.Value, error) {
	if s == "" {
		return nil, nil
	}
	return string(s), nil
}

// IsTerminalAggregatedStatus is the nil-safe form of AggregatedDepositStatus.IsTerminal
func IsTerminalAggregatedStatus(s *AggregatedDepositStatus) bool {
	if s == nil {
		return false
	}
	return s.IsTerminal()
}

// DepositIntermediate reports whether a deposit still needs attention.
// A nil deposit is treated as intermediate.
func DepositIntermediate(d *Deposit) bool {
	return d == nil || d.Status.IsIntermediate()
}

// DepositTerminal reports whether a deposit reached a final status
func DepositTerminal(d *Deposit) bool {
	return d != nil && d.Status.IsTerminal()
}

// SubmissionIntermediate reports whether a submission's aggregate status may still change
func SubmissionIntermediate(s *Submission) bool {
	return s == nil || s.AggregatedStatus.IsIntermediate()
}

// SubmissionTerminal reports whether a submission's aggregate status is final
func SubmissionTerminal(s *Submission) bool {
	return s != nil && s.AggregatedStatus.IsTerminal()
}
