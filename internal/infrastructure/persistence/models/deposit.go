package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
)

// UUIDList stores a list of IDs as a JSON array in a text column
type UUIDList []uuid.UUID

// Value implements driver.Valuer
func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		l = UUIDList{}
	}
	b, err := json.Marshal([]uuid.UUID(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *UUIDList) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into UUIDList", value)
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("invalid UUIDList: %w", err)
	}
	*l = ids
	return nil
}

// SubmissionModel is the persistence model for the Submission aggregate root.
type SubmissionModel struct {
	AggregateModel
	AggregatedStatus deposit.AggregatedDepositStatus `gorm:"type:varchar(32);index"`
	Repositories     UUIDList                        `gorm:"type:text;not null"`
	Submitted        bool                            `gorm:"not null;default:false;index"`
	SubmittedAt      *time.Time
}

// TableName returns the table name for GORM
func (SubmissionModel) TableName() string {
	return "submissions"
}

// ToDomain converts the persistence model to a domain Submission
func (m *SubmissionModel) ToDomain() *deposit.Submission {
	return &deposit.Submission{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		AggregatedStatus:  m.AggregatedStatus,
		Repositories:      append([]uuid.UUID(nil), m.Repositories...),
		Submitted:         m.Submitted,
		SubmittedAt:       m.SubmittedAt,
	}
}

// FromDomain populates the persistence model from a domain Submission
func (m *SubmissionModel) FromDomain(s *deposit.Submission) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.AggregatedStatus = s.AggregatedStatus
	m.Repositories = append(UUIDList(nil), s.Repositories...)
	m.Submitted = s.Submitted
	m.SubmittedAt = s.SubmittedAt
}

// SubmissionModelFromDomain creates a new persistence model from a domain Submission
func SubmissionModelFromDomain(s *deposit.Submission) *SubmissionModel {
	m := &SubmissionModel{}
	m.FromDomain(s)
	return m
}

// DepositModel is the persistence model for the Deposit aggregate root.
type DepositModel struct {
	AggregateModel
	SubmissionID uuid.UUID             `gorm:"type:uuid;not null;index"`
	RepositoryID uuid.UUID             `gorm:"type:uuid;not null;index"`
	Status       deposit.DepositStatus `gorm:"type:varchar(32);index"`
	StatusRef    string                `gorm:"type:text;not null;default:''"`
	LastError    string                `gorm:"type:text;not null;default:''"`
	AttemptCount int                   `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (DepositModel) TableName() string {
	return "deposits"
}

// ToDomain converts the persistence model to a domain Deposit
func (m *DepositModel) ToDomain() *deposit.Deposit {
	return &deposit.Deposit{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SubmissionID:      m.SubmissionID,
		RepositoryID:      m.RepositoryID,
		Status:            m.Status,
		StatusRef:         m.StatusRef,
		LastError:         m.LastError,
		AttemptCount:      m.AttemptCount,
	}
}

// FromDomain populates the persistence model from a domain Deposit
func (m *DepositModel) FromDomain(d *deposit.Deposit) {
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	m.SubmissionID = d.SubmissionID
	m.RepositoryID = d.RepositoryID
	m.Status = d.Status
	m.StatusRef = d.StatusRef
	m.LastError = d.LastError
	m.AttemptCount = d.AttemptCount
}

// DepositModelFromDomain creates a new persistence model from a domain Deposit
func DepositModelFromDomain(d *deposit.Deposit) *DepositModel {
	m := &DepositModel{}
	m.FromDomain(d)
	return m
}

// RepositoryModel is the persistence model for a target repository.
type RepositoryModel struct {
	AggregateModel
	Name string `gorm:"type:varchar(255);not null"`
	Key  string `gorm:"column:repo_key;type:varchar(100);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (RepositoryModel) TableName() string {
	return "repositories"
}

// ToDomain converts the persistence model to a domain Repository
func (m *RepositoryModel) ToDomain() *deposit.Repository {
	return &deposit.Repository{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Name:              m.Name,
		Key:               m.Key,
	}
}

// FromDomain populates the persistence model from a domain Repository
func (m *RepositoryModel) FromDomain(r *deposit.Repository) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.Name = r.Name
	m.Key = r.Key
}

// RepositoryModelFromDomain creates a new persistence model from a domain Repository
func RepositoryModelFromDomain(r *deposit.Repository) *RepositoryModel {
	m := &RepositoryModel{}
	m.FromDomain(r)
	return m
}

// All returns every model for AutoMigrate
func All() []any {
	return []any{&RepositoryModel{}, &SubmissionModel{}, &DepositModel{}}
}
