package shared

// Versioned is implemented by every entity persisted with an optimistic
// version check. The store compares GetVersion against the stored row on
// write and rejects the write on mismatch.
type Versioned interface {
	Entity
	GetVersion() int
	SetVersion(version int)
}

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Versioned
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// GetVersion returns the version read from the store
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// SetVersion records the version the store assigned on the last write
func (a *BaseAggregateRoot) SetVersion(version int) {
	a.Version = version
}

// NewBaseAggregateRoot creates a new base aggregate root at version 1
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}
