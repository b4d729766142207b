package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped copies still compare equal
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// ConflictError reports a rejected optimistic write. It matches
// ErrConcurrencyConflict under errors.Is.
type ConflictError struct {
	EntityType      string
	ID              uuid.UUID
	ExpectedVersion int
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified by another process (expected version %d)",
		e.EntityType, e.ID, e.ExpectedVersion)
}

// Is reports whether target is the generic concurrency conflict error
func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// NewConflictError creates a conflict error for an entity write
func NewConflictError(entityType string, id uuid.UUID, expectedVersion int) *ConflictError {
	return &ConflictError{
		EntityType:      entityType,
		ID:              id,
		ExpectedVersion: expectedVersion,
	}
}

// IsConflict reports whether err is an optimistic locking conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
