// Package shared contains common domain types, errors, and events used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors, matched with errors.Is().
//
// The engine recovers every one of them locally: a validation error turns the
// action into a no-op, a persistence error degrades to in-memory operation,
// a network error leaves the transaction queued, a conflict error parks the
// transaction permanently. Nothing propagates to the UI layer as a hard failure.
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors - rejected at the calculator boundary, never partially applied.
	ErrValidation    = errors.New("validation error")
	ErrNegativeValue = errors.New("value cannot be negative")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrUnknownAction = errors.New("unknown action type")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrAlreadyApplied  = errors.New("already applied")

	// Persistence errors - non-fatal, engine continues in-memory.
	ErrStoreUnavailable = errors.New("durable store unavailable")

	// Network errors - non-fatal, transaction stays pending.
	ErrLedgerUnavailable = errors.New("ledger service unavailable")
	ErrTimeout           = errors.New("operation timeout")
	ErrRateLimited       = errors.New("rate limited")

	// Conflict errors - the remote ledger rejected a transaction: duplicate,
	// rate-limited or otherwise invalid by the server's rules. Permanently
	// failed, never retried, never rolled back locally.
	ErrLedgerConflict = errors.New("ledger rejected transaction")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "profile", "sync", "catalog"
	Op      string // Operation that failed, e.g., "ApplyAction", "Confirm"
	Kind    error  // Base error for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both Kind and Err.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError constructs a DomainError.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an underlying error into a DomainError.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// IsRecoverable reports whether the error is one the engine absorbs without
// surfacing to the caller. Validation, persistence, network and conflict
// errors are all recoverable; anything else indicates a programming bug.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrLedgerUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrLedgerConflict)
}

// IsNotFound reports whether the error means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
