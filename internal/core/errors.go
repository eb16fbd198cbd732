// Package core defines the shared error taxonomy used across the platform.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers classify failures with errors.Is or the helpers below.
var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique-key violation on insert.
	ErrConflict = errors.New("already exists")
	// ErrInvalidInput indicates a malformed filter, payload or configuration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIndeterminate indicates an external verification could not complete.
	// It is explicitly distinct from a negative verification result.
	ErrIndeterminate = errors.New("verification indeterminate")
	// ErrStore indicates an underlying persistence failure.
	ErrStore = errors.New("store failure")
)

// NotFoundError identifies a missing entity by kind and id.
type NotFoundError struct {
	Kind string
	ID   string
}

// NewNotFoundError builds a NotFoundError for the given entity kind and id.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError identifies a duplicate entity by kind and id.
type ConflictError struct {
	Kind string
	ID   string
}

// NewConflictError builds a ConflictError for the given entity kind and id.
func NewConflictError(kind, id string) *ConflictError {
	return &ConflictError{Kind: kind, ID: id}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError reports a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// RequiredError is a ValidationError for a missing mandatory field.
func RequiredError(field string) *ValidationError {
	return NewValidationError(field, "is required")
}

// NewStoreError wraps a persistence failure so it classifies as ErrStore while
// preserving the driver error for logging.
func NewStoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}

// IsNotFound reports whether err classifies as a missing-entity error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err classifies as a duplicate-key error.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidationError reports whether err classifies as rejected input.
func IsValidationError(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsIndeterminate reports whether err classifies as an inconclusive external check.
func IsIndeterminate(err error) bool { return errors.Is(err, ErrIndeterminate) }

// IsStoreFailure reports whether err classifies as a persistence failure.
func IsStoreFailure(err error) bool { return errors.Is(err, ErrStore) }
