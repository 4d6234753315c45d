// Package common defines the error taxonomy shared by the record pipeline.
// Callers should use errors.Is / errors.As to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Request-level input errors. Any of these fails the whole request
	// before a store is touched.
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidKind     = fmt.Errorf("%w: invalid kind", ErrInvalidInput)
	ErrInvalidRecordID = fmt.Errorf("%w: invalid record id", ErrInvalidInput)
	ErrDuplicateID     = fmt.Errorf("%w: duplicate record id in request", ErrInvalidInput)
	ErrInvalidLegal    = fmt.Errorf("%w: invalid legal", ErrInvalidInput)
	ErrInvalidPatch    = fmt.Errorf("%w: invalid patch operation", ErrInvalidInput)

	// Per-record business errors. The record is excluded and reported.
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrInvalidAcl          = fmt.Errorf("%w: acl outside tenant domain", ErrAuthorizationDenied)
	ErrParentNotFound      = errors.New("parent record not found")
	ErrVersionConflict     = errors.New("version conflict")
	ErrLocked              = fmt.Errorf("%w: record locked", ErrVersionConflict)

	// Storage-class errors. The request is aborted and compensated.
	ErrStorageFailure      = errors.New("storage failure")
	ErrPartialBatchFailure = fmt.Errorf("%w: unprocessed items in batch", ErrStorageFailure)

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// RecordError ties a failure to a single record id.
type RecordError struct {
	ID  string
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError wraps err for the record id.
func NewRecordError(id string, err error) *RecordError {
	return &RecordError{ID: id, Err: err}
}

// CompensationError carries the original failure together with whatever went
// wrong while undoing its side effects. Unwrap yields the original error only.
type CompensationError struct {
	Err       error
	Secondary error
}

func (e *CompensationError) Error() string {
	if e.Secondary == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (compensation failed: %v)", e.Err, e.Secondary)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// WithSecondary attaches secondary to err. A nil secondary returns err unchanged.
func WithSecondary(err, secondary error) error {
	if secondary == nil {
		return err
	}
	return &CompensationError{Err: err, Secondary: secondary}
}

// IsStorageFailure reports whether err belongs to the storage class.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// AsStorageFailure prefixes err with op and classifies it as a storage
// failure. errors.Is still matches the original error. A nil err stays nil.
func AsStorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStorageFailure(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, &storageError{err: err})
}

type storageError struct {
	err error
}

func (e *storageError) Error() string {
	return e.err.Error()
}

func (e *storageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.err}
}
