package models

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing extract movement, system movement,
// period, alias or configuration. Handlers map it to 404.
var ErrNotFound = errors.New("not found")

// ErrRecomputeNotAllowed is returned when a system-side recompute is
// requested for a period whose extracto side has not been established.
var ErrRecomputeNotAllowed = errors.New("no reconciliation period exists for this key; load the statement side first")

// ValidationError signals malformed input: configuration values out of
// range, bad period keys, empty alias patterns.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConflictError signals an attempt to link a system movement that is
// already referenced by another live match.
type ConflictError struct {
	SystemMovementID int64
	Msg              string
}

func (e *ConflictError) Error() string { return e.Msg }

func NewConflictError(systemID int64) error {
	return &ConflictError{
		SystemMovementID: systemID,
		Msg:              fmt.Sprintf("system movement %d is already linked to another extract movement", systemID),
	}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
