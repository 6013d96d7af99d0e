package model

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed or missing input. It is never
// retried; the caller must fix the request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// NotFoundError marks a reference to an absent unit, call, alert or
// notification.
type NotFoundError struct {
	Kind string // "unit", "call", "alert", "notification"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError marks a violated state precondition, e.g. assigning a
// unit that already holds a different open call. The caller may retry
// after refreshing state.
type ConflictError struct {
	UnitID string
	CallID string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: unit %s, call %s: %s", e.UnitID, e.CallID, e.Reason)
}

// InvalidTransitionError marks a state machine violation. It is never
// auto-corrected and is surfaced to the operator.
type InvalidTransitionError struct {
	Kind string // "unit" or "call"
	ID   string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition for %s: %s -> %s", e.Kind, e.ID, e.From, e.To)
}

// IntegrityError marks broken referential symmetry between the unit
// registry and the call ledger. It is fatal: it must be logged,
// reported, and repaired by an explicit reconciliation pass, never
// silently patched.
type IntegrityError struct {
	UnitID string
	CallID string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: unit %s, call %s: %s", e.UnitID, e.CallID, e.Detail)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

// IsIntegrity reports whether err is an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
