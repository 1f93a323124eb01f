// Package apperr defines the error kinds surfaced to API clients.
//
// Store packages return sentinel errors; the lifecycle controller and the
// certificate issuer translate them into *Error values so the HTTP layer can
// answer with a stable {kind, message, details} body.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for clients.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindNotFound             Kind = "not_found"
	KindForbidden            Kind = "forbidden"
	KindUnauthorized         Kind = "unauthorized"
	KindConflict             Kind = "conflict"
	KindDuplicateEnrollment  Kind = "duplicate_enrollment"
	KindActivityFullOrClosed Kind = "activity_full_or_closed"
	KindCapacityViolation    Kind = "capacity_violation"
	KindPendingAttendance    Kind = "pending_attendance"
	KindInvalidState         Kind = "invalid_state"
	KindRateLimited          Kind = "rate_limited"
	KindInternal             Kind = "internal"
)

// Error is a classified, user-readable error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches another *Error of the same kind whose message is empty, so the
// package-level values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Kind-only values for errors.Is checks.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrDuplicateEnrollment  = &Error{Kind: KindDuplicateEnrollment}
	ErrActivityFullOrClosed = &Error{Kind: KindActivityFullOrClosed}
	ErrCapacityViolation    = &Error{Kind: KindCapacityViolation}
	ErrPendingAttendance    = &Error{Kind: KindPendingAttendance}
	ErrInvalidState         = &Error{Kind: KindInvalidState}
)

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Validation reports the first violated constraint on field.
func Validation(field, msg string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: msg,
		Details: map[string]any{"field": field},
	}
}

// NotFound reports a missing entity ("activity", "enrollment", ...).
func NotFound(what string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: what + " not found",
		Details: map[string]any{"resource": what},
	}
}

// Forbidden reports an authenticated caller acting on something it does not own.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Unauthorized reports missing or bad credentials.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// RateLimited reports a caller that must wait before retrying.
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

// Conflict reports a uniqueness conflict outside the enrollment ledger.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// DuplicateEnrollment reports a second enrollment for the same pair.
func DuplicateEnrollment() *Error {
	return &Error{Kind: KindDuplicateEnrollment, Message: "you are already enrolled in this activity"}
}

// ActivityFullOrClosed reports a rejected seat admission.
func ActivityFullOrClosed() *Error {
	return &Error{Kind: KindActivityFullOrClosed, Message: "activity is full or no longer accepting enrollments"}
}

// CapacityViolation reports a max_participants below the current enrollment.
func CapacityViolation(minAllowed int) *Error {
	return &Error{
		Kind:    KindCapacityViolation,
		Message: fmt.Sprintf("maxParticipants cannot be lower than the %d students already enrolled", minAllowed),
		Details: map[string]any{"field": "maxParticipants", "minimum": minAllowed},
	}
}

// PendingAttendance reports enrollments still waiting for a decision.
func PendingAttendance(pending int64) *Error {
	return &Error{
		Kind:    KindPendingAttendance,
		Message: fmt.Sprintf("%d participant(s) still have pending attendance; record every decision before finishing", pending),
		Details: map[string]any{"pending": pending},
	}
}

// InvalidState reports an operation illegal in the current lifecycle state.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}
