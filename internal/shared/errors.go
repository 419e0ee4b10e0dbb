package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. The core returns kinds; the
// presentation layer owns the localized display text.
type Kind string

const (
	// KindValidation marks malformed or missing input.
	KindValidation Kind = "validation"
	// KindTransition marks an operation attempted from a disallowed status.
	KindTransition Kind = "transition"
	// KindNotFound marks a missing request/offer/order.
	KindNotFound Kind = "not_found"
	// KindBudget marks insufficient available budget.
	KindBudget Kind = "budget"
	// KindConflict marks a lost concurrent-update race.
	KindConflict Kind = "conflict"
	// KindDuplicate marks a unique-constraint collision.
	KindDuplicate Kind = "duplicate"
	// KindPersistence marks a storage failure mid-operation.
	KindPersistence Kind = "persistence"
)

// Error is a kinded domain error.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// ErrKind reports the error classification.
func (e *Error) ErrKind() Kind { return e.Kind }

// TransitionError names the required versus actual status of a refused
// transition. No partial mutation has occurred when it is returned.
type TransitionError struct {
	Entity   string
	Required string
	Actual   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s requires status %s, current status is %s", e.Entity, e.Required, e.Actual)
}

// ErrKind reports the error classification.
func (e *TransitionError) ErrKind() Kind { return KindTransition }

// NewValidation builds a validation-kind error.
func NewValidation(reason string) error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// NewNotFound builds a not-found-kind error.
func NewNotFound(reason string) error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

// NewBudget builds a budget-kind error.
func NewBudget(reason string) error {
	return &Error{Kind: KindBudget, Reason: reason}
}

// NewConflict builds a conflict-kind error.
func NewConflict(reason string) error {
	return &Error{Kind: KindConflict, Reason: reason}
}

// NewDuplicate builds a duplicate-kind error.
func NewDuplicate(reason string, err error) error {
	return &Error{Kind: KindDuplicate, Reason: reason, Err: err}
}

// NewPersistence wraps a storage failure.
func NewPersistence(reason string, err error) error {
	return &Error{Kind: KindPersistence, Reason: reason, Err: err}
}

// NewTransition builds a transition error for entity, naming required vs actual.
func NewTransition(entity, required, actual string) error {
	return &TransitionError{Entity: entity, Required: required, Actual: actual}
}

// KindOf extracts the kind from err, or empty when it carries none.
func KindOf(err error) Kind {
	var kinded interface{ ErrKind() Kind }
	if errors.As(err, &kinded) {
		return kinded.ErrKind()
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
