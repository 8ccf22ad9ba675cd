package fault

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies the errors the core surfaces to callers.
// Raw driver or solver errors never cross a package boundary.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindInvalidTransition     Kind = "invalid_transition"
	KindGuardFailed           Kind = "guard_failed"
	KindUnauthorized          Kind = "unauthorized"
	KindConflict              Kind = "conflict"
	KindInvalidInput          Kind = "invalid_input"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindInternal              Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string

	// InvalidTransition details.
	From string
	To   string

	// GuardFailed details.
	PredicateID string

	// Internal correlation id, never the underlying error text.
	CorrelationID string

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(from, to, reason string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s: %s", from, to, reason),
		From:    from,
		To:      to,
	}
}

func GuardFailed(predicateID, message string) *Error {
	return &Error{Kind: KindGuardFailed, Message: message, PredicateID: predicateID}
}

// Unauthorized is deliberately opaque: token verification never leaks
// why a token was rejected.
func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: "access denied"}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func DependencyUnavailable(format string, args ...any) *Error {
	return &Error{Kind: KindDependencyUnavailable, Message: fmt.Sprintf(format, args...)}
}

// Internal hides the cause behind a correlation id for log lookup.
func Internal(cause error) *Error {
	return &Error{
		Kind:          KindInternal,
		Message:       "internal error",
		CorrelationID: uuid.New().String(),
		cause:         cause,
	}
}

// KindOf returns the fault kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// As unwraps err to a fault Error when possible.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}
