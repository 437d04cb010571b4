// Package flowerrors defines the error taxonomy shared by the engine and
// the webhook dispatcher.
package flowerrors

import "fmt"

// Kind classifies an error for retry/propagation decisions (spec §7).
type Kind string

const (
	KindConfiguration      Kind = "configuration"
	KindInput              Kind = "input"
	KindTransientExternal  Kind = "transient_external"
	KindPermanentExternal  Kind = "permanent_external"
	KindInternalConsistency Kind = "internal_consistency"
	KindCapacity           Kind = "capacity"
)

// Error is a typed error carrying a Kind alongside the usual message/cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Retryable reports whether errors of this kind should be retried by the
// webhook dispatcher / engine's internal channel-send retry.
func (k Kind) Retryable() bool {
	return k == KindTransientExternal || k == KindCapacity
}

// IsKind reports whether err (or a wrapped cause) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			fe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return fe != nil && fe.Kind == kind
}
