package repositories

import "fmt"

// ErrorKind categorises repository failures for service-layer mapping.
type ErrorKind int

const (
	// ErrorKindUnknown is an uncategorised persistence failure.
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindNotFound means the referenced record does not exist.
	ErrorKindNotFound
	// ErrorKindConflict means an optimistic check or uniqueness constraint failed.
	ErrorKindConflict
	// ErrorKindUnavailable means the backend is temporarily unreachable.
	ErrorKindUnavailable
)

// Error is a concrete RepositoryError used by in-memory implementations and
// adapters without a native error taxonomy of their own.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError constructs a categorised repository error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsNotFound implements RepositoryError.
func (e *Error) IsNotFound() bool { return e != nil && e.Kind == ErrorKindNotFound }

// IsConflict implements RepositoryError.
func (e *Error) IsConflict() bool { return e != nil && e.Kind == ErrorKindConflict }

// IsUnavailable implements RepositoryError.
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == ErrorKindUnavailable }
