package provider

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a coarse error kind (of type
// ErrKind) and a human-readable message.
type Error struct {
	Kind ErrKind // The error kind
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("grove: %s: %s", e.Kind, e.Msg)
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrKind, msg string) *Error {
	return &Error{
		Kind: kind,
		Msg:  msg,
	}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(kind ErrKind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// IsKind reports whether err is a provider Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

type ErrKind uint64

const (
	KindInternal  ErrKind = iota // 0: Unexpected internal failure.
	KindConfig                   // 1: Missing name or invalid provider factory.
	KindLifecycle                // 2: Operation invoked before Init resolved or after Destroy.
	KindArgument                 // 3: Invalid argument shape.
	KindOperand                  // 4: Math invoked with no numeric value at the target.
	KindData                     // 5: Update invoked with no previous value at the target.
)

func (k ErrKind) String() string {
	switch k {
	case KindInternal:
		return "InternalError"
	case KindConfig:
		return "ConfigError"
	case KindLifecycle:
		return "LifecycleError"
	case KindArgument:
		return "ArgumentError"
	case KindOperand:
		return "OperandError"
	case KindData:
		return "DataError"
	default:
		return "Unknown"
	}
}
