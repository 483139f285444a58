// Package errors provides the error type shared by the growthsim packages.
//
// Every error carries a Kind so transport layers can map failures to status
// codes without string matching.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	// KindInternal is the zero kind, used when nothing more specific applies.
	KindInternal Kind = iota
	// KindInvalid marks rejected input or configuration.
	KindInvalid
	// KindOptimizationFailed marks a solve that produced no feasible solution.
	KindOptimizationFailed
	// KindNotFound marks a lookup of an unknown resource.
	KindNotFound
	// KindConflict marks an operation not allowed in the resource's current state.
	KindConflict
	// KindCanceled marks work stopped by cancellation or deadline.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindOptimizationFailed:
		return "optimization_failed"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Error represents an error with context and stack trace.
type Error struct {
	// Kind classifies the failure
	Kind Kind
	// The underlying error that was returned
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Component != "" {
		builder.WriteString(e.Component)
	}

	if e.Operation != "" {
		if builder.Len() > 0 {
			builder.WriteString(".")
		}
		builder.WriteString(e.Operation)
	}

	if e.Message != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Message)
	}

	if e.Err != nil {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithKind sets the kind of the error.
func (e *Error) WithKind(kind Kind) *Error {
	e.Kind = kind
	return e
}

// WithOperation sets the operation of the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent sets the component of the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates a new error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{
		Kind:    kind,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Errorf creates a new error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// Wrap wraps err with a message. The kind is inherited from err.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    KindOf(err),
		Err:     err,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Wrapf wraps err with a formatted message. The kind is inherited from err.
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    KindOf(err),
		Err:     err,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// KindOf reports the kind of the first error in err's chain that carries one.
// Context cancellation maps to KindCanceled.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var e *Error
	if stderrors.As(err, &e) && e.Kind != KindInternal {
		return e.Kind
	}

	var k interface{ Kind() Kind }
	if stderrors.As(err, &k) {
		return k.Kind()
	}

	if isContextErr(err) {
		return KindCanceled
	}

	return KindInternal
}

// HTTPStatus maps a kind to the HTTP status code the API reports for it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalid:
		return http.StatusBadRequest
	case KindOptimizationFailed:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, getStackTrace, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}

func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if err's
// type contains an Unwrap method returning error.
// Otherwise, Unwrap returns nil.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}
