package optimization

import (
	stderrors "errors"
	"fmt"

	"github.com/mafu-labs/growthsim/internal/errors"
)

// ErrOptimizationFailed is matched by every solve failure: infeasible models,
// numerical breakdowns in the simplex and exhausted node limits.
var ErrOptimizationFailed = stderrors.New("optimization failed")

// Error describes a failed solve.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Budget is the budget of the failed solve.
	Budget float64
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	prefix := "optimization"
	if e.Op != "" {
		prefix = fmt.Sprintf("optimization: %s", e.Op)
	}
	msg := fmt.Sprintf("%s: %s (budget %.2f)", prefix, e.Message, e.Budget)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is makes every *Error match ErrOptimizationFailed.
func (e *Error) Is(target error) bool {
	return target == ErrOptimizationFailed
}

// Kind classifies the error for transport layers.
func (e *Error) Kind() errors.Kind {
	return errors.KindOptimizationFailed
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// Failf returns a solve failure for budget with a formatted message.
func Failf(budget float64, format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Budget:  budget,
	}
}

// WrapFailure wraps err as a solve failure for budget.
// If err is nil, WrapFailure returns nil.
func WrapFailure(err error, budget float64, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Budget:  budget,
		Err:     err,
	}
}

// IsOptimizationError checks if an error is, or wraps, an *Error.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
