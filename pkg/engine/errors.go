package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an engine error.
type ErrorKind string

const (
	// ErrorKindAction indicates an action failed to execute.
	ErrorKindAction ErrorKind = "action"

	// ErrorKindActionRevert indicates an action failed to revert.
	ErrorKindActionRevert ErrorKind = "action_revert"

	// ErrorKindCancelled indicates a cancellation request was honored.
	ErrorKindCancelled ErrorKind = "cancelled"

	// ErrorKindIncompatibleVersion indicates a plan from an incompatible engine.
	ErrorKindIncompatibleVersion ErrorKind = "incompatible_version"

	// ErrorKindInvalidVersion indicates an unparsable version.
	ErrorKindInvalidVersion ErrorKind = "invalid_version"

	// ErrorKindReceipt indicates the receipt could not be read or written.
	ErrorKindReceipt ErrorKind = "receipt"

	// ErrorKindPlanner indicates a planner check or planning failure.
	ErrorKindPlanner ErrorKind = "planner"

	// ErrorKindPolicy indicates a plan was rejected by policy.
	ErrorKindPolicy ErrorKind = "policy"
)

// Error represents a classified error with context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Path is the file involved, if any.
	Path string `json:"path,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrCancelled matches every cancellation error through errors.Is.
var ErrCancelled = &Error{Kind: ErrorKindCancelled, Message: "cancelled"}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Op != "" && e.Path != "" {
		fmt.Fprintf(&b, " (op=%s, path=%s)", e.Op, e.Path)
	} else if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	} else if e.Op != "" {
		fmt.Fprintf(&b, " (op=%s)", e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewCancelledError reports that stage was cancelled between steps.
func NewCancelledError(stage Stage) *Error {
	return &Error{
		Kind:    ErrorKindCancelled,
		Message: fmt.Sprintf("%s cancelled", stage),
		Op:      string(stage),
	}
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithPath adds path context to an error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsCancelled returns true if err is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsIncompatibleVersion returns true if err reports an incompatible receipt.
func IsIncompatibleVersion(err error) bool {
	var e *IncompatibleVersionError
	return errors.As(err, &e)
}

// IncompatibleVersionError is returned when a plan was built by an engine
// whose version does not satisfy the running one.
type IncompatibleVersionError struct {
	// Binary is the running engine version.
	Binary string

	// Plan is the version recorded in the plan.
	Plan string
}

// Error implements the error interface.
func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("this binary (v%s) is not compatible with the plan version (v%s); use a compatible binary to act on this plan",
		e.Binary, e.Plan)
}

// Is matches incompatible_version engine errors.
func (e *IncompatibleVersionError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == ErrorKindIncompatibleVersion
}

// RevertError aggregates two or more revert failures in processing order.
type RevertError struct {
	Errs []error
}

// Error implements the error interface.
func (e *RevertError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "multiple errors reverting the plan (%d):", len(e.Errs))
	for _, err := range e.Errs {
		b.WriteString("\n* ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns every recorded failure.
func (e *RevertError) Unwrap() []error {
	return e.Errs
}
