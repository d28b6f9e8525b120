package action

import (
	"fmt"
	"strings"
)

// Error is the failure of one action's execute or revert.
type Error struct {
	// Tag identifies the action that failed.
	Tag Tag

	// Err is the action-specific cause.
	Err error
}

// Wrap attaches tag to err. An err that already carries the same tag is
// returned unchanged.
func Wrap(tag Tag, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok && e.Tag == tag {
		return e
	}
	return &Error{Tag: tag, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("action %s: %v", e.Tag, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// MultipleChildrenError aggregates failures of a composite's children.
type MultipleChildrenError struct {
	Errs []error
}

// Error implements the error interface.
func (e *MultipleChildrenError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d child actions failed:", len(e.Errs))
	for _, err := range e.Errs {
		b.WriteString("\n* ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns every child error.
func (e *MultipleChildrenError) Unwrap() []error {
	return e.Errs
}

// JoinErrors returns nil for no errors, the error itself for one, and a
// *MultipleChildrenError otherwise.
func JoinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &MultipleChildrenError{Errs: errs}
	}
}
