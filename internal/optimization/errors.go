package optimization

import "fmt"

// Error is an optimization-core error carrying the component and operation
// that produced it.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var prefix string
	switch {
	case e.Component != "" && e.Op != "":
		prefix = fmt.Sprintf("%s: %s: ", e.Component, e.Op)
	case e.Component != "":
		prefix = e.Component + ": "
	case e.Op != "":
		prefix = e.Op + ": "
	}

	if e.Err != nil {
		return fmt.Sprintf("%s%s: %v", prefix, e.Message, e.Err)
	}
	return prefix + e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError creates a new optimization error.
func NewError(component, op, message string) *Error {
	return &Error{Message: message, Op: op, Component: component}
}

// NewErrorf creates a new optimization error with a formatted message.
func NewErrorf(component, op, format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Op: op, Component: component}
}

// WrapError wraps an existing error with optimization-core context.
// It returns nil when err is nil.
func WrapError(err error, component, op, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Message: message, Op: op, Component: component, Err: err}
}
