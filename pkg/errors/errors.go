package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType classifies launcher failures
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypePrecondition ErrorType = "precondition"
	ErrorTypeLaunch       ErrorType = "launch"
	ErrorTypeProcess      ErrorType = "process"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancelled    ErrorType = "cancelled"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

// NewPreconditionError reports a missing executable, a stale instance
// directory or an unavailable port. It is always fatal to Start.
func NewPreconditionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePrecondition, message, cause)
}

// NewLaunchError reports that the OS refused to create the child process.
func NewLaunchError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeLaunch, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

// TypeOf returns the type of the outermost DomainError in the chain, or
// ErrorTypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal
}

// IsXxxError reports whether any DomainError in the chain, including every
// member of an ErrorCollection, has that type.

func IsValidationError(err error) bool   { return hasType(err, ErrorTypeValidation) }
func IsPreconditionError(err error) bool { return hasType(err, ErrorTypePrecondition) }
func IsLaunchError(err error) bool       { return hasType(err, ErrorTypeLaunch) }
func IsProcessError(err error) bool      { return hasType(err, ErrorTypeProcess) }
func IsIOError(err error) bool           { return hasType(err, ErrorTypeIO) }
func IsTimeoutError(err error) bool      { return hasType(err, ErrorTypeTimeout) }
func IsCancelledError(err error) bool    { return hasType(err, ErrorTypeCancelled) }
func IsInternalError(err error) bool     { return hasType(err, ErrorTypeInternal) }

func hasType(err error, errorType ErrorType) bool {
	return err != nil && errors.Is(err, &DomainError{Type: errorType})
}

// ErrorCollection aggregates the failures of a multi-step teardown. Every
// step runs; the collection reports all of them.
type ErrorCollection struct {
	errs []error
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{}
}

func (c *ErrorCollection) Add(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

func (c *ErrorCollection) Len() int {
	return len(c.errs)
}

func (c *ErrorCollection) Error() string {
	switch len(c.errs) {
	case 0:
		return "no errors"
	case 1:
		return c.errs[0].Error()
	}
	parts := make([]string, len(c.errs))
	for i, err := range c.errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred: %s", len(c.errs), strings.Join(parts, "; "))
}

func (c *ErrorCollection) Unwrap() []error {
	return c.errs
}

// ToError returns nil for an empty collection
func (c *ErrorCollection) ToError() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c
}
