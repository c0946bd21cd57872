package core

import (
	"errors"
	"fmt"
)

// ErrorKind closes the error taxonomy spec.md §7 defines. Components never
// panic or throw; every fallible operation returns a *Error (or nil).
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindComponent     ErrorKind = "component"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindStorage       ErrorKind = "storage"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindSecurity      ErrorKind = "security"
	ErrorKindWorkflow      ErrorKind = "workflow"
	ErrorKindScript        ErrorKind = "script"
	ErrorKindResourceLimit ErrorKind = "resource_limit"
)

// cancelledMessagePrefix is the stable prefix callers use to distinguish a
// cooperative cancellation/timeout from other Component errors by substring,
// per spec.md §7's "Policy" paragraph.
const cancelledMessagePrefix = "cancelled"

// Error is the single error type every core operation returns. Kind-specific
// fields are optional and only populated when meaningful for that Kind.
type Error struct {
	Kind ErrorKind

	Message string

	// Validation
	Field string

	// Component / Provider / Storage / Configuration
	Source error

	// Provider
	Provider string

	// Storage
	Operation string

	// Security
	ViolationType string

	// Workflow
	Step string

	// Script
	Language string
	Line     int

	// ResourceLimit
	Resource string
	Limit    int64
	Used     int64
}

// Error implements the error interface with a stable, log-safe string.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Source != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Source)
	}
	return msg
}

// Unwrap exposes the wrapped source error for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Source
}

// Is reports whether target is an *Error with the same Kind, enabling
// errors.Is(err, core.Validation("")) style checks against a sentinel shape.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	if other.Message == "" {
		return e.Kind == other.Kind
	}
	return e.Kind == other.Kind && e.Message == other.Message
}

// Validation builds a Validation error, optionally naming the offending field.
func Validation(message string, field ...string) *Error {
	e := &Error{Kind: ErrorKindValidation, Message: message}
	if len(field) > 0 {
		e.Field = field[0]
	}
	return e
}

// Component builds a Component error.
func Component(message string, source ...error) *Error {
	return &Error{Kind: ErrorKindComponent, Message: message, Source: firstOrNil(source)}
}

// Cancelled builds the stable-prefixed Component error used for cooperative
// cancellation and deadline exceeded, so callers can recognize it by
// substring without a type assertion, per spec.md §5/§7.
func Cancelled(reason string) *Error {
	msg := cancelledMessagePrefix
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", cancelledMessagePrefix, reason)
	}
	return &Error{Kind: ErrorKindComponent, Message: msg}
}

// IsCancelled reports whether err is a cancellation/timeout Component error.
func IsCancelled(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == ErrorKindComponent && len(e.Message) >= len(cancelledMessagePrefix) &&
		e.Message[:len(cancelledMessagePrefix)] == cancelledMessagePrefix
}

// Provider builds a Provider error.
func Provider(provider, message string, source ...error) *Error {
	return &Error{Kind: ErrorKindProvider, Message: message, Provider: provider, Source: firstOrNil(source)}
}

// Storage builds a Storage error.
func Storage(operation, message string, source ...error) *Error {
	return &Error{Kind: ErrorKindStorage, Message: message, Operation: operation, Source: firstOrNil(source)}
}

// Configuration builds a Configuration error.
func Configuration(message string, source ...error) *Error {
	return &Error{Kind: ErrorKindConfiguration, Message: message, Source: firstOrNil(source)}
}

// Security builds a Security error.
func Security(violationType, message string) *Error {
	return &Error{Kind: ErrorKindSecurity, Message: message, ViolationType: violationType}
}

// Workflow builds a Workflow error.
func Workflow(step, message string, source ...error) *Error {
	return &Error{Kind: ErrorKindWorkflow, Message: message, Step: step, Source: firstOrNil(source)}
}

// Script builds a Script error.
func Script(language, message string, line int, source ...error) *Error {
	return &Error{Kind: ErrorKindScript, Message: message, Language: language, Line: line, Source: firstOrNil(source)}
}

// ResourceLimit builds a ResourceLimit error.
func ResourceLimit(resource string, limit, used int64) *Error {
	return &Error{
		Kind:     ErrorKindResourceLimit,
		Message:  fmt.Sprintf("%s limit exceeded: %d/%d", resource, used, limit),
		Resource: resource,
		Limit:    limit,
		Used:     used,
	}
}

func firstOrNil(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
