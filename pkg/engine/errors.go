package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassDeferred indicates a constraint that is expected to clear later.
	// Examples: insufficient material, no equipment capacity.
	ErrorClassDeferred ErrorClass = "deferred"

	// ErrorClassConflict indicates a resource state conflict.
	// Examples: overlapping calendar commits.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid input, illegal status transition, unknown entity.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the entity ID that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the engine operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" && e.Operation != "" {
		msg = fmt.Sprintf("%s (resource=%s, operation=%s)", msg, e.Resource, e.Operation)
	} else if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewDeferredError creates a new deferred error.
func NewDeferredError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassDeferred,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common error codes.
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodeInsufficientMaterial = "INSUFFICIENT_MATERIAL"
	ErrCodeNoCapacity           = "NO_CAPACITY"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

func hasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsDeferred returns true if the error is a constraint deferral rather than a failure.
func IsDeferred(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassDeferred
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// staleSnapshotResource marks conflicts raised by a repository save.
const staleSnapshotResource = "snapshot"

// NewStaleSnapshotError reports a save based on an outdated snapshot.
func NewStaleSnapshotError(revision int64) *EngineError {
	return NewConflictError("snapshot changed since it was loaded", nil).
		WithCode(ErrCodeConflict).
		WithResource(staleSnapshotResource).
		WithDetail("revision", revision)
}

// IsStaleSnapshot returns true if a save was refused because another writer
// committed first.
func IsStaleSnapshot(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict && e.Resource == staleSnapshotResource
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsInsufficientMaterial reports whether err is an InsufficientMaterial deferral.
func IsInsufficientMaterial(err error) bool {
	return hasCode(err, ErrCodeInsufficientMaterial)
}

// IsNoCapacity reports whether err is a NoCapacity deferral.
func IsNoCapacity(err error) bool {
	return hasCode(err, ErrCodeNoCapacity)
}

// IsNotFound reports whether err refers to an unknown entity.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidTransition reports whether err is a rejected status transition.
func IsInvalidTransition(err error) bool {
	return hasCode(err, ErrCodeInvalidTransition)
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// errorLabels returns the class and code of err for metrics.
func errorLabels(err error) (string, string) {
	var e *EngineError
	if errors.As(err, &e) {
		return string(e.Class), e.Code
	}
	return "unclassified", ""
}

func notFound(kind, id string) *EngineError {
	return NewPermanentError(fmt.Sprintf("%s not found", kind), nil).
		WithCode(ErrCodeNotFound).
		WithResource(id)
}

func invalid(message, resource string) *EngineError {
	return NewPermanentError(message, nil).
		WithCode(ErrCodeValidation).
		WithResource(resource)
}
