package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by providers,
// generators and services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Concept errors
var (
	ErrConceptNotFound     = errors.New("concept not found")
	ErrProviderUnavailable = errors.New("concept provider unavailable")
)

// Exercise errors
var (
	ErrExerciseNotFound     = errors.New("exercise not found")
	ErrUnsupportedType      = errors.New("unsupported exercise type")
	ErrGenerationFailed     = errors.New("exercise generation failed")
	ErrNoGeneratorAvailable = errors.New("no generator available")
)

// CODA errors
var (
	ErrCodaNotFound    = errors.New("coda not found")
	ErrSessionNotFound = errors.New("teaching session not found")
	ErrSessionActive   = errors.New("teaching session already active")
	ErrNoActiveSession = errors.New("no active teaching session")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError with a formatted message
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// GenerationError reports that a generation request could not be satisfied,
// typically because no concept matched it.
type GenerationError struct {
	Type   ExerciseType
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate %s: %s: %v", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("generate %s: %s", e.Type, e.Reason)
}

func (e *GenerationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrGenerationFailed
}

// ProviderError reports that the concept source failed. Callers may retry.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("concept provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying
func (e *ProviderError) Retryable() bool { return true }

// FactoryErrorCode is a stable code for generator selection failures
type FactoryErrorCode string

const (
	CodeUnsupportedType FactoryErrorCode = "UNSUPPORTED_TYPE"
	CodeNoGenerator     FactoryErrorCode = "NO_GENERATOR_AVAILABLE"
	CodeDefaultFailed   FactoryErrorCode = "DEFAULT_GENERATOR_FAILED"
	CodeInvalidConfig   FactoryErrorCode = "INVALID_CONFIGURATION"
	CodeDuplicateName   FactoryErrorCode = "DUPLICATE_GENERATOR"
	CodeUnknownStrategy FactoryErrorCode = "UNKNOWN_STRATEGY"
)

// FactoryError is a structured generator selection failure
type FactoryError struct {
	Code    FactoryErrorCode
	Message string
	Context map[string]any
	Err     error
}

func (e *FactoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("factory %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("factory %s: %s", e.Code, e.Message)
}

func (e *FactoryError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNoGeneratorAvailable
}

// IsRetryable reports whether err represents a transient provider failure
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}
