package medgraph

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeRetrievalUnavailable = "RETRIEVAL_UNAVAILABLE"
	ErrCodeEntityNotFound       = "ENTITY_NOT_FOUND"
	ErrCodeGraphUnavailable     = "GRAPH_UNAVAILABLE"
	ErrCodeGenerationFailure    = "GENERATION_FAILURE"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeConfiguration        = "CONFIGURATION_ERROR"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeCache                = "CACHE_ERROR"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// MedGraphError is a custom error type for orchestrator-specific errors.
// Collaborator failures are wrapped in it at the adapter boundary and
// downgraded to empty or low-confidence evidence by the orchestrator; only
// validation and cancellation errors ever reach the caller.
type MedGraphError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeEntityNotFound)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "retrieval", "synthesis")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *MedGraphError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *MedGraphError) Unwrap() error {
	return e.Cause
}

// NewError creates a new MedGraphError.
func NewError(code, stage, message string, cause error) *MedGraphError {
	return &MedGraphError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// Specific error constructors

func NewValidationError(message string) *MedGraphError {
	return NewError(ErrCodeValidation, "validation", message, nil)
}

func NewRetrievalUnavailableError(cause error) *MedGraphError {
	return NewError(ErrCodeRetrievalUnavailable, "retrieval", "semantic search index unreachable", cause)
}

func NewEntityNotFoundError(entities []string) *MedGraphError {
	return NewError(ErrCodeEntityNotFound, "graph", fmt.Sprintf("no entity in %v resolves to a graph node", entities), nil)
}

func NewGraphUnavailableError(cause error) *MedGraphError {
	return NewError(ErrCodeGraphUnavailable, "graph", "knowledge graph unreachable", cause)
}

func NewGenerationFailureError(cause error) *MedGraphError {
	return NewError(ErrCodeGenerationFailure, "synthesis", "generation call failed", cause)
}

func NewTimeoutError(stage string, cause error) *MedGraphError {
	return NewError(ErrCodeTimeout, stage, "collaborator call timed out", cause)
}

func NewConfigurationError(message string, cause error) *MedGraphError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *MedGraphError {
	msg := "answer cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("answer cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewInternalError(stage, message string, cause error) *MedGraphError {
	return NewError(ErrCodeInternal, stage, message, cause)
}

// HasCode reports whether err (or anything it wraps) is a MedGraphError with
// the given code.
func HasCode(err error, code string) bool {
	var mge *MedGraphError
	if errors.As(err, &mge) {
		return mge.Code == code
	}
	return false
}
