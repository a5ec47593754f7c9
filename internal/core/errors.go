package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation  ErrorCategory = "validation"          // Invalid input
	ErrCatTransport   ErrorCategory = "transport"           // Network failure or timeout
	ErrCatRateLimit   ErrorCategory = "rate_limit"          // Provider backpressure
	ErrCatSchema      ErrorCategory = "schema_violation"    // Unparseable provider payload
	ErrCatTruncated   ErrorCategory = "truncated_output"    // Auto-continuation budget exhausted
	ErrCatPrediction  ErrorCategory = "prediction_mismatch" // Predicted grid count != test count
	ErrCatPersistence ErrorCategory = "persistence"         // Result store failure (best-effort)
	ErrCatState       ErrorCategory = "state"               // Session lifecycle violation
	ErrCatNotFound    ErrorCategory = "not_found"           // Resource not found
	ErrCatInternal    ErrorCategory = "internal"            // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTransport creates a transport error (network failure or timeout).
// Retryable by the caller; the core never auto-retries across providers.
func ErrTransport(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTransport,
		Code:      "TRANSPORT",
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimited creates a rate limit error.
func ErrRateLimited(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrSchemaViolation creates an error for a provider payload that could not
// be parsed against the expected wire schema.
func ErrSchemaViolation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatSchema,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTruncatedOutput indicates the provider kept truncating after the
// automatic continuation budget was spent.
func ErrTruncatedOutput(continuations int) *DomainError {
	return &DomainError{
		Category:  ErrCatTruncated,
		Code:      "TRUNCATED_OUTPUT",
		Message:   fmt.Sprintf("output still truncated after %d continuation calls", continuations),
		Retryable: false,
		Details: map[string]interface{}{
			"continuations": continuations,
		},
	}
}

// ErrPredictionCountMismatch indicates the model supplied a different number
// of predicted grids than the puzzle has test cases.
func ErrPredictionCountMismatch(got, want int) *DomainError {
	return &DomainError{
		Category:  ErrCatPrediction,
		Code:      "PREDICTION_COUNT_MISMATCH",
		Message:   fmt.Sprintf("extracted %d predicted grids, puzzle has %d test cases", got, want),
		Retryable: false,
		Details: map[string]interface{}{
			"got":  got,
			"want": want,
		},
	}
}

// ErrPersistence creates a best-effort persistence failure. It never
// invalidates the in-memory analysis result.
func ErrPersistence(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatPersistence,
		Code:      "PERSISTENCE_FAILED",
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a session lifecycle error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotReady indicates a result was requested before the session reached a
// terminal state.
func ErrNotReady(sessionID string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      CodeNotReady,
		Message:   fmt.Sprintf("session %s has not reached a terminal state", sessionID),
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrInternal creates an unexpected internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      "INTERNAL",
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeNotReady         = "NOT_READY"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodePuzzleNotFound   = "PUZZLE_NOT_FOUND"
	CodeProviderUnknown  = "PROVIDER_UNKNOWN"
	CodeHandleRejected   = "HANDLE_REJECTED"
	CodeHandleExpired    = "HANDLE_EXPIRED"
	CodeInvalidState     = "INVALID_STATE"
	CodeAlreadyTerminal  = "ALREADY_TERMINAL"
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodeEmptyResponse    = "EMPTY_RESPONSE"

	// Validation error codes
	CodeEmptyGrid       = "EMPTY_GRID"
	CodeRaggedGrid      = "RAGGED_GRID"
	CodeInvalidPuzzle   = "INVALID_PUZZLE"
	CodeInvalidConfig   = "INVALID_CONFIG"
	CodeMissingProvider = "MISSING_PROVIDER"
	CodeMissingModel    = "MISSING_MODEL"
	CodePromptConflict  = "PROMPT_CONFLICT"
)
