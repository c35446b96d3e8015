package errors

import (
	stderrors "errors"
	"fmt"
)

// TrialError is the structured error type for trialscope.
// It provides rich context for error handling, logging, and user presentation.
type TrialError struct {
	// Code is the unique error code (e.g., "ERR_404_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *TrialError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *TrialError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with TrialError.
func (e *TrialError) Is(target error) bool {
	if t, ok := target.(*TrialError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *TrialError) WithDetail(key, value string) *TrialError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *TrialError) WithSuggestion(suggestion string) *TrialError {
	e.Suggestion = suggestion
	return e
}

// New creates a new TrialError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *TrialError {
	return &TrialError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an TrialError from an existing error.
// The error's message becomes the TrialError message.
func Wrap(code string, err error) *TrialError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *TrialError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *TrialError {
	return New(ErrCodeFileNotFound, message, cause)
}

// StoreUnavailable creates a retryable search-store error.
func StoreUnavailable(message string, cause error) *TrialError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// OracleUnavailable creates a retryable LLM or embedding oracle error.
func OracleUnavailable(message string, cause error) *TrialError {
	return New(ErrCodeOracleUnavailable, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *TrialError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *TrialError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *TrialError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if any TrialError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	var te *TrialError
	if stderrors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var te *TrialError
	if stderrors.As(err, &te) {
		return te.Severity == SeverityFatal
	}
	return false
}

// IsValidation reports whether err was rejected as invalid input.
func IsValidation(err error) bool {
	return GetCategory(err) == CategoryValidation
}

// GetCode extracts the error code from the first TrialError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var te *TrialError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ""
}

// GetCategory extracts the category from the first TrialError in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	var te *TrialError
	if stderrors.As(err, &te) {
		return te.Category
	}
	return ""
}
