package errors

import (
	"fmt"
)

// EngineError is the structured error type used across the docquery engine.
// It carries a stable code plus the §7 Kind so callers can branch on
// recovery policy without string-matching messages.
type EngineError struct {
	// Code is the unique error code (e.g. "ERR_201_BUFFER_NOT_FOUND").
	Code string

	// Kind is the §7 error-kind classification.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Store, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion surfaced to the caller.
	Suggestion string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is(err, target) to match by code.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for chaining.
func (e *EngineError) WithDetail(key, value string) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an actionable suggestion. Returns the error for chaining.
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates an EngineError with category, severity, kind, and retryable flag
// derived from the code.
func New(code string, message string, cause error) *EngineError {
	return &EngineError{
		Code:      code,
		Kind:      kindForCode(code),
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EngineError from an existing error, using its message.
func Wrap(code string, err error) *EngineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFoundf builds a KindNotFound error for a missing buffer or chunk.
func NotFoundf(code, format string, args ...any) *EngineError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// ConflictError builds a KindConflict error (e.g. duplicate buffer name).
func ConflictError(message string) *EngineError {
	return New(ErrCodeNameConflict, message, nil)
}

// ValidationError builds a KindInvalidArgument error.
func ValidationError(message string, cause error) *EngineError {
	return New(ErrCodeInvalidInput, message, cause)
}

// StoreError builds a KindIoError error from the persistence layer.
func StoreError(message string, cause error) *EngineError {
	return New(ErrCodeStoreIO, message, cause)
}

// ProviderTransientError builds a retryable KindProviderTransient error.
func ProviderTransientError(message string, cause error) *EngineError {
	return New(ErrCodeProviderTransient, message, cause)
}

// ProviderPermanentError builds a non-retryable KindProviderPermanent error.
func ProviderPermanentError(message string, cause error) *EngineError {
	return New(ErrCodeProviderPermanent, message, cause)
}

// ParseErrorf builds a KindParseError error for malformed structured output.
func ParseErrorf(format string, args ...any) *EngineError {
	return New(ErrCodeParseError, fmt.Sprintf(format, args...), nil)
}

// InternalError builds a generic internal error.
func InternalError(message string, cause error) *EngineError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err is an EngineError with Retryable set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngineError); ok {
		return ee.Retryable
	}
	return false
}

// IsFatal reports whether err has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngineError); ok {
		return ee.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err is not an EngineError.
func GetCode(err error) string {
	if ee, ok := err.(*EngineError); ok {
		return ee.Code
	}
	return ""
}

// GetKind extracts the §7 Kind, or "" if err is not an EngineError.
func GetKind(err error) Kind {
	if ee, ok := err.(*EngineError); ok {
		return ee.Kind
	}
	return ""
}
