package promptkit

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Sentinel errors for registry, rendering and execution.
// All use prefix "promptkit:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrNotFound         = errors.New("promptkit: not found")
	ErrProvider         = errors.New("promptkit: provider request failed")
	ErrSchemaValidation = errors.New("promptkit: response does not match response format")
	ErrCancelled        = errors.New("promptkit: execution cancelled")
	ErrTimeout          = errors.New("promptkit: provider request timed out")
	ErrInvalidTemplate  = errors.New("promptkit: prompt template is invalid")
	ErrInvalidName      = errors.New("promptkit: invalid prompt name")
	ErrDuplicatePrompt  = errors.New("promptkit: prompt already registered")
	ErrInvalidProvider  = errors.New("promptkit: invalid provider")
	ErrInvalidPayload   = errors.New("promptkit: payload struct is invalid or missing prompt tags")
	ErrInvalidJSON      = errors.New("promptkit: response is not a JSON object")
)

// MaxErrorBodyBytes bounds ProviderError.Body.
const MaxErrorBodyBytes = 512

// NotFoundError reports an unknown prompt or provider name.
type NotFoundError struct {
	Kind string // "prompt" or "provider"
	Name string
}

// Error implements error.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("promptkit: %s %q not found", e.Kind, e.Name)
}

// Unwrap returns ErrNotFound for errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ProviderError is a failed provider exchange: transport failure, timeout or non-2xx status.
// StatusCode is 0 when no HTTP response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

// NewProviderError builds a ProviderError, truncating body to MaxErrorBodyBytes.
func NewProviderError(provider string, status int, body []byte, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Body:       truncate(string(body), MaxErrorBodyBytes),
		Err:        err,
	}
}

// Error implements error.
func (e *ProviderError) Error() string {
	msg := "promptkit: provider " + e.Provider
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned status %d", e.StatusCode)
	} else {
		msg += " request failed"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap returns the underlying transport or SDK error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports ErrProvider so callers can match the category without errors.As.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// SchemaValidationError reports the first response field that failed the response format.
type SchemaValidationError struct {
	Field    string // empty when the whole document is rejected
	Expected Kind
	Actual   string
	Err      error
}

// Error implements error.
func (e *SchemaValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("promptkit: response: expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("promptkit: response field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Unwrap returns the wrapped cause, or ErrSchemaValidation.
func (e *SchemaValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrSchemaValidation
}

// Is reports ErrSchemaValidation.
func (e *SchemaValidationError) Is(target error) bool { return target == ErrSchemaValidation }

// CancelledError is returned when the caller's context was cancelled during execution.
// It is not a provider failure and is never logged as an error.
type CancelledError struct {
	Provider string
	Err      error
}

// Error implements error.
func (e *CancelledError) Error() string {
	if e.Provider == "" {
		return "promptkit: execution cancelled"
	}
	return "promptkit: execution cancelled during request to " + e.Provider
}

// Unwrap returns the context error (context.Canceled).
func (e *CancelledError) Unwrap() error { return e.Err }

// Is reports ErrCancelled.
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Compile-time checks that typed errors implement error.
var (
	_ error = (*NotFoundError)(nil)
	_ error = (*ProviderError)(nil)
	_ error = (*SchemaValidationError)(nil)
	_ error = (*CancelledError)(nil)
)
