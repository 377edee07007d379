package ux

import (
	"fmt"
	"strings"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a recovery suggestion to errors that do not already
// carry one. Coded registry errors are returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := regerrors.As(err); ok {
		return err
	}

	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "connection refused"),
		strings.Contains(errMsg, "no such host"),
		strings.Contains(errMsg, "no route to host"):
		return NewErrorWithSuggestion(err,
			"Check that the registry API is reachable and api.url is correct ('ckdreg config get api.url')")

	case strings.Contains(errMsg, "context deadline exceeded"),
		strings.Contains(errMsg, "Client.Timeout exceeded"):
		return NewErrorWithSuggestion(err,
			"The registry API did not answer in time; raise api.timeout or try again later")

	case strings.Contains(errMsg, "x509:"),
		strings.Contains(errMsg, "tls:"):
		return NewErrorWithSuggestion(err,
			"The API certificate could not be verified; check api.url uses the registry's public hostname")

	case strings.Contains(errMsg, "message authentication failed"):
		return NewErrorWithSuggestion(err,
			"The token store could not be decrypted; set CKDREG_STORE_PASSPHRASE to the passphrase used at login, or run 'ckdreg auth logout'")

	case strings.Contains(errMsg, "permission denied"):
		return NewErrorWithSuggestion(err,
			"Check the permissions of ~/.ckdreg and the configured store.path")

	case strings.Contains(errMsg, "unknown format"):
		return NewErrorWithSuggestion(err,
			"Use --output text, json or yaml")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}
