package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeAuthLoginFailed    ErrorCode = "AUTH-001"
	ErrCodeAuthNotLoggedIn    ErrorCode = "AUTH-002"
	ErrCodeAuthSessionExpired ErrorCode = "AUTH-003"
	ErrCodeAuthGated          ErrorCode = "AUTH-004"
	ErrCodeAuthRegistration   ErrorCode = "AUTH-005"

	// GraphQL transport errors (GQL-001 to GQL-099)
	ErrCodeGraphQLTransport ErrorCode = "GQL-001"
	ErrCodeGraphQLDecode    ErrorCode = "GQL-002"

	// Token store errors (STORE-001 to STORE-099)
	ErrCodeStoreRead  ErrorCode = "STORE-001"
	ErrCodeStoreWrite ErrorCode = "STORE-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigLoad    ErrorCode = "CONFIG-001"
	ErrCodeConfigSave    ErrorCode = "CONFIG-002"
	ErrCodeConfigInvalid ErrorCode = "CONFIG-003"
)

// RegistryError represents an enhanced error with code, suggestions, and documentation
type RegistryError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *RegistryError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *RegistryError) Unwrap() error {
	return e.Cause
}

// Category returns the code prefix, e.g. "AUTH" for "AUTH-003".
func (e *RegistryError) Category() string {
	code := string(e.Code)
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

// New creates a new RegistryError
func New(code ErrorCode, message string) *RegistryError {
	return &RegistryError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new RegistryError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *RegistryError {
	return &RegistryError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *RegistryError) WithSuggestion(suggestion string) *RegistryError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *RegistryError) WithSuggestions(suggestions ...string) *RegistryError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *RegistryError) WithDocs(url string) *RegistryError {
	e.DocsURL = url
	return e
}

// As finds the first RegistryError in err's chain.
func As(err error) (*RegistryError, bool) {
	var regErr *RegistryError
	if errors.As(err, &regErr) {
		return regErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains a RegistryError with code.
func HasCode(err error, code ErrorCode) bool {
	regErr, ok := As(err)
	return ok && regErr.Code == code
}

// Common error constructors for frequently used errors

// NewLoginFailedError creates a login failure error
func NewLoginFailedError(email string, cause error) *RegistryError {
	return Wrap(ErrCodeAuthLoginFailed, fmt.Sprintf("login failed for %s", email), cause).
		WithSuggestion("Check your email address and password").
		WithSuggestion("Run 'ckdreg auth register' if you do not have an account yet")
}

// NewNotLoggedInError creates an error for commands that need a stored token
func NewNotLoggedInError() *RegistryError {
	return New(ErrCodeAuthNotLoggedIn, "not logged in").
		WithSuggestion("Run 'ckdreg auth login' to authenticate")
}

// NewSessionExpiredError creates an error for an expired or revoked session
func NewSessionExpiredError() *RegistryError {
	return New(ErrCodeAuthSessionExpired, "session has expired").
		WithSuggestion("Run 'ckdreg auth login' to sign in again")
}

// NewGatedError creates an error for institute admins awaiting approval
func NewGatedError(institute, status string) *RegistryError {
	return New(ErrCodeAuthGated, fmt.Sprintf("institute %q is not approved (status: %s)", institute, status)).
		WithSuggestion("Wait for a registry administrator to review the institute").
		WithSuggestion("Run 'ckdreg auth check' to refresh the approval status")
}

// NewRegistrationError creates a registration failure error
func NewRegistrationError(email string, cause error) *RegistryError {
	return Wrap(ErrCodeAuthRegistration, fmt.Sprintf("registration failed for %s", email), cause).
		WithSuggestion("Check that the email address is not already registered").
		WithSuggestion("Passwords must be at least 8 characters long")
}

// NewTransportError creates an error for failed requests to the registry API
func NewTransportError(endpoint string, cause error) *RegistryError {
	return Wrap(ErrCodeGraphQLTransport, fmt.Sprintf("request to %s failed", endpoint), cause).
		WithSuggestion("Check your network connection").
		WithSuggestion("Verify api.url with 'ckdreg config get api.url'")
}

// NewStoreError creates a token store error
func NewStoreError(code ErrorCode, path string, cause error) *RegistryError {
	return Wrap(code, fmt.Sprintf("token store %s is not usable", path), cause).
		WithSuggestion("Check the permissions of the store file").
		WithSuggestion("Make sure CKDREG_STORE_PASSPHRASE matches the one used at login")
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(key, details string) *RegistryError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration value for %s: %s", key, details)).
		WithSuggestion("Run 'ckdreg config view' to inspect the effective configuration").
		WithSuggestion(fmt.Sprintf("Fix it with 'ckdreg config set %s <value>'", key))
}
