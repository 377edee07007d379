package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/ckdreg/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// AuthError indicates a missing, invalid or expired credential
	AuthError = 3

	// AccessPending indicates an authenticated account whose institute is not approved
	AccessPending = 4

	// NetworkError indicates the registry API could not be reached
	NetworkError = 5

	// ConfigError indicates an unreadable or invalid configuration
	ConfigError = 6

	// Interrupted indicates the user cancelled the operation
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Registry error codes take precedence over message heuristics.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if regErr, ok := errors.As(err); ok {
		switch regErr.Code {
		case errors.ErrCodeAuthGated:
			return AccessPending
		}
		switch regErr.Category() {
		case "AUTH":
			return AuthError
		case "GQL":
			if regErr.Code == errors.ErrCodeGraphQLTransport {
				return NetworkError
			}
			return GeneralError
		case "CONFIG":
			return ConfigError
		case "STORE":
			return GeneralError
		}
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") {
		return AuthError
	}
	if strings.Contains(errMsg, "token") && strings.Contains(errMsg, "expired") {
		return AuthError
	}

	if strings.Contains(errMsg, "network") || strings.Contains(errMsg, "connection") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "missing argument") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case AuthError:
		return "Authentication error"
	case AccessPending:
		return "Institute approval pending"
	case NetworkError:
		return "Network error"
	case ConfigError:
		return "Configuration error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
