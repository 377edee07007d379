package exitcode

import (
	"errors"
	"fmt"
	"testing"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
)

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: Success,
		},
		{
			name:     "session expired registry error",
			err:      regerrors.NewSessionExpiredError(),
			expected: AuthError,
		},
		{
			name:     "wrapped not logged in",
			err:      fmt.Errorf("status: %w", regerrors.NewNotLoggedInError()),
			expected: AuthError,
		},
		{
			name:     "gated account",
			err:      regerrors.NewGatedError("Renal Unit", "PENDING_APPROVAL"),
			expected: AccessPending,
		},
		{
			name:     "transport failure",
			err:      regerrors.NewTransportError("http://localhost", errors.New("refused")),
			expected: NetworkError,
		},
		{
			name:     "graphql decode failure",
			err:      regerrors.New(regerrors.ErrCodeGraphQLDecode, "bad json"),
			expected: GeneralError,
		},
		{
			name:     "invalid config",
			err:      regerrors.NewConfigInvalidError("api.url", "empty"),
			expected: ConfigError,
		},
		{
			name:     "unreadable token store",
			err:      regerrors.NewStoreError(regerrors.ErrCodeStoreRead, "/tmp/store", errors.New("connection reset")),
			expected: GeneralError,
		},
		{
			name:     "unauthorized message",
			err:      errors.New("401 Unauthorized"),
			expected: AuthError,
		},
		{
			name:     "token expired message",
			err:      errors.New("jwt token has expired"),
			expected: AuthError,
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp: connection refused"),
			expected: NetworkError,
		},
		{
			name:     "unknown command",
			err:      errors.New(`unknown command "foo" for "ckdreg"`),
			expected: UsageError,
		},
		{
			name:     "generic error",
			err:      errors.New("something happened"),
			expected: GeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	codes := []int{Success, GeneralError, UsageError, AuthError, AccessPending, NetworkError, ConfigError, Interrupted}
	for _, code := range codes {
		if desc := GetExitCodeDescription(code); desc == "Unknown error" {
			t.Errorf("code %d has no description", code)
		}
	}
	if GetExitCodeDescription(99) != "Unknown error" {
		t.Error("expected unknown description for unmapped code")
	}
}
