package graphql

import (
	"fmt"
	"strings"
)

// ErrorEntry is one element of a GraphQL response's "errors" array.
type ErrorEntry struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code, or "" when the server sent none.
func (e ErrorEntry) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// Error is returned when the server answered with a GraphQL errors array.
// Partial data, if any, is discarded.
type Error struct {
	StatusCode int
	RequestID  string
	Entries    []ErrorEntry
}

func (e *Error) Error() string {
	msgs := e.Messages()
	if len(msgs) == 0 {
		return "graphql: request failed"
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Messages returns the message of every entry.
func (e *Error) Messages() []string {
	msgs := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		msgs = append(msgs, entry.Message)
	}
	return msgs
}

// Codes returns the non-empty extensions.code values.
func (e *Error) Codes() []string {
	var codes []string
	for _, entry := range e.Entries {
		if code := entry.Code(); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// HasCode reports whether any entry carries extensions.code == code.
func (e *Error) HasCode(code string) bool {
	for _, entry := range e.Entries {
		if strings.EqualFold(entry.Code(), code) {
			return true
		}
	}
	return false
}

// HTTPError is returned for a non-2xx response without a GraphQL envelope.
type HTTPError struct {
	StatusCode int
	RequestID  string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("graphql: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("graphql: request failed with status %d: %s", e.StatusCode, e.Body)
}
