package session

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
	"github.com/felixgeelhaar/ckdreg/internal/graphql"
	"github.com/felixgeelhaar/ckdreg/internal/registry"
)

// ErrorKind is the class of an identity-fetch failure.
type ErrorKind int

const (
	// KindNone means no error.
	KindNone ErrorKind = iota
	// KindCredentialExpired ends the session with a notification and a
	// redirect to the login surface.
	KindCredentialExpired
	// KindAuthentication clears the token only.
	KindAuthentication
	// KindSchemaValue is a response the client cannot represent, such as an
	// unknown enum value. Logged only.
	KindSchemaValue
	// KindNetwork is a transport failure. Logged only.
	KindNetwork
	// KindUnknown is handled like KindNetwork.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCredentialExpired:
		return "credential_expired"
	case KindAuthentication:
		return "authentication"
	case KindSchemaValue:
		return "schema_value"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Server extension codes.
const (
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeUnauthenticated = "UNAUTHENTICATED"
)

var (
	expiredPhrases = []string{
		"jwt expired",
		"token expired",
		"token has expired",
		"session expired",
		"session has expired",
	}
	authPhrases = []string{
		"not authenticated",
		"unauthenticated",
		"invalid token",
		"invalid signature",
		"jwt malformed",
		"unauthorized",
	}
	schemaPhrases = []string{
		"cannot represent",
		"expected type",
		"cannot return null for non-nullable",
	}
	networkPhrases = []string{
		"connection refused",
		"no such host",
		"giving up after",
		"i/o timeout",
		"unexpected eof",
	}
)

// Classify maps an identity-fetch error to an ErrorKind. Expiry is checked
// before generic authentication failures because servers commonly report an
// expired token with the UNAUTHENTICATED code.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, registry.ErrNoIdentity) {
		return KindAuthentication
	}

	var enumErr *registry.EnumError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &enumErr) || errors.As(err, &typeErr) {
		return KindSchemaValue
	}

	var gqlErr *graphql.Error
	if errors.As(err, &gqlErr) {
		return classifyGraphQL(gqlErr)
	}

	var httpErr *graphql.HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode, httpErr.Body)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return KindNetwork
	}
	if regerrors.HasCode(err, regerrors.ErrCodeGraphQLTransport) {
		return KindNetwork
	}

	return classifyMessage(err.Error())
}

func classifyGraphQL(e *graphql.Error) ErrorKind {
	if e.HasCode(CodeTokenExpired) {
		return KindCredentialExpired
	}
	for _, msg := range e.Messages() {
		if containsAny(msg, expiredPhrases) {
			return KindCredentialExpired
		}
	}

	if e.HasCode(CodeUnauthenticated) {
		return KindAuthentication
	}
	for _, msg := range e.Messages() {
		if containsAny(msg, authPhrases) {
			return KindAuthentication
		}
	}

	for _, msg := range e.Messages() {
		if containsAny(msg, schemaPhrases) {
			return KindSchemaValue
		}
	}

	return classifyStatus(e.StatusCode, "")
}

func classifyStatus(status int, body string) ErrorKind {
	switch {
	case containsAny(body, expiredPhrases):
		return KindCredentialExpired
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}

func classifyMessage(msg string) ErrorKind {
	switch {
	case containsAny(msg, expiredPhrases):
		return KindCredentialExpired
	case containsAny(msg, authPhrases):
		return KindAuthentication
	case containsAny(msg, schemaPhrases):
		return KindSchemaValue
	case containsAny(msg, networkPhrases):
		return KindNetwork
	default:
		return KindUnknown
	}
}

func containsAny(s string, phrases []string) bool {
	s = strings.ToLower(s)
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
