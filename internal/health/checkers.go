package health

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/ckdreg/internal/config"
	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
	"github.com/felixgeelhaar/ckdreg/internal/graphql"
	"github.com/felixgeelhaar/ckdreg/internal/security"
	"github.com/felixgeelhaar/ckdreg/internal/session"
)

// ConfigChecker validates the effective configuration. Err carries a
// failure to load it.
type ConfigChecker struct {
	Config *config.Config
	Path   string
	Err    error
}

func (c *ConfigChecker) Name() string { return "config" }

func (c *ConfigChecker) Check(ctx context.Context) *Result {
	if c.Err != nil {
		return Unhealthy(summary(c.Err)).WithDetail("path", c.Path)
	}
	if c.Config == nil {
		return Unhealthy("no configuration loaded").WithDetail("path", c.Path)
	}
	if err := c.Config.Validate(); err != nil {
		res := Unhealthy(summary(err)).WithDetail("path", c.Path)
		if regErr, ok := regerrors.As(err); ok && len(regErr.Suggestions) > 0 {
			res.WithDetail("suggestion", regErr.Suggestions[len(regErr.Suggestions)-1])
		}
		return res
	}
	return Healthy(fmt.Sprintf("api.url is %s", c.Config.API.URL)).WithDetail("path", c.Path)
}

// TokenChecker reads the stored token and inspects its claims.
type TokenChecker struct {
	Store security.TokenStore
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *TokenChecker) Name() string { return "token-store" }

func (c *TokenChecker) Check(ctx context.Context) *Result {
	token, err := c.Store.Get()
	if err != nil {
		return Unhealthy(summary(err)).
			WithDetail("suggestion", "Check CKDREG_STORE_PASSPHRASE or run 'ckdreg auth logout' to reset the store")
	}
	if token == "" {
		return Degraded("not logged in").
			WithDetail("suggestion", "Run 'ckdreg auth login' to authenticate")
	}

	info, err := security.InspectToken(token)
	if err != nil {
		// Opaque tokens are allowed; only the server can judge them.
		return Healthy("token stored (not a JWT)")
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if info.Expired(now()) {
		return Degraded(fmt.Sprintf("stored token expired at %s", info.ExpiresAt.UTC().Format(time.RFC3339))).
			WithDetail("expires_at", info.ExpiresAt).
			WithDetail("suggestion", "Run 'ckdreg auth login' to sign in again")
	}

	res := Healthy("token stored")
	if !info.ExpiresAt.IsZero() {
		res.Message = fmt.Sprintf("token stored, expires %s", info.ExpiresAt.UTC().Format(time.RFC3339))
		res.WithDetail("expires_at", info.ExpiresAt)
	}
	return res
}

// Querier executes GraphQL operations.
type Querier interface {
	Do(ctx context.Context, req graphql.Request, out any) error
}

const pingQuery = `query Ping { __typename }`

// EndpointChecker sends a trivial query to the registry API.
type EndpointChecker struct {
	Client   Querier
	Endpoint string
}

func (c *EndpointChecker) Name() string { return "registry-api" }

func (c *EndpointChecker) Check(ctx context.Context) *Result {
	var out struct {
		Typename string `json:"__typename"`
	}

	start := time.Now()
	err := c.Client.Do(ctx, graphql.Request{
		Query:         pingQuery,
		OperationName: "Ping",
		Policy:        graphql.NetworkOnly,
	}, &out)
	latency := time.Since(start)

	if err != nil {
		return Unhealthy(summary(err)).
			WithDetail("endpoint", c.Endpoint).
			WithDetail("suggestion", "Verify api.url with 'ckdreg config get api.url'").
			WithLatency(latency)
	}
	return Healthy(fmt.Sprintf("%s reachable", c.Endpoint)).
		WithDetail("endpoint", c.Endpoint).
		WithLatency(latency)
}

// SnapshotSource exposes the current session.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// SessionChecker reports the resolved session. The session must have been
// initialized before the check runs.
type SessionChecker struct {
	Session SnapshotSource
}

func (c *SessionChecker) Name() string { return "session" }

func (c *SessionChecker) Check(ctx context.Context) *Result {
	snap := c.Session.Snapshot()
	switch snap.State {
	case session.Authenticated:
		return Healthy(fmt.Sprintf("signed in as %s (%s)", snap.User.Email, snap.User.Role)).
			WithDetail("state", snap.State.String())
	case session.Gated:
		res := Degraded("institute awaiting approval").WithDetail("state", snap.State.String())
		if inst := snap.User.Institute; inst != nil {
			res.Message = fmt.Sprintf("institute %q is %s", inst.Name, inst.ApprovalStatus)
		}
		return res.WithDetail("suggestion", "Run 'ckdreg auth check' once the institute is reviewed")
	case session.Resolving:
		return Unhealthy("identity could not be resolved").
			WithDetail("state", snap.State.String()).
			WithDetail("suggestion", "Check the registry-api result above")
	default:
		return Degraded("no session").WithDetail("state", snap.State.String())
	}
}

// summary is the first line of err without suggestions.
func summary(err error) string {
	if regErr, ok := regerrors.As(err); ok {
		msg := fmt.Sprintf("[%s] %s", regErr.Code, regErr.Message)
		if regErr.Cause != nil {
			msg += ": " + regErr.Cause.Error()
		}
		return msg
	}
	return err.Error()
}

var (
	_ Checker = (*ConfigChecker)(nil)
	_ Checker = (*TokenChecker)(nil)
	_ Checker = (*EndpointChecker)(nil)
	_ Checker = (*SessionChecker)(nil)
)
