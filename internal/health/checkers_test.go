package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/ckdreg/internal/config"
	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
	"github.com/felixgeelhaar/ckdreg/internal/graphql"
	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/security"
	"github.com/felixgeelhaar/ckdreg/internal/session"
)

func validConfig() *config.Config {
	return &config.Config{
		API:     config.APIConfig{URL: "https://registry.example.org/graphql", Timeout: time.Second},
		Session: config.SessionConfig{PollInterval: time.Minute, LoginPath: "/login"},
		Store:   config.StoreConfig{Path: "/tmp/store"},
	}
}

func TestConfigChecker(t *testing.T) {
	ctx := context.Background()

	res := (&ConfigChecker{Config: validConfig(), Path: "/etc/ckdreg.yaml"}).Check(ctx)
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Contains(t, res.Message, "registry.example.org")

	bad := validConfig()
	bad.API.URL = "ftp://nope"
	res = (&ConfigChecker{Config: bad}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Message, "CONFIG-003")
	assert.Contains(t, res.Details["suggestion"], "ckdreg config set api.url")

	res = (&ConfigChecker{}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
}

type failingStore struct{}

func (*failingStore) Get() (string, error) {
	return "", regerrors.NewStoreError(regerrors.ErrCodeStoreRead, "/tmp/store", errors.New("bad passphrase"))
}

func (*failingStore) Set(string) error { return nil }

func (*failingStore) Delete() error { return nil }

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestTokenChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	tests := []struct {
		name    string
		store   security.TokenStore
		status  Status
		message string
	}{
		{"empty store", security.NewMemoryStore(""), StatusDegraded, "not logged in"},
		{"unreadable store", &failingStore{}, StatusUnhealthy, "STORE-001"},
		{"opaque token", security.NewMemoryStore("opaque"), StatusHealthy, "not a JWT"},
		{"expired", security.NewMemoryStore(signedToken(t, now.Add(-time.Hour))), StatusDegraded, "expired"},
		{"valid", security.NewMemoryStore(signedToken(t, now.Add(time.Hour))), StatusHealthy, "expires 2026-03-01T13:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := (&TokenChecker{Store: tt.store, Now: clock}).Check(ctx)
			assert.Equal(t, tt.status, res.Status)
			assert.Contains(t, res.Message, tt.message)
		})
	}
}

type fakeQuerier struct {
	req graphql.Request
	err error
}

func (f *fakeQuerier) Do(ctx context.Context, req graphql.Request, out any) error {
	f.req = req
	return f.err
}

func TestEndpointChecker(t *testing.T) {
	q := &fakeQuerier{}
	checker := &EndpointChecker{Client: q, Endpoint: "https://registry.example.org/graphql"}

	res := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "Ping", q.req.OperationName)
	assert.Equal(t, graphql.NetworkOnly, q.req.Policy)

	q.err = regerrors.NewTransportError(checker.Endpoint, errors.New("connection refused"))
	res = checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Message, "connection refused")
	assert.NotContains(t, res.Message, "Suggestions")
}

type fixedSession session.Snapshot

func (f fixedSession) Snapshot() session.Snapshot { return session.Snapshot(f) }

func TestSessionChecker(t *testing.T) {
	staff := &registry.User{Email: "amara@renal.example.org", Role: registry.RoleInstituteUser}
	admin := &registry.User{
		Email: "admin@renal.example.org",
		Role:  registry.RoleInstituteAdmin,
		Institute: &registry.Institute{
			Name:           "Renal Unit",
			ApprovalStatus: registry.ApprovalPending,
		},
	}

	tests := []struct {
		name    string
		snap    session.Snapshot
		status  Status
		message string
	}{
		{"authenticated", session.Snapshot{State: session.Authenticated, User: staff}, StatusHealthy, "amara@renal.example.org"},
		{"gated", session.Snapshot{State: session.Gated, User: admin}, StatusDegraded, `"Renal Unit" is PENDING_APPROVAL`},
		{"gated without institute", session.Snapshot{State: session.Gated, User: &registry.User{Role: registry.RoleInstituteAdmin}}, StatusDegraded, "awaiting approval"},
		{"resolving", session.Snapshot{State: session.Resolving}, StatusUnhealthy, "could not be resolved"},
		{"logged out", session.Snapshot{}, StatusDegraded, "no session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := (&SessionChecker{Session: fixedSession(tt.snap)}).Check(context.Background())
			assert.Equal(t, tt.status, res.Status)
			assert.Contains(t, res.Message, tt.message)
		})
	}
}

func TestConfigCheckerLoadError(t *testing.T) {
	checker := &ConfigChecker{Path: "/etc/ckdreg.yaml", Err: errors.New("yaml: line 3: did not find expected key")}

	res := checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Message, "did not find expected key")
	assert.Equal(t, "/etc/ckdreg.yaml", res.Details["path"])
}
