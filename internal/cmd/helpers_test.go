package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/ckdreg/internal/config"
	"github.com/felixgeelhaar/ckdreg/internal/security"
	"github.com/felixgeelhaar/ckdreg/internal/session"
)

const (
	staffJSON   = `{"id":"u-1","email":"ana@renal.org","name":"Ana","role":"INSTITUTE_USER","institute":{"id":"i-1","name":"Renal Unit","approvalStatus":"APPROVED"}}`
	pendingJSON = `{"id":"u-2","email":"rui@renal.org","name":"Rui","role":"INSTITUTE_ADMIN","institute":{"id":"i-2","name":"Kids Kidney","approvalStatus":"PENDING_APPROVAL"}}`
	pageJSON    = `{"items":[{"id":"p-1","registryNumber":"PT-0001","name":"Joao","dateOfBirth":"2015-04-02","sex":"M","ckdStage":3,"status":"ACTIVE","enrolledAt":"2024-01-10T00:00:00Z"}],"total":1}`
)

type call struct {
	Operation     string
	Authorization string
	Variables     map[string]any
}

// fakeRegistry answers GraphQL operations by name.
type fakeRegistry struct {
	mu        sync.Mutex
	responses map[string]string
	status    map[string]int
	calls     []call
}

func newFakeRegistry(t *testing.T, responses map[string]string) (*fakeRegistry, *httptest.Server) {
	t.Helper()
	f := &fakeRegistry{responses: responses, status: map[string]int{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, call{
		Operation:     body.OperationName,
		Authorization: r.Header.Get("Authorization"),
		Variables:     body.Variables,
	})
	resp, ok := f.responses[body.OperationName]
	code := f.status[body.OperationName]
	f.mu.Unlock()

	if !ok {
		http.Error(w, "unexpected operation "+body.OperationName, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if code != 0 {
		w.WriteHeader(code)
	}
	_, _ = io.WriteString(w, resp)
}

func (f *fakeRegistry) set(op, resp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[op] = resp
}

func (f *fakeRegistry) callsTo(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Operation == op {
			out = append(out, c)
		}
	}
	return out
}

func testConfig(url string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			URL:       url,
			Timeout:   5 * time.Second,
			CacheSize: 16,
		},
		Session: config.SessionConfig{
			PollInterval: time.Hour,
			LoginPath:    "/login",
		},
		Store: config.StoreConfig{Path: "unused"},
		Log:   config.LogConfig{Level: "error", Format: "text"},
	}
}

type notices struct {
	mu        sync.Mutex
	notified  []session.Notification
	redirects []string
}

func (n *notices) Notify(note session.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, note)
}

func (n *notices) redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, path)
}

func newTestApp(t *testing.T, cfg *config.Config, store security.TokenStore) (*app, *notices) {
	t.Helper()
	n := &notices{}
	a, err := assemble(cfg, store, appOptions{Notifier: n, HardRedirect: n.redirect, Log: io.Discard})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, n
}

func storedToken(t *testing.T, store security.TokenStore) string {
	t.Helper()
	token, err := store.Get()
	require.NoError(t, err)
	return token
}

func meResponse(user string) string {
	return `{"data":{"me":` + user + `}}`
}
